package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config file names searched in the working directory, in order.
const (
	FileName       = "dwhetl.yaml"
	FileNameAlt    = "dwhetl.yml"
	LegacyFileName = "dwh.cfg"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nested keys: DWHETL_TARGET__PASSWORD sets target.password.
const EnvPrefix = "DWHETL_"

// Defaults.
const (
	DefaultStatePath  = ".dwhetl/state.db"
	DefaultOutput     = "auto"
	DefaultLogFormat  = "text"
	DefaultTargetType = "redshift"
	RedshiftPort      = 5439
)

func defaults() map[string]any {
	return map[string]any{
		"target.type":           DefaultTargetType,
		"aws.region":            "us-west-2",
		"cluster.identifier":    "dwhcluster",
		"cluster.type":          "multi-node",
		"cluster.node_type":     "dc2.large",
		"cluster.num_nodes":     4,
		"cluster.iam_role_name": "dwhRole",
		"cluster.ingress_cidr":  "0.0.0.0/0",
		"cluster.wait_timeout":  "30m",
		"pipeline.commit_mode":  "statement",
		"pipeline.truncate":     false,
		"state_path":            DefaultStatePath,
		"verbose":               false,
		"log_format":            DefaultLogFormat,
		"output":                DefaultOutput,
	}
}

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"state":       "state_path",
	"commit-mode": "pipeline.commit_mode",
	"truncate":    "pipeline.truncate",
}

// Load loads configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults
//
// When cfgFile is empty, dwhetl.yaml, dwhetl.yml and dwh.cfg are looked up in
// the working directory; finding none is not an error. Only flags that were
// set on the command line override other sources.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	path := findConfigFile(cfgFile)
	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	}

	// 3. Environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path

	if cfg.Target == nil {
		cfg.Target = &TargetConfig{Type: DefaultTargetType}
	}
	cfg.Target.Type = strings.ToLower(cfg.Target.Type)
	applyTargetDefaults(cfg.Target)
	cfg.expandEnvVars()

	if err := cfg.validateFormats(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cfg", ".ini":
		values, err := readLegacy(path)
		if err != nil {
			return err
		}
		if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
			return fmt.Errorf("error reading config file %s: %w", path, err)
		}
	default:
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	return nil
}

// findConfigFile returns the config file to use.
// Priority: explicit path > dwhetl.yaml > dwhetl.yml > dwh.cfg
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{FileName, FileNameAlt, LegacyFileName} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func applyTargetDefaults(t *TargetConfig) {
	if t.Type == "redshift" && t.Port == 0 {
		t.Port = RedshiftPort
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVar expands ${VAR} patterns with environment variable values.
// Unset variables are left as written.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}

// expandEnvVars expands environment variables in secret-bearing fields.
func (c *Config) expandEnvVars() {
	t := c.Target
	t.Host = expandEnvVar(t.Host)
	t.Database = expandEnvVar(t.Database)
	t.User = expandEnvVar(t.User)
	t.Password = expandEnvVar(t.Password)
	c.IAMRole.ARN = expandEnvVar(c.IAMRole.ARN)
	c.AWS.Key = expandEnvVar(c.AWS.Key)
	c.AWS.Secret = expandEnvVar(c.AWS.Secret)
}

func (c *Config) validateFormats() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (expected text or json)", c.LogFormat)
	}
	switch c.OutputFormat {
	case "auto", "text", "markdown", "json":
	default:
		return fmt.Errorf("invalid output %q (expected auto, text, markdown or json)", c.OutputFormat)
	}
	return nil
}
