package duckdb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// Extensions to install and load (e.g., "httpfs", "json")
	Extensions []string `mapstructure:"extensions"`

	// Secrets for reading staged files from object storage
	Secrets []SecretConfig `mapstructure:"secrets"`

	// Settings to apply at session level (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`
}

// SecretConfig defines a DuckDB secret for cloud storage.
type SecretConfig struct {
	// Type: "s3", "gcs", "r2"
	Type string `mapstructure:"type"`

	// Provider: "config" or "credential_chain"
	Provider string `mapstructure:"provider"`

	Region string `mapstructure:"region,omitempty"`

	// Scope limits the secret to specific paths (string or []string)
	Scope any `mapstructure:"scope,omitempty"`

	KeyID  string `mapstructure:"key_id,omitempty"`
	Secret string `mapstructure:"secret,omitempty"`

	// Endpoint for S3-compatible services (MinIO, etc.)
	Endpoint string `mapstructure:"endpoint,omitempty"`

	// URLStyle: "vhost" or "path"
	URLStyle string `mapstructure:"url_style,omitempty"`

	UseSSL *bool `mapstructure:"use_ssl,omitempty"`
}

func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create params decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return p, nil
}

// setupStatements returns the session statements that apply p, in order:
// extensions first since secrets depend on httpfs.
func (p *Params) setupStatements() ([]string, error) {
	var stmts []string

	for _, ext := range p.Extensions {
		if !isIdentifier(ext) {
			return nil, fmt.Errorf("invalid extension name %q", ext)
		}
		stmts = append(stmts, "INSTALL "+ext, "LOAD "+ext)
	}

	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !isIdentifier(k) {
			return nil, fmt.Errorf("invalid setting name %q", k)
		}
		stmts = append(stmts, fmt.Sprintf("SET %s = %s", k, quote(p.Settings[k])))
	}

	for i, s := range p.Secrets {
		stmt, err := s.createStatement(i)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}

	return stmts, nil
}

func (s SecretConfig) createStatement(index int) (string, error) {
	if s.Type == "" {
		return "", fmt.Errorf("secret %d: type is required", index)
	}
	if !isIdentifier(s.Type) {
		return "", fmt.Errorf("secret %d: invalid type %q", index, s.Type)
	}

	opts := []string{"TYPE " + s.Type}
	if s.Provider != "" {
		if !isIdentifier(s.Provider) {
			return "", fmt.Errorf("secret %d: invalid provider %q", index, s.Provider)
		}
		opts = append(opts, "PROVIDER "+s.Provider)
	}
	if s.KeyID != "" {
		opts = append(opts, "KEY_ID "+quote(s.KeyID))
	}
	if s.Secret != "" {
		opts = append(opts, "SECRET "+quote(s.Secret))
	}
	if s.Region != "" {
		opts = append(opts, "REGION "+quote(s.Region))
	}
	if s.Endpoint != "" {
		opts = append(opts, "ENDPOINT "+quote(s.Endpoint))
	}
	if s.URLStyle != "" {
		opts = append(opts, "URL_STYLE "+quote(s.URLStyle))
	}
	if s.UseSSL != nil {
		opts = append(opts, fmt.Sprintf("USE_SSL %t", *s.UseSSL))
	}

	switch scope := s.Scope.(type) {
	case nil:
	case string:
		opts = append(opts, "SCOPE "+quote(scope))
	case []any:
		// DuckDB takes one scope per secret; the first entry wins.
		if len(scope) > 0 {
			opts = append(opts, "SCOPE "+quote(fmt.Sprint(scope[0])))
		}
	case []string:
		if len(scope) > 0 {
			opts = append(opts, "SCOPE "+quote(scope[0]))
		}
	default:
		return "", fmt.Errorf("secret %d: scope must be a string or list", index)
	}

	return fmt.Sprintf("CREATE OR REPLACE SECRET dwhetl_%s_%d (%s)", s.Type, index, strings.Join(opts, ", ")), nil
}

func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
