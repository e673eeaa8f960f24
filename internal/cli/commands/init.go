package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/dwhetl/internal/cli/output"
	"github.com/leapstack-labs/dwhetl/internal/config"
	"github.com/leapstack-labs/dwhetl/pkg/adapter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Force  bool
	Target string
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a sample dwhetl.yaml",
		Long: `Write a sample configuration file.

The redshift sample reads the public song and log datasets from S3 and takes
secrets from environment variables. The duckdb sample runs the pipeline
against local JSON files.`,
		Example: `  # Redshift config in the current directory
  dwhetl init

  # Local development config
  dwhetl init --target duckdb

  # Overwrite an existing config
  dwhetl init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			mode, _ := cmd.Flags().GetString("output")
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(mode))
			return runInit(r, dir, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite existing configuration")
	cmd.Flags().StringVar(&opts.Target, "target", "redshift", "Sample target: redshift or duckdb")

	_ = cmd.RegisterFlagCompletionFunc("target", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return adapter.TargetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

type sampleConfig struct {
	Target    sampleTarget   `yaml:"target"`
	Sources   sampleSources  `yaml:"sources"`
	IAMRole   *sampleRole    `yaml:"iam_role,omitempty"`
	AWS       *sampleAWS     `yaml:"aws,omitempty"`
	Cluster   *sampleCluster `yaml:"cluster,omitempty"`
	Pipeline  samplePipeline `yaml:"pipeline"`
	StatePath string         `yaml:"state_path"`
}

type sampleTarget struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
}

type sampleSources struct {
	LogData     string `yaml:"log_data"`
	LogJSONPath string `yaml:"log_jsonpath,omitempty"`
	SongData    string `yaml:"song_data"`
	Region      string `yaml:"region,omitempty"`
}

type sampleRole struct {
	ARN string `yaml:"arn"`
}

type sampleAWS struct {
	Key    string `yaml:"key"`
	Secret string `yaml:"secret"`
	Region string `yaml:"region"`
}

type sampleCluster struct {
	Identifier  string `yaml:"identifier"`
	Type        string `yaml:"type"`
	NodeType    string `yaml:"node_type"`
	NumNodes    int    `yaml:"num_nodes"`
	IAMRoleName string `yaml:"iam_role_name"`
}

type samplePipeline struct {
	CommitMode string `yaml:"commit_mode"`
	Truncate   bool   `yaml:"truncate"`
}

func sampleFor(target string) (*sampleConfig, error) {
	switch target {
	case "redshift":
		return &sampleConfig{
			Target: sampleTarget{
				Type:     "redshift",
				Host:     "${DWH_HOST}",
				Port:     config.RedshiftPort,
				Database: "dwh",
				User:     "dwhuser",
				Password: "${DWH_PASSWORD}",
			},
			Sources: sampleSources{
				LogData:     "s3://udacity-dend/log_data",
				LogJSONPath: "s3://udacity-dend/log_json_path.json",
				SongData:    "s3://udacity-dend/song_data",
				Region:      "us-west-2",
			},
			IAMRole: &sampleRole{ARN: "${DWH_ROLE_ARN}"},
			AWS: &sampleAWS{
				Key:    "${AWS_ACCESS_KEY_ID}",
				Secret: "${AWS_SECRET_ACCESS_KEY}",
				Region: "us-west-2",
			},
			Cluster: &sampleCluster{
				Identifier:  "dwhcluster",
				Type:        "multi-node",
				NodeType:    "dc2.large",
				NumNodes:    4,
				IAMRoleName: "dwhRole",
			},
			Pipeline:  samplePipeline{CommitMode: "statement"},
			StatePath: config.DefaultStatePath,
		}, nil
	case "duckdb":
		return &sampleConfig{
			Target: sampleTarget{Type: "duckdb", Database: "dwh.duckdb"},
			Sources: sampleSources{
				LogData:  "data/log_data/*.json",
				SongData: "data/song_data/*/*/*/*.json",
			},
			Pipeline:  samplePipeline{CommitMode: "statement"},
			StatePath: config.DefaultStatePath,
		}, nil
	}
	return nil, fmt.Errorf("unknown sample target %q (expected redshift or duckdb)", target)
}

const sampleHeader = `# dwhetl configuration
# Values written as ${VAR} are read from the environment when the file loads.
# Any key can also be set with DWHETL_<SECTION>__<KEY>, e.g. DWHETL_TARGET__HOST.

`

func renderSample(target string) ([]byte, error) {
	sample, err := sampleFor(target)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(sampleHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(sample); err != nil {
		return nil, fmt.Errorf("failed to encode sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func runInit(r *output.Renderer, dir string, opts *InitOptions) error {
	data, err := renderSample(opts.Target)
	if err != nil {
		return err
	}

	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.FileName)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	r.StatusLine(configPath, "success", opts.Target)
	r.Println("")
	r.Success("dwhetl config written!")
	r.Println("")
	r.Println("Next steps:")
	if opts.Target == "redshift" {
		r.Println("  1. Export DWH_PASSWORD and your AWS credentials")
		r.Println("  2. Run 'dwhetl provision' and export DWH_HOST and DWH_ROLE_ARN from its output")
		r.Println("  3. Run 'dwhetl reset' then 'dwhetl load'")
	} else {
		r.Println("  1. Put event logs under data/log_data and the song catalog under data/song_data")
		r.Println("  2. Run 'dwhetl reset' then 'dwhetl load'")
	}
	return nil
}
