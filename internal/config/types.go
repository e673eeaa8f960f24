// Package config loads dwhetl configuration from defaults, a YAML or legacy
// INI file, DWHETL_* environment variables and command-line flags.
//
// A Config is loaded once per process and passed explicitly to the
// components that need it. Nothing in this package keeps loaded state.
package config

import (
	"time"

	"github.com/leapstack-labs/dwhetl/internal/catalog"
	"github.com/leapstack-labs/dwhetl/pkg/core"
)

// TargetConfig describes the warehouse connection.
type TargetConfig struct {
	Type string `koanf:"type"` // redshift, duckdb

	// For duckdb, Database is the file path (empty or :memory: for in-memory).
	Database string `koanf:"database"`

	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Schema   string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, secrets, settings)
	Params map[string]any `koanf:"params"`
}

// AdapterConfig converts the target into the connection settings adapters take.
func (t *TargetConfig) AdapterConfig() core.AdapterConfig {
	return core.AdapterConfig{
		Type:     t.Type,
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  t.Options,
		Params:   t.Params,
	}
}

// SourcesConfig locates the raw event-log and song-catalog data.
type SourcesConfig struct {
	LogData     string `koanf:"log_data"`
	LogJSONPath string `koanf:"log_jsonpath"`
	SongData    string `koanf:"song_data"`
	// Region of the source bucket when it differs from the cluster's.
	Region string `koanf:"region"`
}

// IAMRoleConfig names the role the warehouse assumes to read the sources.
type IAMRoleConfig struct {
	ARN string `koanf:"arn"`
}

// AWSConfig holds credentials for provisioning and source preflight. Empty
// key and secret fall back to the SDK's default credential chain.
type AWSConfig struct {
	Key    string `koanf:"key"`
	Secret string `koanf:"secret"`
	Region string `koanf:"region"`
}

// ClusterConfig describes the cluster provision creates and teardown deletes.
// Database name, master user, password and port come from the target.
type ClusterConfig struct {
	Identifier  string        `koanf:"identifier"`
	Type        string        `koanf:"type"` // single-node, multi-node
	NodeType    string        `koanf:"node_type"`
	NumNodes    int           `koanf:"num_nodes"`
	IAMRoleName string        `koanf:"iam_role_name"`
	IngressCIDR string        `koanf:"ingress_cidr"`
	WaitTimeout time.Duration `koanf:"wait_timeout"`
}

// PipelineConfig holds defaults for reset and load.
type PipelineConfig struct {
	CommitMode string `koanf:"commit_mode"`
	Truncate   bool   `koanf:"truncate"`
}

// Config holds all dwhetl configuration.
type Config struct {
	Target       *TargetConfig  `koanf:"target"`
	Sources      SourcesConfig  `koanf:"sources"`
	IAMRole      IAMRoleConfig  `koanf:"iam_role"`
	AWS          AWSConfig      `koanf:"aws"`
	Cluster      ClusterConfig  `koanf:"cluster"`
	Pipeline     PipelineConfig `koanf:"pipeline"`
	StatePath    string         `koanf:"state_path"`
	Verbose      bool           `koanf:"verbose"`
	LogFormat    string         `koanf:"log_format"`
	OutputFormat string         `koanf:"output"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// CatalogParams returns the statement catalog parameters for the sources.
func (c *Config) CatalogParams() catalog.Params {
	return catalog.Params{
		EventsPath:      c.Sources.LogData,
		EventsJSONPaths: c.Sources.LogJSONPath,
		SongsPath:       c.Sources.SongData,
		IAMRoleARN:      c.IAMRole.ARN,
		Region:          c.Sources.Region,
	}
}
