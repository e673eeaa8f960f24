package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("state", "", "")
	fs.String("commit-mode", "", "")
	fs.Bool("truncate", false, "")
	fs.Bool("verbose", false, "")
	fs.String("output", "auto", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

const legacyCfg = `[CLUSTER]
HOST='dwhcluster.abc123.us-west-2.redshift.amazonaws.com'
DB_NAME='dwh'
DB_USER='dwhuser'
DB_PASSWORD='Passw0rd;#1'
DB_PORT=5439
DWH_CLUSTER_TYPE=multi-node
DWH_NUM_NODES=4
DWH_NODE_TYPE=dc2.large
DWH_IAM_ROLE_NAME=dwhRole
DWH_CLUSTER_IDENTIFIER=dwhCluster

[IAM_ROLE]
ARN='arn:aws:iam::123456789012:role/dwhRole'

[S3]
LOG_DATA='s3://udacity-dend/log_data'
LOG_JSONPATH='s3://udacity-dend/log_json_path.json'
SONG_DATA='s3://udacity-dend/song_data'

[AWS]
KEY=AKIAEXAMPLE
SECRET=secret
`

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, "redshift", cfg.Target.Type)
	assert.Equal(t, RedshiftPort, cfg.Target.Port)
	assert.Equal(t, DefaultStatePath, cfg.StatePath)
	assert.Equal(t, "statement", cfg.Pipeline.CommitMode)
	assert.Equal(t, 30*time.Minute, cfg.Cluster.WaitTimeout)
	assert.Equal(t, 4, cfg.Cluster.NumNodes)
	assert.Equal(t, "us-west-2", cfg.AWS.Region)
	assert.Equal(t, "auto", cfg.OutputFormat)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dwhetl.yaml", `
target:
  type: DuckDB
  database: ":memory:"
  params:
    extensions: [httpfs]
    settings:
      s3_region: us-west-2
sources:
  log_data: data/log_data/*.json
  song_data: data/song_data/*/*/*/*.json
pipeline:
  truncate: true
cluster:
  wait_timeout: 45m
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "duckdb", cfg.Target.Type)
	assert.Zero(t, cfg.Target.Port)
	assert.Equal(t, []any{"httpfs"}, cfg.Target.Params["extensions"])
	assert.True(t, cfg.Pipeline.Truncate)
	assert.Equal(t, 45*time.Minute, cfg.Cluster.WaitTimeout)

	params := cfg.CatalogParams()
	assert.Equal(t, "data/log_data/*.json", params.EventsPath)
	assert.Equal(t, "data/song_data/*/*/*/*.json", params.SongsPath)

	ac := cfg.Target.AdapterConfig()
	assert.Equal(t, "duckdb", ac.Type)
	assert.Equal(t, ":memory:", ac.Database)
}

func TestLoad_LegacyINI(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dwh.cfg", legacyCfg)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "redshift", cfg.Target.Type)
	assert.Equal(t, "dwhcluster.abc123.us-west-2.redshift.amazonaws.com", cfg.Target.Host)
	assert.Equal(t, "dwh", cfg.Target.Database)
	assert.Equal(t, "dwhuser", cfg.Target.User)
	assert.Equal(t, "Passw0rd;#1", cfg.Target.Password)
	assert.Equal(t, 5439, cfg.Target.Port)

	assert.Equal(t, "dwhCluster", cfg.Cluster.Identifier)
	assert.Equal(t, "multi-node", cfg.Cluster.Type)
	assert.Equal(t, 4, cfg.Cluster.NumNodes)
	assert.Equal(t, "dwhRole", cfg.Cluster.IAMRoleName)

	assert.Equal(t, "arn:aws:iam::123456789012:role/dwhRole", cfg.IAMRole.ARN)
	assert.Equal(t, "s3://udacity-dend/log_json_path.json", cfg.Sources.LogJSONPath)
	assert.Equal(t, "AKIAEXAMPLE", cfg.AWS.Key)
	assert.Equal(t, "us-west-2", cfg.AWS.Region)

	require.NoError(t, cfg.RequireTarget())
	require.NoError(t, cfg.RequireSources())
	require.NoError(t, cfg.RequireCluster())
}

func TestLoad_DiscoversFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dwh.cfg", legacyCfg)
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, LegacyFileName, cfg.File)
	assert.Equal(t, "dwh", cfg.Target.Database)

	writeFile(t, dir, "dwhetl.yaml", "target:\n  type: duckdb\n")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, FileName, cfg.File)
	assert.Equal(t, "duckdb", cfg.Target.Type)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dwhetl.yaml", `
target:
  host: file-host
  password: file-password
pipeline:
  commit_mode: statement
  truncate: true
state_path: file-state.db
`)
	t.Setenv("DWHETL_TARGET__PASSWORD", "env-password")
	t.Setenv("DWHETL_TARGET__HOST", "env-host")
	t.Setenv("DWHETL_STATE_PATH", "env-state.db")

	flags := testFlags(t, "--commit-mode=sequence", "--state=flag-state.db")

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "env-password", cfg.Target.Password)
	assert.Equal(t, "env-host", cfg.Target.Host)
	assert.Equal(t, "flag-state.db", cfg.StatePath)
	assert.Equal(t, "sequence", cfg.Pipeline.CommitMode)
	// Unset flags do not override the file.
	assert.True(t, cfg.Pipeline.Truncate)
	assert.Equal(t, "auto", cfg.OutputFormat)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dwhetl.yaml", `
target:
  host: ${DWH_TEST_HOST}
  password: ${DWH_TEST_PASSWORD}
  user: ${DWH_TEST_UNSET}
aws:
  secret: ${DWH_TEST_SECRET}
`)
	t.Setenv("DWH_TEST_HOST", "cluster.example.com")
	t.Setenv("DWH_TEST_PASSWORD", "s3cret")
	t.Setenv("DWH_TEST_SECRET", "aws-secret")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "cluster.example.com", cfg.Target.Host)
	assert.Equal(t, "s3cret", cfg.Target.Password)
	assert.Equal(t, "${DWH_TEST_UNSET}", cfg.Target.User)
	assert.Equal(t, "aws-secret", cfg.AWS.Secret)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{
			name:    "missing file",
			path:    filepath.Join(dir, "nope.yaml"),
			wantErr: "error reading config file",
		},
		{
			name:    "bad log format",
			path:    writeFile(t, dir, "log.yaml", "log_format: xml\n"),
			wantErr: `invalid log_format "xml"`,
		},
		{
			name:    "bad output",
			path:    writeFile(t, dir, "out.yaml", "output: html\n"),
			wantErr: `invalid output "html"`,
		},
		{
			name:    "bad duration",
			path:    writeFile(t, dir, "dur.yaml", "cluster:\n  wait_timeout: soon\n"),
			wantErr: "unable to decode config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequire(t *testing.T) {
	t.Run("redshift target", func(t *testing.T) {
		cfg := &Config{Target: &TargetConfig{Type: "redshift", Host: "h"}}
		err := cfg.RequireTarget()

		var missing *MissingKeysError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []string{"target.database", "target.user"}, missing.Keys)
		assert.Contains(t, err.Error(), "DWHETL_*")
	})

	t.Run("duckdb target needs only a type", func(t *testing.T) {
		cfg := &Config{Target: &TargetConfig{Type: "duckdb"}}
		assert.NoError(t, cfg.RequireTarget())
	})

	t.Run("redshift sources need a role", func(t *testing.T) {
		cfg := &Config{
			Target:  &TargetConfig{Type: "redshift"},
			Sources: SourcesConfig{LogData: "s3://b/log", SongData: "s3://b/song"},
		}
		var missing *MissingKeysError
		require.ErrorAs(t, cfg.RequireSources(), &missing)
		assert.Equal(t, []string{"iam_role.arn"}, missing.Keys)

		cfg.Target.Type = "duckdb"
		assert.NoError(t, cfg.RequireSources())
	})

	t.Run("cluster shape", func(t *testing.T) {
		cfg := &Config{
			Target: &TargetConfig{Type: "redshift", Database: "dwh", User: "u", Password: "p"},
			AWS:    AWSConfig{Region: "us-west-2"},
			Cluster: ClusterConfig{
				Identifier: "c", Type: "multi-node", NodeType: "dc2.large", IAMRoleName: "r", NumNodes: 1,
			},
		}
		assert.ErrorContains(t, cfg.RequireCluster(), "at least 2")

		cfg.Cluster.Type = "single-node"
		assert.NoError(t, cfg.RequireCluster())

		cfg.Cluster.Type = "cluster"
		assert.ErrorContains(t, cfg.RequireCluster(), "invalid cluster.type")
	})
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))
	assert.NotNil(t, GetLogger(ctx))

	cfg := &Config{StatePath: "x"}
	ctx = WithConfig(ctx, cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
