package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/dwhetl/internal/cli/output"
	"github.com/leapstack-labs/dwhetl/internal/config"
	"github.com/leapstack-labs/dwhetl/internal/pipeline"
	"github.com/leapstack-labs/dwhetl/internal/state"
	"github.com/leapstack-labs/dwhetl/pkg/adapter"
	"github.com/spf13/cobra"

	_ "github.com/leapstack-labs/dwhetl/pkg/adapters/duckdb"   // register duckdb adapter
	_ "github.com/leapstack-labs/dwhetl/pkg/adapters/redshift" // register redshift adapter
)

// errConfigNotLoaded is returned when a command runs without the root
// command's configuration hook.
var errConfigNotLoaded = errors.New("configuration not loaded")

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext builds a CommandContext from the configuration and logger
// the root command stored on cmd's context.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, errConfigNotLoaded
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}, nil
}

// NewAdapter creates an unconnected adapter for the configured target.
func (c *CommandContext) NewAdapter() (adapter.Adapter, error) {
	if err := c.Cfg.RequireTarget(); err != nil {
		return nil, err
	}
	return adapter.NewAdapter(c.Cfg.Target.AdapterConfig(), c.Logger)
}

// OpenWarehouse connects to the configured target. The caller must Close the
// returned adapter on every path.
func (c *CommandContext) OpenWarehouse(ctx context.Context) (adapter.Adapter, error) {
	db, err := c.NewAdapter()
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx, c.Cfg.Target.AdapterConfig()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s warehouse: %w", c.Cfg.Target.Type, err)
	}
	return db, nil
}

// OpenStore opens the run state database, creating its directory as needed.
func (c *CommandContext) OpenStore() (*state.SQLiteStore, error) {
	stateDir := filepath.Dir(c.Cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore()
	if err := store.Open(c.Cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// PipelineOptions returns the pipeline options from configuration.
func (c *CommandContext) PipelineOptions(resume bool) (pipeline.Options, error) {
	mode, err := pipeline.ParseCommitMode(c.Cfg.Pipeline.CommitMode)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		CommitMode: mode,
		Truncate:   c.Cfg.Pipeline.Truncate,
		Resume:     resume,
	}, nil
}

// runPipeline executes a tracked pipeline command over one warehouse
// connection and renders the resulting run.
func runPipeline(cmd *cobra.Command, command pipeline.Command, resume bool) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	if command == pipeline.CommandLoad {
		if err := cc.Cfg.RequireSources(); err != nil {
			return err
		}
	}
	opts, err := cc.PipelineOptions(resume)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := cc.OpenWarehouse(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	store, err := cc.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	p, err := pipeline.New(db, store, cc.Cfg.CatalogParams(), opts, cc.Logger)
	if err != nil {
		return err
	}

	run, runErr := p.Execute(ctx, command)
	if run != nil {
		if err := renderRun(cc.Renderer, store, run); err != nil {
			return err
		}
	}
	return runErr
}
