// Package duckdb provides a DuckDB warehouse adapter for dwhetl.
//
// DuckDB runs the same catalog against local or object-storage JSON files
// without a cluster, which makes it the adapter for development runs and
// for the pipeline's scenario tests.
package duckdb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/dwhetl/pkg/adapter"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "duckdb"
}

// Connect opens the database file, or an in-memory database when neither
// Path nor Database is set, and applies extensions, settings and secrets
// from cfg.Params.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return err
	}
	setup, err := params.setupStatements()
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = cfg.Database
	}
	if path == "" || path == ":memory:" {
		path = ""
	}

	a.Logger.Debug("opening duckdb", slog.String("path", displayPath(path)))

	if err := a.Open("duckdb", path); err != nil {
		return err
	}

	if err := a.DB.PingContext(ctx); err != nil {
		_ = a.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	for _, stmt := range setup {
		if _, err := a.DB.ExecContext(ctx, stmt); err != nil {
			_ = a.Close()
			return fmt.Errorf("failed to apply duckdb setup %q: %w", redact(stmt), err)
		}
	}

	a.Cfg = cfg
	return nil
}

// IsNotExist reports whether err is DuckDB's catalog error for a missing object.
func (a *Adapter) IsNotExist(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Catalog Error") && strings.Contains(msg, "does not exist")
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

// redact hides secret material in setup statements before they reach logs.
func redact(stmt string) string {
	if strings.HasPrefix(stmt, "CREATE OR REPLACE SECRET") {
		if i := strings.Index(stmt, "("); i > 0 {
			return stmt[:i] + "(...)"
		}
	}
	return stmt
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
