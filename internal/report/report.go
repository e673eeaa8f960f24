// Package report reconciles the star schema against the staging tables it
// was built from.
//
// Each check compares what staging says a table should hold with what the
// table holds. Song plays that found no catalog match are counted separately:
// fact references are best-effort, so unmatched plays are expected and never
// make a report unhealthy on their own.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/dwhetl/internal/catalog"
	"github.com/leapstack-labs/dwhetl/pkg/adapter"
)

// Check compares an expected row count derived from staging with the actual
// row count of a star table.
type Check struct {
	Name     string `json:"name"`
	Table    string `json:"table"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
}

// OK reports whether the counts agree.
func (c Check) OK() bool { return c.Expected == c.Actual }

// TableCount is the row count of one table.
type TableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Report is the result of one reconciliation.
type Report struct {
	Dialect     string       `json:"dialect"`
	GeneratedAt time.Time    `json:"generated_at"`
	Tables      []TableCount `json:"tables"`
	Checks      []Check      `json:"checks"`
	// UnmatchedPlays counts songplays rows without a song reference.
	UnmatchedPlays int64 `json:"unmatched_plays"`
}

// Healthy reports whether every check passed.
func (r *Report) Healthy() bool {
	return len(r.Failed()) == 0
}

// Failed returns the checks whose counts disagree.
func (r *Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.OK() {
			out = append(out, c)
		}
	}
	return out
}

// Reconciler runs reconciliation queries over one warehouse connection.
type Reconciler struct {
	db      adapter.Adapter
	catalog *catalog.Catalog
	dialect catalog.Dialect
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a reconciler for db. A nil logger discards output.
func New(db adapter.Adapter, logger *slog.Logger) (*Reconciler, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dialect, err := catalog.DialectFor(db.DialectName())
	if err != nil {
		return nil, err
	}
	return &Reconciler{
		db:      db,
		catalog: catalog.Default(),
		dialect: dialect,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Run counts every table and evaluates the reconciliation checks.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	rep := &Report{
		Dialect:     r.dialect.Name,
		GeneratedAt: r.now().UTC(),
	}

	for _, t := range r.catalog.Tables() {
		n, err := r.db.CountRows(ctx, catalog.TableRef(t))
		if err != nil {
			return nil, err
		}
		rep.Tables = append(rep.Tables, TableCount{Table: t, Rows: n})
	}

	for _, q := range r.checks() {
		expected, err := r.scalar(ctx, q.expected)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", q.name, err)
		}
		actual, err := r.scalar(ctx, q.actual)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", q.name, err)
		}
		c := Check{Name: q.name, Table: q.table, Expected: expected, Actual: actual}
		if !c.OK() {
			r.logger.Warn("reconciliation mismatch", "check", c.Name, "expected", c.Expected, "actual", c.Actual)
		}
		rep.Checks = append(rep.Checks, c)
	}

	unmatched, err := r.scalar(ctx, "SELECT COUNT(*) FROM songplays WHERE song_id IS NULL")
	if err != nil {
		return nil, fmt.Errorf("count unmatched plays: %w", err)
	}
	rep.UnmatchedPlays = unmatched

	r.logger.Debug("reconciliation finished", "checks", len(rep.Checks), "unmatched_plays", unmatched)
	return rep, nil
}

// scalar runs a query that returns one integer.
func (r *Reconciler) scalar(ctx context.Context, query string) (int64, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("query returned no rows: %s", query)
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to scan count: %w", err)
	}
	return n, rows.Err()
}
