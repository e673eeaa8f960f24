// Package pipeline executes the statement catalog against a warehouse: the
// schema reset (drop, create), the staging load (truncate, copy) and the
// star schema transforms (insert).
//
// Statements run strictly one at a time on a single connection. By default
// each statement commits on its own, so a failure leaves every earlier
// statement applied; the sequence commit mode instead wraps each sequence in
// one transaction.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/dwhetl/internal/catalog"
	"github.com/leapstack-labs/dwhetl/pkg/adapter"
	"github.com/leapstack-labs/dwhetl/pkg/core"
)

// Command names a tracked pipeline invocation.
type Command string

// Commands.
const (
	CommandReset Command = "reset"
	CommandLoad  Command = "load"
)

// Stage groups the sequences that make up one pipeline operation.
type Stage string

// Stages.
const (
	StageSchema    Stage = "schema"
	StageStaging   Stage = "staging"
	StageTransform Stage = "transform"
)

// Stages returns the stages a command runs, in order.
func (c Command) Stages() []Stage {
	switch c {
	case CommandReset:
		return []Stage{StageSchema}
	case CommandLoad:
		return []Stage{StageStaging, StageTransform}
	}
	return nil
}

// CommitMode selects the transaction boundary.
type CommitMode string

// Commit modes.
const (
	// CommitStatement commits after every statement.
	CommitStatement CommitMode = "statement"
	// CommitSequence runs each sequence in one transaction and rolls the whole
	// sequence back on the first error. Drops, and truncates on Redshift,
	// still commit per statement.
	CommitSequence CommitMode = "sequence"
)

// ParseCommitMode validates a commit mode name. Empty means CommitStatement.
func ParseCommitMode(s string) (CommitMode, error) {
	switch CommitMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CommitStatement:
		return CommitStatement, nil
	case CommitSequence:
		return CommitSequence, nil
	}
	return "", fmt.Errorf("invalid commit mode %q (expected %q or %q)", s, CommitStatement, CommitSequence)
}

// Options tune a pipeline.
type Options struct {
	CommitMode CommitMode
	// Truncate empties staging and star tables before the copy sequence.
	Truncate bool
	// Resume skips the steps that succeeded in the latest failed run of the
	// same command.
	Resume bool
}

// Pipeline runs catalog sequences against one warehouse connection.
type Pipeline struct {
	db      adapter.Adapter
	store   core.Store
	catalog *catalog.Catalog
	dialect catalog.Dialect
	params  catalog.Params
	opts    Options
	logger  *slog.Logger
}

// New creates a pipeline. store may be nil, in which case nothing is recorded
// and Resume has no effect. A nil logger discards output.
func New(db adapter.Adapter, store core.Store, params catalog.Params, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dialect, err := catalog.DialectFor(db.DialectName())
	if err != nil {
		return nil, err
	}
	if opts.CommitMode == "" {
		opts.CommitMode = CommitStatement
	}
	if _, err := ParseCommitMode(string(opts.CommitMode)); err != nil {
		return nil, err
	}

	return &Pipeline{
		db:      db,
		store:   store,
		catalog: catalog.Default(),
		dialect: dialect,
		params:  params,
		opts:    opts,
		logger:  logger,
	}, nil
}

// WithCatalog replaces the statement catalog.
func (p *Pipeline) WithCatalog(c *catalog.Catalog) *Pipeline {
	p.catalog = c
	return p
}

// ResetSchema drops and recreates every table. Drops tolerate missing
// objects; any other failure aborts the reset.
func (p *Pipeline) ResetSchema(ctx context.Context) error {
	return p.runStages(ctx, StageSchema)
}

// LoadStaging bulk-loads the staging tables from the configured sources.
func (p *Pipeline) LoadStaging(ctx context.Context) error {
	return p.runStages(ctx, StageStaging)
}

// RunTransforms populates the fact and dimension tables from staging.
func (p *Pipeline) RunTransforms(ctx context.Context) error {
	return p.runStages(ctx, StageTransform)
}

// runStages executes stages without run bookkeeping.
func (p *Pipeline) runStages(ctx context.Context, stages ...Stage) error {
	batches, err := p.plan(stages...)
	if err != nil {
		return err
	}
	return p.execute(ctx, batches)
}

// Plan renders the SQL a command would execute without running it.
func (p *Pipeline) Plan(cmd Command) ([]catalog.Rendered, error) {
	batches, err := p.plan(cmd.Stages()...)
	if err != nil {
		return nil, err
	}
	var out []catalog.Rendered
	for _, b := range batches {
		for _, s := range b.steps {
			out = append(out, s.rendered)
		}
	}
	return out, nil
}
