package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/dwhetl/internal/catalog"
	"github.com/leapstack-labs/dwhetl/pkg/adapter"
	"github.com/leapstack-labs/dwhetl/pkg/core"
)

// execute runs batches in order. The first failure aborts everything after
// it; statements that already committed stay committed.
func (p *Pipeline) execute(ctx context.Context, batches []*batch) error {
	for i, b := range batches {
		if b.kind == catalog.KindCopy && !p.opts.Truncate {
			p.warnIfStagingLoaded(ctx, b)
		}

		p.logger.Info("running sequence",
			"sequence", b.kind,
			"statements", len(b.steps),
			"commit_mode", p.opts.CommitMode)

		var err error
		if p.transactional(b) {
			err = p.execBatchTx(ctx, b)
		} else {
			err = p.execBatch(ctx, b)
		}
		if err != nil {
			for _, rest := range batches[i+1:] {
				p.skipSteps(rest.steps, fmt.Sprintf("skipped: %s sequence failed", b.kind))
			}
			return err
		}
	}
	return nil
}

// transactional reports whether b runs in one transaction. Drops always commit
// per statement so a missing object can be tolerated, and Redshift commits
// an open transaction on TRUNCATE, so its truncates cannot roll back together.
func (p *Pipeline) transactional(b *batch) bool {
	if p.opts.CommitMode != CommitSequence {
		return false
	}
	switch {
	case b.kind == catalog.KindDrop:
		return false
	case b.kind == catalog.KindTruncate && p.dialect.Name == "redshift":
		return false
	}
	return true
}

// execBatch commits every statement on its own.
func (p *Pipeline) execBatch(ctx context.Context, b *batch) error {
	for i, s := range b.steps {
		if s.applied {
			p.carryForward(s)
			continue
		}

		rows, ms, err := p.execStep(ctx, p.db, b, s)
		if err != nil {
			if b.kind == catalog.KindDrop && p.db.IsNotExist(err) {
				p.logger.Warn("nothing to drop",
					"statement", s.rendered.Statement.Name,
					"error", err)
				p.finish(s, core.StepUpdate{
					Status:      core.StepStatusSuccess,
					ExecutionMS: ms,
					Note:        "ignored: " + err.Error(),
				})
				continue
			}

			p.finish(s, core.StepUpdate{Status: core.StepStatusFailed, ExecutionMS: ms, Error: err.Error()})
			p.skipSteps(b.steps[i+1:], fmt.Sprintf("skipped: %s %s failed", b.kind, s.rendered.Statement.Name))
			return &StatementError{Sequence: string(b.kind), Statement: s.rendered.Statement.Name, Err: err}
		}

		p.finish(s, core.StepUpdate{Status: core.StepStatusSuccess, RowsAffected: rows, ExecutionMS: ms})
	}
	return nil
}

// execBatchTx runs the whole batch in one transaction.
func (p *Pipeline) execBatchTx(ctx context.Context, b *batch) error {
	var committed []*step

	err := p.db.InTx(ctx, func(tx adapter.Execer) error {
		for i, s := range b.steps {
			if s.applied {
				p.carryForward(s)
				continue
			}

			rows, ms, err := p.execStep(ctx, tx, b, s)
			if err != nil {
				p.finish(s, core.StepUpdate{Status: core.StepStatusFailed, ExecutionMS: ms, Error: err.Error()})
				p.skipSteps(b.steps[i+1:], fmt.Sprintf("skipped: %s %s failed", b.kind, s.rendered.Statement.Name))
				return &StatementError{Sequence: string(b.kind), Statement: s.rendered.Statement.Name, Err: err}
			}

			p.finish(s, core.StepUpdate{Status: core.StepStatusSuccess, RowsAffected: rows, ExecutionMS: ms})
			committed = append(committed, s)
		}
		return nil
	})

	if err != nil {
		for _, s := range committed {
			p.finish(s, core.StepUpdate{
				Status: core.StepStatusRolledBack,
				Note:   fmt.Sprintf("rolled back with the %s sequence", b.kind),
			})
		}
		p.logger.Warn("sequence rolled back", "sequence", b.kind, "statements_undone", len(committed))

		var stmtErr *StatementError
		if errors.As(err, &stmtErr) {
			return err
		}
		return fmt.Errorf("%s sequence: %w", b.kind, err)
	}
	return nil
}

// execStep executes one statement on ex and reports rows affected and duration.
func (p *Pipeline) execStep(ctx context.Context, ex adapter.Execer, b *batch, s *step) (int64, int64, error) {
	stmt := s.rendered.Statement
	p.finish(s, core.StepUpdate{Status: core.StepStatusRunning})
	p.logger.Info("executing statement", "sequence", b.kind, "statement", stmt.Name)
	p.logger.Debug("statement sql", "statement", stmt.Name, "sql", s.rendered.SQL)

	start := time.Now()
	rows, err := ex.Exec(ctx, s.rendered.SQL)
	ms := time.Since(start).Milliseconds()

	if err == nil {
		p.logger.Info("statement complete",
			"sequence", b.kind,
			"statement", stmt.Name,
			"rows", rows,
			"duration_ms", ms)
	}
	return rows, ms, err
}

// warnIfStagingLoaded warns when a copy would append to staging tables that
// already hold rows. The fact insert then reads every staged copy again, so
// facts grow by one full copy per staged copy on each reload.
func (p *Pipeline) warnIfStagingLoaded(ctx context.Context, b *batch) {
	for _, s := range b.steps {
		if s.applied {
			continue
		}
		table := s.rendered.Statement.Table
		n, err := p.db.CountRows(ctx, catalog.TableRef(table))
		if err != nil {
			// The copy itself reports a missing table with a better error.
			p.logger.Debug("could not count staging rows", "table", table, "error", err)
			continue
		}
		if n > 0 {
			p.logger.Warn("staging table is not empty; run reset or load with --truncate to avoid duplicate facts",
				"table", table,
				"rows", n)
		}
	}
}

func (p *Pipeline) finish(s *step, update core.StepUpdate) {
	if s.record == nil || p.store == nil {
		return
	}
	if err := p.store.UpdateStep(s.record.ID, update); err != nil {
		p.logger.Warn("failed to record step", "step", s.key(), "error", err)
	}
}

func (p *Pipeline) carryForward(s *step) {
	p.logger.Info("statement already applied; skipping", "step", s.key())
	p.finish(s, core.StepUpdate{Status: core.StepStatusSuccess, Note: "applied in an earlier run"})
}

func (p *Pipeline) skipSteps(steps []*step, reason string) {
	for _, s := range steps {
		if s.applied {
			p.carryForward(s)
			continue
		}
		p.finish(s, core.StepUpdate{Status: core.StepStatusSkipped, Note: reason})
	}
}
