package pipeline

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/dwhetl/pkg/core"
)

// Execute runs a command as one tracked run. Every statement is recorded as a
// step; with Resume, steps that succeeded in the latest failed run of the
// same command are carried forward instead of executed again.
//
// Without a store, Execute runs the command untracked and returns a nil run.
func (p *Pipeline) Execute(ctx context.Context, cmd Command) (*core.Run, error) {
	stages := cmd.Stages()
	if stages == nil {
		return nil, fmt.Errorf("unknown command %q", cmd)
	}

	p.logger.Info("starting run", "command", cmd, "dialect", p.dialect.Name, "commit_mode", p.opts.CommitMode)

	// Phase 1: render every statement so parameter errors surface first
	batches, err := p.plan(stages...)
	if err != nil {
		return nil, err
	}

	if p.store == nil {
		return nil, p.execute(ctx, batches)
	}

	resumedFrom, applied, err := p.previousRun(cmd)
	if err != nil {
		return nil, err
	}

	run, err := p.store.CreateRun(string(cmd), resumedFrom)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	p.logger.Debug("created run", "run_id", run.ID, "resumed_from", resumedFrom)

	position := 0
	for _, b := range batches {
		for _, s := range b.steps {
			s.applied = applied[s.key()]
			s.record = &core.StepRun{
				RunID:     run.ID,
				Sequence:  string(b.kind),
				Statement: s.rendered.Statement.Name,
				Position:  position,
				Status:    core.StepStatusPending,
			}
			position++
			if err := p.store.RecordStep(s.record); err != nil {
				_ = p.store.CompleteRun(run.ID, core.RunStatusFailed, err.Error())
				return run, err
			}
		}
	}

	// Phase 2: execute
	runErr := p.execute(ctx, batches)

	if runErr != nil {
		p.logger.Error("run failed", "run_id", run.ID, "command", cmd, "error", runErr)
		_ = p.store.CompleteRun(run.ID, core.RunStatusFailed, runErr.Error())
	} else {
		p.logger.Info("run completed", "run_id", run.ID, "command", cmd)
		_ = p.store.CompleteRun(run.ID, core.RunStatusCompleted, "")
	}

	if got, err := p.store.GetRun(run.ID); err == nil {
		run = got
	}
	return run, runErr
}

// previousRun inspects the latest run of cmd. When resuming from a failed or
// interrupted run it returns that run's ID and the keys of its successful
// steps.
func (p *Pipeline) previousRun(cmd Command) (string, map[string]bool, error) {
	latest, err := p.store.GetLatestRun(string(cmd))
	if err != nil {
		return "", nil, err
	}
	if latest == nil {
		if p.opts.Resume {
			p.logger.Info("no earlier run to resume; running every statement", "command", cmd)
		}
		return "", nil, nil
	}

	if latest.Status == core.RunStatusRunning {
		p.logger.Warn("previous run is still marked running; it was interrupted or is running concurrently",
			"run_id", latest.ID)
	}

	if !p.opts.Resume {
		return "", nil, nil
	}
	if latest.Status == core.RunStatusCompleted {
		p.logger.Info("latest run completed; running every statement", "run_id", latest.ID)
		return "", nil, nil
	}

	// A reset after the failed run rebuilt every table, so its applied steps
	// no longer describe the warehouse.
	if cmd != CommandReset {
		reset, err := p.store.GetLatestRun(string(CommandReset))
		if err != nil {
			return "", nil, err
		}
		if reset != nil && reset.StartedAt.After(latest.StartedAt) {
			p.logger.Warn("schema was reset after the failed run; running every statement",
				"run_id", latest.ID, "reset_run_id", reset.ID)
			return "", nil, nil
		}
	}

	steps, err := p.store.GetStepsForRun(latest.ID)
	if err != nil {
		return "", nil, err
	}

	applied := make(map[string]bool)
	for _, s := range steps {
		if s.Status == core.StepStatusSuccess {
			applied[s.Key()] = true
		}
	}
	p.logger.Info("resuming run", "run_id", latest.ID, "applied_steps", len(applied))
	return latest.ID, applied, nil
}
