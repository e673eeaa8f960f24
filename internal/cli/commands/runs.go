package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/dwhetl/internal/cli/output"
	"github.com/leapstack-labs/dwhetl/internal/state"
	"github.com/spf13/cobra"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recorded reset and load runs",
		Long: `List recent runs from the state database, or show every statement step
of one run.`,
		Example: `  # Recent runs
  dwhetl runs

  # Steps of one run
  dwhetl runs 3f1c2a9e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			store, err := cc.OpenStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if len(args) == 1 {
				run, err := store.GetRun(args[0])
				if err != nil {
					return err
				}
				return renderRun(cc.Renderer, store, run)
			}
			return renderRuns(cc.Renderer, store, opts.Limit)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list")

	return cmd
}

// RunOutput is the JSON output for one run.
type RunOutput struct {
	ID          string       `json:"id"`
	Command     string       `json:"command"`
	Status      string       `json:"status"`
	ResumedFrom string       `json:"resumed_from,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Error       string       `json:"error,omitempty"`
	Steps       []StepOutput `json:"steps,omitempty"`
}

// StepOutput is the JSON output for one statement step.
type StepOutput struct {
	Position    int    `json:"position"`
	Sequence    string `json:"sequence"`
	Statement   string `json:"statement"`
	Status      string `json:"status"`
	Rows        int64  `json:"rows_affected"`
	ExecutionMS int64  `json:"execution_ms"`
	Error       string `json:"error,omitempty"`
	Note        string `json:"note,omitempty"`
}

func runOutput(run *state.Run, steps []*state.StepRun) RunOutput {
	out := RunOutput{
		ID:          run.ID,
		Command:     run.Command,
		Status:      string(run.Status),
		ResumedFrom: run.ResumedFrom,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
	for _, s := range steps {
		out.Steps = append(out.Steps, StepOutput{
			Position:    s.Position,
			Sequence:    s.Sequence,
			Statement:   s.Statement,
			Status:      string(s.Status),
			Rows:        s.RowsAffected,
			ExecutionMS: s.ExecutionMS,
			Error:       s.Error,
			Note:        s.Note,
		})
	}
	return out
}

func renderRun(r *output.Renderer, store state.Store, run *state.Run) error {
	steps, err := store.GetStepsForRun(run.ID)
	if err != nil {
		return err
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(runOutput(run, steps))
	}

	r.Header(1, fmt.Sprintf("Run %s", run.ID))
	r.KeyValue("Command", run.Command)
	r.KeyValue("Status", output.Title(string(run.Status)))
	if run.ResumedFrom != "" {
		r.KeyValue("Resumed from", run.ResumedFrom)
	}
	r.Println()

	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		detail := s.Note
		if s.Error != "" {
			detail = s.Error
		}
		rows = append(rows, []string{
			strconv.Itoa(s.Position + 1),
			s.Key(),
			output.Title(string(s.Status)),
			strconv.FormatInt(s.RowsAffected, 10),
			formatMS(s.ExecutionMS),
			detail,
		})
	}
	r.Table([]string{"#", "Step", "Status", "Rows", "Time", "Detail"}, rows)
	return nil
}

func renderRuns(r *output.Renderer, store state.Store, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		out := make([]RunOutput, 0, len(runs))
		for _, run := range runs {
			out = append(out, runOutput(run, nil))
		}
		return r.JSON(out)
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := ""
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			run.ID,
			run.Command,
			output.Title(string(run.Status)),
			run.StartedAt.Local().Format(time.DateTime),
			duration,
			run.Error,
		})
	}
	r.Table([]string{"Run", "Command", "Status", "Started", "Duration", "Error"}, rows)
	return nil
}

func formatMS(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
