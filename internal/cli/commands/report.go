package commands

import (
	"fmt"
	"strconv"

	"github.com/leapstack-labs/dwhetl/internal/cli/output"
	"github.com/leapstack-labs/dwhetl/internal/report"
	"github.com/spf13/cobra"
)

// ReportOptions holds options for the report command.
type ReportOptions struct {
	Strict bool
}

// NewReportCommand creates the report command.
func NewReportCommand() *cobra.Command {
	opts := &ReportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Reconcile the star schema against staging",
		Long: `Count every table and compare each star table with what staging says it
should hold: one fact row per qualifying song play and one dimension row per
distinct user, song, artist and play timestamp.

Song plays without a catalog match are reported but only fail the command
with --strict.`,
		Example: `  # Reconcile after a load
  dwhetl report

  # Fail when any play is unmatched
  dwhetl report --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := cc.OpenWarehouse(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			rec, err := report.New(db, cc.Logger)
			if err != nil {
				return err
			}
			rep, err := rec.Run(ctx)
			if err != nil {
				return err
			}

			if err := renderReport(cc.Renderer, rep); err != nil {
				return err
			}
			return reportError(rep, opts.Strict)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Also fail when song plays have no catalog match")

	return cmd
}

func reportError(rep *report.Report, strict bool) error {
	if failed := rep.Failed(); len(failed) > 0 {
		return fmt.Errorf("reconciliation failed: %d of %d checks disagree", len(failed), len(rep.Checks))
	}
	if strict && rep.UnmatchedPlays > 0 {
		return fmt.Errorf("reconciliation failed: %d song plays have no catalog match", rep.UnmatchedPlays)
	}
	return nil
}

func renderReport(r *output.Renderer, rep *report.Report) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(rep)
	}

	r.Header(1, "Reconciliation")
	r.KeyValue("Dialect", rep.Dialect)
	r.KeyValue("Unmatched plays", strconv.FormatInt(rep.UnmatchedPlays, 10))
	r.Println()

	r.Header(2, "Tables")
	rows := make([][]string, 0, len(rep.Tables))
	for _, t := range rep.Tables {
		rows = append(rows, []string{t.Table, strconv.FormatInt(t.Rows, 10)})
	}
	r.Table([]string{"Table", "Rows"}, rows)
	r.Println()

	r.Header(2, "Checks")
	for _, c := range rep.Checks {
		status := "pass"
		if !c.OK() {
			status = "fail"
		}
		r.StatusLine(c.Name, status, fmt.Sprintf("%s: expected %d, found %d", c.Table, c.Expected, c.Actual))
	}
	return nil
}
