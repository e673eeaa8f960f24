package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/dwhetl/internal/catalog"
	"github.com/leapstack-labs/dwhetl/internal/cli/output"
	"github.com/leapstack-labs/dwhetl/internal/pipeline"
	"github.com/spf13/cobra"
)

// planTargets lists the arguments plan accepts: the two commands, then the
// individual sequences.
func planTargets() []string {
	out := []string{string(pipeline.CommandReset), string(pipeline.CommandLoad)}
	for _, k := range catalog.Kinds {
		out = append(out, string(k))
	}
	return out
}

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <command|sequence>",
		Short: "Print the SQL a command or sequence would run",
		Long: fmt.Sprintf(`Render statements for the configured target without connecting to it.

The argument is one of: %s.
Planning "load" honors --truncate.`, strings.Join(planTargets(), ", ")),
		Example: `  # Everything a load would run
  dwhetl plan load

  # Only the COPY statements
  dwhetl plan copy`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: planTargets(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			stmts, err := planStatements(cc, args[0])
			if err != nil {
				return err
			}
			return renderPlan(cc.Renderer, stmts)
		},
	}

	cmd.Flags().Bool("truncate", false, "Include the truncate sequence when planning load")

	return cmd
}

func planStatements(cc *CommandContext, target string) ([]catalog.Rendered, error) {
	db, err := cc.NewAdapter()
	if err != nil {
		return nil, err
	}
	params := cc.Cfg.CatalogParams()

	if kind, ok := catalog.ParseKind(target); ok {
		dialect, err := catalog.DialectFor(db.DialectName())
		if err != nil {
			return nil, err
		}
		return catalog.Default().Render(kind, dialect, params)
	}

	opts, err := cc.PipelineOptions(false)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.New(db, nil, params, opts, cc.Logger)
	if err != nil {
		return nil, err
	}
	return p.Plan(pipeline.Command(target))
}

// PlanStatement is the JSON output for one planned statement.
type PlanStatement struct {
	Sequence  string `json:"sequence"`
	Statement string `json:"statement"`
	Table     string `json:"table"`
	SQL       string `json:"sql"`
}

func renderPlan(r *output.Renderer, stmts []catalog.Rendered) error {
	switch r.EffectiveMode() {
	case output.ModeJSON:
		out := make([]PlanStatement, 0, len(stmts))
		for _, s := range stmts {
			out = append(out, PlanStatement{
				Sequence:  string(s.Statement.Kind),
				Statement: s.Statement.Name,
				Table:     s.Statement.Table,
				SQL:       s.SQL,
			})
		}
		return r.JSON(out)
	case output.ModeMarkdown:
		for _, s := range stmts {
			r.Header(3, fmt.Sprintf("%s/%s", s.Statement.Kind, s.Statement.Name))
			r.Println("```sql")
			r.Println(s.SQL + ";")
			r.Println("```")
			r.Println()
		}
	default:
		for _, s := range stmts {
			r.Muted(fmt.Sprintf("-- %s/%s", s.Statement.Kind, s.Statement.Name))
			r.Println(s.SQL + ";")
			r.Println()
		}
	}
	return nil
}
