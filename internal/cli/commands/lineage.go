package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/dwhetl/internal/catalog"
	"github.com/leapstack-labs/dwhetl/internal/cli/output"
	"github.com/leapstack-labs/dwhetl/internal/dag"
	"github.com/spf13/cobra"
)

// LineageOptions holds options for the lineage command.
type LineageOptions struct {
	Upstream   bool
	Downstream bool
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand() *cobra.Command {
	opts := &LineageOptions{}

	cmd := &cobra.Command{
		Use:   "lineage [table]",
		Short: "Show how data flows from the sources to the star schema",
		Long: `Display the table lineage implied by the copy and insert statements.

Without an argument every table is listed with the tables it reads and feeds.
With a table name, its upstream and downstream tables are shown.`,
		Example: `  # Whole lineage
  dwhetl lineage

  # Everything songplays is built from
  dwhetl lineage songplays --downstream=false`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			cat := catalog.Default()
			if err := cat.ValidateOrder(); err != nil {
				return err
			}
			g, err := cat.Lineage()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return renderTableLineage(cc.Renderer, g, args[0], opts)
			}
			return renderLineage(cc.Renderer, g)
		},
	}

	cmd.Flags().BoolVar(&opts.Upstream, "upstream", true, "Include upstream tables")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", true, "Include downstream tables")

	return cmd
}

// LineageNode is the JSON output for one lineage node.
type LineageNode struct {
	Table string   `json:"table"`
	Kind  string   `json:"kind"`
	Level int      `json:"level"`
	Reads []string `json:"reads,omitempty"`
	Feeds []string `json:"feeds,omitempty"`
}

func renderLineage(r *output.Renderer, g *dag.Graph) error {
	levels, err := g.Levels()
	if err != nil {
		return err
	}

	var nodes []LineageNode
	for i, level := range levels {
		for _, id := range level {
			n, _ := g.Node(id)
			nodes = append(nodes, LineageNode{
				Table: id,
				Kind:  string(n.Kind),
				Level: i,
				Reads: g.Parents(id),
				Feeds: g.Children(id),
			})
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(nodes)
	}

	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{
			fmt.Sprint(n.Level),
			n.Table,
			n.Kind,
			strings.Join(n.Reads, ", "),
			strings.Join(n.Feeds, ", "),
		})
	}
	r.Table([]string{"Level", "Table", "Kind", "Reads", "Feeds"}, rows)
	return nil
}

// TableLineage is the JSON output for the lineage of one table.
type TableLineage struct {
	Table      string   `json:"table"`
	Kind       string   `json:"kind"`
	Upstream   []string `json:"upstream,omitempty"`
	Downstream []string `json:"downstream,omitempty"`
}

func renderTableLineage(r *output.Renderer, g *dag.Graph, table string, opts *LineageOptions) error {
	n, ok := g.Node(table)
	if !ok {
		return fmt.Errorf("table not found in lineage: %s", table)
	}

	out := TableLineage{Table: table, Kind: string(n.Kind)}
	if opts.Upstream {
		out.Upstream = g.Upstream(table)
	}
	if opts.Downstream {
		out.Downstream = g.Downstream(table)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, fmt.Sprintf("%s (%s)", out.Table, out.Kind))
	if opts.Upstream {
		r.Header(2, "Upstream")
		renderList(r, out.Upstream)
	}
	if opts.Downstream {
		r.Header(2, "Downstream")
		renderList(r, out.Downstream)
	}
	return nil
}

func renderList(r *output.Renderer, items []string) {
	if len(items) == 0 {
		r.Muted("(none)")
		return
	}
	for _, item := range items {
		r.Println("- " + item)
	}
}
