package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/dwhetl/internal/dag"
)

// Lineage builds the table graph implied by the copy and insert statements.
func (c *Catalog) Lineage() (*dag.Graph, error) {
	g := dag.NewGraph()

	for _, t := range c.Tables() {
		g.AddNode(t, tableKind(t))
	}

	for _, s := range append(c.Copies(), c.Inserts()...) {
		for _, r := range s.Reads {
			if _, ok := g.Node(r); !ok {
				if s.Kind != KindCopy {
					return nil, fmt.Errorf("%s statement %s reads %s, which no create statement defines", s.Kind, s.Name, r)
				}
				g.AddNode(r, dag.KindSource)
			}
			if _, ok := g.Node(s.Table); !ok {
				return nil, fmt.Errorf("%s statement %s writes %s, which no create statement defines", s.Kind, s.Name, s.Table)
			}
			if err := g.AddEdge(r, s.Table); err != nil {
				return nil, fmt.Errorf("%s statement %s: %w", s.Kind, s.Name, err)
			}
		}
	}

	if hasCycle, path := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("table lineage has a cycle: %s", strings.Join(path, " -> "))
	}
	return g, nil
}

// ValidateOrder checks that the catalog's sequences can run in order: the
// lineage is acyclic, every insert reads only created tables, and no insert
// reads a table that the same or a later insert writes.
func (c *Catalog) ValidateOrder() error {
	if _, err := c.Lineage(); err != nil {
		return err
	}

	inserts := c.Inserts()
	for i, s := range inserts {
		for _, later := range inserts[i:] {
			if slices.Contains(s.Reads, later.Table) {
				return fmt.Errorf("insert %s reads %s before insert %s has populated it", s.Name, later.Table, later.Name)
			}
		}
	}
	return nil
}

func tableKind(table string) dag.NodeKind {
	switch {
	case strings.HasPrefix(table, "staging_"):
		return dag.KindStaging
	case table == TableSongplays:
		return dag.KindFact
	default:
		return dag.KindDimension
	}
}
