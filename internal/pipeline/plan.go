package pipeline

import (
	"fmt"

	"github.com/leapstack-labs/dwhetl/internal/catalog"
	"github.com/leapstack-labs/dwhetl/pkg/core"
)

// batch is one rendered sequence.
type batch struct {
	kind  catalog.Kind
	steps []*step
}

// step is one rendered statement and its bookkeeping record.
type step struct {
	rendered catalog.Rendered
	record   *core.StepRun
	// applied marks a step that succeeded in the run being resumed.
	applied bool
}

func (s *step) key() string {
	return string(s.rendered.Statement.Kind) + "/" + s.rendered.Statement.Name
}

// kinds returns the sequences a stage runs.
func (p *Pipeline) kinds(stage Stage) []catalog.Kind {
	switch stage {
	case StageSchema:
		return []catalog.Kind{catalog.KindDrop, catalog.KindCreate}
	case StageStaging:
		if p.opts.Truncate {
			return []catalog.Kind{catalog.KindTruncate, catalog.KindCopy}
		}
		return []catalog.Kind{catalog.KindCopy}
	case StageTransform:
		return []catalog.Kind{catalog.KindInsert}
	}
	return nil
}

// plan renders every statement of the stages up front, so a missing parameter
// fails the command before any SQL runs.
func (p *Pipeline) plan(stages ...Stage) ([]*batch, error) {
	var batches []*batch
	for _, stage := range stages {
		kinds := p.kinds(stage)
		if kinds == nil {
			return nil, fmt.Errorf("unknown stage %q", stage)
		}
		for _, k := range kinds {
			rendered, err := p.catalog.Render(k, p.dialect, p.params)
			if err != nil {
				return nil, err
			}
			b := &batch{kind: k}
			for _, r := range rendered {
				b.steps = append(b.steps, &step{rendered: r})
			}
			batches = append(batches, b)
		}
	}
	return batches, nil
}
