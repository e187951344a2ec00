package pipeline

import (
	"fmt"

	"github.com/beamline-data/trainproc/internal/train/model"
)

// Task is one step of the per-train analysis chain. Update delivers the
// configuration snapshot before Process runs; Process fills the task's
// sub-record of the processed train.
//
// A Task signals a per-train problem by returning an error Recoverable
// reports true for; anything else aborts the pipeline.
type Task interface {
	Name() string
	Update(cfg Shared)
	Process(t *model.ProcessedTrain, raw *model.RawTrain) error
}

// Composite runs child tasks in order. A recoverable child error is
// logged and the chain continues, so one failing analysis never blocks
// the others. The first fatal error stops the chain and is returned.
type Composite struct {
	name     string
	children []Task
}

// NewComposite creates a named composite over the given children.
func NewComposite(name string, children ...Task) *Composite {
	return &Composite{name: name, children: children}
}

// Name implements Task.
func (c *Composite) Name() string { return c.name }

// Add appends a child task.
func (c *Composite) Add(t Task) { c.children = append(c.children, t) }

// Update implements Task by fanning the snapshot out to every child.
func (c *Composite) Update(cfg Shared) {
	for _, child := range c.children {
		child.Update(cfg)
	}
}

// Process implements Task.
func (c *Composite) Process(t *model.ProcessedTrain, raw *model.RawTrain) error {
	for _, child := range c.children {
		if err := child.Process(t, raw); err != nil {
			if Recoverable(err) {
				diagf("train %d: %s: %v", t.TrainID, child.Name(), err)
				continue
			}
			return fmt.Errorf("%s: %w", child.Name(), err)
		}
	}
	return nil
}
