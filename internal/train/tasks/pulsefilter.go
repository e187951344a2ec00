package tasks

import (
	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
)

// PulseFilterTask drops pulses whose total intensity falls outside a
// configured window. It only marks pulses as dropped; the image task
// excludes them from the average.
type PulseFilterTask struct {
	enabled bool
	lo, hi  float64
}

// NewPulseFilterTask creates a disabled pulse filter.
func NewPulseFilterTask() *PulseFilterTask { return &PulseFilterTask{} }

// Name implements pipeline.Task.
func (f *PulseFilterTask) Name() string { return "pulse-filter" }

// Update implements pipeline.Task.
func (f *PulseFilterTask) Update(cfg pipeline.Shared) {
	f.enabled = cfg.PulseFilterEnabled
	f.lo = cfg.PulseFilterLo
	f.hi = cfg.PulseFilterHi
}

// Process implements pipeline.Task. Train-resolved data passes through
// untouched.
func (f *PulseFilterTask) Process(t *model.ProcessedTrain, raw *model.RawTrain) error {
	if !f.enabled || t.Image.Set == nil || t.Image.Set.Rank() == 2 {
		return nil
	}
	set := t.Image.Set
	var dropped []int
	for i := 0; i < set.Pulses(); i++ {
		pulse, err := set.Pulse(i)
		if err != nil {
			return &pipeline.ProcessingError{Task: f.Name(), Err: err}
		}
		fom := nanSum(pulse)
		if fom < f.lo || fom > f.hi {
			dropped = append(dropped, i)
		}
	}
	if len(dropped) > 0 {
		diagf("train %d: pulse filter dropped %d of %d pulses", t.TrainID, len(dropped), set.Pulses())
	}
	t.Image.DroppedPulse = dropped
	return nil
}
