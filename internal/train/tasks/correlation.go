package tasks

import (
	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
)

// CorrelationTask pairs a per-train figure of merit with slow properties
// read from the raw train. The actual history lives in the Manager; this
// task keeps the registrations in sync with the configuration and fills
// the per-train correlation points.
type CorrelationTask struct {
	manager *model.Manager
	source  string
	params  [model.MaxCorrelations]*pipeline.CorrelationParam
}

// NewCorrelationTask creates a correlation task over the shared Manager.
func NewCorrelationTask(manager *model.Manager) *CorrelationTask {
	return &CorrelationTask{manager: manager}
}

// Name implements pipeline.Task.
func (ct *CorrelationTask) Name() string { return "correlation" }

// Update implements pipeline.Task. Slot registrations follow the
// configuration: added, re-registered or removed as needed.
func (ct *CorrelationTask) Update(cfg pipeline.Shared) {
	ct.source = cfg.CorrelationSource
	for i, p := range cfg.Correlations {
		switch {
		case p == nil && ct.params[i] != nil:
			ct.manager.RemoveCorrelation(i + 1)
		case p != nil:
			if err := ct.manager.AddCorrelation(i+1, p.DeviceID, p.Property, p.Resolution); err != nil {
				opsf("correlation %d rejected: %v", i+1, err)
				continue
			}
		}
		ct.params[i] = p
	}
}

// Process implements pipeline.Task.
func (ct *CorrelationTask) Process(t *model.ProcessedTrain, raw *model.RawTrain) error {
	active := false
	for _, p := range ct.params {
		if p != nil {
			active = true
			break
		}
	}
	if !active {
		return nil
	}

	fom, err := resolveFOM(ct.source, t)
	if err != nil {
		return &pipeline.ProcessingError{Task: ct.Name(), Err: err}
	}

	for i, p := range ct.params {
		if p == nil {
			continue
		}
		x, err := raw.GetFloat(p.DeviceID, p.Property)
		if err != nil {
			return &pipeline.ProcessingError{Task: ct.Name(), Err: err}
		}
		t.Correlation[i] = model.CorrelationPoint{
			X:        x,
			FOM:      fom,
			Valid:    true,
			DeviceID: p.DeviceID,
			Property: p.Property,
		}
	}
	return nil
}
