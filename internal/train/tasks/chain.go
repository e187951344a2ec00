package tasks

import (
	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
)

// NewDefaultChain builds the standard analysis chain in dependency
// order: pulses are filtered before the image mean, regions before the
// analyses that consume them.
func NewDefaultChain(manager *model.Manager) *pipeline.Composite {
	return pipeline.NewComposite("train",
		NewPulseFilterTask(),
		NewImageTask(manager),
		NewPumpProbeTask(manager.Pair()),
		NewRoiTask(),
		NewAzimuthalTask(),
		NewCorrelationTask(manager),
		NewBinningTask(),
		NewXasTask(),
	)
}
