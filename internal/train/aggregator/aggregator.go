// Package aggregator attaches slow diagnostics to a processed train.
// Aggregation failures are soft: the scheduler logs them and publishes
// the train anyway, since the image analysis does not depend on them.
package aggregator

import (
	"fmt"

	"github.com/beamline-data/trainproc/internal/train/model"
)

// AggregatingError reports that a slow source could not be read for a
// train.
type AggregatingError struct {
	TrainID uint64
	Reason  string
}

func (e *AggregatingError) Error() string {
	return fmt.Sprintf("train %d: aggregating failed: %s", e.TrainID, e.Reason)
}

// Aggregator fills the slow-data records of a processed train.
type Aggregator interface {
	Aggregate(t *model.ProcessedTrain, raw *model.RawTrain) error
}

// BeamAggregator reads the beam intensity from a diagnostic device, such
// as an XGM. With no device configured it is a no-op.
type BeamAggregator struct {
	deviceID string
	property string
}

// NewBeamAggregator creates an aggregator for the given intensity source.
// Both fields empty disables aggregation.
func NewBeamAggregator(deviceID, property string) *BeamAggregator {
	return &BeamAggregator{deviceID: deviceID, property: property}
}

// Aggregate implements Aggregator. Failures are AggregatingErrors.
func (a *BeamAggregator) Aggregate(t *model.ProcessedTrain, raw *model.RawTrain) error {
	if a.deviceID == "" {
		return nil
	}
	v, err := raw.GetFloat(a.deviceID, a.property)
	if err != nil {
		return &AggregatingError{TrainID: raw.TrainID, Reason: err.Error()}
	}
	t.Beam = model.BeamRecord{Intensity: v, Valid: true}
	return nil
}
