package aggregator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamline-data/trainproc/internal/train/model"
)

func TestBeamAggregator(t *testing.T) {
	t.Parallel()

	a := NewBeamAggregator("xgm", "pulseEnergy")
	raw := &model.RawTrain{
		TrainID: 9,
		Devices: map[string]map[string]any{"xgm": {"pulseEnergy": 3.5}},
	}

	pt := model.NewProcessedTrain(9)
	require.NoError(t, a.Aggregate(pt, raw))
	assert.True(t, pt.Beam.Valid)
	assert.Equal(t, 3.5, pt.Beam.Intensity)
}

func TestBeamAggregatorMissingSource(t *testing.T) {
	t.Parallel()

	a := NewBeamAggregator("xgm", "pulseEnergy")
	pt := model.NewProcessedTrain(10)
	err := a.Aggregate(pt, &model.RawTrain{TrainID: 10})

	var aggErr *AggregatingError
	require.True(t, errors.As(err, &aggErr))
	assert.Equal(t, uint64(10), aggErr.TrainID)
	assert.False(t, pt.Beam.Valid)
}

func TestBeamAggregatorDisabled(t *testing.T) {
	t.Parallel()

	a := NewBeamAggregator("", "")
	pt := model.NewProcessedTrain(11)
	require.NoError(t, a.Aggregate(pt, &model.RawTrain{TrainID: 11}))
	assert.False(t, pt.Beam.Valid)
}
