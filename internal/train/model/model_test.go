package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTrainGet(t *testing.T) {
	t.Parallel()

	r := &RawTrain{
		TrainID: 7,
		Devices: map[string]map[string]any{
			"motor": {"position": 1.5, "steps": int64(3)},
		},
	}

	v, ok := r.Get("motor", "position")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	_, ok = r.Get("motor", "speed")
	assert.False(t, ok)
	_, ok = r.Get("xgm", "intensity")
	assert.False(t, ok)
}

func TestRawTrainGetFloat(t *testing.T) {
	t.Parallel()

	r := &RawTrain{
		TrainID: 7,
		Devices: map[string]map[string]any{
			"motor": {
				"position": 1.5,
				"steps":    int64(3),
				"name":     "axis-1",
			},
		},
	}

	v, err := r.GetFloat("motor", "position")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	v, err = r.GetFloat("motor", "steps")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	_, err = r.GetFloat("motor", "name")
	assert.Error(t, err)
	_, err = r.GetFloat("motor", "missing")
	assert.Error(t, err)
}

func TestRectContains(t *testing.T) {
	t.Parallel()

	img := func(r Rect) bool { return r.Contains(10, 20) }

	assert.True(t, img(Rect{X: 0, Y: 0, W: 20, H: 10}))
	assert.True(t, img(Rect{X: 5, Y: 2, W: 10, H: 8}))
	assert.False(t, img(Rect{X: 15, Y: 0, W: 10, H: 5}), "overflows columns")
	assert.False(t, img(Rect{X: 0, Y: 8, W: 5, H: 5}), "overflows rows")
	assert.False(t, img(Rect{X: -1, Y: 0, W: 5, H: 5}))
	assert.False(t, img(Rect{X: 0, Y: 0, W: 0, H: 5}))
}

func TestParsePumpProbeMode(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want PumpProbeMode
	}{
		{"undefined", PPModeUndefined},
		{"", PPModeUndefined},
		{"predefined_off", PPModePredefinedOff},
		{"same_train", PPModeSameTrain},
		{"even_train_on", PPModeEvenTrainOn},
		{"odd_train_on", PPModeOddTrainOn},
	} {
		got, err := ParsePumpProbeMode(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		if tc.in != "" {
			assert.Equal(t, tc.in, got.String())
		}
	}

	_, err := ParsePumpProbeMode("both_trains")
	assert.Error(t, err)
}

func TestPairAverageShrinkResets(t *testing.T) {
	t.Parallel()

	p, err := NewPairAverage(4)
	require.NoError(t, err)

	p.Push([]float64{1}, []float64{2}, []int{1})
	p.Push([]float64{3}, []float64{4}, []int{1})
	require.Equal(t, 2, p.Count())

	require.NoError(t, p.SetWindow(2))
	assert.Equal(t, 0, p.Count(), "shrinking the window starts over")
	assert.Nil(t, p.On())
	assert.Nil(t, p.Off())

	require.NoError(t, p.SetWindow(5))
	p.Push([]float64{1}, []float64{2}, []int{1})
	require.NoError(t, p.SetWindow(8))
	assert.Equal(t, 1, p.Count(), "growing the window keeps state")
}

func TestPairAverageShapeChangeResets(t *testing.T) {
	t.Parallel()

	p, err := NewPairAverage(4)
	require.NoError(t, err)

	p.Push([]float64{1, 1}, []float64{2, 2}, []int{2})
	p.Push([]float64{3, 3}, []float64{4, 4}, []int{2})
	require.Equal(t, 2, p.Count())

	p.Push([]float64{5}, []float64{6}, []int{1})
	assert.Equal(t, 1, p.Count())
	assert.Equal(t, []float64{5}, p.On())
	assert.Equal(t, []float64{6}, p.Off())
}

func TestManagerCorrelationRegistration(t *testing.T) {
	t.Parallel()

	m := NewManager()

	require.NoError(t, m.AddCorrelation(1, "motor", "position", 0))
	assert.Error(t, m.AddCorrelation(0, "motor", "position", 0))
	assert.Error(t, m.AddCorrelation(-1, "motor", "position", 0))
	assert.Error(t, m.AddCorrelation(MaxCorrelations+1, "motor", "position", 0))
	assert.Error(t, m.AddCorrelation(1, "motor", "position", -0.5))

	m.Commit(&ProcessedTrain{
		TrainID:     1,
		Correlation: [MaxCorrelations]CorrelationPoint{{X: 1, FOM: 10, Valid: true}},
	})

	snap, ok := m.Correlation(1)
	require.True(t, ok)
	assert.Equal(t, []float64{1}, snap.X)
	assert.Equal(t, "motor", snap.Meta.DeviceID)

	// Identical re-registration keeps the history.
	require.NoError(t, m.AddCorrelation(1, "motor", "position", 0))
	snap, _ = m.Correlation(1)
	assert.Len(t, snap.X, 1)

	// Any parameter change starts fresh.
	require.NoError(t, m.AddCorrelation(1, "motor", "position", 0.5))
	snap, _ = m.Correlation(1)
	assert.Empty(t, snap.X)

	_, _, res, ok := m.CorrelationParams(1)
	require.True(t, ok)
	assert.Equal(t, 0.5, res)

	list := m.Correlations()
	require.Len(t, list, 1)
	assert.Equal(t, CorrelationInfo{Index: 1, DeviceID: "motor", Property: "position", Resolution: 0.5}, list[0])

	require.NoError(t, m.RemoveCorrelation(1))
	_, ok = m.Correlation(1)
	assert.False(t, ok)
	assert.Empty(t, m.Correlations())
}

func TestManagerCommit(t *testing.T) {
	t.Parallel()

	m := NewManager()
	require.NoError(t, m.AddCorrelation(2, "xgm", "intensity", 0))

	pt := NewProcessedTrain(100)
	pt.Correlation[1] = CorrelationPoint{X: 2, FOM: 20, Valid: true}
	pt.Correlation[2] = CorrelationPoint{X: 3, FOM: 30, Valid: true} // unregistered slot
	pt.ROI.Sum[0] = 5
	pt.ROI.Valid[0] = true
	pt.PumpProbe.FOM = 0.25
	pt.PumpProbe.FOMValid = true
	m.Commit(pt)

	snap, ok := m.Correlation(2)
	require.True(t, ok)
	assert.Equal(t, []float64{2}, snap.X)
	assert.Equal(t, []float64{20}, snap.Y)

	roi, err := m.ROIHistory(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{100}, roi.X)
	assert.Equal(t, []float64{5}, roi.Y)

	pp := m.PumpProbeHistory()
	assert.Equal(t, []float64{100}, pp.X)
	assert.Equal(t, []float64{0.25}, pp.Y)
}

func TestManagerResetAll(t *testing.T) {
	t.Parallel()

	m := NewManager()
	require.NoError(t, m.AddCorrelation(1, "motor", "position", 0))

	pt := NewProcessedTrain(1)
	pt.Correlation[0] = CorrelationPoint{X: 1, FOM: 1, Valid: true}
	pt.PumpProbe.FOM = 1
	pt.PumpProbe.FOMValid = true
	m.Commit(pt)
	m.Pair().Push([]float64{1}, []float64{2}, []int{1})

	m.ResetAll()

	snap, ok := m.Correlation(1)
	require.True(t, ok, "registration survives a reset")
	assert.Empty(t, snap.X)
	assert.Empty(t, m.PumpProbeHistory().X)
	assert.Equal(t, 0, m.Pair().Count())
}
