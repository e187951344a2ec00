package tasks

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
	"github.com/beamline-data/trainproc/internal/units"
)

func meanImage(t *testing.T, trainID uint64, data []float64, rows, cols int) *model.ProcessedTrain {
	t.Helper()
	pt := trainWithImage(t, trainID, data, rows, cols)
	mean := make([]float64, len(data))
	copy(mean, data)
	pt.Image.Mean = mean
	pt.Image.MaskedMean = append([]float64(nil), mean...)
	return pt
}

func TestRoiTaskSums(t *testing.T) {
	t.Parallel()

	rt := NewRoiTask()
	rt.Update(cfgWith(func(cfg *pipeline.Shared) {
		cfg.ROIs[0] = &model.Rect{X: 1, Y: 0, W: 2, H: 2}
		cfg.ROIs[2] = &model.Rect{X: 0, Y: 0, W: 1, H: 1}
	}))

	pt := meanImage(t, 1, []float64{
		1, 2, 3,
		4, 5, 6,
	}, 2, 3)
	require.NoError(t, rt.Process(pt, &model.RawTrain{TrainID: 1}))

	assert.True(t, pt.ROI.Valid[0])
	assert.Equal(t, 16.0, pt.ROI.Sum[0])
	assert.True(t, pt.ROI.Valid[2])
	assert.Equal(t, 1.0, pt.ROI.Sum[2])
	assert.False(t, pt.ROI.Valid[1])
	assert.False(t, pt.ROI.Valid[3])
}

func TestRoiTaskSkipsNonFittingRegion(t *testing.T) {
	t.Parallel()

	rt := NewRoiTask()
	rt.Update(cfgWith(func(cfg *pipeline.Shared) {
		cfg.ROIs[0] = &model.Rect{X: 2, Y: 0, W: 5, H: 1}
	}))

	pt := meanImage(t, 1, []float64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, rt.Process(pt, &model.RawTrain{TrainID: 1}))
	assert.False(t, pt.ROI.Valid[0])
	require.NotNil(t, pt.ROI.Regions[0], "region is still reported")
}

func TestRadialIntegratorUniformImage(t *testing.T) {
	t.Parallel()

	ri, err := NewRadialIntegrator(2, 2, 4)
	require.NoError(t, err)

	img := make([]float64, 25)
	for i := range img {
		img[i] = 3
	}
	q, intensity, err := ri.Integrate(img, 5, 5)
	require.NoError(t, err)
	require.Len(t, q, 4)
	require.Len(t, intensity, 4)
	assert.True(t, q[0] < q[1] && q[1] < q[2] && q[2] < q[3])
	for _, v := range intensity {
		assert.InDelta(t, 3, v, 1e-12)
	}
}

func TestRadialIntegratorMomentumAxis(t *testing.T) {
	t.Parallel()

	ri, err := NewRadialIntegrator(2, 2, 4)
	require.NoError(t, err)
	img := make([]float64, 25)

	qPx, _, err := ri.Integrate(img, 5, 5)
	require.NoError(t, err)

	// 12.398 keV is a 1 Å beam; small-angle q ≈ 2π·r·pixel/distance.
	ri.SetGeometry(75e-6, 1.0, units.EnergyKeV(1.0))
	q, _, err := ri.Integrate(img, 5, 5)
	require.NoError(t, err)
	for i := range q {
		assert.InDelta(t, 2*math.Pi*qPx[i]*75e-6, q[i], 1e-6)
	}

	// Incomplete geometry keeps the pixel axis.
	ri.SetGeometry(75e-6, 0, 12.4)
	q, _, err = ri.Integrate(img, 5, 5)
	require.NoError(t, err)
	assert.Equal(t, qPx, q)
}

func TestRadialIntegratorIgnoresNaN(t *testing.T) {
	t.Parallel()

	ri, err := NewRadialIntegrator(0, 0, 2)
	require.NoError(t, err)

	img := []float64{math.NaN(), 2, 2, 2}
	_, intensity, err := ri.Integrate(img, 2, 2)
	require.NoError(t, err)
	for _, v := range intensity {
		if !math.IsNaN(v) {
			assert.InDelta(t, 2, v, 1e-12)
		}
	}
}

func TestAzimuthalTaskFOM(t *testing.T) {
	t.Parallel()

	at := NewAzimuthalTask()
	at.Update(cfgWith(func(cfg *pipeline.Shared) {
		cfg.AzimuthalEnabled = true
		cfg.Azimuthal = pipeline.AzimuthalParams{
			CenterX: 2, CenterY: 2, Points: 4,
			FOMLo: 0, FOMHi: math.Inf(1),
		}
	}))

	img := make([]float64, 25)
	for i := range img {
		img[i] = 1
	}
	pt := meanImage(t, 1, img, 5, 5)
	require.NoError(t, at.Process(pt, &model.RawTrain{TrainID: 1}))

	require.Len(t, pt.AI.Momentum, 4)
	require.True(t, pt.AI.FOMValid)
	assert.InDelta(t, 4, pt.AI.FOM, 1e-12, "four rings of unit intensity")
}

func TestAzimuthalTaskDisabled(t *testing.T) {
	t.Parallel()

	at := NewAzimuthalTask()
	at.Update(cfgWith(nil))

	pt := meanImage(t, 1, []float64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, at.Process(pt, &model.RawTrain{TrainID: 1}))
	assert.Nil(t, pt.AI.Momentum)
}

func TestCorrelationTaskFillsPoints(t *testing.T) {
	t.Parallel()

	m := model.NewManager()
	ct := NewCorrelationTask(m)
	ct.Update(cfgWith(func(cfg *pipeline.Shared) {
		cfg.CorrelationSource = "roi1"
		cfg.Correlations[0] = &pipeline.CorrelationParam{DeviceID: "motor", Property: "position"}
	}))

	pt := model.NewProcessedTrain(1)
	pt.ROI.Sum[0] = 42
	pt.ROI.Valid[0] = true
	raw := &model.RawTrain{
		TrainID: 1,
		Devices: map[string]map[string]any{"motor": {"position": 2.5}},
	}
	require.NoError(t, ct.Process(pt, raw))

	require.True(t, pt.Correlation[0].Valid)
	assert.Equal(t, 2.5, pt.Correlation[0].X)
	assert.Equal(t, 42.0, pt.Correlation[0].FOM)

	_, _, _, ok := m.CorrelationParams(1)
	assert.True(t, ok, "slot registered with the manager")
}

func TestCorrelationTaskMissingFOM(t *testing.T) {
	t.Parallel()

	ct := NewCorrelationTask(model.NewManager())
	ct.Update(cfgWith(func(cfg *pipeline.Shared) {
		cfg.CorrelationSource = "roi1"
		cfg.Correlations[0] = &pipeline.CorrelationParam{DeviceID: "motor", Property: "position"}
	}))

	pt := model.NewProcessedTrain(1)
	err := ct.Process(pt, &model.RawTrain{TrainID: 1})

	var procErr *pipeline.ProcessingError
	require.True(t, errors.As(err, &procErr))
	assert.Contains(t, procErr.Error(), "ROI1 result is not available!")
}

func TestCorrelationTaskUnregistersRemovedSlots(t *testing.T) {
	t.Parallel()

	m := model.NewManager()
	ct := NewCorrelationTask(m)
	ct.Update(cfgWith(func(cfg *pipeline.Shared) {
		cfg.Correlations[1] = &pipeline.CorrelationParam{DeviceID: "motor", Property: "position"}
	}))
	_, _, _, ok := m.CorrelationParams(2)
	require.True(t, ok)

	ct.Update(cfgWith(nil))
	_, _, _, ok = m.CorrelationParams(2)
	assert.False(t, ok)
}

func TestBinningTaskAccumulates(t *testing.T) {
	t.Parallel()

	bt := NewBinningTask()
	bt.Update(cfgWith(func(cfg *pipeline.Shared) {
		cfg.CorrelationSource = "roi1"
		cfg.Bin = &pipeline.BinParams{DeviceID: "mono", Property: "energy", Bins: 2, Lo: 0, Hi: 10}
	}))

	process := func(trainID uint64, energy, fom float64) *model.ProcessedTrain {
		pt := model.NewProcessedTrain(trainID)
		pt.ROI.Sum[0] = fom
		pt.ROI.Valid[0] = true
		raw := &model.RawTrain{
			TrainID: trainID,
			Devices: map[string]map[string]any{"mono": {"energy": energy}},
		}
		require.NoError(t, bt.Process(pt, raw))
		return pt
	}

	process(1, 2, 10)
	process(2, 3, 20)
	pt := process(3, 8, 5)

	require.True(t, pt.Bin.Valid)
	assert.Equal(t, []int{2, 1}, pt.Bin.Counts)
	assert.InDelta(t, 15, pt.Bin.FOM[0], 1e-12)
	assert.InDelta(t, 5, pt.Bin.FOM[1], 1e-12)
	assert.InDelta(t, 2.5, pt.Bin.Centers[0], 1e-12)
	assert.InDelta(t, 7.5, pt.Bin.Centers[1], 1e-12)
}

func TestBinningTaskResetOnParamChange(t *testing.T) {
	t.Parallel()

	bt := NewBinningTask()
	cfg := cfgWith(func(cfg *pipeline.Shared) {
		cfg.Bin = &pipeline.BinParams{DeviceID: "mono", Property: "energy", Bins: 2, Lo: 0, Hi: 10}
	})
	bt.Update(cfg)

	pt := model.NewProcessedTrain(1)
	pt.ROI.Sum[0] = 10
	pt.ROI.Valid[0] = true
	raw := &model.RawTrain{TrainID: 1, Devices: map[string]map[string]any{"mono": {"energy": 2.0}}}
	require.NoError(t, bt.Process(pt, raw))
	require.Equal(t, []int{1, 0}, pt.Bin.Counts)

	cfg.Bin = &pipeline.BinParams{DeviceID: "mono", Property: "energy", Bins: 2, Lo: 0, Hi: 20}
	bt.Update(cfg)

	pt2 := model.NewProcessedTrain(2)
	pt2.ROI.Sum[0] = 10
	pt2.ROI.Valid[0] = true
	require.NoError(t, bt.Process(pt2, raw))
	assert.Equal(t, []int{1, 0}, pt2.Bin.Counts, "old accumulation discarded")
}

func TestXasTaskAccumulates(t *testing.T) {
	t.Parallel()

	xt := NewXasTask()
	xt.Update(cfgWith(func(cfg *pipeline.Shared) {
		cfg.XAS = &pipeline.XasParams{
			EnergyDevice: "mono", EnergyProperty: "energy",
			Bins: 2, Lo: 0, Hi: 10, ROIA: 0, ROIB: 1,
		}
	}))

	pt := model.NewProcessedTrain(1)
	pt.Beam = model.BeamRecord{Intensity: 2, Valid: true}
	pt.ROI.Sum[0] = 1
	pt.ROI.Sum[1] = 2
	pt.ROI.Valid[0] = true
	pt.ROI.Valid[1] = true
	raw := &model.RawTrain{TrainID: 1, Devices: map[string]map[string]any{"mono": {"energy": 3.0}}}
	require.NoError(t, xt.Process(pt, raw))

	require.True(t, pt.XAS.Valid)
	assert.Equal(t, []int{1, 0}, pt.XAS.Counts)
	assert.InDelta(t, math.Ln2, pt.XAS.AbsMuA[0], 1e-12, "-ln(1/2)")
	assert.InDelta(t, 0, pt.XAS.AbsMuB[0], 1e-12, "-ln(2/2)")
	assert.True(t, math.IsNaN(pt.XAS.AbsMuA[1]))
}

func TestXasTaskRequiresBeamAndROIs(t *testing.T) {
	t.Parallel()

	xt := NewXasTask()
	xt.Update(cfgWith(func(cfg *pipeline.Shared) {
		cfg.XAS = &pipeline.XasParams{
			EnergyDevice: "mono", EnergyProperty: "energy",
			Bins: 2, Lo: 0, Hi: 10, ROIA: 0, ROIB: 1,
		}
	}))

	var procErr *pipeline.ProcessingError

	pt := model.NewProcessedTrain(1)
	err := xt.Process(pt, &model.RawTrain{TrainID: 1})
	require.True(t, errors.As(err, &procErr), "no beam intensity")

	pt.Beam = model.BeamRecord{Intensity: 2, Valid: true}
	err = xt.Process(pt, &model.RawTrain{TrainID: 1})
	require.True(t, errors.As(err, &procErr), "no ROI sums")
}

func TestDefaultChainOrder(t *testing.T) {
	t.Parallel()

	chain := NewDefaultChain(model.NewManager())
	chain.Update(cfgWith(nil))

	pt := trainWithImage(t, 2, []float64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, chain.Process(pt, &model.RawTrain{TrainID: 2}))
	require.NotNil(t, pt.Image.Mean, "image task ran")
	assert.Equal(t, []float64{1, 2, 3, 4}, pt.Image.Mean)
	assert.Equal(t, []float64{1, 2, 3, 4}, pt.Image.MaskedMean)
}
