package tasks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
)

// XasTask accumulates x-ray absorption spectra: two ROI sums act as
// transmission detectors, normalized against the beam intensity and
// binned by the monochromator energy. mu = -ln(sum / I0).
type XasTask struct {
	params  *pipeline.XasParams
	centers []float64
	sumA    []float64
	sumB    []float64
	counts  []int
}

// NewXasTask creates a disabled XAS task.
func NewXasTask() *XasTask { return &XasTask{} }

// Name implements pipeline.Task.
func (xt *XasTask) Name() string { return "xas" }

// Update implements pipeline.Task. A parameter change starts a fresh
// accumulation.
func (xt *XasTask) Update(cfg pipeline.Shared) {
	p := cfg.XAS
	if p == nil {
		xt.params = nil
		return
	}
	if xt.params != nil && *xt.params == *p {
		return
	}
	if p.Bins < 1 || p.Hi <= p.Lo ||
		p.ROIA < 0 || p.ROIA >= model.MaxROIs ||
		p.ROIB < 0 || p.ROIB >= model.MaxROIs {
		opsf("xas config rejected: %+v", *p)
		xt.params = nil
		return
	}
	cp := *p
	xt.params = &cp
	edges := floats.Span(make([]float64, p.Bins+1), p.Lo, p.Hi)
	xt.centers = make([]float64, p.Bins)
	for i := range xt.centers {
		xt.centers[i] = 0.5 * (edges[i] + edges[i+1])
	}
	xt.sumA = make([]float64, p.Bins)
	xt.sumB = make([]float64, p.Bins)
	xt.counts = make([]int, p.Bins)
}

// Process implements pipeline.Task.
func (xt *XasTask) Process(t *model.ProcessedTrain, raw *model.RawTrain) error {
	if xt.params == nil {
		return nil
	}
	if !t.Beam.Valid || t.Beam.Intensity <= 0 {
		return &pipeline.ProcessingError{
			Task: xt.Name(),
			Err:  fmt.Errorf("beam intensity is not available!"),
		}
	}
	if !t.ROI.Valid[xt.params.ROIA] || !t.ROI.Valid[xt.params.ROIB] {
		return &pipeline.ProcessingError{
			Task: xt.Name(),
			Err:  fmt.Errorf("ROI%d/ROI%d results are not available!", xt.params.ROIA+1, xt.params.ROIB+1),
		}
	}
	energy, err := raw.GetFloat(xt.params.EnergyDevice, xt.params.EnergyProperty)
	if err != nil {
		return &pipeline.ProcessingError{Task: xt.Name(), Err: err}
	}

	sumA := t.ROI.Sum[xt.params.ROIA]
	sumB := t.ROI.Sum[xt.params.ROIB]
	if sumA <= 0 || sumB <= 0 {
		return &pipeline.ProcessingError{
			Task: xt.Name(),
			Err:  fmt.Errorf("non-positive ROI sums (%v, %v) cannot be absorbed", sumA, sumB),
		}
	}

	if idx, ok := xt.binIndex(energy); ok {
		xt.sumA[idx] += -math.Log(sumA / t.Beam.Intensity)
		xt.sumB[idx] += -math.Log(sumB / t.Beam.Intensity)
		xt.counts[idx]++
	}

	n := len(xt.centers)
	rec := model.XasRecord{
		Centers: append([]float64(nil), xt.centers...),
		AbsMuA:  make([]float64, n),
		AbsMuB:  make([]float64, n),
		Counts:  append([]int(nil), xt.counts...),
		Valid:   true,
	}
	for i := 0; i < n; i++ {
		if xt.counts[i] > 0 {
			rec.AbsMuA[i] = xt.sumA[i] / float64(xt.counts[i])
			rec.AbsMuB[i] = xt.sumB[i] / float64(xt.counts[i])
		} else {
			rec.AbsMuA[i] = math.NaN()
			rec.AbsMuB[i] = math.NaN()
		}
	}
	t.XAS = rec
	return nil
}

func (xt *XasTask) binIndex(x float64) (int, bool) {
	if x < xt.params.Lo || x > xt.params.Hi {
		return 0, false
	}
	idx := int(float64(xt.params.Bins) * (x - xt.params.Lo) / (xt.params.Hi - xt.params.Lo))
	if idx == xt.params.Bins {
		idx--
	}
	return idx, true
}
