package tasks

import (
	"gonum.org/v1/gonum/floats"

	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
)

// BinningTask accumulates the per-train figure of merit into fixed bins
// of a slow property. The accumulation persists across trains and starts
// over whenever the bin parameters change.
type BinningTask struct {
	source  string
	params  *pipeline.BinParams
	edges   []float64
	centers []float64
	sum     []float64
	counts  []int
}

// NewBinningTask creates a disabled binning task.
func NewBinningTask() *BinningTask { return &BinningTask{} }

// Name implements pipeline.Task.
func (bt *BinningTask) Name() string { return "binning" }

// Update implements pipeline.Task.
func (bt *BinningTask) Update(cfg pipeline.Shared) {
	bt.source = cfg.CorrelationSource
	p := cfg.Bin
	if p == nil {
		bt.params = nil
		return
	}
	if bt.params != nil && *bt.params == *p {
		return
	}
	if p.Bins < 1 || p.Hi <= p.Lo {
		opsf("binning config rejected: bins=%d range=[%v, %v]", p.Bins, p.Lo, p.Hi)
		bt.params = nil
		return
	}
	cp := *p
	bt.params = &cp
	bt.edges = floats.Span(make([]float64, p.Bins+1), p.Lo, p.Hi)
	bt.centers = make([]float64, p.Bins)
	for i := range bt.centers {
		bt.centers[i] = 0.5 * (bt.edges[i] + bt.edges[i+1])
	}
	bt.sum = make([]float64, p.Bins)
	bt.counts = make([]int, p.Bins)
}

// Process implements pipeline.Task. Out-of-range slow values are
// ignored; the record still carries the current accumulation.
func (bt *BinningTask) Process(t *model.ProcessedTrain, raw *model.RawTrain) error {
	if bt.params == nil {
		return nil
	}
	fom, err := resolveFOM(bt.source, t)
	if err != nil {
		return &pipeline.ProcessingError{Task: bt.Name(), Err: err}
	}
	x, err := raw.GetFloat(bt.params.DeviceID, bt.params.Property)
	if err != nil {
		return &pipeline.ProcessingError{Task: bt.Name(), Err: err}
	}

	if idx, ok := bt.binIndex(x); ok {
		bt.sum[idx] += fom
		bt.counts[idx]++
	} else {
		diagf("train %d: %s/%s value %v outside bin range", t.TrainID, bt.params.DeviceID, bt.params.Property, x)
	}

	out := make([]float64, len(bt.centers))
	counts := make([]int, len(bt.counts))
	copy(counts, bt.counts)
	for i := range out {
		if bt.counts[i] > 0 {
			out[i] = bt.sum[i] / float64(bt.counts[i])
		}
	}
	centers := make([]float64, len(bt.centers))
	copy(centers, bt.centers)
	t.Bin = model.BinRecord{Centers: centers, Counts: counts, FOM: out, Valid: true}
	return nil
}

func (bt *BinningTask) binIndex(x float64) (int, bool) {
	if x < bt.params.Lo || x > bt.params.Hi {
		return 0, false
	}
	idx := int(float64(bt.params.Bins) * (x - bt.params.Lo) / (bt.params.Hi - bt.params.Lo))
	if idx == bt.params.Bins {
		idx--
	}
	return idx, true
}
