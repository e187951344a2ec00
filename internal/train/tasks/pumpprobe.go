package tasks

import (
	"fmt"
	"math"

	"github.com/beamline-data/trainproc/internal/train/image"
	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
)

// PumpProbeTask pairs pumped (on) and unpumped (off) data and computes
// the difference figure of merit. The on and off sides are per-index
// pulse means; train-resolved data uses the whole image on either side.
//
// In the train-parity modes an on train is held in a one-deep memory
// cell until its off partner arrives. An off train with no stored on is
// dropped; a second on train overwrites the first; the cell is cleared
// once a pair is made.
type PumpProbeTask struct {
	mode    model.PumpProbeMode
	onIdx   []int
	offIdx  []int
	absDiff bool
	pair    *model.PairAverage
	prevOn  []float64
}

// NewPumpProbeTask creates a pump-probe task over the shared pair
// average.
func NewPumpProbeTask(pair *model.PairAverage) *PumpProbeTask {
	return &PumpProbeTask{pair: pair}
}

// Name implements pipeline.Task.
func (pp *PumpProbeTask) Name() string { return "pump-probe" }

// Update implements pipeline.Task. A mode change discards the pair
// average and the stored on train.
func (pp *PumpProbeTask) Update(cfg pipeline.Shared) {
	if cfg.PPMode != pp.mode {
		opsf("pump-probe mode changed: %s -> %s", pp.mode, cfg.PPMode)
		pp.mode = cfg.PPMode
		pp.pair.Reset()
		pp.prevOn = nil
	}
	if cfg.MovingAverageWindow >= 1 {
		pp.pair.SetWindow(cfg.MovingAverageWindow)
	}
	pp.onIdx = cfg.PPOnIndices
	pp.offIdx = cfg.PPOffIndices
	pp.absDiff = cfg.PPAbsDifference
}

// Process implements pipeline.Task.
func (pp *PumpProbeTask) Process(t *model.ProcessedTrain, raw *model.RawTrain) error {
	if pp.mode == model.PPModeUndefined {
		return nil
	}
	t.PumpProbe.Mode = pp.mode

	set := t.Image.Set
	rows, cols := set.FrameShape()
	shape := []int{rows, cols}

	if err := pp.validateIndices(set); err != nil {
		return err
	}

	switch pp.mode {
	case model.PPModeSameTrain:
		on, err := pp.sideMean(t, pp.onIdx, "on")
		if err != nil {
			return err
		}
		off, err := pp.sideMean(t, pp.offIdx, "off")
		if err != nil {
			return err
		}
		pp.commit(t, on, off, shape)

	case model.PPModePredefinedOff:
		on, err := pp.sideMean(t, pp.onIdx, "on")
		if err != nil {
			return err
		}
		pp.commit(t, on, make([]float64, rows*cols), shape)

	case model.PPModeEvenTrainOn, model.PPModeOddTrainOn:
		evenOn := pp.mode == model.PPModeEvenTrainOn
		isOn := (t.TrainID%2 == 0) == evenOn
		if isOn {
			on, err := pp.sideMean(t, pp.onIdx, "on")
			if err != nil {
				return err
			}
			if pp.prevOn != nil {
				diagf("train %d: consecutive on trains, dropping the earlier one", t.TrainID)
			}
			pp.prevOn = on
			return nil
		}
		if pp.prevOn == nil {
			diagf("train %d: off train with no stored on train, dropped", t.TrainID)
			return nil
		}
		off, err := pp.sideMean(t, pp.offIdx, "off")
		if err != nil {
			return err
		}
		on := pp.prevOn
		pp.prevOn = nil
		pp.commit(t, on, off, shape)
	}
	return nil
}

// validateIndices range-checks the on indices, and the off indices in
// every mode but PREDEFINED_OFF (its off side is synthetic). SAME_TRAIN
// additionally rejects an index appearing on both sides. Train-resolved
// data carries no pulse axis and skips all of it.
func (pp *PumpProbeTask) validateIndices(set *image.Set) error {
	if set.Rank() == 2 {
		return nil
	}
	pulses := set.Pulses()
	for _, idx := range pp.onIdx {
		if idx < 0 || idx >= pulses {
			return &pipeline.PumpProbeIndexError{Index: idx, Pulses: pulses}
		}
	}
	if pp.mode != model.PPModePredefinedOff {
		for _, idx := range pp.offIdx {
			if idx < 0 || idx >= pulses {
				return &pipeline.PumpProbeIndexError{Index: idx, Pulses: pulses}
			}
		}
	}
	if pp.mode == model.PPModeSameTrain {
		on := make(map[int]bool, len(pp.onIdx))
		for _, idx := range pp.onIdx {
			on[idx] = true
		}
		for _, idx := range pp.offIdx {
			if on[idx] {
				return &pipeline.PumpProbeIndexError{Index: idx, Overlap: true}
			}
		}
	}
	return nil
}

// sideMean averages one side's pulses. Pulses flagged by the pulse
// filter are excluded first; losing the whole side to the filter is a
// DropAllPulsesError. Train-resolved data degrades to the full image.
func (pp *PumpProbeTask) sideMean(t *model.ProcessedTrain, indices []int, side string) ([]float64, error) {
	set := t.Image.Set
	if set.Rank() == 2 {
		return set.NanMean(), nil
	}
	if len(indices) == 0 {
		return nil, &pipeline.ProcessingError{
			Task: pp.Name(),
			Err:  fmt.Errorf("no %s pulse indices configured", side),
		}
	}
	dropped := make(map[int]bool, len(t.Image.DroppedPulse))
	for _, idx := range t.Image.DroppedPulse {
		dropped[idx] = true
	}
	kept := make([]int, 0, len(indices))
	for _, idx := range indices {
		if !dropped[idx] {
			kept = append(kept, idx)
		}
	}
	if len(kept) == 0 {
		return nil, &image.DropAllPulsesError{TrainID: t.TrainID}
	}
	mean, err := set.SlicedMean(kept)
	if err != nil {
		return nil, &pipeline.ProcessingError{Task: pp.Name(), Err: err}
	}
	return mean, nil
}

func (pp *PumpProbeTask) commit(t *model.ProcessedTrain, on, off []float64, shape []int) {
	pp.pair.Push(on, off, shape)
	onAvg := pp.pair.On()
	offAvg := pp.pair.Off()

	var fom float64
	for i := range onAvg {
		d := onAvg[i] - offAvg[i]
		if pp.absDiff {
			d = math.Abs(d)
		}
		if !math.IsNaN(d) {
			fom += d
		}
	}

	t.PumpProbe.OnData = onAvg
	t.PumpProbe.OffData = offAvg
	t.PumpProbe.FOM = fom
	t.PumpProbe.FOMValid = true
}
