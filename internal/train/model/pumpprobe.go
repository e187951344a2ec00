package model

import (
	"fmt"

	"github.com/beamline-data/trainproc/internal/train/image"
)

// PumpProbeMode selects how on (pumped) and off (unpumped) data are
// taken apart.
type PumpProbeMode int

const (
	// PPModeUndefined disables pump-probe analysis.
	PPModeUndefined PumpProbeMode = iota
	// PPModePredefinedOff compares every train against a stored
	// reference image.
	PPModePredefinedOff
	// PPModeSameTrain splits on and off pulses within a single train.
	PPModeSameTrain
	// PPModeEvenTrainOn pairs even train IDs (on) with the following
	// odd ones (off).
	PPModeEvenTrainOn
	// PPModeOddTrainOn pairs odd train IDs (on) with the following
	// even ones (off).
	PPModeOddTrainOn
)

func (m PumpProbeMode) String() string {
	switch m {
	case PPModeUndefined:
		return "undefined"
	case PPModePredefinedOff:
		return "predefined_off"
	case PPModeSameTrain:
		return "same_train"
	case PPModeEvenTrainOn:
		return "even_train_on"
	case PPModeOddTrainOn:
		return "odd_train_on"
	default:
		return fmt.Sprintf("PumpProbeMode(%d)", int(m))
	}
}

// ParsePumpProbeMode maps the wire/config name to a mode.
func ParsePumpProbeMode(s string) (PumpProbeMode, error) {
	switch s {
	case "undefined", "":
		return PPModeUndefined, nil
	case "predefined_off":
		return PPModePredefinedOff, nil
	case "same_train":
		return PPModeSameTrain, nil
	case "even_train_on":
		return PPModeEvenTrainOn, nil
	case "odd_train_on":
		return PPModeOddTrainOn, nil
	default:
		return PPModeUndefined, fmt.Errorf("unknown pump-probe mode %q", s)
	}
}

// PairAverage keeps the moving averages of matched on/off data. Unlike
// the bare image accumulator it starts over when the window shrinks or
// the data shape changes, so on and off never average across different
// acquisition settings.
type PairAverage struct {
	window int
	shape  []int
	on     *image.MovingAverage
	off    *image.MovingAverage
}

// NewPairAverage creates a pair accumulator with the given window.
func NewPairAverage(window int) (*PairAverage, error) {
	on, err := image.NewMovingAverage(window)
	if err != nil {
		return nil, err
	}
	off, _ := image.NewMovingAverage(window)
	return &PairAverage{window: window, on: on, off: off}, nil
}

// Push folds one matched on/off pair into the averages. Both slices must
// share the given shape.
func (p *PairAverage) Push(on, off []float64, shape []int) {
	if p.shape != nil && !sameShape(p.shape, shape) {
		p.Reset()
	}
	if p.shape == nil {
		p.shape = make([]int, len(shape))
		copy(p.shape, shape)
	}
	p.on.Push(on, shape)
	p.off.Push(off, shape)
}

// SetWindow changes the window. Shrinking discards the accumulated
// averages; growing keeps them.
func (p *PairAverage) SetWindow(window int) error {
	if window < 1 {
		return fmt.Errorf("pair average window must be >= 1, got %d", window)
	}
	if window < p.window {
		p.Reset()
	}
	p.window = window
	p.on.SetWindow(window)
	p.off.SetWindow(window)
	return nil
}

// Reset discards the accumulated on and off averages.
func (p *PairAverage) Reset() {
	p.on.Reset()
	p.off.Reset()
	p.shape = nil
}

// On returns a copy of the accumulated on average, or nil before the
// first push.
func (p *PairAverage) On() []float64 { return p.on.Current() }

// Off returns a copy of the accumulated off average, or nil before the
// first push.
func (p *PairAverage) Off() []float64 { return p.off.Current() }

// Count returns how many pairs contribute to the current averages.
func (p *PairAverage) Count() int { return p.on.Count() }

// Window returns the configured window size.
func (p *PairAverage) Window() int { return p.window }

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
