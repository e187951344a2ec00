package image

import "fmt"

// MovingAverage accumulates a running average over a sliding window of
// images. Once the window fills, each new image replaces 1/window of the
// accumulated value, so the average tracks the signal without keeping the
// individual frames around.
//
// Pushing an image whose shape differs from the accumulated one discards
// the history and restarts from the new image. Shrinking the window keeps
// the current average and count; the count is clamped on the next push.
type MovingAverage struct {
	window int
	count  int
	avg    []float64
	shape  []int
}

// NewMovingAverage creates an accumulator with the given window. A window
// below 1 is rejected.
func NewMovingAverage(window int) (*MovingAverage, error) {
	if window < 1 {
		return nil, fmt.Errorf("moving average window must be >= 1, got %d", window)
	}
	return &MovingAverage{window: window}, nil
}

// Push folds one image into the average.
func (ma *MovingAverage) Push(data []float64, shape []int) {
	if ma.avg == nil || !shapeEqual(ma.shape, shape) {
		ma.avg = make([]float64, len(data))
		copy(ma.avg, data)
		ma.shape = make([]int, len(shape))
		copy(ma.shape, shape)
		ma.count = 1
		return
	}
	ma.count++
	if ma.count > ma.window {
		ma.count = ma.window
	}
	c := float64(ma.count)
	for i, v := range data {
		ma.avg[i] += (v - ma.avg[i]) / c
	}
}

// SetWindow changes the window size. The accumulated average and count
// survive the change.
func (ma *MovingAverage) SetWindow(window int) error {
	if window < 1 {
		return fmt.Errorf("moving average window must be >= 1, got %d", window)
	}
	ma.window = window
	return nil
}

// Reset discards the accumulated average.
func (ma *MovingAverage) Reset() {
	ma.avg = nil
	ma.shape = nil
	ma.count = 0
}

// Current returns a copy of the accumulated average, or nil before the
// first push.
func (ma *MovingAverage) Current() []float64 {
	if ma.avg == nil {
		return nil
	}
	out := make([]float64, len(ma.avg))
	copy(out, ma.avg)
	return out
}

// Count returns how many images contribute to the current average,
// saturated at the window size.
func (ma *MovingAverage) Count() int { return ma.count }

// Window returns the configured window size.
func (ma *MovingAverage) Window() int { return ma.window }

// Shape returns the shape of the accumulated average, or nil before the
// first push.
func (ma *MovingAverage) Shape() []int {
	if ma.shape == nil {
		return nil
	}
	out := make([]int, len(ma.shape))
	copy(out, ma.shape)
	return out
}

func shapeEqual(a, b []int) bool {
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
