package image

import (
	"fmt"
	"math"
)

// Set is one train's worth of detector data: either a single 2D image or
// a 3D pulse stack, stored flat in row-major order. For a stack the pulse
// index is the leading dimension.
type Set struct {
	data  []float64
	shape []int
}

// NewSet wraps data with the given shape. The rank must be 2 or 3 and the
// shape must account for every element of data.
func NewSet(data []float64, shape ...int) (*Set, error) {
	if len(shape) != 2 && len(shape) != 3 {
		return nil, fmt.Errorf("image rank must be 2 or 3, got %d", len(shape))
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("image shape %v has non-positive dimension", shape)
		}
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("image shape %v needs %d elements, got %d", shape, n, len(data))
	}
	s := &Set{data: data, shape: make([]int, len(shape))}
	copy(s.shape, shape)
	return s, nil
}

// Rank returns 2 for a single image, 3 for a pulse stack.
func (s *Set) Rank() int { return len(s.shape) }

// Shape returns a copy of the image shape.
func (s *Set) Shape() []int {
	out := make([]int, len(s.shape))
	copy(out, s.shape)
	return out
}

// Pulses returns the number of pulses in the set. A 2D set counts as one.
func (s *Set) Pulses() int {
	if len(s.shape) == 2 {
		return 1
	}
	return s.shape[0]
}

// FrameShape returns the rows and columns of a single image.
func (s *Set) FrameShape() (rows, cols int) {
	if len(s.shape) == 2 {
		return s.shape[0], s.shape[1]
	}
	return s.shape[1], s.shape[2]
}

// Pulse returns the flat pixels of pulse i without copying.
func (s *Set) Pulse(i int) ([]float64, error) {
	if i < 0 || i >= s.Pulses() {
		return nil, fmt.Errorf("pulse index %d out of range [0, %d)", i, s.Pulses())
	}
	rows, cols := s.FrameShape()
	frame := rows * cols
	return s.data[i*frame : (i+1)*frame], nil
}

// Data returns the flat backing slice without copying.
func (s *Set) Data() []float64 { return s.data }

// NanMean averages the stack across pulses, ignoring NaN samples. Pixels
// with no finite sample stay NaN. A 2D set returns a copy of itself.
func (s *Set) NanMean() []float64 {
	if len(s.shape) == 2 {
		out := make([]float64, len(s.data))
		copy(out, s.data)
		return out
	}
	indices := make([]int, s.shape[0])
	for i := range indices {
		indices[i] = i
	}
	out, _ := s.SlicedMean(indices)
	return out
}

// SlicedMean averages the given pulses, ignoring NaN samples. It rejects
// out-of-range indices and an empty selection.
func (s *Set) SlicedMean(indices []int) ([]float64, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty pulse selection")
	}
	rows, cols := s.FrameShape()
	frame := rows * cols
	sum := make([]float64, frame)
	count := make([]int, frame)
	for _, idx := range indices {
		pulse, err := s.Pulse(idx)
		if err != nil {
			return nil, err
		}
		for j, v := range pulse {
			if !math.IsNaN(v) {
				sum[j] += v
				count[j]++
			}
		}
	}
	out := make([]float64, frame)
	for j := range out {
		if count[j] == 0 {
			out[j] = math.NaN()
		} else {
			out[j] = sum[j] / float64(count[j])
		}
	}
	return out, nil
}

// MeanExcluding averages every pulse not listed in dropped. Dropping all
// pulses yields a DropAllPulsesError.
func (s *Set) MeanExcluding(dropped []int, trainID uint64) ([]float64, error) {
	skip := make(map[int]bool, len(dropped))
	for _, idx := range dropped {
		skip[idx] = true
	}
	kept := make([]int, 0, s.Pulses())
	for i := 0; i < s.Pulses(); i++ {
		if !skip[i] {
			kept = append(kept, i)
		}
	}
	if len(kept) == 0 {
		return nil, &DropAllPulsesError{TrainID: trainID}
	}
	return s.SlicedMean(kept)
}
