package image

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSet([]float64{1, 2, 3}, 3)
	assert.Error(t, err, "rank 1 rejected")

	_, err = NewSet([]float64{1, 2, 3}, 2, 2)
	assert.Error(t, err, "element count mismatch rejected")

	_, err = NewSet(nil, 0, 2)
	assert.Error(t, err, "zero dimension rejected")

	s, err := NewSet([]float64{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, 1, s.Pulses())
}

func TestSetNanMeanStack(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	// Two pulses of 2x2. Pixel 0 has one NaN sample, pixel 3 has two.
	s, err := NewSet([]float64{
		nan, 0, 1, nan,
		2, 4, 3, nan,
	}, 2, 2, 2)
	require.NoError(t, err)

	mean := s.NanMean()
	assert.Equal(t, 2.0, mean[0])
	assert.Equal(t, 2.0, mean[1])
	assert.Equal(t, 2.0, mean[2])
	assert.True(t, math.IsNaN(mean[3]))
}

func TestSetNanMean2DCopies(t *testing.T) {
	t.Parallel()

	data := []float64{1, 2, 3, 4}
	s, err := NewSet(data, 2, 2)
	require.NoError(t, err)

	mean := s.NanMean()
	assert.Equal(t, data, mean)
	mean[0] = 99
	assert.Equal(t, 1.0, s.Data()[0])
}

func TestSetSlicedMean(t *testing.T) {
	t.Parallel()

	s, err := NewSet([]float64{
		1, 1,
		3, 3,
		5, 5,
	}, 3, 1, 2)
	require.NoError(t, err)

	mean, err := s.SlicedMean([]int{0, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3}, mean)

	_, err = s.SlicedMean([]int{0, 3})
	assert.Error(t, err, "out-of-range pulse rejected")

	_, err = s.SlicedMean(nil)
	assert.Error(t, err, "empty selection rejected")
}

func TestSetMeanExcluding(t *testing.T) {
	t.Parallel()

	s, err := NewSet([]float64{
		1, 1,
		3, 3,
	}, 2, 1, 2)
	require.NoError(t, err)

	mean, err := s.MeanExcluding([]int{1}, 42)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, mean)

	_, err = s.MeanExcluding([]int{0, 1}, 42)
	var dropErr *DropAllPulsesError
	require.True(t, errors.As(err, &dropErr))
	assert.Equal(t, uint64(42), dropErr.TrainID)
}

func TestMaskedMean(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	img := []float64{nan, 0, 1, 5}
	MaskedMean(img, 0, 1)
	assert.Equal(t, []float64{0, 0, 1, 1}, img)
}

func TestMaskedMeanNanClipsToLower(t *testing.T) {
	t.Parallel()

	// NaN goes through -Inf, so it lands on lo even when lo < 0.
	img := []float64{math.NaN(), -10}
	MaskedMean(img, -2, 2)
	assert.Equal(t, []float64{-2, -2}, img)
}

func TestApplyImageMask(t *testing.T) {
	t.Parallel()

	img := []float64{1, 2, 3, 4}
	require.NoError(t, ApplyImageMask(img, []bool{true, false, false, true}))
	assert.Equal(t, []float64{0, 2, 3, 0}, img)

	err := ApplyImageMask(img, []bool{true})
	var shapeErr *ShapeError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestMovingAverageWindow(t *testing.T) {
	t.Parallel()

	ma, err := NewMovingAverage(3)
	require.NoError(t, err)

	ma.Push([]float64{1, 1, 1}, []int{3})
	assert.Equal(t, 1, ma.Count())
	assert.Equal(t, []float64{1, 1, 1}, ma.Current())

	ma.Push([]float64{3, 3, 3}, []int{3})
	assert.Equal(t, 2, ma.Count())
	assert.Equal(t, []float64{2, 2, 2}, ma.Current())
}

func TestMovingAverageSaturates(t *testing.T) {
	t.Parallel()

	ma, err := NewMovingAverage(2)
	require.NoError(t, err)

	ma.Push([]float64{0}, []int{1})
	ma.Push([]float64{2}, []int{1})
	ma.Push([]float64{2}, []int{1})
	// Window full: each push replaces 1/2 of the average.
	assert.Equal(t, 2, ma.Count())
	assert.InDelta(t, 1.5, ma.Current()[0], 1e-12)
}

func TestMovingAverageShapeChangeRestarts(t *testing.T) {
	t.Parallel()

	ma, err := NewMovingAverage(4)
	require.NoError(t, err)

	ma.Push([]float64{1, 1}, []int{2})
	ma.Push([]float64{3, 3}, []int{2})
	require.Equal(t, 2, ma.Count())

	ma.Push([]float64{5, 5, 5}, []int{3})
	assert.Equal(t, 1, ma.Count())
	assert.Equal(t, []float64{5, 5, 5}, ma.Current())
	assert.Equal(t, []int{3}, ma.Shape())
}

func TestMovingAverageShrinkKeepsState(t *testing.T) {
	t.Parallel()

	ma, err := NewMovingAverage(5)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		ma.Push([]float64{2}, []int{1})
	}
	require.Equal(t, 4, ma.Count())

	require.NoError(t, ma.SetWindow(2))
	assert.Equal(t, 4, ma.Count(), "count clamps on the next push, not on SetWindow")
	assert.Equal(t, []float64{2}, ma.Current())

	ma.Push([]float64{4}, []int{1})
	assert.Equal(t, 2, ma.Count())
	assert.InDelta(t, 3, ma.Current()[0], 1e-12)
}

func TestMovingAverageReset(t *testing.T) {
	t.Parallel()

	ma, err := NewMovingAverage(3)
	require.NoError(t, err)
	ma.Push([]float64{1}, []int{1})
	ma.Reset()
	assert.Nil(t, ma.Current())
	assert.Equal(t, 0, ma.Count())
}

func TestNewMovingAverageRejectsBadWindow(t *testing.T) {
	t.Parallel()

	_, err := NewMovingAverage(0)
	assert.Error(t, err)
}
