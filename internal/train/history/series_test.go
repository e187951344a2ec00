package history

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesPushAndSnapshot(t *testing.T) {
	t.Parallel()

	s := NewSeries(10, Metadata{DeviceID: "device1", Property: "property1"})

	s.Push(1, 10)
	s.Push(2, 20)

	snap := s.Snapshot()
	assert.Equal(t, []float64{1, 2}, snap.X)
	assert.Equal(t, []float64{10, 20}, snap.Y)
	assert.Equal(t, "device1", snap.Meta.DeviceID)
	assert.Equal(t, "property1", snap.Meta.Property)
	assert.Nil(t, snap.Count)
}

func TestSeriesFIFOEviction(t *testing.T) {
	t.Parallel()

	const maxLen = 1000
	const overflow = 10

	s := NewSeries(maxLen, Metadata{})
	for i := 0; i < maxLen+overflow; i++ {
		s.Push(float64(i), float64(i))
	}

	snap := s.Snapshot()
	require.Len(t, snap.X, maxLen)
	require.Len(t, snap.Y, maxLen)
	assert.Equal(t, float64(overflow), snap.X[0])
	assert.Equal(t, float64(overflow), snap.Y[0])
	assert.Equal(t, float64(maxLen+overflow-1), snap.X[maxLen-1])
	assert.Equal(t, float64(maxLen+overflow-1), snap.Y[maxLen-1])
}

func TestSeriesSnapshotIdempotent(t *testing.T) {
	t.Parallel()

	s := NewSeries(0, Metadata{DeviceID: "motor"})
	s.Push(3, 30)
	s.Push(4, 40)

	first := s.Snapshot()
	second := s.Snapshot()
	assert.Empty(t, cmp.Diff(first, second))
}

func TestSeriesSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	s := NewSeries(0, Metadata{})
	s.Push(1, 1)

	snap := s.Snapshot()
	snap.X[0] = 99
	snap.Y[0] = 99

	after := s.Snapshot()
	assert.Equal(t, []float64{1}, after.X)
	assert.Equal(t, []float64{1}, after.Y)
}

func TestSeriesClearPreservesMetadata(t *testing.T) {
	t.Parallel()

	s := NewSeries(0, Metadata{DeviceID: "device1", Property: "position"})
	s.Push(1, 10)
	s.Clear()

	snap := s.Snapshot()
	assert.Empty(t, snap.X)
	assert.Empty(t, snap.Y)
	assert.Equal(t, "device1", snap.Meta.DeviceID)
	assert.Equal(t, "position", snap.Meta.Property)
}

func TestSeriesConcurrentPushAndSnapshot(t *testing.T) {
	t.Parallel()

	s := NewSeries(100, Metadata{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Push(float64(i), float64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			snap := s.Snapshot()
			assert.Len(t, snap.Y, len(snap.X))
		}
	}()
	wg.Wait()

	assert.Equal(t, 100, s.Len())
}
