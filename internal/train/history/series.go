package history

import "sync"

// DefaultMaxLength bounds a plain Series. Scatter plots get expensive
// beyond a few thousand points.
const DefaultMaxLength = 3000

// Metadata tags a series with the device and property it tracks. It is
// preserved across Clear so a reconfigured plot keeps its labels.
type Metadata struct {
	DeviceID string
	Property string
}

// Snapshot is an immutable copy of a series' contents.
//
// For a plain Series only X, Y and Meta are populated. For an
// AccumulatedSeries, Y holds the per-bin running average and Count, Lower and
// Upper hold the sample count and the half-standard-deviation envelope bounds
// (avg ∓ 0.5·sqrt(m2/count), not true extrema).
type Snapshot struct {
	X     []float64
	Y     []float64
	Count []int
	Lower []float64
	Upper []float64
	Meta  Metadata
}

// Buffer is the common contract of Series and AccumulatedSeries.
type Buffer interface {
	Push(x, y float64)
	Snapshot() Snapshot
	Clear()
	Metadata() Metadata
}

// Series is an append-only, bounded (x, y) history. The oldest pair is
// evicted once the length exceeds the configured maximum.
type Series struct {
	mu     sync.Mutex
	x, y   []float64
	maxLen int
	meta   Metadata
}

// NewSeries creates a Series bounded at maxLen pairs. maxLen < 1 selects
// DefaultMaxLength.
func NewSeries(maxLen int, meta Metadata) *Series {
	if maxLen < 1 {
		maxLen = DefaultMaxLength
	}
	return &Series{maxLen: maxLen, meta: meta}
}

// Push appends one pair, evicting the oldest pair when the series is full.
// It never fails.
func (s *Series) Push(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.x = append(s.x, x)
	s.y = append(s.y, y)
	if len(s.x) > s.maxLen {
		s.x = s.x[1:]
		s.y = s.y[1:]
	}
}

// Snapshot returns a copy of the current contents.
func (s *Series) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		X:    make([]float64, len(s.x)),
		Y:    make([]float64, len(s.y)),
		Meta: s.meta,
	}
	copy(out.X, s.x)
	copy(out.Y, s.y)
	return out
}

// Clear empties the series. Metadata survives.
func (s *Series) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x = nil
	s.y = nil
}

// Len returns the current number of pairs.
func (s *Series) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.x)
}

// Metadata returns the series' device/property tags.
func (s *Series) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}
