package history

import (
	"fmt"
	"math"
	"sync"
)

// DefaultAccumulatedMaxLength bounds an AccumulatedSeries. Binned scans are
// much shorter than raw train histories.
const DefaultAccumulatedMaxLength = 600

const (
	// minBinCount is the number of samples a bin needs before it is
	// committed. A bin that never reaches it is discarded when the scan
	// moves on.
	minBinCount = 2

	epsilon = 1e-9
)

// AccumulatedSeries bins pushed pairs by x-resolution: consecutive points
// whose x lies within the resolution of the current bin's running x are
// merged with a Welford incremental mean/variance update. The trailing bin
// stays provisional until it holds minBinCount samples; snapshots withhold
// it and a new far-away point discards it.
type AccumulatedSeries struct {
	mu         sync.Mutex
	resolution float64
	maxLen     int
	meta       Metadata

	x     []float64
	count []int
	avg   []float64
	m2    []float64 // Welford sum of squared deviations
	lower []float64
	upper []float64
}

// NewAccumulatedSeries creates a binned series. resolution must be positive.
// maxLen < 1 selects DefaultAccumulatedMaxLength.
func NewAccumulatedSeries(resolution float64, maxLen int, meta Metadata) (*AccumulatedSeries, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("history: resolution must be positive, got %g", resolution)
	}
	if maxLen < 1 {
		maxLen = DefaultAccumulatedMaxLength
	}
	return &AccumulatedSeries{resolution: resolution, maxLen: maxLen, meta: meta}, nil
}

// Push merges the pair into the current bin when x is within the resolution,
// otherwise opens a new bin (discarding the previous bin if it never reached
// minBinCount). The oldest bin is evicted once the bin count exceeds the
// configured maximum.
func (s *AccumulatedSeries) Push(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.x)
	switch {
	case n == 0:
		s.appendBin(x, y)
	case math.Abs(x-s.x[n-1])-s.resolution < epsilon:
		i := n - 1
		s.count[i]++
		c := float64(s.count[i])
		avgPrev := s.avg[i]
		s.avg[i] += (y - s.avg[i]) / c
		s.m2[i] += (y - avgPrev) * (y - s.avg[i])
		// Half-standard-deviation envelope, not true extrema. Downstream
		// consumers expect exactly this formula.
		half := 0.5 * math.Sqrt(s.m2[i]/c)
		s.lower[i] = s.avg[i] - half
		s.upper[i] = s.avg[i] + half
		s.x[i] += (x - s.x[i]) / c
	default:
		if s.count[n-1] < minBinCount {
			s.dropBin(n - 1)
		}
		s.appendBin(x, y)
	}

	if len(s.x) > s.maxLen {
		s.dropBin(0)
	}
}

func (s *AccumulatedSeries) appendBin(x, y float64) {
	s.x = append(s.x, x)
	s.count = append(s.count, 1)
	s.avg = append(s.avg, y)
	s.m2 = append(s.m2, 0)
	s.lower = append(s.lower, y)
	s.upper = append(s.upper, y)
}

func (s *AccumulatedSeries) dropBin(i int) {
	s.x = append(s.x[:i], s.x[i+1:]...)
	s.count = append(s.count[:i], s.count[i+1:]...)
	s.avg = append(s.avg[:i], s.avg[i+1:]...)
	s.m2 = append(s.m2[:i], s.m2[i+1:]...)
	s.lower = append(s.lower[:i], s.lower[i+1:]...)
	s.upper = append(s.upper[:i], s.upper[i+1:]...)
}

// Snapshot returns a copy of the committed bins. A trailing bin that has not
// reached minBinCount is treated as not-yet-committed and withheld.
func (s *AccumulatedSeries) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.x)
	if n > 0 && s.count[n-1] < minBinCount {
		n--
	}

	out := Snapshot{
		X:     make([]float64, n),
		Y:     make([]float64, n),
		Count: make([]int, n),
		Lower: make([]float64, n),
		Upper: make([]float64, n),
		Meta:  s.meta,
	}
	copy(out.X, s.x[:n])
	copy(out.Y, s.avg[:n])
	copy(out.Count, s.count[:n])
	copy(out.Lower, s.lower[:n])
	copy(out.Upper, s.upper[:n])
	return out
}

// Clear empties all bins. Metadata and resolution survive.
func (s *AccumulatedSeries) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x = nil
	s.count = nil
	s.avg = nil
	s.m2 = nil
	s.lower = nil
	s.upper = nil
}

// Resolution returns the configured bin width.
func (s *AccumulatedSeries) Resolution() float64 {
	return s.resolution
}

// Metadata returns the series' device/property tags.
func (s *AccumulatedSeries) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}
