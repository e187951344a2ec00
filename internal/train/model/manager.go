package model

import (
	"fmt"
	"sync"

	"github.com/beamline-data/trainproc/internal/train/history"
)

type correlationSlot struct {
	meta       history.Metadata
	resolution float64
	buf        history.Buffer
}

// Manager owns the cross-train state: correlation history buffers keyed
// by slot, per-ROI sum histories, the pump-probe FOM history, the
// pump-probe pair average and the reference image. Tasks fill a
// ProcessedTrain; Commit folds the finished record into the histories.
//
// Correlation slots are addressed 1-based, matching the user-facing
// numbering (correlation1..correlation4).
//
// All methods are safe for concurrent use.
type Manager struct {
	mu           sync.Mutex
	correlations [MaxCorrelations]*correlationSlot
	roiHist      [MaxROIs]*history.Series
	ppFOM        *history.Series
	pair         *PairAverage
	refPending   bool
	reference    []float64
	refShape     []int
}

// NewManager creates a Manager with empty histories and a pump-probe
// pair window of 1.
func NewManager() *Manager {
	m := &Manager{
		ppFOM: history.NewSeries(0, history.Metadata{Property: "pump-probe FOM"}),
	}
	for i := range m.roiHist {
		m.roiHist[i] = history.NewSeries(0, history.Metadata{Property: fmt.Sprintf("ROI%d sum", i+1)})
	}
	m.pair, _ = NewPairAverage(1)
	return m
}

// AddCorrelation registers correlation slot idx (1-based). A zero
// resolution records every train as its own point; a positive resolution
// accumulates statistics per bin. Re-registering a slot with identical
// parameters keeps its history; any parameter change starts a fresh
// buffer.
func (m *Manager) AddCorrelation(idx int, deviceID, property string, resolution float64) error {
	if idx < 1 || idx > MaxCorrelations {
		return fmt.Errorf("correlation index %d out of range [1, %d]", idx, MaxCorrelations)
	}
	if resolution < 0 {
		return fmt.Errorf("correlation resolution must be >= 0, got %v", resolution)
	}
	meta := history.Metadata{DeviceID: deviceID, Property: property}

	m.mu.Lock()
	defer m.mu.Unlock()

	if slot := m.correlations[idx-1]; slot != nil &&
		slot.meta == meta && slot.resolution == resolution {
		return nil
	}

	var buf history.Buffer
	if resolution == 0 {
		buf = history.NewSeries(0, meta)
	} else {
		acc, err := history.NewAccumulatedSeries(resolution, 0, meta)
		if err != nil {
			return err
		}
		buf = acc
	}
	m.correlations[idx-1] = &correlationSlot{meta: meta, resolution: resolution, buf: buf}
	return nil
}

// RemoveCorrelation drops a slot and its history.
func (m *Manager) RemoveCorrelation(idx int) error {
	if idx < 1 || idx > MaxCorrelations {
		return fmt.Errorf("correlation index %d out of range [1, %d]", idx, MaxCorrelations)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.correlations[idx-1] = nil
	return nil
}

// Correlation returns the history snapshot for a slot. The second return
// is false for an unregistered slot.
func (m *Manager) Correlation(idx int) (history.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < 1 || idx > MaxCorrelations || m.correlations[idx-1] == nil {
		return history.Snapshot{}, false
	}
	return m.correlations[idx-1].buf.Snapshot(), true
}

// CorrelationParams returns the registered device, property and
// resolution for a slot.
func (m *Manager) CorrelationParams(idx int) (deviceID, property string, resolution float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < 1 || idx > MaxCorrelations || m.correlations[idx-1] == nil {
		return "", "", 0, false
	}
	slot := m.correlations[idx-1]
	return slot.meta.DeviceID, slot.meta.Property, slot.resolution, true
}

// CorrelationInfo describes one registered correlation slot.
type CorrelationInfo struct {
	Index      int     `json:"index"`
	DeviceID   string  `json:"deviceId"`
	Property   string  `json:"property"`
	Resolution float64 `json:"resolution"`
}

// Correlations lists the registered slots in index order.
func (m *Manager) Correlations() []CorrelationInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CorrelationInfo
	for i, slot := range m.correlations {
		if slot == nil {
			continue
		}
		out = append(out, CorrelationInfo{
			Index:      i + 1,
			DeviceID:   slot.meta.DeviceID,
			Property:   slot.meta.Property,
			Resolution: slot.resolution,
		})
	}
	return out
}

// ROIHistory returns the sum-vs-train history for a ROI slot.
func (m *Manager) ROIHistory(idx int) (history.Snapshot, error) {
	if idx < 0 || idx >= MaxROIs {
		return history.Snapshot{}, fmt.Errorf("ROI index %d out of range [0, %d)", idx, MaxROIs)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roiHist[idx].Snapshot(), nil
}

// PumpProbeHistory returns the FOM-vs-train history.
func (m *Manager) PumpProbeHistory() history.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ppFOM.Snapshot()
}

// Pair returns the shared pump-probe pair average.
func (m *Manager) Pair() *PairAverage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair
}

// Commit folds one finished train into the histories. Invalid sub-records
// are skipped without touching their buffers.
func (m *Manager) Commit(t *ProcessedTrain) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, pt := range t.Correlation {
		if pt.Valid && m.correlations[i] != nil {
			m.correlations[i].buf.Push(pt.X, pt.FOM)
		}
	}
	for i := 0; i < MaxROIs; i++ {
		if t.ROI.Valid[i] {
			m.roiHist[i].Push(float64(t.TrainID), t.ROI.Sum[i])
		}
	}
	if t.PumpProbe.FOMValid {
		m.ppFOM.Push(float64(t.TrainID), t.PumpProbe.FOM)
	}
}

// ResetCorrelation clears the history of one slot without unregistering
// it.
func (m *Manager) ResetCorrelation(idx int) error {
	if idx < 1 || idx > MaxCorrelations {
		return fmt.Errorf("correlation index %d out of range [1, %d]", idx, MaxCorrelations)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.correlations[idx-1] != nil {
		m.correlations[idx-1].buf.Clear()
	}
	return nil
}

// ResetAll clears every history and the pair average. Registered
// correlation parameters survive.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range m.correlations {
		if slot != nil {
			slot.buf.Clear()
		}
	}
	for _, h := range m.roiHist {
		h.Clear()
	}
	m.ppFOM.Clear()
	m.pair.Reset()
}

// RequestReference marks the next processed train: its averaged image is
// copied in as the reference.
func (m *Manager) RequestReference() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refPending = true
}

// TakeReferenceRequest reports and clears a pending reference request.
func (m *Manager) TakeReferenceRequest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.refPending
	m.refPending = false
	return pending
}

// SetReference stores a copy of img as the reference image.
func (m *Manager) SetReference(img []float64, shape []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reference = append([]float64(nil), img...)
	m.refShape = append([]int(nil), shape...)
}

// RemoveReference clears the reference image.
func (m *Manager) RemoveReference() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reference = nil
	m.refShape = nil
}

// Reference returns a copy of the held reference image and its shape.
// The last return is false while no reference is set.
func (m *Manager) Reference() ([]float64, []int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reference == nil {
		return nil, nil, false
	}
	return append([]float64(nil), m.reference...),
		append([]int(nil), m.refShape...), true
}
