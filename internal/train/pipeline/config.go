package pipeline

import (
	"math"
	"sync"

	"github.com/beamline-data/trainproc/internal/train/model"
)

// AzimuthalParams configures radial integration around a beam center, in
// pixel units.
type AzimuthalParams struct {
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Points  int     `json:"points"`
	// FOM is the integral of the scattering curve over [FOMLo, FOMHi].
	FOMLo float64 `json:"fomLo"`
	FOMHi float64 `json:"fomHi"`
	// Physical geometry. When PixelSize, Distance and EnergyKeV are all
	// positive the momentum axis comes out in 1/Å instead of pixels.
	PixelSize float64 `json:"pixelSize"` // metres
	Distance  float64 `json:"distance"`  // metres, sample to detector
	EnergyKeV float64 `json:"energyKeV"`
}

// CorrelationParam names the slow property driving a correlation slot.
type CorrelationParam struct {
	DeviceID   string  `json:"deviceId"`
	Property   string  `json:"property"`
	Resolution float64 `json:"resolution"`
}

// BinParams configures 1D binning of the per-train FOM against a slow
// property.
type BinParams struct {
	DeviceID string  `json:"deviceId"`
	Property string  `json:"property"`
	Bins     int     `json:"bins"`
	Lo       float64 `json:"lo"`
	Hi       float64 `json:"hi"`
}

// XasParams configures x-ray absorption spectroscopy: two ROI slots act
// as signal detectors, binned against the monochromator energy.
type XasParams struct {
	EnergyDevice   string  `json:"energyDevice"`
	EnergyProperty string  `json:"energyProperty"`
	Bins           int     `json:"bins"`
	Lo             float64 `json:"lo"`
	Hi             float64 `json:"hi"`
	ROIA           int     `json:"roiA"`
	ROIB           int     `json:"roiB"`
}

// Shared is the configuration snapshot handed to every task before each
// train. Slice and pointer fields are replaced wholesale on update, never
// mutated in place, so a snapshot stays valid while a train is in flight.
type Shared struct {
	MovingAverageWindow int
	ThresholdLo         float64
	ThresholdHi         float64
	ImageMask           []bool

	// Background is a uniform offset subtracted from the averaged
	// image as a view; it never enters the accumulator.
	Background float64

	PulseFilterEnabled bool
	PulseFilterLo      float64
	PulseFilterHi      float64

	PPMode          model.PumpProbeMode
	PPOnIndices     []int
	PPOffIndices    []int
	PPAbsDifference bool

	ROIs [model.MaxROIs]*model.Rect

	AzimuthalEnabled bool
	Azimuthal        AzimuthalParams

	// CorrelationSource selects the FOM fed to the correlation and
	// binning tasks: "roi1".."roi4", "azimuthal" or "pump_probe".
	CorrelationSource string
	Correlations      [model.MaxCorrelations]*CorrelationParam

	Bin *BinParams
	XAS *XasParams
}

// DefaultShared returns a snapshot with analysis disabled and thresholds
// wide open.
func DefaultShared() Shared {
	return Shared{
		MovingAverageWindow: 1,
		ThresholdLo:         math.Inf(-1),
		ThresholdHi:         math.Inf(1),
		CorrelationSource:   "roi1",
	}
}

// Store holds the live configuration. Writers go through Update; readers
// take a snapshot per train with Get.
type Store struct {
	mu  sync.RWMutex
	cur Shared
}

// NewStore creates a Store seeded with initial.
func NewStore(initial Shared) *Store {
	return &Store{cur: initial}
}

// Get returns the current snapshot.
func (s *Store) Get() Shared {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies fn to the configuration under the write lock. fn must
// replace slice fields rather than mutate them.
func (s *Store) Update(fn func(*Shared)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cur)
}
