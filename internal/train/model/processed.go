package model

import "github.com/beamline-data/trainproc/internal/train/image"

// MaxROIs is the number of region-of-interest slots a processed train
// carries.
const MaxROIs = 4

// MaxCorrelations is the number of correlation slots a processed train
// carries.
const MaxCorrelations = 4

// Rect describes a region of interest in pixel coordinates.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Contains reports whether the rect fits inside an image of the given
// frame shape.
func (r Rect) Contains(rows, cols int) bool {
	return r.X >= 0 && r.Y >= 0 && r.W > 0 && r.H > 0 &&
		r.X+r.W <= cols && r.Y+r.H <= rows
}

// ImageRecord is the image side of a processed train. Mean is the
// background-subtracted moving average of the raw per-train means;
// MaskedMean is that view with the image and threshold masks applied.
// Reference and MaskedReference are only set while a reference image is
// held.
type ImageRecord struct {
	Set             *image.Set
	Mean            []float64
	MaskedMean      []float64
	Reference       []float64
	MaskedReference []float64
	Shape           []int
	Background      float64
	ThresholdLo     float64
	ThresholdHi     float64
	DroppedPulse    []int
}

// AzimuthalRecord holds the azimuthal integration result for one train.
type AzimuthalRecord struct {
	Momentum      []float64
	IntensityMean []float64
	FOM           float64
	FOMValid      bool
}

// PumpProbeRecord holds the on/off analysis result for one train. FOM is
// only meaningful when FOMValid is set: off-mode trains and unmatched on
// trains leave it unset.
type PumpProbeRecord struct {
	Mode     PumpProbeMode
	X        []float64
	OnData   []float64
	OffData  []float64
	FOM      float64
	FOMValid bool
}

// BeamRecord holds the slow beam diagnostics aggregated onto a train.
type BeamRecord struct {
	Intensity float64
	Valid     bool
}

// RoiRecord holds the per-slot region results for one train.
type RoiRecord struct {
	Regions [MaxROIs]*Rect
	Sum     [MaxROIs]float64
	Valid   [MaxROIs]bool
}

// CorrelationPoint is one train's contribution to a correlation slot: the
// slow-property value on the x axis and the figure of merit on y.
type CorrelationPoint struct {
	X        float64
	FOM      float64
	Valid    bool
	DeviceID string
	Property string
}

// BinRecord holds the 1D binning result for one train's pipeline pass.
type BinRecord struct {
	Centers []float64
	Counts  []int
	FOM     []float64
	Valid   bool
}

// XasRecord holds the x-ray absorption result accumulated at this train.
type XasRecord struct {
	Centers []float64
	AbsMuA  []float64
	AbsMuB  []float64
	Counts  []int
	Valid   bool
}

// ProcessedTrain is the record the task chain fills in for each train.
// Tasks only write their own sub-record; consumers read all of them.
type ProcessedTrain struct {
	TrainID     uint64
	Image       ImageRecord
	Beam        BeamRecord
	AI          AzimuthalRecord
	PumpProbe   PumpProbeRecord
	ROI         RoiRecord
	Correlation [MaxCorrelations]CorrelationPoint
	Bin         BinRecord
	XAS         XasRecord
}

// NewProcessedTrain creates an empty record for the given train.
func NewProcessedTrain(trainID uint64) *ProcessedTrain {
	return &ProcessedTrain{TrainID: trainID}
}
