package tasks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
	"github.com/beamline-data/trainproc/internal/units"
)

// Integrator reduces a 2D image to a scattering curve.
type Integrator interface {
	Integrate(img []float64, rows, cols int) (q, intensity []float64, err error)
}

// RadialIntegrator bins pixels by their distance from the beam center
// and averages the intensity per ring. NaN pixels are ignored; empty
// rings stay NaN.
//
// With pixel size, sample-detector distance and photon energy all
// configured the momentum axis is converted to 1/Å; otherwise it stays
// in pixel units.
type RadialIntegrator struct {
	centerX, centerY float64
	points           int

	pixelSize  float64
	distance   float64
	wavelength float64 // Å
}

// NewRadialIntegrator creates an integrator with the given beam center
// and number of radial points.
func NewRadialIntegrator(centerX, centerY float64, points int) (*RadialIntegrator, error) {
	if points < 2 {
		return nil, fmt.Errorf("radial integrator needs at least 2 points, got %d", points)
	}
	return &RadialIntegrator{centerX: centerX, centerY: centerY, points: points}, nil
}

// SetGeometry configures the physical detector geometry. Non-positive
// values disable the q conversion.
func (ri *RadialIntegrator) SetGeometry(pixelSizeM, distanceM, energyKeV float64) {
	ri.pixelSize = pixelSizeM
	ri.distance = distanceM
	ri.wavelength = units.WavelengthAngstrom(energyKeV)
}

// toMomentum maps a radius in pixels onto the momentum axis.
func (ri *RadialIntegrator) toMomentum(radiusPx float64) float64 {
	if ri.pixelSize <= 0 || ri.distance <= 0 || ri.wavelength <= 0 {
		return radiusPx
	}
	return units.MomentumTransfer(radiusPx*ri.pixelSize, ri.distance, ri.wavelength)
}

// Integrate implements Integrator.
func (ri *RadialIntegrator) Integrate(img []float64, rows, cols int) ([]float64, []float64, error) {
	if len(img) != rows*cols {
		return nil, nil, fmt.Errorf("image has %d pixels, want %d", len(img), rows*cols)
	}

	corners := []float64{
		math.Hypot(ri.centerX, ri.centerY),
		math.Hypot(float64(cols-1)-ri.centerX, ri.centerY),
		math.Hypot(ri.centerX, float64(rows-1)-ri.centerY),
		math.Hypot(float64(cols-1)-ri.centerX, float64(rows-1)-ri.centerY),
	}
	rmax := floats.Max(corners)
	if rmax == 0 {
		return nil, nil, fmt.Errorf("degenerate geometry: zero maximum radius")
	}

	sum := make([]float64, ri.points)
	count := make([]int, ri.points)
	width := rmax / float64(ri.points)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := img[y*cols+x]
			if math.IsNaN(v) {
				continue
			}
			r := math.Hypot(float64(x)-ri.centerX, float64(y)-ri.centerY)
			bin := int(r / width)
			if bin >= ri.points {
				bin = ri.points - 1
			}
			sum[bin] += v
			count[bin]++
		}
	}

	q := floats.Span(make([]float64, ri.points), 0.5*width, rmax-0.5*width)
	for i := range q {
		q[i] = ri.toMomentum(q[i])
	}
	intensity := make([]float64, ri.points)
	for i := range intensity {
		if count[i] == 0 {
			intensity[i] = math.NaN()
		} else {
			intensity[i] = sum[i] / float64(count[i])
		}
	}
	return q, intensity, nil
}

// AzimuthalTask integrates the mean image azimuthally and reduces the
// curve to a figure of merit over a configured q range.
type AzimuthalTask struct {
	enabled bool
	params  pipeline.AzimuthalParams
	integ   Integrator
}

// NewAzimuthalTask creates a disabled azimuthal task.
func NewAzimuthalTask() *AzimuthalTask { return &AzimuthalTask{} }

// Name implements pipeline.Task.
func (at *AzimuthalTask) Name() string { return "azimuthal" }

// Update implements pipeline.Task. The integrator is rebuilt only when
// the geometry changes.
func (at *AzimuthalTask) Update(cfg pipeline.Shared) {
	at.enabled = cfg.AzimuthalEnabled
	if !at.enabled {
		return
	}
	if at.integ == nil || cfg.Azimuthal != at.params {
		integ, err := NewRadialIntegrator(cfg.Azimuthal.CenterX, cfg.Azimuthal.CenterY, cfg.Azimuthal.Points)
		if err != nil {
			opsf("azimuthal config rejected: %v", err)
			at.enabled = false
			return
		}
		integ.SetGeometry(cfg.Azimuthal.PixelSize, cfg.Azimuthal.Distance, cfg.Azimuthal.EnergyKeV)
		at.integ = integ
	}
	at.params = cfg.Azimuthal
}

// Process implements pipeline.Task.
func (at *AzimuthalTask) Process(t *model.ProcessedTrain, raw *model.RawTrain) error {
	if !at.enabled || t.Image.MaskedMean == nil {
		return nil
	}
	rows, cols := t.Image.Set.FrameShape()
	q, intensity, err := at.integ.Integrate(t.Image.MaskedMean, rows, cols)
	if err != nil {
		return &pipeline.ProcessingError{Task: at.Name(), Err: err}
	}

	t.AI.Momentum = q
	t.AI.IntensityMean = intensity

	if at.params.FOMHi > at.params.FOMLo {
		var fom float64
		for i, qi := range q {
			if qi >= at.params.FOMLo && qi <= at.params.FOMHi && !math.IsNaN(intensity[i]) {
				fom += intensity[i]
			}
		}
		t.AI.FOM = fom
		t.AI.FOMValid = true
	}
	return nil
}
