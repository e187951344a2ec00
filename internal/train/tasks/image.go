package tasks

import (
	"fmt"

	"github.com/beamline-data/trainproc/internal/train/image"
	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
)

// ImageTask feeds the raw per-train mean into the moving average and
// derives the views every later task works on: the background-subtracted
// average, its masked counterpart and the masked reference. Masking and
// background are views computed after averaging, so changing a threshold
// or the background never touches the accumulated history.
type ImageTask struct {
	ma      *image.MovingAverage
	manager *model.Manager
	window  int
	lo, hi  float64
	bkg     float64
	mask    []bool
}

// NewImageTask creates an image task with a window of 1 (no averaging).
// The manager holds the reference image across trains.
func NewImageTask(manager *model.Manager) *ImageTask {
	ma, _ := image.NewMovingAverage(1)
	return &ImageTask{ma: ma, manager: manager, window: 1}
}

// Name implements pipeline.Task.
func (it *ImageTask) Name() string { return "image" }

// Update implements pipeline.Task.
func (it *ImageTask) Update(cfg pipeline.Shared) {
	if cfg.MovingAverageWindow >= 1 && cfg.MovingAverageWindow != it.window {
		it.window = cfg.MovingAverageWindow
		it.ma.SetWindow(cfg.MovingAverageWindow)
	}
	it.lo = cfg.ThresholdLo
	it.hi = cfg.ThresholdHi
	it.bkg = cfg.Background
	it.mask = cfg.ImageMask
}

// Process implements pipeline.Task. Pulses flagged by the pulse filter
// are excluded from the raw mean; dropping them all is a recoverable
// error. A held reference whose shape no longer matches the incoming
// data is surfaced as an error and kept, so the operator clears it
// deliberately.
func (it *ImageTask) Process(t *model.ProcessedTrain, raw *model.RawTrain) error {
	set := t.Image.Set
	rawMean, err := set.MeanExcluding(t.Image.DroppedPulse, t.TrainID)
	if err != nil {
		return err
	}

	rows, cols := set.FrameShape()
	shape := []int{rows, cols}
	it.ma.Push(rawMean, shape)

	mean := it.ma.Current()
	if it.bkg != 0 {
		for i := range mean {
			mean[i] -= it.bkg
		}
	}

	masked, err := it.maskedView(mean)
	if err != nil {
		return err
	}

	t.Image.Mean = mean
	t.Image.MaskedMean = masked
	t.Image.Background = it.bkg
	t.Image.ThresholdLo = it.lo
	t.Image.ThresholdHi = it.hi

	if it.manager == nil {
		return nil
	}
	if it.manager.TakeReferenceRequest() {
		it.manager.SetReference(mean, shape)
		opsf("train %d: mean image captured as reference", t.TrainID)
	}
	ref, refShape, ok := it.manager.Reference()
	if !ok {
		return nil
	}
	if len(refShape) != 2 || refShape[0] != rows || refShape[1] != cols {
		return &pipeline.ProcessingError{
			Task: it.Name(),
			Err:  fmt.Errorf("reference image shape %v does not match %v", refShape, shape),
		}
	}
	maskedRef, err := it.maskedView(ref)
	if err != nil {
		return err
	}
	t.Image.Reference = ref
	t.Image.MaskedReference = maskedRef
	return nil
}

// maskedView copies img and applies the image mask and the threshold
// clip to the copy.
func (it *ImageTask) maskedView(img []float64) ([]float64, error) {
	out := append([]float64(nil), img...)
	if it.mask != nil {
		if err := image.ApplyImageMask(out, it.mask); err != nil {
			return nil, err
		}
	}
	image.MaskedMean(out, it.lo, it.hi)
	return out, nil
}
