package tasks

import (
	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
)

// RoiTask sums the mean image over each configured region of interest.
// A region that does not fit the current image is skipped for the train,
// not an error: detectors change shape between runs.
type RoiTask struct {
	regions [model.MaxROIs]*model.Rect
}

// NewRoiTask creates a ROI task with no regions configured.
func NewRoiTask() *RoiTask { return &RoiTask{} }

// Name implements pipeline.Task.
func (rt *RoiTask) Name() string { return "roi" }

// Update implements pipeline.Task.
func (rt *RoiTask) Update(cfg pipeline.Shared) {
	rt.regions = cfg.ROIs
}

// Process implements pipeline.Task.
func (rt *RoiTask) Process(t *model.ProcessedTrain, raw *model.RawTrain) error {
	if t.Image.MaskedMean == nil {
		return nil
	}
	rows, cols := t.Image.Set.FrameShape()

	for i, r := range rt.regions {
		if r == nil {
			continue
		}
		t.ROI.Regions[i] = r
		if !r.Contains(rows, cols) {
			diagf("train %d: ROI%d %+v does not fit %dx%d image", t.TrainID, i+1, *r, rows, cols)
			continue
		}
		var sum float64
		for y := r.Y; y < r.Y+r.H; y++ {
			row := t.Image.MaskedMean[y*cols : (y+1)*cols]
			sum += nanSum(row[r.X : r.X+r.W])
		}
		t.ROI.Sum[i] = sum
		t.ROI.Valid[i] = true
	}
	return nil
}
