package tasks

import (
	"fmt"
	"math"

	"github.com/beamline-data/trainproc/internal/train/model"
)

func nanSum(data []float64) float64 {
	var sum float64
	for _, v := range data {
		if !math.IsNaN(v) {
			sum += v
		}
	}
	return sum
}

// resolveFOM reads the per-train figure of merit named by source:
// "roi1".."roi4", "azimuthal" or "pump_probe".
func resolveFOM(source string, t *model.ProcessedTrain) (float64, error) {
	switch source {
	case "roi1", "roi2", "roi3", "roi4":
		idx := int(source[3] - '1')
		if !t.ROI.Valid[idx] {
			return 0, fmt.Errorf("ROI%d result is not available!", idx+1)
		}
		return t.ROI.Sum[idx], nil
	case "azimuthal":
		if !t.AI.FOMValid {
			return 0, fmt.Errorf("azimuthal integration result is not available!")
		}
		return t.AI.FOM, nil
	case "pump_probe":
		if !t.PumpProbe.FOMValid {
			return 0, fmt.Errorf("pump-probe result is not available!")
		}
		return t.PumpProbe.FOM, nil
	default:
		return 0, fmt.Errorf("unknown FOM source %q", source)
	}
}
