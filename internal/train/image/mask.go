package image

import "math"

// MaskedMean clips img in place to [lo, hi]. NaN pixels are treated as
// negative infinity first, so they land on the lower threshold instead of
// poisoning downstream sums.
func MaskedMean(img []float64, lo, hi float64) {
	for i, v := range img {
		if math.IsNaN(v) {
			v = math.Inf(-1)
		}
		switch {
		case v < lo:
			img[i] = lo
		case v > hi:
			img[i] = hi
		default:
			img[i] = v
		}
	}
}

// ApplyImageMask zeroes every pixel where mask is true. The mask must be
// the same length as img.
func ApplyImageMask(img []float64, mask []bool) error {
	if len(mask) != len(img) {
		return &ShapeError{Want: []int{len(img)}, Got: []int{len(mask)}}
	}
	for i, m := range mask {
		if m {
			img[i] = 0
		}
	}
	return nil
}
