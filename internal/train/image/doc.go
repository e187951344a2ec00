// Package image holds the numeric kernels for detector image data: the
// per-train pulse set, threshold masking, and the moving-average
// accumulator used by online views.
//
// Images are stored as flat float64 slices with explicit shapes. A
// train-resolved detector produces a single 2D image; a pulse-resolved
// detector produces a 3D stack with the pulse index first. All kernels
// treat NaN as "no data" and propagate it rather than inventing values.
package image
