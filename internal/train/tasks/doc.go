// Package tasks implements the per-train analysis chain: pulse
// filtering, image averaging, pump-probe pairing, region-of-interest
// sums, azimuthal integration, correlation, 1D binning and x-ray
// absorption. Tasks are stateful across trains but single-goroutine;
// the scheduler runs the chain serially.
package tasks
