// Package history provides bounded, thread-safe (x, y) series used for
// correlation and statistics plots.
//
// Two variants exist: Series keeps every pushed pair in arrival order with
// FIFO eviction, and AccumulatedSeries performs online resolution-based
// binning so that a motor scanning in steps produces one averaged point per
// location. Both are written by the processing goroutine and read by
// visualisation/HTTP goroutines; snapshots are copies so no alias to internal
// storage escapes the lock.
package history
