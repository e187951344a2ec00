package pipeline

import (
	"errors"
	"fmt"

	"github.com/beamline-data/trainproc/internal/train/image"
)

// ProcessingError wraps a recoverable per-task failure. The chain logs
// it, skips the task's output for this train and keeps going; the train
// is still published.
type ProcessingError struct {
	Task string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// PumpProbeIndexError reports an invalid on/off pulse selection: an
// index outside the train's pulse range, or the same index appearing in
// both lists.
type PumpProbeIndexError struct {
	Index   int
	Pulses  int
	Overlap bool
}

func (e *PumpProbeIndexError) Error() string {
	if e.Overlap {
		return fmt.Sprintf("pump-probe pulse index %d cannot be both on and off", e.Index)
	}
	return fmt.Sprintf("pump-probe pulse index %d out of range [0, %d)", e.Index, e.Pulses)
}

// Recoverable reports whether err is a per-train condition the chain
// should absorb rather than abort on. Anything else coming out of a task
// is treated as fatal.
func Recoverable(err error) bool {
	var (
		procErr  *ProcessingError
		shapeErr *image.ShapeError
		dropErr  *image.DropAllPulsesError
		ppErr    *PumpProbeIndexError
	)
	return errors.As(err, &procErr) ||
		errors.As(err, &shapeErr) ||
		errors.As(err, &dropErr) ||
		errors.As(err, &ppErr)
}
