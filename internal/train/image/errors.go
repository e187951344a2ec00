package image

import "fmt"

// ShapeError reports a mismatch between an incoming image shape and the
// shape an accumulator or reference was established with.
type ShapeError struct {
	Want []int
	Got  []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("image shape mismatch: want %v, got %v", e.Want, e.Got)
}

// DropAllPulsesError reports that a pulse filter removed every pulse in a
// train, leaving nothing to average.
type DropAllPulsesError struct {
	TrainID uint64
}

func (e *DropAllPulsesError) Error() string {
	return fmt.Sprintf("train %d: all pulses dropped", e.TrainID)
}
