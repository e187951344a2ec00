// Package assembler turns raw detector payloads into a per-train image
// set. Single-module detectors pass through; multi-module detectors are
// stacked along a new leading axis.
package assembler

import (
	"fmt"

	"github.com/beamline-data/trainproc/internal/train/image"
	"github.com/beamline-data/trainproc/internal/train/model"
)

// AssemblingError reports that no usable image could be built for a
// train. The scheduler drops the train and moves on.
type AssemblingError struct {
	TrainID uint64
	Reason  string
}

func (e *AssemblingError) Error() string {
	return fmt.Sprintf("train %d: assembling failed: %s", e.TrainID, e.Reason)
}

// Source names one detector image property.
type Source struct {
	DeviceID string
	Property string
}

// Assembler builds the image set for a raw train.
type Assembler interface {
	Assemble(raw *model.RawTrain) (*image.Set, error)
}

// StackAssembler reads one or more image sources from a raw train. A
// single source keeps its own rank; multiple sources must all be 2D with
// the same shape and are stacked into a 3D set, module index first.
type StackAssembler struct {
	sources []Source
}

// NewStackAssembler creates an assembler over the given sources. At least
// one source is required.
func NewStackAssembler(sources []Source) (*StackAssembler, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("assembler needs at least one image source")
	}
	a := &StackAssembler{sources: make([]Source, len(sources))}
	copy(a.sources, sources)
	return a, nil
}

// Sources returns a copy of the configured sources.
func (a *StackAssembler) Sources() []Source {
	out := make([]Source, len(a.sources))
	copy(out, a.sources)
	return out
}

// Assemble implements Assembler. Failures are AssemblingErrors.
func (a *StackAssembler) Assemble(raw *model.RawTrain) (*image.Set, error) {
	payloads := make([]model.ImagePayload, 0, len(a.sources))
	for _, src := range a.sources {
		v, ok := raw.Get(src.DeviceID, src.Property)
		if !ok {
			return nil, &AssemblingError{
				TrainID: raw.TrainID,
				Reason:  fmt.Sprintf("%s/%s missing", src.DeviceID, src.Property),
			}
		}
		p, ok := v.(model.ImagePayload)
		if !ok {
			return nil, &AssemblingError{
				TrainID: raw.TrainID,
				Reason:  fmt.Sprintf("%s/%s has type %T, want an image", src.DeviceID, src.Property, v),
			}
		}
		payloads = append(payloads, p)
	}

	if len(payloads) == 1 {
		set, err := image.NewSet(payloads[0].Data, payloads[0].Shape...)
		if err != nil {
			return nil, &AssemblingError{TrainID: raw.TrainID, Reason: err.Error()}
		}
		return set, nil
	}

	// Multi-module stack: every module contributes one 2D frame.
	first := payloads[0]
	if len(first.Shape) != 2 {
		return nil, &AssemblingError{
			TrainID: raw.TrainID,
			Reason:  fmt.Sprintf("module frames must be 2D, got shape %v", first.Shape),
		}
	}
	frame := first.Shape[0] * first.Shape[1]
	data := make([]float64, 0, len(payloads)*frame)
	for i, p := range payloads {
		if len(p.Shape) != 2 || p.Shape[0] != first.Shape[0] || p.Shape[1] != first.Shape[1] {
			return nil, &AssemblingError{
				TrainID: raw.TrainID,
				Reason: fmt.Sprintf("module %d shape %v does not match module 0 shape %v",
					i, p.Shape, first.Shape),
			}
		}
		data = append(data, p.Data...)
	}
	set, err := image.NewSet(data, len(payloads), first.Shape[0], first.Shape[1])
	if err != nil {
		return nil, &AssemblingError{TrainID: raw.TrainID, Reason: err.Error()}
	}
	return set, nil
}
