package model

import "fmt"

// ImagePayload is a decoded detector array: flat row-major pixels plus
// the shape. The bridge stores one of these per image property.
type ImagePayload struct {
	Data  []float64
	Shape []int
}

// RawTrain is one train as received from the bridge: the per-device
// property maps plus the per-source metadata, untouched by any
// processing. TrainID is derived from the metadata's timestamp.tid.
type RawTrain struct {
	TrainID uint64
	Devices map[string]map[string]any
	Meta    map[string]map[string]any
}

// Get looks up a property on a device. The second return is false when
// either the device or the property is absent.
func (r *RawTrain) Get(deviceID, property string) (any, bool) {
	props, ok := r.Devices[deviceID]
	if !ok {
		return nil, false
	}
	v, ok := props[property]
	return v, ok
}

// GetFloat looks up a property and coerces it to float64. Integer wire
// types are widened; anything else is an error.
func (r *RawTrain) GetFloat(deviceID, property string) (float64, error) {
	v, ok := r.Get(deviceID, property)
	if !ok {
		return 0, fmt.Errorf("%s/%s not found in train %d", deviceID, property, r.TrainID)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("%s/%s in train %d has type %T, want a number", deviceID, property, r.TrainID, v)
	}
}
