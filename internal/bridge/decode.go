package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/beamline-data/trainproc/internal/train/model"
)

// DecodeTrain unpacks one CBOR message into a raw train. The wire shape
// follows the instrument bridge: a device-keyed data section and a
// device-keyed metadata section, with the train ID carried per source
// under "timestamp.tid":
//
//	{
//	  "metadata": { "<device>": { "timestamp.tid": <uint>, ... } },
//	  "devices":  { "<device>": { "<prop>": <value> } },
//	}
//
// Every metadata entry must agree on the train ID. An image-valued
// property is a nested map with "data" (numeric array) and "shape" (int
// array); everything else passes through as a scalar.
func DecodeTrain(msg []byte) (*model.RawTrain, error) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		return nil, fmt.Errorf("cbor decode: %w", err)
	}

	metaAny, ok := payload["metadata"]
	if !ok {
		return nil, fmt.Errorf("missing metadata section")
	}
	meta, trainID, err := decodeMetadata(metaAny)
	if err != nil {
		return nil, err
	}

	devicesAny, ok := payload["devices"]
	if !ok {
		return nil, fmt.Errorf("train %d: missing devices map", trainID)
	}
	devices, err := toStringMap(devicesAny)
	if err != nil {
		return nil, fmt.Errorf("train %d: devices: %w", trainID, err)
	}

	raw := &model.RawTrain{
		TrainID: trainID,
		Devices: make(map[string]map[string]any, len(devices)),
		Meta:    meta,
	}
	for deviceID, propsAny := range devices {
		props, err := toStringMap(propsAny)
		if err != nil {
			return nil, fmt.Errorf("train %d: device %s: %w", trainID, deviceID, err)
		}
		decoded := make(map[string]any, len(props))
		for name, value := range props {
			decoded[name] = decodeProperty(value)
		}
		raw.Devices[deviceID] = decoded
	}
	return raw, nil
}

// decodeMetadata flattens the per-source metadata and extracts the train
// ID from the timestamp.tid entries, which must all match.
func decodeMetadata(v any) (map[string]map[string]any, uint64, error) {
	sources, err := toStringMap(v)
	if err != nil {
		return nil, 0, fmt.Errorf("metadata: %w", err)
	}
	if len(sources) == 0 {
		return nil, 0, fmt.Errorf("empty metadata section")
	}

	meta := make(map[string]map[string]any, len(sources))
	var trainID uint64
	seen := false
	for source, entryAny := range sources {
		entry, err := toStringMap(entryAny)
		if err != nil {
			return nil, 0, fmt.Errorf("metadata for %s: %w", source, err)
		}
		meta[source] = entry

		tidAny, ok := entry["timestamp.tid"]
		if !ok {
			return nil, 0, fmt.Errorf("metadata for %s: missing timestamp.tid", source)
		}
		tid, err := toUint64(tidAny)
		if err != nil {
			return nil, 0, fmt.Errorf("metadata for %s: invalid timestamp.tid: %w", source, err)
		}
		if seen && tid != trainID {
			return nil, 0, fmt.Errorf("metadata train IDs disagree: %d vs %d", trainID, tid)
		}
		trainID = tid
		seen = true
	}
	return meta, trainID, nil
}

// decodeProperty recognizes image payloads and passes scalars through.
func decodeProperty(value any) any {
	props, err := toStringMap(value)
	if err != nil {
		return value
	}
	dataAny, hasData := props["data"]
	shapeAny, hasShape := props["shape"]
	if !hasData || !hasShape {
		return value
	}
	data, err := toFloatSlice(dataAny)
	if err != nil {
		return value
	}
	shape, err := toIntSlice(shapeAny)
	if err != nil {
		return value
	}
	return model.ImagePayload{Data: data, Shape: shape}
}

func toStringMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			name, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			out[name] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value has type %T, want a map", v)
	}
}

func toUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		return uint64(x), nil
	case float64:
		if x < 0 || x != float64(uint64(x)) {
			return 0, fmt.Errorf("non-integral value %v", x)
		}
		return uint64(x), nil
	default:
		return 0, fmt.Errorf("value has type %T, want an unsigned integer", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("value has type %T, want a number", v)
	}
}

func toFloatSlice(v any) ([]float64, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("value has type %T, want an array", v)
	}
	out := make([]float64, len(arr))
	for i, el := range arr {
		f, err := toFloat64(el)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

func toIntSlice(v any) ([]int, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("value has type %T, want an array", v)
	}
	out := make([]int, len(arr))
	for i, el := range arr {
		f, err := toFloat64(el)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		n := int(f)
		if float64(n) != f {
			return nil, fmt.Errorf("element %d: non-integral %v", i, f)
		}
		out[i] = n
	}
	return out, nil
}
