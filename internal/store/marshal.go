package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/dataflow/internal/ir"
)

// marshalDataSet converts a DataSet to JSON TEXT (key -> value) with sorted
// keys. Keys and strings are stored verbatim; only hashes are normalized.
func marshalDataSet(ds *ir.DataSet) (string, error) {
	data, err := ir.MarshalSorted(ds.Object())
	if err != nil {
		return "", fmt.Errorf("marshal dataset: %w", err)
	}
	return string(data), nil
}

func unmarshalDataSet(data string) (*ir.DataSet, error) {
	ds := ir.NewDataSet()
	if data == "" || data == "{}" {
		return ds, nil
	}
	if err := json.Unmarshal([]byte(data), ds); err != nil {
		return nil, fmt.Errorf("unmarshal dataset: %w", err)
	}
	return ds, nil
}

// marshalDelta keeps delta order: an array of {"key","value"} objects.
func marshalDelta(delta ir.Delta) (string, error) {
	arr := make(ir.Array, len(delta))
	for i, d := range delta {
		arr[i] = dataObject(d)
	}
	data, err := ir.MarshalSorted(arr)
	if err != nil {
		return "", fmt.Errorf("marshal delta: %w", err)
	}
	return string(data), nil
}

func unmarshalDelta(data string) (ir.Delta, error) {
	delta := ir.Delta{}
	if data == "" || data == "[]" {
		return delta, nil
	}
	if err := json.Unmarshal([]byte(data), &delta); err != nil {
		return nil, fmt.Errorf("unmarshal delta: %w", err)
	}
	return delta, nil
}

// marshalResponses writes builder name -> {"key","value"}.
func marshalResponses(responses map[string]ir.Data) (string, error) {
	obj := make(ir.Object, len(responses))
	for name, d := range responses {
		obj[name] = dataObject(d)
	}
	data, err := ir.MarshalSorted(obj)
	if err != nil {
		return "", fmt.Errorf("marshal responses: %w", err)
	}
	return string(data), nil
}

func unmarshalResponses(data string) (map[string]ir.Data, error) {
	responses := map[string]ir.Data{}
	if data == "" || data == "{}" {
		return responses, nil
	}
	if err := json.Unmarshal([]byte(data), &responses); err != nil {
		return nil, fmt.Errorf("unmarshal responses: %w", err)
	}
	return responses, nil
}

// marshalPayload converts an error payload to JSON TEXT.
// Payloads are arbitrary Go values supplied by builders (floats included),
// so they go through encoding/json with sorted keys instead of the
// canonical IR encoder.
func marshalPayload(payload map[string]any) (string, error) {
	if len(payload) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalPayload keeps numbers as json.Number to avoid float64 precision loss.
func unmarshalPayload(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload, nil
}

func dataObject(d ir.Data) ir.Object {
	v := d.Value
	if v == nil {
		v = ir.Null{}
	}
	return ir.Object{"key": ir.String(d.Key), "value": v}
}
