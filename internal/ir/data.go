package ir

import (
	"encoding/json"
	"fmt"
)

// Data is a named value: a key plus an opaque payload.
// Data is immutable by contract once produced; builders return fresh Data
// and the executor performs every merge.
type Data struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// NewData creates a Data with the given key and payload.
func NewData(key string, value Value) Data {
	return Data{Key: key, Value: value}
}

// Validate checks the Data invariants (non-empty key).
func (d Data) Validate() error {
	if d.Key == "" {
		return fmt.Errorf("data key is required")
	}
	return nil
}

// MarshalJSON writes {"key": ..., "value": ...}; a nil payload becomes null.
func (d Data) MarshalJSON() ([]byte, error) {
	vb, err := MarshalValue(d.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal data %q: %w", d.Key, err)
	}
	return json.Marshal(struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}{Key: d.Key, Value: vb})
}

// UnmarshalJSON implements json.Unmarshaler for Data.
func (d *Data) UnmarshalJSON(data []byte) error {
	var raw struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Key = raw.Key
	if len(raw.Value) == 0 {
		d.Value = Null{}
		return nil
	}
	v, err := UnmarshalValue(raw.Value)
	if err != nil {
		return fmt.Errorf("data %q: %w", raw.Key, err)
	}
	d.Value = v
	return nil
}

// Delta is the externally supplied, ordered batch of new or changed Data
// for one invocation. The engine treats it as read-only.
type Delta []Data

// Keys returns the delta's keys in order, without duplicates.
func (d Delta) Keys() []string {
	seen := make(map[string]bool, len(d))
	keys := make([]string, 0, len(d))
	for _, data := range d {
		if seen[data.Key] {
			continue
		}
		seen[data.Key] = true
		keys = append(keys, data.Key)
	}
	return keys
}

// Validate checks every entry of the delta.
func (d Delta) Validate() error {
	for i, data := range d {
		if err := data.Validate(); err != nil {
			return fmt.Errorf("delta[%d]: %w", i, err)
		}
	}
	return nil
}

// DeltaFromObject builds a Delta from a JSON-style object, ordered by key.
func DeltaFromObject(obj Object) Delta {
	delta := make(Delta, 0, len(obj))
	for _, k := range obj.SortedKeys() {
		delta = append(delta, NewData(k, obj[k]))
	}
	return delta
}

// ParseDelta decodes a JSON object ({"key": value, ...}) into a Delta.
func ParseDelta(data []byte) (Delta, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, fmt.Errorf("parse delta: %w", err)
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("parse delta: expected JSON object, got %T", v)
	}
	delta := DeltaFromObject(obj)
	if err := delta.Validate(); err != nil {
		return nil, fmt.Errorf("parse delta: %w", err)
	}
	return delta, nil
}
