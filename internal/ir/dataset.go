package ir

import (
	"encoding/json"
	"fmt"
	"slices"
)

// DataSet maps keys to Data. Merges are upserts: the last merge wins.
//
// A DataSet is not safe for concurrent mutation. The executor works on a
// private copy per invocation, so concurrent runs never share one.
type DataSet struct {
	entries map[string]Data
}

// NewDataSet creates a DataSet holding the given entries (later entries win).
func NewDataSet(entries ...Data) *DataSet {
	ds := &DataSet{entries: make(map[string]Data, len(entries))}
	ds.Merge(entries...)
	return ds
}

// Merge upserts each entry by key.
func (ds *DataSet) Merge(entries ...Data) {
	if ds.entries == nil {
		ds.entries = make(map[string]Data, len(entries))
	}
	for _, d := range entries {
		ds.entries[d.Key] = d
	}
}

// MergeDelta upserts every entry of the delta, in order.
func (ds *DataSet) MergeDelta(delta Delta) {
	ds.Merge(delta...)
}

// Get returns the Data stored under key.
func (ds *DataSet) Get(key string) (Data, bool) {
	if ds == nil {
		return Data{}, false
	}
	d, ok := ds.entries[key]
	return d, ok
}

// Contains reports whether key is present.
func (ds *DataSet) Contains(key string) bool {
	_, ok := ds.Get(key)
	return ok
}

// ContainsAll reports whether every key is present.
// An empty key list is trivially satisfied.
func (ds *DataSet) ContainsAll(keys []string) bool {
	for _, k := range keys {
		if !ds.Contains(k) {
			return false
		}
	}
	return true
}

// Missing returns the keys not present in the set, in input order.
func (ds *DataSet) Missing(keys []string) []string {
	var missing []string
	for _, k := range keys {
		if !ds.Contains(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// Len returns the number of entries.
func (ds *DataSet) Len() int {
	if ds == nil {
		return 0
	}
	return len(ds.entries)
}

// Keys returns all keys in canonical order.
func (ds *DataSet) Keys() []string {
	if ds == nil {
		return []string{}
	}
	keys := make([]string, 0, len(ds.entries))
	for k := range ds.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// Copy returns an independent copy. Values are shared, which is safe
// because Data is immutable by contract.
func (ds *DataSet) Copy() *DataSet {
	return ds.CopyWithout(nil)
}

// CopyWithout returns a copy with the named keys stripped.
// The receiver is never modified.
func (ds *DataSet) CopyWithout(strip map[string]bool) *DataSet {
	out := &DataSet{entries: make(map[string]Data, ds.Len())}
	if ds == nil {
		return out
	}
	for k, d := range ds.entries {
		if strip[k] {
			continue
		}
		out.entries[k] = d
	}
	return out
}

// Object returns the set as key → value, for hashing and presentation.
func (ds *DataSet) Object() Object {
	obj := make(Object, ds.Len())
	if ds == nil {
		return obj
	}
	for k, d := range ds.entries {
		obj[k] = valueOrNull(d.Value)
	}
	return obj
}

// MarshalJSON writes the set as a JSON object keyed by data key.
func (ds *DataSet) MarshalJSON() ([]byte, error) {
	return ds.Object().MarshalJSON()
}

// UnmarshalJSON reads a JSON object keyed by data key.
func (ds *DataSet) UnmarshalJSON(data []byte) error {
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("unmarshal dataset: %w", err)
	}
	ds.entries = make(map[string]Data, len(obj))
	for k, v := range obj {
		ds.entries[k] = NewData(k, v)
	}
	return nil
}
