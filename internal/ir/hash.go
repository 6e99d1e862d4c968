package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without old hashes colliding with new ones.
const (
	DomainDataSet = "dataflow/dataset/v1"
	DomainDelta   = "dataflow/delta/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DataSetHash fingerprints a DataSet's contents.
// Two sets hash equal iff they hold the same keys with canonically equal values.
func DataSetHash(ds *DataSet) (string, error) {
	canonical, err := MarshalCanonical(ds.Object())
	if err != nil {
		return "", fmt.Errorf("DataSetHash: %w", err)
	}
	return hashWithDomain(DomainDataSet, canonical), nil
}

// DeltaHash fingerprints a Delta, including the order of its entries.
func DeltaHash(delta Delta) (string, error) {
	arr := make(Array, len(delta))
	for i, d := range delta {
		arr[i] = Object{"key": String(d.Key), "value": valueOrNull(d.Value)}
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("DeltaHash: %w", err)
	}
	return hashWithDomain(DomainDelta, canonical), nil
}

// MustDataSetHash is like DataSetHash but panics on error.
// Use only in tests or when values are known to be valid.
func MustDataSetHash(ds *DataSet) string {
	h, err := DataSetHash(ds)
	if err != nil {
		panic(err)
	}
	return h
}

func valueOrNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}
