package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/ir"
)

func TestMarshalDataSet_Canonical(t *testing.T) {
	ds := ir.NewDataSet(
		ir.NewData("b", ir.Int(2)),
		ir.NewData("a", ir.String("<x>")),
	)

	got, err := marshalDataSet(ds)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x>","b":2}`, got)

	back, err := unmarshalDataSet(got)
	require.NoError(t, err)
	assert.Equal(t, ir.MustDataSetHash(ds), ir.MustDataSetHash(back))
}

func TestMarshalDelta_KeepsOrder(t *testing.T) {
	delta := ir.Delta{ir.NewData("z", ir.Int(1)), ir.NewData("a", nil)}

	got, err := marshalDelta(delta)
	require.NoError(t, err)
	assert.Equal(t, `[{"key":"z","value":1},{"key":"a","value":null}]`, got)
}

func TestMarshalResponses(t *testing.T) {
	got, err := marshalResponses(map[string]ir.Data{
		"B2": ir.NewData("Y", ir.Bool(true)),
		"B1": ir.NewData("X", ir.Int(1)),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"B1":{"key":"X","value":1},"B2":{"key":"Y","value":true}}`, got)
}

func TestMarshalPayload_AllowsArbitraryValues(t *testing.T) {
	got, err := marshalPayload(map[string]any{"ratio": 0.5, "msg": "a<b"})
	require.NoError(t, err)
	assert.Equal(t, `{"msg":"a<b","ratio":0.5}`, got)

	back, err := unmarshalPayload(got)
	require.NoError(t, err)
	assert.Equal(t, json.Number("0.5"), back["ratio"])

	empty, err := marshalPayload(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)
}
