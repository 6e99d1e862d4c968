package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: TraceRun, Seq: 1, RunID: "run-1", Status: "ok"},
		{Type: "before", Seq: 1, RunID: "run-1", Generation: 1, Builder: "validate"},
		{Type: "after", Seq: 1, RunID: "run-1", Generation: 1, Builder: "validate", DataKey: "checked"},
		{Type: "before", Seq: 1, RunID: "run-1", Generation: 1, Builder: "quote"},
		{Type: "after", Seq: 1, RunID: "run-1", Generation: 1, Builder: "quote", DataKey: "quote"},
		{Type: TraceRun, Seq: 2, RunID: "run-2", Status: "failed", ErrorCode: "BUILDER_EXECUTION_ERROR"},
		{Type: "before", Seq: 2, RunID: "run-2", Generation: 1, Builder: "validate"},
		{Type: "exception", Seq: 2, RunID: "run-2", Generation: 1, Builder: "validate", Message: "boom"},
	}
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Builders: []string{"validate", "quote"}}))

	err := assertTraceOrder(trace, Assertion{Builders: []string{"quote", "validate"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quote (pos 2) should be before validate (pos 1)")

	err = assertTraceOrder(trace, Assertion{Builders: []string{"validate", "pricing"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing builder: pricing")
}

func TestAssertTraceCount_OnlyCompletionsCount(t *testing.T) {
	trace := sampleTrace()

	// The failed second attempt of validate is an exception, not a completion.
	assert.NoError(t, assertTraceCount(trace, Assertion{Builder: "validate", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Builder: "pricing", Count: 0}))

	err := assertTraceCount(trace, Assertion{Builder: "quote", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 2 completions of quote")
	assert.Contains(t, err.Error(), "Actual: 1 completions")
}

func TestAssertDataSet(t *testing.T) {
	dataset := map[string]any{
		"order": map[string]any{"sku": "A-1", "qty": int64(2)},
		"tags":  []any{"a", "b"},
	}

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"contains", Assertion{Type: AssertDataSetContains, Key: "order"}, ""},
		{"contains missing", Assertion{Type: AssertDataSetContains, Key: "quote"}, "not found in keys [order tags]"},
		{"absent", Assertion{Type: AssertDataSetAbsent, Key: "pricing"}, ""},
		{"absent but present", Assertion{Type: AssertDataSetAbsent, Key: "tags"}, "present with value"},
		{"value int vs int64", Assertion{Type: AssertDataSetValue, Key: "order", Value: map[string]any{"qty": 2, "sku": "A-1"}}, ""},
		{"value list", Assertion{Type: AssertDataSetValue, Key: "tags", Value: []any{"a", "b"}}, ""},
		{"value list order matters", Assertion{Type: AssertDataSetValue, Key: "tags", Value: []any{"b", "a"}}, `key "tags" = [a b]`},
		{"value subset is not equal", Assertion{Type: AssertDataSetValue, Key: "order", Value: map[string]any{"sku": "A-1"}}, "Expected"},
		{"value missing key", Assertion{Type: AssertDataSetValue, Key: "quote", Value: "x"}, "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertDataSet(dataset, tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1",
		Actual:   "0",
		Trace:    sampleTrace(),
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "run run-1 seq=1 ok")
	assert.Contains(t, msg, "gen 1 validate -> checked")
	assert.Contains(t, msg, "gen 1 validate failed: boom")
}

func TestEvaluateAssertions_CollectsFailures(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.DataSet["checked"] = "x"

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Builder: "validate", Count: 1},
		{Type: AssertDataSetContains, Key: "checked"},
		{Type: AssertDataSetAbsent, Key: "checked"},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "dataset_absent")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

func TestPlainEqual(t *testing.T) {
	assert.True(t, plainEqual(2, int64(2)))
	assert.True(t, plainEqual(map[string]any{"a": 1, "b": true}, map[string]any{"b": true, "a": int64(1)}))
	assert.False(t, plainEqual("2", 2))
	assert.False(t, plainEqual(1.5, 1.5), "floats never compare equal")
}
