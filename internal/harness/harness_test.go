package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flowsDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.Abs("testdata/flows")
	require.NoError(t, err)
	return dir
}

func orderScenario(t *testing.T, steps ...Step) *Scenario {
	return &Scenario{
		Name:        "inline",
		Description: "inline scenario",
		FlowDir:     flowsDir(t),
		Flow:        "order-intake",
		Instance:    "order-1",
		RunPrefix:   "run",
		Steps:       steps,
	}
}

func validOrder() map[string]any {
	return map[string]any{
		"order":  map[string]any{"sku": "A-1", "qty": 2},
		"tenant": "acme",
	}
}

func TestRun_ExecutesRealFlow(t *testing.T) {
	result, err := Run(orderScenario(t, Step{
		Delta:  validOrder(),
		Expect: &ExpectClause{Builders: []string{"quote", "validate", "pricing"}, Generations: 1},
	}))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "run-1", result.Steps[0].RunID)
	assert.Equal(t, []string{"pricing", "quote", "validate"}, result.Steps[0].Builders)

	assert.Equal(t, map[string]any{"currency": "EUR", "qty": int64(2), "sku": "A-1"}, result.DataSet["quote"])
	assert.NotContains(t, result.DataSet, "pricing")

	// run event + before/after for three builders
	assert.Len(t, result.Trace, 7)
	assert.Equal(t, TraceRun, result.Trace[0].Type)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
}

func TestRun_NilExpectRequiresSuccess(t *testing.T) {
	result, err := Run(orderScenario(t, Step{
		Delta: map[string]any{"order": map[string]any{"sku": "A-1"}},
	}))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 0: expected success")
	assert.Equal(t, "BUILDER_EXECUTION_ERROR", result.Steps[0].ErrorCode)
	assert.Equal(t, "reported", result.Steps[0].ErrorKind)
}

func TestRun_ExpectedErrorMismatch(t *testing.T) {
	result, err := Run(orderScenario(t, Step{
		Delta: map[string]any{"order": map[string]any{"sku": "A-1"}},
		Expect: &ExpectClause{Error: &ExpectError{
			Code:    "BUILDER_NOT_FOUND",
			Kind:    "unexpected",
			Builder: "quote",
			Payload: map[string]any{"missing": []any{"sku"}, "hint": "x"},
		}},
	}))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.ElementsMatch(t, []string{
		"step 0: error code: expected BUILDER_NOT_FOUND, got BUILDER_EXECUTION_ERROR",
		"step 0: error kind: expected unexpected, got reported",
		"step 0: error builder: expected quote, got validate",
		`step 0: error payload "missing": expected [sku], got [qty]`,
		`step 0: error payload: missing "hint"`,
	}, result.Errors)
}

func TestRun_ExpectedErrorButSucceeded(t *testing.T) {
	result, err := Run(orderScenario(t, Step{
		Delta:  validOrder(),
		Expect: &ExpectClause{Error: &ExpectError{Code: "BUILDER_EXECUTION_ERROR"}},
	}))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{"step 0: expected error BUILDER_EXECUTION_ERROR, run succeeded"}, result.Errors)
}

func TestRun_BuildersAndGenerationsMismatch(t *testing.T) {
	result, err := Run(orderScenario(t, Step{
		Delta:  validOrder(),
		Expect: &ExpectClause{Builders: []string{"validate"}, Generations: 3},
	}))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.ElementsMatch(t, []string{
		"step 0: builders: expected [validate], got [pricing quote validate]",
		"step 0: generations: expected 3, got 1",
	}, result.Errors)
}

func TestRun_FailedStepLeavesDataSet(t *testing.T) {
	result, err := Run(orderScenario(t,
		Step{Delta: validOrder()},
		Step{
			Delta:  map[string]any{"order": map[string]any{"qty": 1}},
			Expect: &ExpectClause{Builders: []string{}, Error: &ExpectError{Builder: "validate"}},
		},
	))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, map[string]any{"qty": int64(2), "sku": "A-1"}, result.DataSet["order"])
}

func TestRun_InvalidInputIsNotRecorded(t *testing.T) {
	s := orderScenario(t, Step{
		Delta:  map[string]any{"order": map[string]any{"sku": "A-1", "qty": 1}},
		Expect: &ExpectClause{Error: &ExpectError{Code: "INVALID_INPUT"}},
	})
	s.Instance = ""

	result, err := Run(s)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace)
	assert.Empty(t, result.DataSet)
}

func TestRun_FloatDeltaRejected(t *testing.T) {
	_, err := Run(orderScenario(t, Step{Delta: map[string]any{"order": 1.5}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are not allowed")
}

func TestRun_UnknownFlow(t *testing.T) {
	s := orderScenario(t, Step{Delta: validOrder()})
	s.Flow = "missing"

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `flow "missing" not found`)
}

func TestRun_BrokenFlowDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(`
package flows

flow: bad: {
	target: "out"
	builders: b: {consumes: ["in"], produces: "out", kind: "teleport"}
}
`), 0644))

	s := orderScenario(t, Step{Delta: validOrder()})
	s.FlowDir = dir

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load flows")
}

func TestRun_Deterministic(t *testing.T) {
	s := orderScenario(t,
		Step{Delta: validOrder()},
		Step{Delta: map[string]any{"order": map[string]any{"sku": "B"}}, Expect: &ExpectClause{Error: &ExpectError{}}},
	)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalSnapshot("x", first)
	require.NoError(t, err)
	b, err := MarshalSnapshot("x", second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
