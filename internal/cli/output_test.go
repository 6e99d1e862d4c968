package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/engine"
	"github.com/roach88/dataflow/internal/ir"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"run_id": "run-1"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func reportedFailure() *engine.ExecutionError {
	resp := ir.NewExecutionResponse("run-7")
	resp.Responses["normalize"] = ir.NewData("order", ir.String("A-1"))
	return &engine.ExecutionError{
		Code:     engine.ErrCodeBuilderExecution,
		Kind:     engine.FailureReported,
		Message:  "error running builder validate",
		RunID:    "run-7",
		Builder:  "validate",
		Payload:  map[string]any{"missing": []any{"qty"}},
		Response: resp,
		Err:      engine.NewBuilderError("order is missing required fields", nil),
	}
}

func TestOutputFormatter_ExecutionFailureJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.ExecutionFailure(reportedFailure())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, engine.IsBuilderExecutionError(err))

	var resp struct {
		Status string `json:"status"`
		RunID  string `json:"run_id"`
		Error  struct {
			Code    string     `json:"code"`
			Message string     `json:"message"`
			Details RunFailure `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "run-7", resp.RunID)
	assert.Equal(t, string(engine.ErrCodeBuilderExecution), resp.Error.Code)
	assert.Equal(t, "validate", resp.Error.Details.Builder)
	assert.Equal(t, string(engine.FailureReported), resp.Error.Details.Kind)
	assert.Equal(t, []any{"qty"}, resp.Error.Details.Payload["missing"])
	assert.Equal(t, []string{"normalize"}, resp.Error.Details.Completed)
}

func TestOutputFormatter_ExecutionFailureText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	_ = formatter.ExecutionFailure(reportedFailure())
	out := buf.String()
	assert.Contains(t, out, "✗ run run-7 failed: error running builder validate")
	assert.Contains(t, out, "  builder: validate (reported)")
	assert.Contains(t, out, "  cause: order is missing required fields")
	assert.Contains(t, out, "  completed: [normalize]")
	assert.Contains(t, out, "  missing: [qty]")
}

func TestOutputFormatter_ExecutionFailureExitCodes(t *testing.T) {
	tests := []struct {
		code engine.ErrorCode
		want int
	}{
		{engine.ErrCodeBuilderExecution, ExitFailure},
		{engine.ErrCodeInvalidInput, ExitCommandError},
		{engine.ErrCodeBuilderNotFound, ExitCommandError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			formatter := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}}
			err := formatter.ExecutionFailure(&engine.ExecutionError{Code: tt.code, Message: "boom"})
			assert.Equal(t, tt.want, GetExitCode(err))
		})
	}
}

func TestOutputFormatter_Report(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Report(map[string]int{"total": 2}, &CLIError{Code: "E_DETERMINISM", Message: "diverged"}))
	assert.Contains(t, buf.String(), "\n  \"status\": \"error\"")

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "E_DETERMINISM", resp.Error.Code)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error("E203", "dependency cycle: a → b → a", []string{"a", "b"}))
			assert.Contains(t, buf.String(), "Error [E203]: dependency cycle")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}

	formatter.VerboseLog("Replaying instance: %s", "o-1")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Replaying instance: o-1")
	assert.Same(t, errOut, formatter.GetErrWriter())
}

func TestOutputFormatter_VerboseLogDisabled(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	formatter.VerboseLog("Replaying instance: %s", "o-1")
	assert.Empty(t, buf.String())
	assert.Same(t, buf, formatter.GetErrWriter())
}

func TestGetExitCode(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit error", NewExitError(ExitCommandError, "bad path"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "run failed", cause)), ExitFailure},
		{"plain error", cause, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	err := WrapExitError(ExitFailure, "run failed", errors.New("boom"))
	assert.Equal(t, "run failed: boom", err.Error())
	assert.ErrorContains(t, errors.Unwrap(err), "boom")

	assert.Equal(t, "bad path", NewExitError(ExitCommandError, "bad path").Error())
}
