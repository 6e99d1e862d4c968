package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/dataflow/internal/engine"
)

// Exit codes shared by every command.
const (
	ExitSuccess      = 0 // command did what was asked
	ExitFailure      = 1 // a builder failed, a scenario failed, or replay diverged
	ExitCommandError = 2 // bad flags, paths, flows, delta or database
)

// ExitError carries the process exit code up to main.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError around err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that do not carry
// one exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// executionExitCode is 1 for builder failures. Rejected input and builders
// the factory cannot resolve are command errors.
func executionExitCode(ee *engine.ExecutionError) int {
	if ee.Code == engine.ErrCodeInvalidInput || engine.IsBuilderNotFound(ee) {
		return ExitCommandError
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope every command prints in --format json.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error half of a CLIResponse. Code is a loader code
// (E0xx/E1xx), a compiler code (E2xx) or an engine code such as
// BUILDER_EXECUTION_ERROR.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// RunFailure is the detail block of a failed invocation.
type RunFailure struct {
	RunID     string         `json:"run_id,omitempty"`
	Builder   string         `json:"builder,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Completed []string       `json:"completed,omitempty"`
}

// NewRunFailure extracts the reportable parts of an ExecutionError.
func NewRunFailure(ee *engine.ExecutionError) RunFailure {
	return RunFailure{
		RunID:     ee.RunID,
		Builder:   ee.Builder,
		Kind:      string(ee.Kind),
		Payload:   ee.Payload,
		Completed: ee.Response.Builders(),
	}
}

// OutputFormatter writes command results as text or JSON.
// Diagnostics (verbose lines, slog output) go to ErrWriter so stdout stays
// parseable; a nil ErrWriter falls back to Writer.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// newFormatter wires a formatter to the command's streams.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// JSON reports whether machine-readable output was requested.
func (f *OutputFormatter) JSON() bool { return f.Format == "json" }

// Success prints data. Text mode falls back to fmt's default rendering;
// commands with structured text output print it themselves.
func (f *OutputFormatter) Success(data any) error {
	if !f.JSON() {
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
	return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
}

// Error prints a single coded error.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.JSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Report prints an indented summary envelope. A non-nil failure marks the
// envelope as an error while still carrying data.
func (f *OutputFormatter) Report(data any, failure *CLIError) error {
	resp := CLIResponse{Status: "ok", Data: data}
	if failure != nil {
		resp.Status = "error"
		resp.Error = failure
	}
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// ExecutionFailure prints a failed run and returns the ExitError for it.
//
// text:
//
//	✗ run <id> failed: <message>
//	  builder: <name> (<kind>)
//	  cause: <builder message>      (reported failures only)
//	  completed: <builders>          (when any finished first)
//	  <payload key>: <value>
func (f *OutputFormatter) ExecutionFailure(ee *engine.ExecutionError) error {
	detail := NewRunFailure(ee)
	if f.JSON() {
		if err := json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: string(ee.Code), Message: ee.Message, Details: detail},
			RunID:  ee.RunID,
		}); err != nil {
			return err
		}
	} else {
		w := f.Writer
		fmt.Fprintf(w, "✗ run %s failed: %s\n", ee.RunID, ee.Message)
		if ee.Builder != "" {
			fmt.Fprintf(w, "  builder: %s (%s)\n", ee.Builder, ee.Kind)
		}
		if ee.Kind == engine.FailureReported && ee.Err != nil {
			fmt.Fprintf(w, "  cause: %v\n", ee.Err)
		}
		if len(detail.Completed) > 0 {
			fmt.Fprintf(w, "  completed: %v\n", detail.Completed)
		}
		for _, k := range sortedPayloadKeys(ee.Payload) {
			fmt.Fprintf(w, "  %s: %v\n", k, ee.Payload[k])
		}
	}
	return WrapExitError(executionExitCode(ee), "run failed", ee)
}

// VerboseLog prints a diagnostic line when --verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
	}
}

// GetErrWriter returns the diagnostics stream.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}
