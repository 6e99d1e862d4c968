package engine

import (
	"errors"
	"fmt"
	"maps"

	"github.com/roach88/dataflow/internal/ir"
)

// ErrorCode categorizes execution errors.
type ErrorCode string

const (
	// ErrCodeBuilderExecution indicates a builder failed while processing.
	ErrCodeBuilderExecution ErrorCode = "BUILDER_EXECUTION_ERROR"

	// ErrCodeBuilderNotFound indicates the factory could not resolve a builder name.
	ErrCodeBuilderNotFound ErrorCode = "BUILDER_NOT_FOUND"

	// ErrCodeInvalidInput indicates the instance or delta handed to Run is unusable.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// FailureKind distinguishes builder-reported failures from unexpected ones.
type FailureKind string

const (
	// FailureReported means the builder returned a *BuilderError; its payload is preserved.
	FailureReported FailureKind = "reported"

	// FailureUnexpected means any other error or a panic; the payload holds the message.
	FailureUnexpected FailureKind = "unexpected"
)

// PayloadMessageKey is the payload entry carrying the message of an unexpected failure.
const PayloadMessageKey = "MESSAGE"

// ExecutionError is the single fatal error type surfaced by Executor.Run.
//
// It carries enough structure for callers to tell a builder-reported
// failure (Kind == FailureReported, Payload from the builder) from an
// unexpected one (Kind == FailureUnexpected, Payload{"MESSAGE": ...}).
type ExecutionError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Kind is set for ErrCodeBuilderExecution errors.
	Kind FailureKind

	// Message is a human-readable description.
	Message string

	// RunID identifies the aborted run.
	RunID string

	// Builder names the builder that failed (or could not be resolved).
	Builder string

	// Payload is the diagnostic payload.
	Payload map[string]any

	// Response holds the outputs of builders that completed before the failure.
	// Those outputs were discarded along with the working DataSet.
	Response *ir.ExecutionResponse

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Builder != "" {
		return fmt.Sprintf("%s: %s (builder=%s)", e.Code, e.Message, e.Builder)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// AsExecutionError extracts an *ExecutionError from err, handling wrapping.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// IsBuilderExecutionError returns true if a builder failed during the run.
func IsBuilderExecutionError(err error) bool {
	ee, ok := AsExecutionError(err)
	return ok && ee.Code == ErrCodeBuilderExecution
}

// IsBuilderNotFound returns true if the factory could not resolve a builder.
func IsBuilderNotFound(err error) bool {
	ee, ok := AsExecutionError(err)
	return ok && ee.Code == ErrCodeBuilderNotFound
}

// BuilderError is returned by builders to report a known failure condition
// together with a diagnostic payload. The executor wraps it in an
// ExecutionError of kind FailureReported and keeps the payload intact.
type BuilderError struct {
	Message string
	Payload map[string]any
}

// Error implements the error interface.
func (e *BuilderError) Error() string {
	return e.Message
}

// NewBuilderError creates a BuilderError.
func NewBuilderError(message string, payload map[string]any) *BuilderError {
	return &BuilderError{Message: message, Payload: payload}
}

// newBuilderFailure wraps a builder's failure.
func newBuilderFailure(runID, builder string, cause error, resp *ir.ExecutionResponse) *ExecutionError {
	var be *BuilderError
	if errors.As(cause, &be) {
		return &ExecutionError{
			Code:     ErrCodeBuilderExecution,
			Kind:     FailureReported,
			Message:  "error running builder " + builder,
			RunID:    runID,
			Builder:  builder,
			Payload:  maps.Clone(be.Payload),
			Response: resp,
			Err:      cause,
		}
	}
	return &ExecutionError{
		Code:     ErrCodeBuilderExecution,
		Kind:     FailureUnexpected,
		Message:  fmt.Sprintf("error running builder %s: %v", builder, cause),
		RunID:    runID,
		Builder:  builder,
		Payload:  map[string]any{PayloadMessageKey: cause.Error()},
		Response: resp,
		Err:      cause,
	}
}

// newNotFoundError reports a factory resolution failure.
func newNotFoundError(runID, builder string, cause error, resp *ir.ExecutionResponse) *ExecutionError {
	return &ExecutionError{
		Code:     ErrCodeBuilderNotFound,
		Message:  fmt.Sprintf("cannot create builder %s: %v", builder, cause),
		RunID:    runID,
		Builder:  builder,
		Payload:  map[string]any{PayloadMessageKey: cause.Error()},
		Response: resp,
		Err:      cause,
	}
}

// newInvalidInputError reports an unusable instance or delta.
func newInvalidInputError(cause error) *ExecutionError {
	return &ExecutionError{
		Code:    ErrCodeInvalidInput,
		Message: cause.Error(),
		Err:     cause,
	}
}
