package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/dataflow/internal/compiler"
	"github.com/roach88/dataflow/internal/ir"
)

// LoadMode controls how errors are handled during flow loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the flows compiled from a directory.
type LoadResult struct {
	Flows     []*ir.FlowDefinition
	FileCount int // Number of CUE files found
}

// Flow returns the flow with the given name.
func (r *LoadResult) Flow(name string) (*ir.FlowDefinition, error) {
	names := make([]string, 0, len(r.Flows))
	for _, f := range r.Flows {
		if f.Name == name {
			return f, nil
		}
		names = append(names, f.Name)
	}
	return nil, &LoadError{
		Code:    ErrCodeFlowNotFound,
		Message: fmt.Sprintf("flow %q not found (available: %s)", name, strings.Join(names, ", ")),
	}
}

// LoadError represents an error that occurred during flow loading.
type LoadError struct {
	Code    string
	Message string
	Flow    string    // flow label, if the error belongs to one flow
	Field   string    // offending field, if known
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadFlows loads and compiles the CUE flows in dir.
// If mode is LoadModeFailFast, only the first error is returned.
// If mode is LoadModeCollectAll, every error is returned.
// A nil result means the directory could not be loaded at all.
func LoadFlows(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("flows directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing flows directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	flows, compileErrs := compiler.LoadFlows(dir)
	result := &LoadResult{Flows: flows, FileCount: len(cueFiles)}

	var errs []error
	for _, err := range compileErrs {
		errs = append(errs, convertCompileError(err)...)
	}
	if len(flows) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoFlows, Message: "no flows found"})
	}
	if mode == LoadModeFailFast && len(errs) > 1 {
		errs = errs[:1]
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to LoadErrors.
// A flow that failed validation yields one LoadError per violation.
func convertCompileError(err error) []error {
	flow := flowLabel(err)

	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]error, 0, len(verrs))
		for _, ve := range verrs {
			out = append(out, &LoadError{
				Code:    ve.Code,
				Message: ve.Message,
				Flow:    flow,
				Field:   ve.Field,
			})
		}
		return out
	}

	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return []error{&LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Flow:    flow,
			Field:   compileErr.Field,
			Pos:     compileErr.Pos,
		}}
	}

	var fe *compiler.FlowError
	if errors.As(err, &fe) {
		err = fe.Err
	}
	return []error{&LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Flow: flow}}
}

func flowLabel(err error) string {
	var fe *compiler.FlowError
	if errors.As(err, &fe) {
		return fe.Flow
	}
	return ""
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeScanError    = "E002" // Directory scan error
	ErrCodeNoFiles      = "E003" // No CUE files found
	ErrCodeLoadFailed   = "E004" // CUE load failed
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE build failed
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeFlowNotFound = "E008" // Named flow not in directory

	// Flow structure errors
	ErrCodeNoFlows      = "E101" // No flow field
	ErrCodeFlowTarget   = "E102" // Missing target
	ErrCodeFlowBuilders = "E103" // Missing or malformed builders
	ErrCodeInvalidType  = "E104" // Invalid value (e.g., float)
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "flow":
		return ErrCodeNoFlows
	case field == "target":
		return ErrCodeFlowTarget
	case field == "transients":
		return ErrCodeInvalidType
	case field == "builders", strings.HasSuffix(field, ".produces"), strings.HasSuffix(field, ".consumes"):
		return ErrCodeFlowBuilders
	case strings.HasPrefix(field, "builders."):
		return ErrCodeInvalidType
	default:
		return ErrCodeGeneric
	}
}
