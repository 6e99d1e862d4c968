package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dataflow/internal/compiler"
	"github.com/roach88/dataflow/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Flows  []FlowSummary              `json:"flows,omitempty"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// FlowSummary describes one compiled flow.
type FlowSummary struct {
	Name       string     `json:"name"`
	Target     string     `json:"target"`
	Transients []string   `json:"transients,omitempty"`
	Levels     [][]string `json:"levels"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <flows-dir>",
		Short: "Validate flow definitions",
		Long: `Compile and validate every CUE flow in a directory.

Reports malformed declarations, duplicate producers, dependency cycles and
unknown builder kinds. On success the leveled execution graph of each flow
is printed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, flowsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	loadResult, loadErrors := LoadFlows(flowsDir, LoadModeCollectAll)

	// Directory not found, no files, etc.
	if loadResult == nil {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, flowsDir)

	if len(loadErrors) > 0 {
		return outputValidationErrors(formatter, toValidationErrors(loadErrors))
	}

	summaries := make([]FlowSummary, 0, len(loadResult.Flows))
	for _, flow := range loadResult.Flows {
		formatter.VerboseLog("Validated flow: %s", flow.Name)
		summaries = append(summaries, summarizeFlow(flow))
	}
	return outputValidateSuccess(formatter, summaries)
}

// toValidationErrors flattens LoadErrors into the validation error shape.
func toValidationErrors(errs []error) []compiler.ValidationError {
	out := make([]compiler.ValidationError, 0, len(errs))
	for _, err := range errs {
		var loadErr *LoadError
		if !errors.As(err, &loadErr) {
			out = append(out, compiler.ValidationError{Field: "load", Message: err.Error(), Code: ErrCodeGeneric})
			continue
		}
		field := loadErr.Field
		if loadErr.Flow != "" {
			field = "flow." + loadErr.Flow
			if loadErr.Field != "" {
				field += "." + loadErr.Field
			}
		}
		if field == "" {
			field = "load"
		}
		out = append(out, compiler.ValidationError{
			Field:   field,
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    lineOf(loadErr),
		})
	}
	return out
}

func lineOf(e *LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

func summarizeFlow(flow *ir.FlowDefinition) FlowSummary {
	s := FlowSummary{
		Name:       flow.Name,
		Target:     flow.Target,
		Transients: flow.TransientKeys(),
		Levels:     make([][]string, 0, len(flow.Graph.Levels)),
	}
	for _, lvl := range flow.Graph.Levels {
		names := make([]string, len(lvl))
		for i, m := range lvl {
			names[i] = m.Name
		}
		s.Levels = append(s.Levels, names)
	}
	return s
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, flows []FlowSummary) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Flows: flows})
	}

	w := formatter.Writer
	for _, f := range flows {
		fmt.Fprintf(w, "flow %s (target %s)\n", f.Name, f.Target)
		for i, lvl := range f.Levels {
			fmt.Fprintf(w, "  level %d: %s\n", i, strings.Join(lvl, ", "))
		}
		if len(f.Transients) > 0 {
			fmt.Fprintf(w, "  transients: %s\n", strings.Join(f.Transients, ", "))
		}
	}
	fmt.Fprintf(w, "✓ All flows valid (%d)\n", len(flows))
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.JSON() {
		failure := &CLIError{Code: errs[0].Code, Message: errs[0].Message}
		if err := formatter.Report(ValidationResult{Valid: false, Errors: errs}, failure); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
