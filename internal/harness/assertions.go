package harness

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/dataflow/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case TraceRun:
				fmt.Fprintf(&buf, "  [%d] run %s seq=%d %s\n", i+1, event.RunID, event.Seq, event.Status)
			case string(ir.EventAfter):
				fmt.Fprintf(&buf, "  [%d]   gen %d %s -> %s\n", i+1, event.Generation, event.Builder, event.DataKey)
			case string(ir.EventException):
				fmt.Fprintf(&buf, "  [%d]   gen %d %s failed: %s\n", i+1, event.Generation, event.Builder, event.Message)
			}
		}
	}

	return buf.String()
}

// completions returns the builder names of every after event, in order.
func completions(trace []TraceEvent) []string {
	var names []string
	for _, event := range trace {
		if event.Type == string(ir.EventAfter) {
			names = append(names, event.Builder)
		}
	}
	return names
}

// assertTraceOrder checks builders first completed in the specified order.
// Builders don't need to be consecutive (intervening builders are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected builder
	positions := make(map[string]int)
	for i, name := range completions(trace) {
		if positions[name] == 0 {
			positions[name] = i + 1 // 1-indexed for readability
		}
	}

	// Step 2: Verify all builders found
	for _, name := range assertion.Builders {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all builders completed: %v", assertion.Builders),
				Actual:   fmt.Sprintf("missing builder: %s", name),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Builders); i++ {
		prev := assertion.Builders[i-1]
		curr := assertion.Builders[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("builders in order: %v", assertion.Builders),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks the builder completed exactly Count times across
// all runs.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, name := range completions(trace) {
		if name == assertion.Builder {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d completions of %s", assertion.Count, assertion.Builder),
			Actual:   fmt.Sprintf("%d completions", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertDataSet checks key presence and, for dataset_value, its value.
func assertDataSet(dataset map[string]any, assertion Assertion) error {
	actual, exists := dataset[assertion.Key]

	switch assertion.Type {
	case AssertDataSetAbsent:
		if exists {
			return &AssertionError{
				Type:     assertion.Type,
				Expected: fmt.Sprintf("key %q absent", assertion.Key),
				Actual:   fmt.Sprintf("present with value %v", actual),
			}
		}
		return nil
	case AssertDataSetContains:
		if !exists {
			return &AssertionError{
				Type:     assertion.Type,
				Expected: fmt.Sprintf("key %q present", assertion.Key),
				Actual:   fmt.Sprintf("not found in keys %v", sortedKeys(dataset)),
			}
		}
		return nil
	}

	if !exists {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("key %q = %v", assertion.Key, assertion.Value),
			Actual:   fmt.Sprintf("not found in keys %v", sortedKeys(dataset)),
		}
	}
	if !plainEqual(assertion.Value, actual) {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("key %q = %v", assertion.Key, assertion.Value),
			Actual:   fmt.Sprintf("key %q = %v", assertion.Key, actual),
		}
	}
	return nil
}

// plainEqual compares two plain Go values (YAML-decoded, ir.ToAny output or
// error payloads) by their canonical JSON, so int vs int64 and map
// ordering do not matter.
func plainEqual(expected, actual any) bool {
	want, err := ir.MarshalCanonical(expected)
	if err != nil {
		return false
	}
	got, err := ir.MarshalCanonical(actual)
	if err != nil {
		return false
	}
	return bytes.Equal(want, got)
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertDataSetContains, AssertDataSetAbsent, AssertDataSetValue:
			err = assertDataSet(result.DataSet, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
