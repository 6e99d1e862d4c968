package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/dataflow/internal/builders"
)

// Validation error codes (E200-E299)
const (
	ErrEmptyName        = "E201" // flow, builder, key or target name is empty
	ErrDuplicate        = "E202" // duplicate builder name or producer of a key
	ErrCycle            = "E203" // builders feed each other
	ErrTargetTransient  = "E204" // target key declared transient
	ErrTargetNotProduct = "E205" // no builder produces the target key
	ErrNoConsumes       = "E206" // builder consumes nothing
	ErrUnknownKind      = "E207" // builder kind not registered
	ErrInvalidParams    = "E208" // params rejected by the builder kind
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidateFlow checks a parsed flow declaration.
// Returns all errors found (does not fail-fast).
func ValidateFlow(decl *FlowDecl) ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(decl.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "flow name is required",
			Code:    ErrEmptyName,
		})
	}
	if strings.TrimSpace(decl.Target) == "" {
		errs = append(errs, ValidationError{
			Field:   "target",
			Message: "target key is required",
			Code:    ErrEmptyName,
		})
	}
	for i, key := range decl.Transients {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("transients[%d]", i),
				Message: "transient key must be non-empty",
				Code:    ErrEmptyName,
			})
		}
	}

	names := make(map[string]bool)
	producers := make(map[string]string)
	for _, m := range decl.Builders {
		field := "builders." + m.Name

		if names[m.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate builder name %q", m.Name),
				Code:    ErrDuplicate,
			})
		}
		names[m.Name] = true

		if strings.TrimSpace(m.Produces) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".produces",
				Message: "produced key must be non-empty",
				Code:    ErrEmptyName,
			})
		} else if other, ok := producers[m.Produces]; ok {
			errs = append(errs, ValidationError{
				Field:   field + ".produces",
				Message: fmt.Sprintf("key %q is already produced by %q", m.Produces, other),
				Code:    ErrDuplicate,
			})
		} else {
			producers[m.Produces] = m.Name
		}

		if len(m.Consumes) == 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".consumes",
				Message: "builder must consume at least one key",
				Code:    ErrNoConsumes,
			})
		}
		for i, key := range m.Consumes {
			if strings.TrimSpace(key) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.consumes[%d]", field, i),
					Message: "consumed key must be non-empty",
					Code:    ErrEmptyName,
				})
			}
		}

		if !builders.IsKnownKind(m.Kind) {
			errs = append(errs, ValidationError{
				Field: field + ".kind",
				Message: fmt.Sprintf("unknown builder kind %q (known: %s)",
					m.Kind, strings.Join(builders.Kinds(), ", ")),
				Code: ErrUnknownKind,
			})
		} else if m.Produces != "" && len(m.Consumes) > 0 {
			if _, err := builders.New(m); err != nil {
				errs = append(errs, ValidationError{
					Field:   field + ".params",
					Message: err.Error(),
					Code:    ErrInvalidParams,
				})
			}
		}
	}

	if decl.Target != "" {
		if slices.Contains(decl.Transients, decl.Target) {
			errs = append(errs, ValidationError{
				Field:   "target",
				Message: fmt.Sprintf("target %q cannot be transient", decl.Target),
				Code:    ErrTargetTransient,
			})
		}
		if _, ok := producers[decl.Target]; !ok {
			errs = append(errs, ValidationError{
				Field:   "target",
				Message: fmt.Sprintf("no builder produces target %q", decl.Target),
				Code:    ErrTargetNotProduct,
			})
		}
	}

	for _, c := range FindCycles(decl.Builders) {
		errs = append(errs, ValidationError{
			Field:   "builders",
			Message: c.Message,
			Code:    ErrCycle,
		})
	}

	return errs
}
