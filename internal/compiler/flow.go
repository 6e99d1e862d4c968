package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/dataflow/internal/builders"
	"github.com/roach88/dataflow/internal/ir"
)

// FlowDecl is a parsed but not yet validated or leveled flow.
type FlowDecl struct {
	Name       string
	Target     string
	Transients []string
	Builders   []ir.DataBuilderMeta // declaration order
}

// CompileFlow parses a CUE value into a validated, leveled FlowDefinition.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the flow struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`flow: checkout: { ... }`)
//	flow, err := CompileFlow(v.LookupPath(cue.ParsePath("flow.checkout")))
//
// Parse failures return a *CompileError; validation failures return
// ValidationErrors holding every problem found.
func CompileFlow(v cue.Value) (*ir.FlowDefinition, error) {
	decl, err := ParseFlow(v)
	if err != nil {
		return nil, err
	}
	if errs := ValidateFlow(decl); len(errs) > 0 {
		return nil, errs
	}
	return BuildFlow(decl)
}

// ParseFlow reads the structure of a flow declaration:
//
//	flow: <name>: {
//		target:     string
//		transients: [...string]        // optional
//		builders: <builder>: {
//			consumes: [...string]
//			produces: string
//			kind:     string           // optional, default "copy"
//			params:   {...}            // optional
//		}
//	}
func ParseFlow(v cue.Value) (*FlowDecl, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	decl := &FlowDecl{}

	// Parse flow name from struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		decl.Name = labels[len(labels)-1].Unquoted()
	}

	targetVal := v.LookupPath(cue.ParsePath("target"))
	if !targetVal.Exists() {
		return nil, &CompileError{
			Field:   "target",
			Message: "target is required",
			Pos:     v.Pos(),
		}
	}
	target, err := targetVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	decl.Target = target

	transientsVal := v.LookupPath(cue.ParsePath("transients"))
	if transientsVal.Exists() {
		decl.Transients, err = stringList(transientsVal, "transients")
		if err != nil {
			return nil, err
		}
	}

	decl.Builders, err = parseBuilders(v)
	if err != nil {
		return nil, err
	}
	if len(decl.Builders) == 0 {
		return nil, &CompileError{
			Field:   "builders",
			Message: "at least one builder is required",
			Pos:     v.Pos(),
		}
	}

	return decl, nil
}

// parseBuilders extracts builder declarations in declaration order.
func parseBuilders(v cue.Value) ([]ir.DataBuilderMeta, error) {
	var metas []ir.DataBuilderMeta

	buildersVal := v.LookupPath(cue.ParsePath("builders"))
	if !buildersVal.Exists() {
		return metas, nil
	}

	iter, err := buildersVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		name := iter.Label()
		bv := iter.Value()
		field := "builders." + name

		meta := ir.DataBuilderMeta{Name: name}

		consumesVal := bv.LookupPath(cue.ParsePath("consumes"))
		if consumesVal.Exists() {
			meta.Consumes, err = stringList(consumesVal, field+".consumes")
			if err != nil {
				return nil, err
			}
		}

		producesVal := bv.LookupPath(cue.ParsePath("produces"))
		if !producesVal.Exists() {
			return nil, &CompileError{
				Field:   field + ".produces",
				Message: "produces is required",
				Pos:     bv.Pos(),
			}
		}
		if meta.Produces, err = producesVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		meta.Kind = builders.DefaultKind
		kindVal := bv.LookupPath(cue.ParsePath("kind"))
		if kindVal.Exists() {
			if meta.Kind, err = kindVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		paramsVal := bv.LookupPath(cue.ParsePath("params"))
		if paramsVal.Exists() {
			pv, err := toValue(paramsVal, field+".params")
			if err != nil {
				return nil, err
			}
			obj, ok := pv.(ir.Object)
			if !ok {
				return nil, &CompileError{
					Field:   field + ".params",
					Message: "params must be a struct",
					Pos:     paramsVal.Pos(),
				}
			}
			meta.Params = obj
		}

		metas = append(metas, meta)
	}

	return metas, nil
}

// BuildFlow levels a validated declaration into a FlowDefinition.
func BuildFlow(decl *FlowDecl) (*ir.FlowDefinition, error) {
	levels, err := Level(decl.Builders)
	if err != nil {
		return nil, fmt.Errorf("flow %q: %w", decl.Name, err)
	}
	return &ir.FlowDefinition{
		Name:       decl.Name,
		Graph:      ir.NewExecutionGraph(levels...),
		Target:     decl.Target,
		Transients: ir.NewTransients(decl.Transients...),
	}, nil
}
