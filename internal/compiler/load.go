package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/dataflow/internal/ir"
)

// LoadFlows loads the CUE package in dir and compiles every flow under
// the top-level `flow` field. Flows that fail to compile are skipped and
// their errors collected; the rest are returned in declaration order.
func LoadFlows(dir string) ([]*ir.FlowDefinition, []error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{fmt.Errorf("no CUE instances loaded from %s", dir)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{fmt.Errorf("loading CUE files: %w", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return CompileFlows(value)
}

// CompileFlows compiles every flow under the `flow` field of v.
func CompileFlows(v cue.Value) ([]*ir.FlowDefinition, []error) {
	flowsVal := v.LookupPath(cue.ParsePath("flow"))
	if !flowsVal.Exists() {
		return nil, []error{&CompileError{Field: "flow", Message: "no flows defined", Pos: v.Pos()}}
	}

	iter, err := flowsVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		flows []*ir.FlowDefinition
		errs  []error
	)
	for iter.Next() {
		flow, err := CompileFlow(iter.Value())
		if err != nil {
			errs = append(errs, &FlowError{Flow: iter.Label(), Err: err})
			continue
		}
		flows = append(flows, flow)
	}
	return flows, errs
}
