package builders

import (
	"fmt"

	"github.com/roach88/dataflow/internal/engine"
	"github.com/roach88/dataflow/internal/ir"
)

// NewFactory returns a registry holding a built-in builder for every
// builder of flow, keyed by builder name. Every kind and its params are
// checked up front, so a flow that loads will never fail resolution.
func NewFactory(flow *ir.FlowDefinition) (*engine.Registry, error) {
	if flow == nil || flow.Graph == nil {
		return nil, fmt.Errorf("new factory: flow definition with a graph is required")
	}

	reg := engine.NewRegistry()
	for _, meta := range flow.Graph.Builders() {
		b, err := New(meta)
		if err != nil {
			return nil, fmt.Errorf("flow %q: %w", flow.Name, err)
		}
		if err := reg.RegisterBuilder(b); err != nil {
			return nil, fmt.Errorf("flow %q: %w", flow.Name, err)
		}
	}
	return reg, nil
}
