package ir

import (
	"fmt"
	"slices"
)

// DataBuilderMeta is the static description of one builder.
//
// Run state (whether the builder already fired) is deliberately absent:
// metas are shared by every instance of a flow, so firing history is tracked
// per invocation by the executor instead.
type DataBuilderMeta struct {
	Name     string   `json:"name"`
	Consumes []string `json:"consumes"`
	Produces string   `json:"produces"`
	Kind     string   `json:"kind,omitempty"`   // built-in builder kind, if any
	Params   Object   `json:"params,omitempty"` // kind-specific configuration
}

// ConsumesAny reports whether the builder consumes at least one of the keys.
func (m DataBuilderMeta) ConsumesAny(keys map[string]bool) bool {
	for _, k := range m.Consumes {
		if keys[k] {
			return true
		}
	}
	return false
}

// ExecutionGraph is a leveled (topologically sorted) partition of builders.
// A builder in level i consumes only keys produced in levels < i or supplied
// externally. Structure is immutable after construction.
type ExecutionGraph struct {
	Levels [][]DataBuilderMeta `json:"levels"`
}

// NewExecutionGraph copies the given levels into a graph.
func NewExecutionGraph(levels ...[]DataBuilderMeta) *ExecutionGraph {
	g := &ExecutionGraph{Levels: make([][]DataBuilderMeta, len(levels))}
	for i, lvl := range levels {
		g.Levels[i] = slices.Clone(lvl)
	}
	return g
}

// Builders returns every meta in sweep order.
func (g *ExecutionGraph) Builders() []DataBuilderMeta {
	if g == nil {
		return nil
	}
	var out []DataBuilderMeta
	for _, lvl := range g.Levels {
		out = append(out, lvl...)
	}
	return out
}

// Lookup finds a builder meta by name.
func (g *ExecutionGraph) Lookup(name string) (DataBuilderMeta, bool) {
	for _, m := range g.Builders() {
		if m.Name == name {
			return m, true
		}
	}
	return DataBuilderMeta{}, false
}

// FlowDefinition is a static graph plus its completion signal (Target) and
// the keys that must not leak into the durable result (Transients).
// Definitions are shared, read-only, across all instances built from them.
type FlowDefinition struct {
	Name       string          `json:"name"`
	Graph      *ExecutionGraph `json:"graph"`
	Target     string          `json:"target"`
	Transients map[string]bool `json:"transients,omitempty"`
}

// IsTransient reports whether key is declared transient.
// A nil transient set means nothing is transient.
func (f *FlowDefinition) IsTransient(key string) bool {
	return f.Transients[key]
}

// TransientKeys returns the declared transient keys in canonical order.
func (f *FlowDefinition) TransientKeys() []string {
	keys := make([]string, 0, len(f.Transients))
	for k, ok := range f.Transients {
		if ok {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// NewTransients builds a transient key set.
func NewTransients(keys ...string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// FlowInstance pairs a FlowDefinition with the durable DataSet that persists
// across invocations. The executor replaces DataSet at the end of every
// successful invocation and leaves it untouched on failure.
type FlowInstance struct {
	ID      string          `json:"id"`
	Flow    *FlowDefinition `json:"-"`
	DataSet *DataSet        `json:"dataset"`
}

// NewFlowInstance creates an instance with an empty DataSet.
func NewFlowInstance(id string, flow *FlowDefinition) *FlowInstance {
	return &FlowInstance{ID: id, Flow: flow, DataSet: NewDataSet()}
}

// Validate checks that the instance is runnable.
func (fi *FlowInstance) Validate() error {
	if fi == nil {
		return fmt.Errorf("flow instance is nil")
	}
	if fi.Flow == nil {
		return fmt.Errorf("flow instance %q has no flow definition", fi.ID)
	}
	if fi.Flow.Graph == nil {
		return fmt.Errorf("flow %q has no execution graph", fi.Flow.Name)
	}
	return nil
}

// ExecutionResponse holds the Data each builder produced during one invocation,
// keyed by builder name. Only builders that actually produced output appear.
type ExecutionResponse struct {
	RunID       string          `json:"run_id"`
	Generations int             `json:"generations"`
	Responses   map[string]Data `json:"responses"`
}

// NewExecutionResponse creates an empty response for a run.
func NewExecutionResponse(runID string) *ExecutionResponse {
	return &ExecutionResponse{RunID: runID, Responses: make(map[string]Data)}
}

// Builders returns the names of builders with output, sorted.
func (r *ExecutionResponse) Builders() []string {
	if r == nil {
		return []string{}
	}
	names := make([]string, 0, len(r.Responses))
	for n := range r.Responses {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// BuilderEventType names a listener notification point.
type BuilderEventType string

const (
	EventBefore    BuilderEventType = "before"
	EventAfter     BuilderEventType = "after"
	EventException BuilderEventType = "exception"
)

// BuilderEvent is one observed listener notification, as recorded for
// run history and traces.
type BuilderEvent struct {
	RunID      string           `json:"run_id"`
	Generation int              `json:"generation"`
	Builder    string           `json:"builder"`
	Type       BuilderEventType `json:"type"`
	DataKey    string           `json:"data_key,omitempty"` // key produced (after events only)
	Message    string           `json:"message,omitempty"`  // error text (exception events only)
}
