package engine

import (
	"context"

	"github.com/roach88/dataflow/internal/ir"
)

// Builder is one unit of computation in a flow.
//
// Process reads its inputs from the BuilderContext and returns the Data it
// produced, or nil for "no output this round". Builders never mutate the
// working DataSet; the executor performs every merge. Returning a
// *BuilderError reports a known failure with a diagnostic payload; any other
// error (or a panic) is treated as unexpected.
type Builder interface {
	Meta() ir.DataBuilderMeta
	Process(bctx *BuilderContext) (*ir.Data, error)
}

// BuilderFactory resolves a builder name to a ready-to-invoke Builder.
// Unknown names must produce an error, never a nil Builder.
type BuilderFactory interface {
	Create(name string) (Builder, error)
}

// FactoryFunc adapts a function to BuilderFactory.
type FactoryFunc func(name string) (Builder, error)

// Create implements BuilderFactory.
func (f FactoryFunc) Create(name string) (Builder, error) {
	return f(name)
}

// BuilderContext is the read-only view a builder gets of one run.
type BuilderContext struct {
	ctx   context.Context
	runID string
	meta  ir.DataBuilderMeta
	data  *ir.DataSet
}

// NewBuilderContext creates a context over ds. The executor builds one per
// invocation of a builder; tests use it to drive builders directly.
func NewBuilderContext(ctx context.Context, runID string, meta ir.DataBuilderMeta, ds *ir.DataSet) *BuilderContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &BuilderContext{ctx: ctx, runID: runID, meta: meta, data: ds}
}

// Context returns the context of the run.
func (c *BuilderContext) Context() context.Context { return c.ctx }

// RunID returns the id of the run.
func (c *BuilderContext) RunID() string { return c.runID }

// Meta returns the metadata of the builder being invoked.
func (c *BuilderContext) Meta() ir.DataBuilderMeta { return c.meta }

// Get returns the Data stored under key in the working set.
func (c *BuilderContext) Get(key string) (ir.Data, bool) {
	return c.data.Get(key)
}

// Value returns the payload stored under key, or nil if absent.
func (c *BuilderContext) Value(key string) ir.Value {
	d, ok := c.data.Get(key)
	if !ok {
		return nil
	}
	return d.Value
}

// Contains reports whether key is present in the working set.
func (c *BuilderContext) Contains(key string) bool {
	return c.data.Contains(key)
}

// Keys returns the keys of the working set in canonical order.
func (c *BuilderContext) Keys() []string {
	return c.data.Keys()
}

// BuilderFunc is a Builder backed by a plain function.
type BuilderFunc struct {
	meta ir.DataBuilderMeta
	fn   func(bctx *BuilderContext) (*ir.Data, error)
}

// NewBuilderFunc creates a Builder from meta and a process function.
func NewBuilderFunc(meta ir.DataBuilderMeta, fn func(bctx *BuilderContext) (*ir.Data, error)) *BuilderFunc {
	return &BuilderFunc{meta: meta, fn: fn}
}

// Meta implements Builder.
func (b *BuilderFunc) Meta() ir.DataBuilderMeta { return b.meta }

// Process implements Builder.
func (b *BuilderFunc) Process(bctx *BuilderContext) (*ir.Data, error) {
	return b.fn(bctx)
}
