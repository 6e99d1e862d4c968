package builders

import (
	"fmt"
	"slices"

	"github.com/roach88/dataflow/internal/engine"
	"github.com/roach88/dataflow/internal/ir"
)

// DefaultKind is used when a builder declaration names no kind.
const DefaultKind = "copy"

// constructor validates meta and returns a ready builder.
type constructor func(meta ir.DataBuilderMeta) (engine.Builder, error)

var kinds = map[string]constructor{
	"copy":    newCopy,
	"merge":   newMerge,
	"collect": newCollect,
	"const":   newConst,
	"require": newRequire,
}

// Kinds returns the known kind names, sorted.
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// IsKnownKind reports whether kind names a built-in builder.
func IsKnownKind(kind string) bool {
	if kind == "" {
		return true
	}
	_, ok := kinds[kind]
	return ok
}

// New builds the built-in builder described by meta.
func New(meta ir.DataBuilderMeta) (engine.Builder, error) {
	kind := meta.Kind
	if kind == "" {
		kind = DefaultKind
	}
	ctor, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("builder %q: unknown kind %q", meta.Name, kind)
	}
	if meta.Produces == "" {
		return nil, fmt.Errorf("builder %q: produces is required", meta.Name)
	}
	b, err := ctor(meta)
	if err != nil {
		return nil, fmt.Errorf("builder %q (%s): %w", meta.Name, kind, err)
	}
	return b, nil
}

func newCopy(meta ir.DataBuilderMeta) (engine.Builder, error) {
	if len(meta.Consumes) != 1 {
		return nil, fmt.Errorf("copy consumes exactly one key, got %d", len(meta.Consumes))
	}
	return engine.NewBuilderFunc(meta, func(bctx *engine.BuilderContext) (*ir.Data, error) {
		in, ok := bctx.Get(meta.Consumes[0])
		if !ok {
			return nil, nil
		}
		out := ir.NewData(meta.Produces, in.Value)
		return &out, nil
	}), nil
}

func newMerge(meta ir.DataBuilderMeta) (engine.Builder, error) {
	return engine.NewBuilderFunc(meta, func(bctx *engine.BuilderContext) (*ir.Data, error) {
		merged := ir.Object{}
		for _, key := range meta.Consumes {
			v := bctx.Value(key)
			obj, ok := v.(ir.Object)
			if !ok {
				return nil, fmt.Errorf("merge input %q is %T, not an object", key, v)
			}
			for k, val := range obj {
				merged[k] = val
			}
		}
		out := ir.NewData(meta.Produces, merged)
		return &out, nil
	}), nil
}

func newCollect(meta ir.DataBuilderMeta) (engine.Builder, error) {
	return engine.NewBuilderFunc(meta, func(bctx *engine.BuilderContext) (*ir.Data, error) {
		arr := make(ir.Array, 0, len(meta.Consumes))
		for _, key := range meta.Consumes {
			v := bctx.Value(key)
			if v == nil {
				v = ir.Null{}
			}
			arr = append(arr, v)
		}
		out := ir.NewData(meta.Produces, arr)
		return &out, nil
	}), nil
}

func newConst(meta ir.DataBuilderMeta) (engine.Builder, error) {
	value, ok := meta.Params["value"]
	if !ok {
		return nil, fmt.Errorf("const requires params.value")
	}
	return engine.NewBuilderFunc(meta, func(*engine.BuilderContext) (*ir.Data, error) {
		out := ir.NewData(meta.Produces, value)
		return &out, nil
	}), nil
}

func newRequire(meta ir.DataBuilderMeta) (engine.Builder, error) {
	if len(meta.Consumes) == 0 {
		return nil, fmt.Errorf("require consumes at least one key")
	}
	raw, ok := meta.Params["fields"].(ir.Array)
	if !ok {
		return nil, fmt.Errorf("require needs params.fields as a list of strings")
	}
	fields := make([]string, 0, len(raw))
	for i, f := range raw {
		s, ok := f.(ir.String)
		if !ok {
			return nil, fmt.Errorf("params.fields[%d] is %T, not a string", i, f)
		}
		fields = append(fields, string(s))
	}

	return engine.NewBuilderFunc(meta, func(bctx *engine.BuilderContext) (*ir.Data, error) {
		v := bctx.Value(meta.Consumes[0])
		obj, _ := v.(ir.Object)

		var missing []any
		for _, f := range fields {
			if _, ok := obj[f]; !ok {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return nil, engine.NewBuilderError(
				fmt.Sprintf("%s is missing required fields", meta.Consumes[0]),
				map[string]any{"missing": missing},
			)
		}
		out := ir.NewData(meta.Produces, v)
		return &out, nil
	}), nil
}
