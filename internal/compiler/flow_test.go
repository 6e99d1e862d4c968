package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/ir"
)

const orderFlowCUE = `
flow: "order-intake": {
	target: "quote"
	transients: ["scratch"]
	builders: {
		validate: {
			consumes: ["order"]
			produces: "checked"
			kind:     "require"
			params: fields: ["sku", "qty"]
		}
		defaults: {
			consumes: ["tenant"]
			produces: "scratch"
			kind:     "const"
			params: value: {currency: "EUR", rounding: 2}
		}
		quote: {
			consumes: ["checked", "scratch"]
			produces: "quote"
			kind:     "merge"
		}
	}
}
`

func TestCompileFlow_Order(t *testing.T) {
	flow, err := CompileFlow(flowValue(t, orderFlowCUE, "order-intake"))
	require.NoError(t, err)

	assert.Equal(t, "order-intake", flow.Name)
	assert.Equal(t, "quote", flow.Target)
	assert.True(t, flow.IsTransient("scratch"))
	assert.False(t, flow.IsTransient("quote"))

	assert.Equal(t, [][]string{{"validate", "defaults"}, {"quote"}}, levelNames(flow.Graph.Levels))

	defaults, ok := flow.Graph.Lookup("defaults")
	require.True(t, ok)
	assert.Equal(t, "const", defaults.Kind)
	assert.Equal(t, ir.Object{
		"value": ir.Object{"currency": ir.String("EUR"), "rounding": ir.Int(2)},
	}, defaults.Params)

	validate, ok := flow.Graph.Lookup("validate")
	require.True(t, ok)
	assert.Equal(t, ir.Array{ir.String("sku"), ir.String("qty")}, validate.Params["fields"])
}

func TestCompileFlow_DefaultKind(t *testing.T) {
	src := `
flow: relay: {
	target: "out"
	builders: pass: {consumes: ["in"], produces: "out"}
}
`
	flow, err := CompileFlow(flowValue(t, src, "relay"))
	require.NoError(t, err)

	pass, ok := flow.Graph.Lookup("pass")
	require.True(t, ok)
	assert.Equal(t, "copy", pass.Kind)
	assert.Empty(t, flow.TransientKeys())
}

func TestCompileFlow_MissingTarget(t *testing.T) {
	src := `
flow: relay: {
	builders: pass: {consumes: ["in"], produces: "out"}
}
`
	_, err := CompileFlow(flowValue(t, src, "relay"))
	require.Error(t, err)

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "target", compileErr.Field)
}

func TestCompileFlow_MissingProduces(t *testing.T) {
	src := `
flow: relay: {
	target: "out"
	builders: pass: {consumes: ["in"]}
}
`
	_, err := CompileFlow(flowValue(t, src, "relay"))

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "builders.pass.produces", compileErr.Field)
}

func TestCompileFlow_NoBuilders(t *testing.T) {
	src := `flow: empty: target: "out"`
	_, err := CompileFlow(flowValue(t, src, "empty"))

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "builders", compileErr.Field)
}

func TestCompileFlow_FloatParamsForbidden(t *testing.T) {
	src := `
flow: pricing: {
	target: "rate"
	builders: fixed: {
		consumes: ["in"]
		produces: "rate"
		kind:     "const"
		params: value: 0.25
	}
}
`
	_, err := CompileFlow(flowValue(t, src, "pricing"))

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "builders.fixed.params.value", compileErr.Field)
	assert.Contains(t, compileErr.Message, "float")
}

func TestCompileFlow_ConsumesMustBeStrings(t *testing.T) {
	src := `
flow: relay: {
	target: "out"
	builders: pass: {consumes: [1], produces: "out"}
}
`
	_, err := CompileFlow(flowValue(t, src, "relay"))

	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "builders.pass.consumes", compileErr.Field)
}

func TestCompileFlow_ValidationErrorsReturned(t *testing.T) {
	src := `
flow: broken: {
	target: "missing"
	builders: pass: {consumes: ["in"], produces: "out", kind: "teleport"}
}
`
	_, err := CompileFlow(flowValue(t, src, "broken"))

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.ElementsMatch(t, []string{ErrUnknownKind, ErrTargetNotProduct}, codes(verrs))
	assert.Contains(t, err.Error(), "teleport")
}

func TestCompileFlow_DrivesBuilderOrder(t *testing.T) {
	// Declared consumer-first; leveling still runs producers first.
	src := `
flow: chain: {
	target: "z"
	builders: {
		last:  {consumes: ["y"], produces: "z"}
		mid:   {consumes: ["x"], produces: "y"}
		first: {consumes: ["a"], produces: "x"}
	}
}
`
	flow, err := CompileFlow(flowValue(t, src, "chain"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"first"}, {"mid"}, {"last"}}, levelNames(flow.Graph.Levels))
}
