package builders

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/engine"
	"github.com/roach88/dataflow/internal/ir"
)

func orderFlow() *ir.FlowDefinition {
	return &ir.FlowDefinition{
		Name: "order",
		Graph: ir.NewExecutionGraph(
			[]ir.DataBuilderMeta{
				{Name: "validate", Kind: "require", Consumes: []string{"order"}, Produces: "valid_order",
					Params: ir.Object{"fields": ir.Array{ir.String("id")}}},
				{Name: "defaults", Kind: "const", Consumes: []string{"order"}, Produces: "defaults",
					Params: ir.Object{"value": ir.Object{"currency": ir.String("EUR")}}},
			},
			[]ir.DataBuilderMeta{
				{Name: "enrich", Kind: "merge", Consumes: []string{"defaults", "valid_order"}, Produces: "enriched"},
			},
		),
		Target:     "enriched",
		Transients: ir.NewTransients("defaults"),
	}
}

func TestNewFactory_ResolvesEveryBuilder(t *testing.T) {
	reg, err := NewFactory(orderFlow())
	require.NoError(t, err)
	assert.Equal(t, []string{"defaults", "enrich", "validate"}, reg.Names())

	_, err = reg.Create("missing")
	assert.ErrorIs(t, err, engine.ErrUnknownBuilder)
}

func TestNewFactory_RejectsBadBuilder(t *testing.T) {
	flow := &ir.FlowDefinition{
		Name:   "bad",
		Graph:  ir.NewExecutionGraph([]ir.DataBuilderMeta{{Name: "k", Kind: "const", Consumes: []string{"A"}, Produces: "B"}}),
		Target: "B",
	}
	_, err := NewFactory(flow)
	assert.ErrorContains(t, err, `flow "bad"`)

	_, err = NewFactory(nil)
	assert.Error(t, err)
}

func TestNewFactory_DrivesExecutor(t *testing.T) {
	flow := orderFlow()
	reg, err := NewFactory(flow)
	require.NoError(t, err)

	exec := engine.NewExecutor(reg, engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	inst := ir.NewFlowInstance("o-1", flow)

	resp, err := exec.Run(context.Background(), inst, ir.Delta{
		ir.NewData("order", ir.Object{"id": ir.Int(42), "currency": ir.String("USD")}),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"defaults", "enrich", "validate"}, resp.Builders())
	enriched, ok := inst.DataSet.Get("enriched")
	require.True(t, ok)
	assert.Equal(t, ir.Object{"id": ir.Int(42), "currency": ir.String("USD")}, enriched.Value)
	assert.False(t, inst.DataSet.Contains("defaults"))
}
