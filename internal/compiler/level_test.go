package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/ir"
)

func TestLevel_Empty(t *testing.T) {
	levels, err := Level(nil)
	require.NoError(t, err)
	assert.Empty(t, levels)
}

func TestLevel_ExternalInputsOnLevelZero(t *testing.T) {
	levels, err := Level([]ir.DataBuilderMeta{
		bm("b1", "x", "a"),
		bm("b2", "y", "a", "b"),
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"b1", "b2"}}, levelNames(levels))
}

func TestLevel_OneAboveHighestProducer(t *testing.T) {
	levels, err := Level([]ir.DataBuilderMeta{
		bm("join", "out", "x", "z"),
		bm("b1", "x", "a"),
		bm("b2", "y", "x"),
		bm("b3", "z", "y"),
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"b1"}, {"b2"}, {"b3"}, {"join"}}, levelNames(levels))
}

func TestLevel_DeclarationOrderWithinLevel(t *testing.T) {
	levels, err := Level([]ir.DataBuilderMeta{
		bm("zeta", "z", "root"),
		bm("alpha", "a", "root"),
		bm("root-builder", "root", "seed"),
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"root-builder"}, {"zeta", "alpha"}}, levelNames(levels))
}

func TestLevel_Cycle(t *testing.T) {
	_, err := Level([]ir.DataBuilderMeta{
		bm("b1", "x", "y"),
		bm("b2", "y", "x"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}
