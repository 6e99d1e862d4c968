package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/ir"
)

func TestFindCycles_Empty(t *testing.T) {
	assert.Empty(t, FindCycles(nil))
}

func TestFindCycles_DAG(t *testing.T) {
	cycles := FindCycles([]ir.DataBuilderMeta{
		bm("b1", "x", "a"),
		bm("b2", "y", "x"),
		bm("b3", "z", "x", "y"),
	})
	assert.Empty(t, cycles, "DAG should produce no cycles")
}

func TestFindCycles_SelfLoop(t *testing.T) {
	cycles := FindCycles([]ir.DataBuilderMeta{
		bm("counter", "n", "n", "tick"),
	})
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"counter", "counter"}, cycles[0].Path)
	assert.Contains(t, cycles[0].Message, "own product")
}

func TestFindCycles_TwoNode(t *testing.T) {
	cycles := FindCycles([]ir.DataBuilderMeta{
		bm("b", "y", "x"),
		bm("a", "x", "y"),
	})
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "a"}, cycles[0].Path)
	assert.Equal(t, "dependency cycle: a → b → a", cycles[0].Message)
}

func TestFindCycles_ShortestPathThroughSCC(t *testing.T) {
	// a → b → c → a plus the shortcut b → a
	cycles := FindCycles([]ir.DataBuilderMeta{
		bm("a", "x", "y", "z"),
		bm("b", "y", "x"),
		bm("c", "z", "y"),
	})
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "a"}, cycles[0].Path)
}

func TestFindCycles_Independent(t *testing.T) {
	cycles := FindCycles([]ir.DataBuilderMeta{
		bm("a", "x", "y"),
		bm("b", "y", "x"),
		bm("c", "p", "q"),
		bm("d", "q", "p"),
		bm("e", "out", "x"),
	})
	require.Len(t, cycles, 2)

	var paths [][]string
	for _, c := range cycles {
		paths = append(paths, c.Path)
	}
	assert.ElementsMatch(t, [][]string{{"a", "b", "a"}, {"c", "d", "c"}}, paths)
}

func TestFindCycles_Deterministic(t *testing.T) {
	metas := []ir.DataBuilderMeta{
		bm("w", "k1", "k4"),
		bm("x", "k2", "k1"),
		bm("y", "k3", "k2"),
		bm("z", "k4", "k3"),
	}
	first := FindCycles(metas)
	for range 20 {
		assert.Equal(t, first, FindCycles(metas))
	}
	require.Len(t, first, 1)
	assert.Equal(t, []string{"w", "x", "y", "z", "w"}, first[0].Path)
}
