package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/ir"
)

// flowValue compiles src and returns the value at flow.<name>.
func flowValue(t *testing.T, src, name string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	fv := v.LookupPath(cue.MakePath(cue.Str("flow"), cue.Str(name)))
	require.True(t, fv.Exists(), "flow %q not found", name)
	return fv
}

func bm(name, produces string, consumes ...string) ir.DataBuilderMeta {
	return ir.DataBuilderMeta{Name: name, Consumes: consumes, Produces: produces, Kind: "copy"}
}

func levelNames(levels [][]ir.DataBuilderMeta) [][]string {
	out := make([][]string, len(levels))
	for i, lvl := range levels {
		for _, m := range lvl {
			out[i] = append(out[i], m.Name)
		}
	}
	return out
}

func codes(errs ValidationErrors) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}
