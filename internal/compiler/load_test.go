package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCUE(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
}

func TestLoadFlows_Directory(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "relay.cue", `
package flows

flow: relay: {
	target: "out"
	builders: pass: {consumes: ["in"], produces: "out"}
}
`)
	writeCUE(t, dir, "order.cue", "package flows\n"+orderFlowCUE)

	flows, errs := LoadFlows(dir)
	require.Empty(t, errs)
	require.Len(t, flows, 2)

	names := []string{flows[0].Name, flows[1].Name}
	assert.ElementsMatch(t, []string{"relay", "order-intake"}, names)
}

func TestLoadFlows_CollectsPerFlowErrors(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "flows.cue", `
package flows

flow: good: {
	target: "out"
	builders: pass: {consumes: ["in"], produces: "out"}
}
flow: bad: {
	target: "out"
	builders: pass: {consumes: ["in"], produces: "out", kind: "teleport"}
}
`)

	flows, errs := LoadFlows(dir)
	require.Len(t, flows, 1)
	assert.Equal(t, "good", flows[0].Name)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), `flow "bad"`)
	assert.Contains(t, errs[0].Error(), ErrUnknownKind)

	var fe *FlowError
	require.ErrorAs(t, errs[0], &fe)
	assert.Equal(t, "bad", fe.Flow)
	var verrs ValidationErrors
	assert.ErrorAs(t, errs[0], &verrs)
}

func TestLoadFlows_NoFlowField(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "other.cue", "package flows\n\nconfig: debug: true\n")

	flows, errs := LoadFlows(dir)
	assert.Empty(t, flows)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no flows defined")
}

func TestLoadFlows_SyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "broken.cue", "package flows\n\nflow: {{{\n")

	flows, errs := LoadFlows(dir)
	assert.Empty(t, flows)
	assert.NotEmpty(t, errs)
}
