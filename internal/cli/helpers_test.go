package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/testutil"
)

var (
	testFlowsDir     = filepath.Join("testdata", "flows")
	testScenariosDir = filepath.Join("testdata", "scenarios")
)

// writeFlow writes a single-file CUE package into a fresh directory.
func writeFlow(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flow.cue"), []byte(content), 0644))
	return dir
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// runDelta applies one delta to the relay flow through the run command,
// using ids drawn from runIDs.
func runDelta(t *testing.T, runIDs *testutil.SequentialRunIDs, db, instance, delta string, format string) (string, error) {
	t.Helper()
	cmd := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: format},
		RunIDs:      runIDs,
	})
	return execute(t, cmd, testFlowsDir, "--db", db, "--flow", "relay", "--instance", instance, "--delta", delta)
}

// seedDatabase records three runs on contact-1 (ok, failed, ok) and one
// failed run on contact-2.
func seedDatabase(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "dataflow.db")
	ids := testutil.NewSequentialRunIDs("run")

	_, err := runDelta(t, ids, db, "contact-1", `{"raw": {"name": "Ada"}}`, "text")
	require.NoError(t, err)
	_, err = runDelta(t, ids, db, "contact-1", `{"raw": {"nick": "ada"}}`, "text")
	require.Error(t, err)
	_, err = runDelta(t, ids, db, "contact-1", `{"locale": {"lang": "en"}}`, "text")
	require.NoError(t, err)
	_, err = runDelta(t, ids, db, "contact-2", `{"raw": {}}`, "text")
	require.Error(t, err)
	return db
}
