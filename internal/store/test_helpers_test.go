package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/dataflow/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func saveTestInstance(t *testing.T, s *Store, id string, entries ...ir.Data) Instance {
	t.Helper()
	inst := Instance{ID: id, FlowName: "test-flow", DataSet: ir.NewDataSet(entries...)}
	if err := s.SaveInstance(context.Background(), inst); err != nil {
		t.Fatalf("SaveInstance() failed: %v", err)
	}
	return inst
}

// createTestRun creates an ok run with minimal required fields.
func createTestRun(id, instanceID string, seq int64) Run {
	return Run{
		ID:          id,
		InstanceID:  instanceID,
		Seq:         seq,
		Delta:       ir.Delta{ir.NewData("A", ir.String("v"))},
		Status:      RunOK,
		Generations: 1,
		Responses:   map[string]ir.Data{"B1": ir.NewData("X", ir.Int(1))},
	}
}
