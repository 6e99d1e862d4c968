package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/ir"
)

func TestSaveInstance_UpsertReplacesDataSet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	saveTestInstance(t, s, "i-1", ir.NewData("A", ir.String("old")))
	saveTestInstance(t, s, "i-1", ir.NewData("A", ir.String("new")), ir.NewData("B", ir.Bool(true)))

	inst, err := s.LoadInstance(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, inst.DataSet.Keys())
	a, _ := inst.DataSet.Get("A")
	assert.Equal(t, ir.String("new"), a.Value)
	assert.Equal(t, ir.MustDataSetHash(inst.DataSet), inst.DataSetHash)
}

func TestSaveInstance_RequiresID(t *testing.T) {
	s := createTestStore(t)
	err := s.SaveInstance(context.Background(), Instance{DataSet: ir.NewDataSet()})
	assert.Error(t, err)
}

func TestCommitRun_OKUpdatesInstance(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ds := ir.NewDataSet(ir.NewData("A", ir.String("v")), ir.NewData("X", ir.Int(1)))
	inst := Instance{ID: "i-1", FlowName: "chain", DataSet: ds}
	events := []ir.BuilderEvent{
		{Generation: 1, Builder: "B1", Type: ir.EventBefore},
		{Generation: 1, Builder: "B1", Type: ir.EventAfter, DataKey: "X"},
	}

	require.NoError(t, s.CommitRun(ctx, inst, createTestRun("run-1", "i-1", 7), events))

	stored, err := s.LoadInstance(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), stored.Seq)
	assert.Equal(t, "chain", stored.FlowName)
	assert.Equal(t, ir.MustDataSetHash(ds), stored.DataSetHash)

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunOK, run.Status)
	assert.Equal(t, stored.DataSetHash, run.DataSetHash)

	got, err := s.ReadEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, ir.EventAfter, got[1].Type)
	assert.Equal(t, "X", got[1].DataKey)
}

func TestCommitRun_FailedLeavesDataSetUntouched(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	before := saveTestInstance(t, s, "i-1", ir.NewData("A", ir.String("kept")))
	beforeHash := ir.MustDataSetHash(before.DataSet)

	// The caller passes a different dataset; a failed run must ignore it.
	attempted := Instance{ID: "i-1", FlowName: "test-flow", DataSet: ir.NewDataSet(ir.NewData("Z", ir.Int(9)))}
	run := Run{
		ID:           "run-1",
		InstanceID:   "i-1",
		Seq:          1,
		Delta:        ir.Delta{ir.NewData("A", ir.String("v"))},
		Status:       RunFailed,
		Responses:    map[string]ir.Data{},
		ErrorCode:    "BUILDER_EXECUTION_ERROR",
		ErrorKind:    "reported",
		ErrorBuilder: "B2",
		ErrorMessage: "error running builder B2",
		ErrorPayload: map[string]any{"missing": []any{"amount"}},
	}
	events := []ir.BuilderEvent{{Generation: 1, Builder: "B2", Type: ir.EventException, Message: "bad"}}

	require.NoError(t, s.CommitRun(ctx, attempted, run, events))

	stored, err := s.LoadInstance(ctx, "i-1")
	require.NoError(t, err)
	assert.Equal(t, beforeHash, stored.DataSetHash)
	assert.Equal(t, []string{"A"}, stored.DataSet.Keys())
	assert.Equal(t, int64(0), stored.Seq)

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunFailed, got.Status)
	assert.Empty(t, got.DataSetHash)
	assert.Equal(t, "B2", got.ErrorBuilder)
	assert.Equal(t, map[string]any{"missing": []any{"amount"}}, got.ErrorPayload)
}

func TestCommitRun_FailedFirstRunCreatesInstance(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inst := Instance{ID: "fresh", FlowName: "chain", DataSet: ir.NewDataSet()}
	run := createTestRun("run-1", "fresh", 1)
	run.Status = RunFailed

	require.NoError(t, s.CommitRun(ctx, inst, run, nil))

	stored, err := s.LoadInstance(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.DataSet.Len())
}

func TestCommitRun_DuplicateSeqRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inst := Instance{ID: "i-1", FlowName: "chain", DataSet: ir.NewDataSet(ir.NewData("A", ir.Int(1)))}
	require.NoError(t, s.CommitRun(ctx, inst, createTestRun("run-1", "i-1", 1), nil))

	changed := Instance{ID: "i-1", FlowName: "chain", DataSet: ir.NewDataSet(ir.NewData("A", ir.Int(2)))}
	err := s.CommitRun(ctx, changed, createTestRun("run-2", "i-1", 1), nil)
	require.Error(t, err)

	// The instance update from the rejected commit was rolled back.
	stored, err := s.LoadInstance(ctx, "i-1")
	require.NoError(t, err)
	a, _ := stored.DataSet.Get("A")
	assert.Equal(t, ir.Int(1), a.Value)

	_, err = s.ReadRun(ctx, "run-2")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestCommitRun_Validation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	inst := Instance{ID: "i-1", DataSet: ir.NewDataSet()}

	assert.Error(t, s.CommitRun(ctx, inst, Run{InstanceID: "i-1", Status: RunOK}, nil))
	assert.Error(t, s.CommitRun(ctx, inst, createTestRun("run-1", "other", 1), nil))

	bad := createTestRun("run-1", "i-1", 1)
	bad.Status = "pending"
	assert.Error(t, s.CommitRun(ctx, inst, bad, nil))
}
