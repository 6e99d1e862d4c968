package engine

import (
	"context"
	"fmt"

	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/store"
)

// Replay re-executes the recorded history of an instance and checks that it
// reproduces the stored state.
//
// Replay is STRUCTURAL: it uses the same Executor as live runs, so any
// divergence means a builder is not a pure function of its inputs (or the
// flow changed since the runs were recorded).
//
//	[empty instance] → run 1 delta (hash == run 1 delta_hash ?)
//	                 → hash == run 1 dataset_hash ?
//	                 → run 2 delta → hash == run 2 dataset_hash ?
//	                 → ...
//	                 → final hash == stored instance dataset_hash ?
//
// Only successful runs are replayed: a failed run never changed the stored
// DataSet. A recorded delta that no longer matches its delta_hash stops the
// replay, since its result would prove nothing. Nothing is written to the
// store.

// ReplayMismatch records one run whose replayed DataSet differs from the
// recorded one.
type ReplayMismatch struct {
	RunID    string
	Seq      int64
	Expected string
	Actual   string
	Err      string // set when the replayed run failed
}

// ReplayResult is the outcome of replaying one instance.
type ReplayResult struct {
	InstanceID string
	Replayed   int // successful runs re-executed
	Skipped    int // failed runs skipped
	Mismatches []ReplayMismatch
	FinalHash  string
	StoredHash string
}

// Match reports whether the replay reproduced every recorded state.
func (r *ReplayResult) Match() bool {
	return len(r.Mismatches) == 0 && r.FinalHash == r.StoredHash
}

// Replay re-executes instanceID's successful runs in seq order against a
// fresh instance of flow. Replay stops at the first replayed run that fails.
func Replay(ctx context.Context, s *store.Store, flow *ir.FlowDefinition, factory BuilderFactory, instanceID string, opts ...ExecutorOption) (*ReplayResult, error) {
	stored, err := s.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if stored.FlowName != flow.Name {
		return nil, fmt.Errorf("replay: instance %q belongs to flow %q, not %q", instanceID, stored.FlowName, flow.Name)
	}

	runs, err := s.ReadRuns(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	result := &ReplayResult{InstanceID: instanceID, StoredHash: stored.DataSetHash}
	inst := ir.NewFlowInstance(instanceID, flow)
	exec := NewExecutor(factory, opts...)

	for _, run := range runs {
		if run.Status != store.RunOK {
			result.Skipped++
			continue
		}

		if run.DeltaHash != "" {
			got, err := ir.DeltaHash(run.Delta)
			if err != nil {
				return nil, fmt.Errorf("replay: run %q: %w", run.ID, err)
			}
			if got != run.DeltaHash {
				result.Mismatches = append(result.Mismatches, ReplayMismatch{
					RunID:    run.ID,
					Seq:      run.Seq,
					Expected: run.DataSetHash,
					Err:      fmt.Sprintf("recorded delta does not match delta_hash %s", run.DeltaHash),
				})
				break
			}
		}

		result.Replayed++
		if _, err := exec.Run(ctx, inst, run.Delta); err != nil {
			result.Mismatches = append(result.Mismatches, ReplayMismatch{
				RunID:    run.ID,
				Seq:      run.Seq,
				Expected: run.DataSetHash,
				Err:      err.Error(),
			})
			break
		}

		actual, err := ir.DataSetHash(inst.DataSet)
		if err != nil {
			return nil, fmt.Errorf("replay: run %q: %w", run.ID, err)
		}
		if actual != run.DataSetHash {
			result.Mismatches = append(result.Mismatches, ReplayMismatch{
				RunID:    run.ID,
				Seq:      run.Seq,
				Expected: run.DataSetHash,
				Actual:   actual,
			})
		}
	}

	result.FinalHash, err = ir.DataSetHash(inst.DataSet)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return result, nil
}
