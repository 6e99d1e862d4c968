package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/dataflow/internal/ir"
)

// SaveInstance inserts or replaces the stored state of an instance.
// The DataSet hash is computed when inst.DataSetHash is empty.
func (s *Store) SaveInstance(ctx context.Context, inst Instance) error {
	if err := saveInstance(ctx, s.db, inst, true); err != nil {
		return fmt.Errorf("save instance: %w", err)
	}
	return nil
}

// CommitRun records one run in a single transaction.
//
// For RunOK the instance row is upserted with inst's DataSet and Seq is set
// to run.Seq. For RunFailed the stored DataSet is left untouched; the
// instance row is only created (from inst) if it does not exist yet, so the
// failed run has something to reference.
//
// events are stored in the given order; their RunID is forced to run.ID.
func (s *Store) CommitRun(ctx context.Context, inst Instance, run Run, events []ir.BuilderEvent) error {
	if run.ID == "" || run.InstanceID == "" {
		return fmt.Errorf("commit run: run id and instance id are required")
	}
	if inst.ID != run.InstanceID {
		return fmt.Errorf("commit run: instance %q does not match run instance %q", inst.ID, run.InstanceID)
	}

	if run.DeltaHash == "" {
		h, err := ir.DeltaHash(run.Delta)
		if err != nil {
			return fmt.Errorf("commit run: %w", err)
		}
		run.DeltaHash = h
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	switch run.Status {
	case RunOK:
		inst.Seq = run.Seq
		if inst.DataSetHash == "" {
			h, err := ir.DataSetHash(inst.DataSet)
			if err != nil {
				return fmt.Errorf("commit run: %w", err)
			}
			inst.DataSetHash = h
		}
		run.DataSetHash = inst.DataSetHash
		if err := saveInstance(ctx, tx, inst, true); err != nil {
			return fmt.Errorf("commit run: %w", err)
		}
	case RunFailed:
		run.DataSetHash = ""
		if err := saveInstance(ctx, tx, inst, false); err != nil {
			return fmt.Errorf("commit run: %w", err)
		}
	default:
		return fmt.Errorf("commit run: unknown status %q", run.Status)
	}

	if err := insertRun(ctx, tx, run); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}

	for i, ev := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO builder_events
			(run_id, seq, generation, builder, event, data_key, message)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			i+1,
			ev.Generation,
			ev.Builder,
			string(ev.Type),
			ev.DataKey,
			ev.Message,
		)
		if err != nil {
			return fmt.Errorf("commit run: insert event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: commit: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveInstance(ctx context.Context, db execer, inst Instance, replace bool) error {
	if inst.ID == "" {
		return fmt.Errorf("instance id is required")
	}

	datasetJSON, err := marshalDataSet(inst.DataSet)
	if err != nil {
		return err
	}
	hash := inst.DataSetHash
	if hash == "" {
		if hash, err = ir.DataSetHash(inst.DataSet); err != nil {
			return err
		}
	}

	conflict := "ON CONFLICT(id) DO NOTHING"
	if replace {
		conflict = `ON CONFLICT(id) DO UPDATE SET
			flow_name = excluded.flow_name,
			dataset = excluded.dataset,
			dataset_hash = excluded.dataset_hash,
			seq = excluded.seq`
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO instances (id, flow_name, dataset, dataset_hash, seq)
		VALUES (?, ?, ?, ?, ?)
		`+conflict,
		inst.ID,
		inst.FlowName,
		datasetJSON,
		hash,
		inst.Seq,
	)
	if err != nil {
		return fmt.Errorf("write instance %q: %w", inst.ID, err)
	}
	return nil
}

func insertRun(ctx context.Context, db execer, run Run) error {
	deltaJSON, err := marshalDelta(run.Delta)
	if err != nil {
		return err
	}
	responseJSON, err := marshalResponses(run.Responses)
	if err != nil {
		return err
	}
	payloadJSON, err := marshalPayload(run.ErrorPayload)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs
		(id, instance_id, seq, delta, delta_hash, status, generations, response,
		 error_code, error_kind, error_builder, error_message, error_payload, dataset_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.InstanceID,
		run.Seq,
		deltaJSON,
		run.DeltaHash,
		string(run.Status),
		run.Generations,
		responseJSON,
		run.ErrorCode,
		run.ErrorKind,
		run.ErrorBuilder,
		run.ErrorMessage,
		payloadJSON,
		run.DataSetHash,
	)
	if err != nil {
		return fmt.Errorf("write run %q: %w", run.ID, err)
	}
	return nil
}
