package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/dataflow/internal/ir"
)

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// LoadInstance retrieves the stored state of an instance.
// Returns an error wrapping ErrInstanceNotFound if the id is unknown.
func (s *Store) LoadInstance(ctx context.Context, id string) (Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, flow_name, dataset, dataset_hash, seq
		FROM instances
		WHERE id = ?
	`, id)

	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Instance{}, fmt.Errorf("load instance %q: %w", id, ErrInstanceNotFound)
	}
	if err != nil {
		return Instance{}, fmt.Errorf("load instance %q: %w", id, err)
	}
	return inst, nil
}

// ListInstances returns every stored instance ordered by id.
//
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) ListInstances(ctx context.Context) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, flow_name, dataset, dataset_hash, seq
		FROM instances
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	instances := []Instance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return instances, nil
}

// ReadRun retrieves a single run by id.
// Returns an error wrapping ErrRunNotFound if the id is unknown.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %q: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %q: %w", id, err)
	}
	return run, nil
}

// ReadRuns returns all runs of an instance, ordered by seq ASC, id ASC.
//
// Returns an empty slice (not nil) if the instance has no runs.
func (s *Store) ReadRuns(ctx context.Context, instanceID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE instance_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEvents returns the builder events of a run in notification order.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]ir.BuilderEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, generation, builder, event, data_key, message
		FROM builder_events
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.BuilderEvent{}
	for rows.Next() {
		var ev ir.BuilderEvent
		var typ string
		if err := rows.Scan(&ev.RunID, &ev.Generation, &ev.Builder, &typ, &ev.DataKey, &ev.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = ir.BuilderEventType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

const runColumns = `id, instance_id, seq, delta, delta_hash, status, generations, response,
		error_code, error_kind, error_builder, error_message, error_payload, dataset_hash`

func scanInstance(sc scanner) (Instance, error) {
	var inst Instance
	var datasetJSON string
	if err := sc.Scan(&inst.ID, &inst.FlowName, &datasetJSON, &inst.DataSetHash, &inst.Seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Instance{}, err
		}
		return Instance{}, fmt.Errorf("scan instance: %w", err)
	}

	ds, err := unmarshalDataSet(datasetJSON)
	if err != nil {
		return Instance{}, fmt.Errorf("instance %q: %w", inst.ID, err)
	}
	inst.DataSet = ds
	return inst, nil
}

func scanRun(sc scanner) (Run, error) {
	var run Run
	var status, deltaJSON, responseJSON, payloadJSON string
	err := sc.Scan(
		&run.ID,
		&run.InstanceID,
		&run.Seq,
		&deltaJSON,
		&run.DeltaHash,
		&status,
		&run.Generations,
		&responseJSON,
		&run.ErrorCode,
		&run.ErrorKind,
		&run.ErrorBuilder,
		&run.ErrorMessage,
		&payloadJSON,
		&run.DataSetHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = RunStatus(status)

	if run.Delta, err = unmarshalDelta(deltaJSON); err != nil {
		return Run{}, fmt.Errorf("run %q: %w", run.ID, err)
	}
	if run.Responses, err = unmarshalResponses(responseJSON); err != nil {
		return Run{}, fmt.Errorf("run %q: %w", run.ID, err)
	}
	if run.ErrorPayload, err = unmarshalPayload(payloadJSON); err != nil {
		return Run{}, fmt.Errorf("run %q: %w", run.ID, err)
	}
	return run, nil
}
