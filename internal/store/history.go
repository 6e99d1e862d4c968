package store

import (
	"context"
	"fmt"
)

// InstanceHistory summarises the recorded runs of one instance.
type InstanceHistory struct {
	InstanceID  string
	Runs        []Run
	LastSeq     int64
	OKCount     int
	FailedCount int
	LastStatus  RunStatus // Empty if the instance has no runs
}

// History retrieves the run history of an instance with summary counts.
func (s *Store) History(ctx context.Context, instanceID string) (InstanceHistory, error) {
	h := InstanceHistory{InstanceID: instanceID}

	runs, err := s.ReadRuns(ctx, instanceID)
	if err != nil {
		return h, fmt.Errorf("history: %w", err)
	}
	h.Runs = runs

	for _, run := range runs {
		switch run.Status {
		case RunOK:
			h.OKCount++
		case RunFailed:
			h.FailedCount++
		}
		if run.Seq > h.LastSeq {
			h.LastSeq = run.Seq
		}
	}
	if len(runs) > 0 {
		h.LastStatus = runs[len(runs)-1].Status
	}
	return h, nil
}

// FindFailingInstances returns the ids of instances whose most recent run
// failed, ordered by id. These are the instances waiting for corrected input.
func (s *Store) FindFailingInstances(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.instance_id
		FROM runs r
		WHERE r.status = 'failed'
		  AND r.seq = (SELECT MAX(seq) FROM runs WHERE instance_id = r.instance_id)
		ORDER BY r.instance_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("find failing instances: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("find failing instances: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find failing instances: iterate: %w", err)
	}
	return ids, nil
}
