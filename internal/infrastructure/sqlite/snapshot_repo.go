package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/switchover/switchover/internal/domain"
)

// SnapshotRepo implements [domain.SnapshotRepository] backed by SQLite.
// Rows are insert-only; a duplicate ID is rejected rather than replaced
// so an existing snapshot can never be overwritten.
type SnapshotRepo struct {
	DB *sql.DB
}

func (r *SnapshotRepo) Append(ctx context.Context, snap domain.StateSnapshot) (domain.SnapshotID, error) {
	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot state: %w", err)
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO state_snapshots (id, environment, taken_at, state, plan_id)
		 VALUES (?, ?, ?, ?, ?)`,
		string(snap.ID), snap.Environment, snap.TakenAt.UTC(), string(stateJSON), snap.PlanID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("snapshot %q: %w", snap.ID, domain.ErrAlreadyExists)
		}
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	return snap.ID, nil
}

func (r *SnapshotRepo) Get(ctx context.Context, id domain.SnapshotID) (domain.StateSnapshot, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, environment, taken_at, state, plan_id
		 FROM state_snapshots WHERE id = ?`,
		string(id),
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StateSnapshot{}, fmt.Errorf("snapshot %q: %w", id, domain.ErrNotFound)
	}
	return snap, err
}

func (r *SnapshotRepo) ListByEnvironment(ctx context.Context, environment string) ([]domain.StateSnapshot, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, environment, taken_at, state, plan_id
		 FROM state_snapshots WHERE environment = ?
		 ORDER BY taken_at DESC, id DESC`,
		environment,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.StateSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

func (r *SnapshotRepo) PruneBefore(ctx context.Context, environment string, cutoff time.Time) (int, error) {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM state_snapshots WHERE environment = ? AND taken_at < ?`,
		environment, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanSnapshot(s scanner) (domain.StateSnapshot, error) {
	var snap domain.StateSnapshot
	var id, stateJSON string
	var takenAt time.Time
	if err := s.Scan(&id, &snap.Environment, &takenAt, &stateJSON, &snap.PlanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, err
		}
		return snap, fmt.Errorf("scan snapshot: %w", err)
	}
	snap.ID = domain.SnapshotID(id)
	snap.TakenAt = takenAt.UTC()
	if err := json.Unmarshal([]byte(stateJSON), &snap.State); err != nil {
		return snap, fmt.Errorf("unmarshal snapshot state: %w", err)
	}
	return snap, nil
}
