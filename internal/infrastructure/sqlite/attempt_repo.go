package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/switchover/switchover/internal/domain"
)

// AttemptRepo implements [domain.AttemptRepository] backed by SQLite.
type AttemptRepo struct {
	DB *sql.DB
}

func (r *AttemptRepo) Append(ctx context.Context, attempt domain.SwitchAttempt) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO switch_attempts (environment, from_slot, to_slot, attempt, outcome, detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.Environment, string(attempt.FromSlot), string(attempt.ToSlot),
		attempt.Attempt, string(attempt.Outcome), attempt.Detail, attempt.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert switch attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepo) ListByEnvironment(ctx context.Context, environment string) ([]domain.SwitchAttempt, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT environment, from_slot, to_slot, attempt, outcome, detail, recorded_at
		 FROM switch_attempts WHERE environment = ?
		 ORDER BY id ASC`,
		environment,
	)
	if err != nil {
		return nil, fmt.Errorf("list switch attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.SwitchAttempt
	for rows.Next() {
		var a domain.SwitchAttempt
		var from, to, outcome string
		var recordedAt time.Time
		if err := rows.Scan(&a.Environment, &from, &to, &a.Attempt, &outcome, &a.Detail, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan switch attempt: %w", err)
		}
		a.FromSlot = domain.Slot(from)
		a.ToSlot = domain.Slot(to)
		a.Outcome = domain.AttemptOutcome(outcome)
		a.RecordedAt = recordedAt.UTC()
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
