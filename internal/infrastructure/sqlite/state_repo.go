package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/switchover/switchover/internal/domain"
)

// StateRepo implements [domain.StateRepository] backed by SQLite.
type StateRepo struct {
	DB *sql.DB
}

func (r *StateRepo) Get(ctx context.Context, environment string) (domain.DeploymentState, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT environment, active_slot, last_known_good, last_switch, fatal
		 FROM deployment_states WHERE environment = ?`,
		environment,
	)

	var state domain.DeploymentState
	var active, lastGood string
	var lastSwitch sql.NullTime
	var fatal int
	if err := row.Scan(&state.Environment, &active, &lastGood, &lastSwitch, &fatal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DeploymentState{}, fmt.Errorf("state for %q: %w", environment, domain.ErrNotFound)
		}
		return domain.DeploymentState{}, fmt.Errorf("scan deployment state: %w", err)
	}
	state.ActiveSlot = domain.Slot(active)
	state.LastKnownGood = domain.Slot(lastGood)
	if lastSwitch.Valid {
		state.LastSwitch = lastSwitch.Time.UTC()
	}
	state.Fatal = fatal != 0
	return state, nil
}

func (r *StateRepo) Put(ctx context.Context, state domain.DeploymentState) error {
	fatal := 0
	if state.Fatal {
		fatal = 1
	}
	var lastSwitch sql.NullTime
	if !state.LastSwitch.IsZero() {
		lastSwitch = sql.NullTime{Time: state.LastSwitch.UTC(), Valid: true}
	}

	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO deployment_states (environment, active_slot, last_known_good, last_switch, fatal)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(environment) DO UPDATE SET
		     active_slot = excluded.active_slot,
		     last_known_good = excluded.last_known_good,
		     last_switch = excluded.last_switch,
		     fatal = excluded.fatal`,
		state.Environment, string(state.ActiveSlot), string(state.LastKnownGood), lastSwitch, fatal,
	)
	if err != nil {
		return fmt.Errorf("put deployment state: %w", err)
	}
	return nil
}
