package domain

import (
	"context"
	"time"
)

// DeploymentState is the persisted routing state of one environment.
// It is owned by the switch workflow and mutated only as the terminal
// step of a committed switch (or by a confirmed rollback restoring the
// prior value).
type DeploymentState struct {
	Environment   string
	ActiveSlot    Slot
	LastKnownGood Slot
	LastSwitch    time.Time
	// Fatal latches after an exhausted rollback. While set, automated
	// switches are refused until the latch is cleared manually.
	Fatal bool
}

// NewDeploymentState is the state of an environment at first deployment:
// blue active, blue last-known-good.
func NewDeploymentState(environment string) DeploymentState {
	return DeploymentState{
		Environment:   environment,
		ActiveSlot:    SlotBlue,
		LastKnownGood: SlotBlue,
	}
}

// StateSnapshot is an immutable copy of DeploymentState plus the
// convergence engine's last-applied plan identifier, captured strictly
// before any mutating convergence call. Snapshots are append-only so
// rollback always has a valid prior state to restore; retention is
// caller-driven via SnapshotRepository.PruneBefore.
type StateSnapshot struct {
	ID          SnapshotID
	Environment string
	TakenAt     time.Time
	State       DeploymentState
	PlanID      string
}

// SnapshotID identifies a stored snapshot.
type SnapshotID string

// RestoreTarget returns the slot rollback must converge back to.
func (s StateSnapshot) RestoreTarget() Slot {
	return s.State.ActiveSlot
}

// StateRepository persists DeploymentState keyed by environment.
type StateRepository interface {
	// Get returns the state for an environment, or ErrNotFound if the
	// environment has never been deployed.
	Get(ctx context.Context, environment string) (DeploymentState, error)
	// Put creates or replaces the state for an environment.
	Put(ctx context.Context, state DeploymentState) error
}

// SnapshotRepository persists snapshots append-only.
type SnapshotRepository interface {
	Append(ctx context.Context, snapshot StateSnapshot) (SnapshotID, error)
	Get(ctx context.Context, id SnapshotID) (StateSnapshot, error)
	// ListByEnvironment returns snapshots newest first.
	ListByEnvironment(ctx context.Context, environment string) ([]StateSnapshot, error)
	// PruneBefore deletes snapshots taken before the cutoff. Nothing in
	// the orchestrator calls this automatically.
	PruneBefore(ctx context.Context, environment string, cutoff time.Time) (int, error)
}

// AttemptRepository persists the switch attempt audit trail.
type AttemptRepository interface {
	Append(ctx context.Context, attempt SwitchAttempt) error
	// ListByEnvironment returns attempts oldest first.
	ListByEnvironment(ctx context.Context, environment string) ([]SwitchAttempt, error)
}
