package application

import (
	"context"
	"fmt"
	"time"

	"github.com/switchover/switchover/internal/domain"
)

// StateService exposes routing state, the snapshot history and the
// attempt audit trail for operator inspection, plus the manual fatal
// latch reset.
type StateService struct {
	States    domain.StateRepository
	Snapshots domain.SnapshotRepository
	Attempts  domain.AttemptRepository
	Now       func() time.Time
}

// Get returns the environment's current routing state.
func (s *StateService) Get(ctx context.Context, environment string) (domain.DeploymentState, error) {
	return s.States.Get(ctx, environment)
}

// History returns the environment's snapshots, newest first.
func (s *StateService) History(ctx context.Context, environment string) ([]domain.StateSnapshot, error) {
	return s.Snapshots.ListByEnvironment(ctx, environment)
}

// Trail returns the environment's switch attempts, oldest first.
func (s *StateService) Trail(ctx context.Context, environment string) ([]domain.SwitchAttempt, error) {
	return s.Attempts.ListByEnvironment(ctx, environment)
}

// ClearFatal resets the fatal latch after manual remediation, re-enabling
// automated switches. Clearing an environment that is not latched is an
// invalid-argument error so a typo cannot silently "succeed".
func (s *StateService) ClearFatal(ctx context.Context, environment string) (domain.DeploymentState, error) {
	state, err := s.States.Get(ctx, environment)
	if err != nil {
		return domain.DeploymentState{}, err
	}
	if !state.Fatal {
		return domain.DeploymentState{}, fmt.Errorf("%w: environment %s is not latched fatal", domain.ErrInvalidArgument, environment)
	}
	state.Fatal = false
	if err := s.States.Put(ctx, state); err != nil {
		return domain.DeploymentState{}, err
	}
	return state, nil
}

// PruneSnapshots deletes snapshots taken before the cutoff and reports
// how many were removed. Retention is entirely operator-driven.
func (s *StateService) PruneSnapshots(ctx context.Context, environment string, keep time.Duration) (int, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", domain.ErrInvalidArgument)
	}
	cutoff := s.now().Add(-keep)
	return s.Snapshots.PruneBefore(ctx, environment, cutoff)
}

func (s *StateService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
