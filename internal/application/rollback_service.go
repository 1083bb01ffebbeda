package application

import (
	"context"
	"fmt"
	"time"

	"github.com/switchover/switchover/internal/domain"
)

// RollbackService triggers a manual rollback to the most recent
// snapshot, outside of any running switch.
type RollbackService struct {
	States    domain.StateRepository
	Snapshots domain.SnapshotRepository
	Controller *domain.RollbackController
	Now       func() time.Time
}

// Rollback restores the environment to its newest snapshot and, on
// success, commits the restored slot as the active one. The fatal latch
// is left untouched; clearing it stays an explicit operator action.
func (s *RollbackService) Rollback(ctx context.Context, environment string, policy domain.RollbackPolicy) (domain.RollbackResult, error) {
	snaps, err := s.Snapshots.ListByEnvironment(ctx, environment)
	if err != nil {
		return domain.RollbackResult{}, err
	}
	if len(snaps) == 0 {
		return domain.RollbackResult{}, fmt.Errorf("%w: no snapshots for environment %s", domain.ErrNotFound, environment)
	}

	result, err := s.Controller.Rollback(ctx, snaps[0], policy)
	if err != nil {
		return result, err
	}

	state, err := s.States.Get(ctx, environment)
	if err != nil {
		return result, fmt.Errorf("load state after rollback: %w", err)
	}
	state.ActiveSlot = result.Restored
	state.LastKnownGood = result.Restored
	state.LastSwitch = s.now()
	if err := s.States.Put(ctx, state); err != nil {
		return result, fmt.Errorf("persist restored state: %w", err)
	}
	return result, nil
}

func (s *RollbackService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
