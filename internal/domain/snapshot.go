package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Snapshotter captures the orchestrator's current routing state plus
// the convergence engine's last-applied plan identifier as an immutable,
// externally stored record. Capture happens strictly before any mutating
// convergence call in the switch workflow; that ordering is the safety
// invariant the whole subsystem rests on.
type Snapshotter struct {
	Snapshots SnapshotRepository
	Engine    ConvergenceEngine
	Now       func() time.Time
}

// Capture stores and returns a snapshot of the given state. The engine's
// live plan identifier is read best-effort: an engine that cannot report
// one yields a snapshot with an empty PlanID, which rollback tolerates.
func (s *Snapshotter) Capture(ctx context.Context, state DeploymentState) (StateSnapshot, error) {
	var planID string
	if live, err := s.Engine.ReadLiveState(ctx, state.Environment); err == nil {
		planID = live.PlanID
	}

	snap := StateSnapshot{
		ID:          SnapshotID(uuid.NewString()),
		Environment: state.Environment,
		TakenAt:     s.now(),
		State:       state,
		PlanID:      planID,
	}
	if _, err := s.Snapshots.Append(ctx, snap); err != nil {
		return StateSnapshot{}, fmt.Errorf("append snapshot for %s: %w", state.Environment, err)
	}
	return snap, nil
}

func (s *Snapshotter) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
