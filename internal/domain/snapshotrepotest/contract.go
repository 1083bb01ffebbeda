// Package snapshotrepotest provides contract tests for
// [domain.SnapshotRepository] implementations.
package snapshotrepotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/switchover/switchover/internal/domain"
)

// Factory creates a fresh [domain.SnapshotRepository] for each test invocation.
type Factory func(t *testing.T) domain.SnapshotRepository

func snapshotAt(env string, id string, takenAt time.Time, active domain.Slot) domain.StateSnapshot {
	return domain.StateSnapshot{
		ID:          domain.SnapshotID(id),
		Environment: env,
		TakenAt:     takenAt,
		State: domain.DeploymentState{
			Environment:   env,
			ActiveSlot:    active,
			LastKnownGood: active,
		},
		PlanID: "plan-" + id,
	}
}

// Run exercises the [domain.SnapshotRepository] contract.
func Run(t *testing.T, factory Factory) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("AppendAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		snap := snapshotAt("dev", "s1", base, domain.SlotBlue)

		id, err := repo.Append(ctx, snap)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if id != "s1" {
			t.Errorf("Append returned id %q, want s1", id)
		}

		got, err := repo.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State.ActiveSlot != domain.SlotBlue {
			t.Errorf("State.ActiveSlot = %q, want blue", got.State.ActiveSlot)
		}
		if got.PlanID != "plan-s1" {
			t.Errorf("PlanID = %q, want plan-s1", got.PlanID)
		}
		if got.RestoreTarget() != domain.SlotBlue {
			t.Errorf("RestoreTarget = %q, want blue", got.RestoreTarget())
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Get(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("AppendIsAppendOnly", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if _, err := repo.Append(ctx, snapshotAt("dev", "s1", base, domain.SlotBlue)); err != nil {
			t.Fatalf("first Append: %v", err)
		}
		_, err := repo.Append(ctx, snapshotAt("dev", "s1", base.Add(time.Minute), domain.SlotGreen))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("duplicate Append: got %v, want ErrAlreadyExists", err)
		}

		got, err := repo.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State.ActiveSlot != domain.SlotBlue {
			t.Error("existing snapshot was overwritten")
		}
	})

	t.Run("ListByEnvironmentNewestFirst", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		for i, id := range []string{"s1", "s2", "s3"} {
			snap := snapshotAt("dev", id, base.Add(time.Duration(i)*time.Minute), domain.SlotBlue)
			if _, err := repo.Append(ctx, snap); err != nil {
				t.Fatalf("Append %s: %v", id, err)
			}
		}
		if _, err := repo.Append(ctx, snapshotAt("staging", "other", base, domain.SlotGreen)); err != nil {
			t.Fatal(err)
		}

		got, err := repo.ListByEnvironment(ctx, "dev")
		if err != nil {
			t.Fatalf("ListByEnvironment: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("ListByEnvironment: got %d, want 3", len(got))
		}
		if got[0].ID != "s3" || got[2].ID != "s1" {
			t.Errorf("order = [%s %s %s], want newest first [s3 s2 s1]", got[0].ID, got[1].ID, got[2].ID)
		}
	})

	t.Run("PruneBefore", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		for i, id := range []string{"s1", "s2", "s3"} {
			snap := snapshotAt("dev", id, base.Add(time.Duration(i)*time.Hour), domain.SlotBlue)
			if _, err := repo.Append(ctx, snap); err != nil {
				t.Fatal(err)
			}
		}

		pruned, err := repo.PruneBefore(ctx, "dev", base.Add(90*time.Minute))
		if err != nil {
			t.Fatalf("PruneBefore: %v", err)
		}
		if pruned != 2 {
			t.Errorf("pruned = %d, want 2", pruned)
		}

		remaining, err := repo.ListByEnvironment(ctx, "dev")
		if err != nil {
			t.Fatal(err)
		}
		if len(remaining) != 1 || remaining[0].ID != "s3" {
			t.Errorf("remaining = %v, want only s3", remaining)
		}
	})
}
