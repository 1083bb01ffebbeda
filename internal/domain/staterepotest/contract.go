// Package staterepotest provides contract tests for [domain.StateRepository]
// implementations.
package staterepotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/switchover/switchover/internal/domain"
)

// Factory creates a fresh [domain.StateRepository] for each test invocation.
type Factory func(t *testing.T) domain.StateRepository

// Run exercises the [domain.StateRepository] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("PutAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		state := domain.DeploymentState{
			Environment:   "dev",
			ActiveSlot:    domain.SlotGreen,
			LastKnownGood: domain.SlotBlue,
			LastSwitch:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		}

		if err := repo.Put(ctx, state); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, err := repo.Get(ctx, "dev")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ActiveSlot != domain.SlotGreen {
			t.Errorf("ActiveSlot = %q, want %q", got.ActiveSlot, domain.SlotGreen)
		}
		if got.LastKnownGood != domain.SlotBlue {
			t.Errorf("LastKnownGood = %q, want %q", got.LastKnownGood, domain.SlotBlue)
		}
		if !got.LastSwitch.Equal(state.LastSwitch) {
			t.Errorf("LastSwitch = %v, want %v", got.LastSwitch, state.LastSwitch)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Get(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("PutReplaces", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Put(ctx, domain.NewDeploymentState("dev")); err != nil {
			t.Fatalf("first Put: %v", err)
		}

		updated := domain.DeploymentState{
			Environment:   "dev",
			ActiveSlot:    domain.SlotGreen,
			LastKnownGood: domain.SlotGreen,
			Fatal:         true,
		}
		if err := repo.Put(ctx, updated); err != nil {
			t.Fatalf("second Put: %v", err)
		}

		got, err := repo.Get(ctx, "dev")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.ActiveSlot != domain.SlotGreen {
			t.Errorf("ActiveSlot = %q, want %q after replace", got.ActiveSlot, domain.SlotGreen)
		}
		if !got.Fatal {
			t.Error("Fatal flag not persisted")
		}
	})

	t.Run("EnvironmentsIsolated", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		dev := domain.NewDeploymentState("dev")
		staging := domain.NewDeploymentState("staging")
		staging.ActiveSlot = domain.SlotGreen

		if err := repo.Put(ctx, dev); err != nil {
			t.Fatal(err)
		}
		if err := repo.Put(ctx, staging); err != nil {
			t.Fatal(err)
		}

		got, err := repo.Get(ctx, "dev")
		if err != nil {
			t.Fatalf("Get dev: %v", err)
		}
		if got.ActiveSlot != domain.SlotBlue {
			t.Errorf("dev ActiveSlot = %q, want blue", got.ActiveSlot)
		}
	})
}
