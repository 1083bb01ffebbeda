// Package attemptrepotest provides contract tests for
// [domain.AttemptRepository] implementations.
package attemptrepotest

import (
	"context"
	"testing"
	"time"

	"github.com/switchover/switchover/internal/domain"
)

// Factory creates a fresh [domain.AttemptRepository] for each test invocation.
type Factory func(t *testing.T) domain.AttemptRepository

// Run exercises the [domain.AttemptRepository] contract.
func Run(t *testing.T, factory Factory) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("AppendAndList", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		attempts := []domain.SwitchAttempt{
			{
				Environment: "dev",
				FromSlot:    domain.SlotBlue,
				ToSlot:      domain.SlotGreen,
				Attempt:     1,
				Outcome:     domain.AttemptValidationFailed,
				Detail:      "green unhealthy after switch",
				RecordedAt:  base,
			},
			{
				Environment: "dev",
				FromSlot:    domain.SlotGreen,
				ToSlot:      domain.SlotBlue,
				Attempt:     1,
				Outcome:     domain.AttemptRolledBack,
				Detail:      "prior slot restored",
				RecordedAt:  base.Add(time.Minute),
			},
		}
		for _, a := range attempts {
			if err := repo.Append(ctx, a); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}

		got, err := repo.ListByEnvironment(ctx, "dev")
		if err != nil {
			t.Fatalf("ListByEnvironment: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d attempts, want 2", len(got))
		}
		// Oldest first: the trail reads as a narrative.
		if got[0].Outcome != domain.AttemptValidationFailed {
			t.Errorf("first outcome = %q, want validation-failed", got[0].Outcome)
		}
		if got[1].Outcome != domain.AttemptRolledBack {
			t.Errorf("second outcome = %q, want rolled-back", got[1].Outcome)
		}
		if got[1].ToSlot != domain.SlotBlue {
			t.Errorf("rollback ToSlot = %q, want blue", got[1].ToSlot)
		}
	})

	t.Run("EnvironmentsIsolated", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Append(ctx, domain.SwitchAttempt{
			Environment: "dev", FromSlot: domain.SlotBlue, ToSlot: domain.SlotGreen,
			Attempt: 1, Outcome: domain.AttemptSuccess, RecordedAt: base,
		}); err != nil {
			t.Fatal(err)
		}

		got, err := repo.ListByEnvironment(ctx, "staging")
		if err != nil {
			t.Fatalf("ListByEnvironment: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("got %d attempts for staging, want 0", len(got))
		}
	})
}
