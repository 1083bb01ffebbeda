package domain

import (
	"context"
	"fmt"
)

// DesiredState is the declarative input to the convergence engine:
// traffic routed to ActiveSlot in Environment.
type DesiredState struct {
	Environment string
	ActiveSlot  Slot
}

// ConvergencePlan is the engine's computed diff between desired and
// live state.
type ConvergencePlan struct {
	ID          string
	Environment string
	TargetSlot  Slot
	DiffSummary string
	// Empty reports that live state already matches desired state and
	// applying the plan is a no-op.
	Empty bool
}

// LiveState is the engine's view of what is actually deployed.
type LiveState struct {
	Environment string
	ActiveSlot  Slot
	// PlanID identifies the last applied plan, empty if unknown.
	PlanID string
	// Outputs carries the engine's resolved output values (addresses,
	// URLs) for collaborators such as the inventory generator.
	Outputs map[string]string
}

// ConvergenceEngine is the boundary to the external declarative
// provisioning engine. The orchestrator never mutates infrastructure
// directly; all mutation goes through Apply.
type ConvergenceEngine interface {
	Plan(ctx context.Context, desired DesiredState) (ConvergencePlan, error)
	Apply(ctx context.Context, plan ConvergencePlan) error
	ReadLiveState(ctx context.Context, environment string) (LiveState, error)
}

// ConvergenceResult reports a confirmed apply.
type ConvergenceResult struct {
	AppliedSlot Slot
	PlanID      string
	DiffSummary string
}

// Converger moves live traffic to a target slot.
type Converger interface {
	Converge(ctx context.Context, environment string, target Slot) (ConvergenceResult, error)
}

// ConvergenceExecutor implements Converger over a ConvergenceEngine:
// plan, apply, then re-read live state to confirm the applied slot
// equals the requested slot. Applying the same target twice in a row is
// a no-op on the second call (the plan comes back empty). No failure is
// retried here; classification is surfaced to the caller:
//
//   - plan or apply error: ErrConvergenceFailed
//   - live state disagrees after a reported success: ErrVerificationMismatch
type ConvergenceExecutor struct {
	Engine ConvergenceEngine
}

func (e *ConvergenceExecutor) Converge(ctx context.Context, environment string, target Slot) (ConvergenceResult, error) {
	plan, err := e.Engine.Plan(ctx, DesiredState{Environment: environment, ActiveSlot: target})
	if err != nil {
		return ConvergenceResult{}, fmt.Errorf("%w: plan %s->%s: %v", ErrConvergenceFailed, environment, target, err)
	}

	if !plan.Empty {
		if err := e.Engine.Apply(ctx, plan); err != nil {
			return ConvergenceResult{}, fmt.Errorf("%w: apply plan %s: %v", ErrConvergenceFailed, plan.ID, err)
		}
	}

	live, err := e.Engine.ReadLiveState(ctx, environment)
	if err != nil {
		return ConvergenceResult{}, fmt.Errorf("%w: read live state: %v", ErrConvergenceFailed, err)
	}
	if live.ActiveSlot != target {
		return ConvergenceResult{}, fmt.Errorf("%w: requested %s, live state reports %s", ErrVerificationMismatch, target, live.ActiveSlot)
	}

	return ConvergenceResult{
		AppliedSlot: target,
		PlanID:      plan.ID,
		DiffSummary: plan.DiffSummary,
	}, nil
}
