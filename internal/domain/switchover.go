package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SwitchPhase enumerates the states of the switch state machine.
type SwitchPhase string

const (
	PhaseIdle             SwitchPhase = "idle"
	PhaseValidatingTarget SwitchPhase = "validating-target"
	PhaseConverging       SwitchPhase = "converging"
	PhaseValidatingResult SwitchPhase = "validating-result"
	PhaseCommitted        SwitchPhase = "committed"
	PhaseRollingBack      SwitchPhase = "rolling-back"
	PhaseFatal            SwitchPhase = "fatal"
)

// SwitchOutcome is the definitive terminal outcome of a switch request.
// Every request ends in exactly one of these after exhausting its
// bounded retry budgets; a switch is never left in doubt.
type SwitchOutcome string

const (
	OutcomeCommitted SwitchOutcome = "committed"
	OutcomeAborted   SwitchOutcome = "aborted"
	OutcomeFatal     SwitchOutcome = "fatal"
)

// FailureKind classifies a step failure for the state machine, replacing
// implicit continue-on-success control flow with explicit result kinds.
type FailureKind string

const (
	FailureNone                 FailureKind = ""
	FailureConvergence          FailureKind = "convergence"
	FailureVerificationMismatch FailureKind = "verification-mismatch"
)

// SwitchPolicy configures one switch request end to end.
type SwitchPolicy struct {
	PreValidation  ValidationPolicy
	PostValidation ValidationPolicy
	Rollback       RollbackPolicy
	// ForceUnvalidated proceeds with the switch even when pre-switch
	// validation fails. Never defaulted on: the strict reading (hard
	// precondition) is the default and this is the explicit escape hatch.
	ForceUnvalidated bool
}

// DefaultSwitchPolicy gives three probe attempts per check one second
// apart, a five second settle before post-switch probing, and three
// rollback attempts.
func DefaultSwitchPolicy() SwitchPolicy {
	pre := DefaultValidationPolicy()
	post := DefaultValidationPolicy()
	post.SettleDelay = 5 * time.Second
	return SwitchPolicy{
		PreValidation:  pre,
		PostValidation: post,
		Rollback: RollbackPolicy{
			MaxAttempts: 3,
			Interval:    2 * time.Second,
			Validation:  DefaultValidationPolicy(),
		},
	}
}

// SwitchRequest asks the orchestrator to route traffic to Target.
type SwitchRequest struct {
	Environment string
	Target      Slot
	Policy      SwitchPolicy
}

// SwitchResult is the structured terminal outcome returned to the caller.
type SwitchResult struct {
	Outcome    SwitchOutcome
	Phase      SwitchPhase
	State      DeploymentState
	Reason     string
	RolledBack bool
}

// SwitchWorkflow is the top-level state machine:
//
//	Idle → ValidatingTarget → Converging → ValidatingResult →
//	{Committed | RollingBack} → {Idle | Fatal}
//
// Each step runs as a durable activity so the workflow survives engine
// restarts when backed by a durable engine. The snapshot is always
// captured strictly before the mutating convergence call.
type SwitchWorkflow struct {
	States      StateRepository
	Snapshotter *Snapshotter
	Validator   Validator
	Converger   Converger
	Rollback    *RollbackController
	Attempts    AttemptRepository
	Now         func() time.Time
}

// Name is the stable workflow registration name.
func (wf *SwitchWorkflow) Name() string { return "slot-switch" }

// switchMachine carries the mutable run state between transitions.
type switchMachine struct {
	req      SwitchRequest
	state    DeploymentState
	snapshot StateSnapshot
	phase    SwitchPhase
	done     bool
	result   SwitchResult
	// forcedPast records that pre-validation failed but the policy
	// forced the switch anyway; surfaced in the final reason.
	forcedPast bool
}

func (m *switchMachine) terminal(phase SwitchPhase, outcome SwitchOutcome, reason string) {
	m.phase = phase
	m.done = true
	m.result = SwitchResult{
		Outcome: outcome,
		Phase:   phase,
		State:   m.state,
		Reason:  reason,
	}
}

// Run executes one switch request to a definitive terminal outcome.
// Domain failures (unhealthy slot, convergence refusal, exhausted
// rollback) end in the result; only infrastructure errors (storage,
// engine plumbing) are returned as errors.
func (wf *SwitchWorkflow) Run(runner DurableRunner, req SwitchRequest) (SwitchResult, error) {
	state, err := RunActivity(runner, wf.LoadState(), LoadStateInput{Environment: req.Environment})
	if err != nil {
		return SwitchResult{}, fmt.Errorf("load state: %w", err)
	}

	m := &switchMachine{req: req, state: state, phase: PhaseValidatingTarget}

	if state.Fatal {
		m.terminal(PhaseFatal, OutcomeFatal,
			"environment latched fatal by a previous failed rollback; clear the latch before switching")
		return m.result, nil
	}

	// Switching to the active slot is a no-op, not an error: commit
	// immediately with zero convergence calls.
	if req.Target == state.ActiveSlot {
		m.terminal(PhaseCommitted, OutcomeCommitted,
			fmt.Sprintf("slot %s already active", req.Target))
		return m.result, nil
	}

	for !m.done {
		if err := wf.advance(runner, m); err != nil {
			return SwitchResult{}, err
		}
	}
	return m.result, nil
}

// advance is the single transition function of the state machine.
func (wf *SwitchWorkflow) advance(runner DurableRunner, m *switchMachine) error {
	switch m.phase {
	case PhaseValidatingTarget:
		return wf.stepValidateTarget(runner, m)
	case PhaseConverging:
		return wf.stepConverge(runner, m)
	case PhaseValidatingResult:
		return wf.stepValidateResult(runner, m)
	case PhaseRollingBack:
		return wf.stepRollback(runner, m)
	default:
		return fmt.Errorf("switch workflow in unexpected phase %q", m.phase)
	}
}

func (wf *SwitchWorkflow) stepValidateTarget(runner DurableRunner, m *switchMachine) error {
	verdict, err := RunActivity(runner, wf.ValidateTarget(), ValidateInput{
		Environment: m.req.Environment,
		Slot:        m.req.Target,
		Policy:      m.req.Policy.PreValidation,
	})
	if err != nil {
		return fmt.Errorf("validate target: %w", err)
	}

	if !verdict.Passed {
		if !m.req.Policy.ForceUnvalidated {
			reason := fmt.Sprintf("target %s unhealthy before switch: failed checks %v",
				m.req.Target, verdict.FailedChecks())
			if err := wf.recordAttempt(runner, m, AttemptValidationFailed, reason); err != nil {
				return err
			}
			m.terminal(PhaseIdle, OutcomeAborted, reason)
			return nil
		}
		m.forcedPast = true
	}

	m.phase = PhaseConverging
	return nil
}

func (wf *SwitchWorkflow) stepConverge(runner DurableRunner, m *switchMachine) error {
	// Snapshot strictly before the mutating apply.
	snapshot, err := RunActivity(runner, wf.CaptureSnapshot(), CaptureSnapshotInput{State: m.state})
	if err != nil {
		return fmt.Errorf("capture snapshot: %w", err)
	}
	m.snapshot = snapshot

	out, err := RunActivity(runner, wf.ConvergeSlot(), ConvergeInput{
		Environment: m.req.Environment,
		Target:      m.req.Target,
	})
	if err != nil {
		return fmt.Errorf("converge: %w", err)
	}

	if out.Failure != FailureNone {
		// No traffic moved; the snapshot is simply left behind.
		reason := fmt.Sprintf("convergence to %s failed (%s): %s", m.req.Target, out.Failure, out.Detail)
		if err := wf.recordAttempt(runner, m, AttemptConvergenceFailed, reason); err != nil {
			return err
		}
		m.terminal(PhaseIdle, OutcomeAborted, reason)
		return nil
	}

	m.phase = PhaseValidatingResult
	return nil
}

func (wf *SwitchWorkflow) stepValidateResult(runner DurableRunner, m *switchMachine) error {
	verdict, err := RunActivity(runner, wf.ValidateResult(), ValidateInput{
		Environment: m.req.Environment,
		Slot:        m.req.Target,
		Policy:      m.req.Policy.PostValidation,
	})
	if err != nil {
		return fmt.Errorf("validate result: %w", err)
	}

	if !verdict.Passed {
		reason := fmt.Sprintf("%s unhealthy after switch: failed checks %v",
			m.req.Target, verdict.FailedChecks())
		if err := wf.recordAttempt(runner, m, AttemptValidationFailed, reason); err != nil {
			return err
		}
		m.phase = PhaseRollingBack
		return nil
	}

	committed, err := RunActivity(runner, wf.CommitState(), CommitInput{
		Environment: m.req.Environment,
		ActiveSlot:  m.req.Target,
	})
	if err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	if err := wf.recordAttempt(runner, m, AttemptSuccess, "switch committed"); err != nil {
		return err
	}

	m.state = committed
	reason := "switch committed"
	if m.forcedPast {
		reason = "switch committed (pre-switch validation failed, forced by policy)"
	}
	m.terminal(PhaseCommitted, OutcomeCommitted, reason)
	return nil
}

func (wf *SwitchWorkflow) stepRollback(runner DurableRunner, m *switchMachine) error {
	out, err := RunActivity(runner, wf.RollbackSlot(), RollbackInput{
		Snapshot: m.snapshot,
		Policy:   m.req.Policy.Rollback,
	})
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	if out.Succeeded {
		// DeploymentState is unchanged from before the failed attempt:
		// the environment is back exactly where it started.
		reason := fmt.Sprintf("%s failed post-switch validation; rolled back to %s after %d attempt(s)",
			m.req.Target, out.Restored, out.Attempts)
		m.terminal(PhaseIdle, OutcomeAborted, reason)
		m.result.RolledBack = true
		return nil
	}

	// Rollback exhausted. Record the unsafe slot honestly and latch the
	// environment fatal so no automated switch runs until cleared.
	latched, err := RunActivity(runner, wf.CommitState(), CommitInput{
		Environment: m.req.Environment,
		ActiveSlot:  m.req.Target,
		Fatal:       true,
	})
	if err != nil {
		return fmt.Errorf("latch fatal state: %w", err)
	}
	m.state = latched
	m.terminal(PhaseFatal, OutcomeFatal,
		fmt.Sprintf("rollback to %s exhausted after %d attempt(s): %s; manual intervention required",
			out.Restored, out.Attempts, out.Detail))
	return nil
}

func (wf *SwitchWorkflow) recordAttempt(runner DurableRunner, m *switchMachine, outcome AttemptOutcome, detail string) error {
	_, err := RunActivity(runner, wf.RecordAttempt(), SwitchAttempt{
		Environment: m.req.Environment,
		FromSlot:    m.state.ActiveSlot,
		ToSlot:      m.req.Target,
		Attempt:     1,
		Outcome:     outcome,
		Detail:      detail,
	})
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Activity inputs and outputs. All are JSON-serializable so durable
// engines can persist and replay them.

type LoadStateInput struct {
	Environment string
}

type ValidateInput struct {
	Environment string
	Slot        Slot
	Policy      ValidationPolicy
}

type CaptureSnapshotInput struct {
	State DeploymentState
}

type ConvergeInput struct {
	Environment string
	Target      Slot
}

type ConvergeOutput struct {
	Result  ConvergenceResult
	Failure FailureKind
	Detail  string
}

type RollbackInput struct {
	Snapshot StateSnapshot
	Policy   RollbackPolicy
}

type RollbackOutput struct {
	Succeeded bool
	Restored  Slot
	Attempts  int
	Detail    string
}

type CommitInput struct {
	Environment string
	ActiveSlot  Slot
	Fatal       bool
}

// LoadState reads the environment's routing state, initializing it to
// the first-deployment default (blue active) when absent.
func (wf *SwitchWorkflow) LoadState() Activity[LoadStateInput, DeploymentState] {
	return NewActivity("load-state", func(ctx context.Context, in LoadStateInput) (DeploymentState, error) {
		state, err := wf.States.Get(ctx, in.Environment)
		if errors.Is(err, ErrNotFound) {
			state = NewDeploymentState(in.Environment)
			if err := wf.States.Put(ctx, state); err != nil {
				return DeploymentState{}, err
			}
			return state, nil
		}
		return state, err
	})
}

// ValidateTarget runs pre-switch validation against the requested slot.
func (wf *SwitchWorkflow) ValidateTarget() Activity[ValidateInput, HealthVerdict] {
	return NewActivity("validate-target", wf.validate)
}

// ValidateResult runs post-switch validation against the new active slot.
func (wf *SwitchWorkflow) ValidateResult() Activity[ValidateInput, HealthVerdict] {
	return NewActivity("validate-result", wf.validate)
}

func (wf *SwitchWorkflow) validate(ctx context.Context, in ValidateInput) (HealthVerdict, error) {
	return wf.Validator.Validate(ctx, in.Environment, in.Slot, in.Policy)
}

// CaptureSnapshot stores the pre-mutation state for rollback.
func (wf *SwitchWorkflow) CaptureSnapshot() Activity[CaptureSnapshotInput, StateSnapshot] {
	return NewActivity("capture-snapshot", func(ctx context.Context, in CaptureSnapshotInput) (StateSnapshot, error) {
		return wf.Snapshotter.Capture(ctx, in.State)
	})
}

// ConvergeSlot applies the routing change. Domain failures come back as
// classified output, not errors, so the state machine can branch on kind.
func (wf *SwitchWorkflow) ConvergeSlot() Activity[ConvergeInput, ConvergeOutput] {
	return NewActivity("converge-slot", func(ctx context.Context, in ConvergeInput) (ConvergeOutput, error) {
		result, err := wf.Converger.Converge(ctx, in.Environment, in.Target)
		if err != nil {
			switch {
			case errors.Is(err, ErrVerificationMismatch):
				return ConvergeOutput{Failure: FailureVerificationMismatch, Detail: err.Error()}, nil
			case errors.Is(err, ErrConvergenceFailed):
				return ConvergeOutput{Failure: FailureConvergence, Detail: err.Error()}, nil
			default:
				return ConvergeOutput{}, err
			}
		}
		return ConvergeOutput{Result: result}, nil
	})
}

// RollbackSlot drives the compensating action. Exhaustion is a domain
// outcome (Succeeded=false), not an activity error.
func (wf *SwitchWorkflow) RollbackSlot() Activity[RollbackInput, RollbackOutput] {
	return NewActivity("rollback-slot", func(ctx context.Context, in RollbackInput) (RollbackOutput, error) {
		result, err := wf.Rollback.Rollback(ctx, in.Snapshot, in.Policy)
		if err != nil && !errors.Is(err, ErrRollbackFailed) {
			return RollbackOutput{}, err
		}
		return RollbackOutput{
			Succeeded: result.Succeeded,
			Restored:  result.Restored,
			Attempts:  result.Attempts,
			Detail:    result.Detail,
		}, nil
	})
}

// CommitState persists the new routing state. This is the only place
// DeploymentState mutates.
func (wf *SwitchWorkflow) CommitState() Activity[CommitInput, DeploymentState] {
	return NewActivity("commit-state", func(ctx context.Context, in CommitInput) (DeploymentState, error) {
		state, err := wf.States.Get(ctx, in.Environment)
		if err != nil {
			return DeploymentState{}, err
		}
		state.ActiveSlot = in.ActiveSlot
		state.LastSwitch = wf.now()
		state.Fatal = in.Fatal
		if !in.Fatal {
			state.LastKnownGood = in.ActiveSlot
		}
		if err := wf.States.Put(ctx, state); err != nil {
			return DeploymentState{}, err
		}
		return state, nil
	})
}

// RecordAttempt appends one audit entry for the attempt trail.
func (wf *SwitchWorkflow) RecordAttempt() Activity[SwitchAttempt, struct{}] {
	return NewActivity("record-attempt", func(ctx context.Context, attempt SwitchAttempt) (struct{}, error) {
		if attempt.RecordedAt.IsZero() {
			attempt.RecordedAt = wf.now()
		}
		return struct{}{}, wf.Attempts.Append(ctx, attempt)
	})
}

func (wf *SwitchWorkflow) now() time.Time {
	if wf.Now != nil {
		return wf.Now()
	}
	return time.Now()
}
