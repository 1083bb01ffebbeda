package domain_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/switchover/switchover/internal/domain"
)

// recordingRunner runs activities and records their names in order so
// tests can assert execution sequence.
type recordingRunner struct {
	ctx      context.Context
	names    []string
	delegate domain.DurableRunner
}

func (r *recordingRunner) ID() string               { return r.delegate.ID() }
func (r *recordingRunner) Context() context.Context { return r.ctx }

func (r *recordingRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	r.names = append(r.names, activity.Name())
	return r.delegate.Run(activity, in)
}

func (r *recordingRunner) indexOf(name string) int {
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	return -1
}

// syncRunnerImpl runs activities synchronously (no durability).
type syncRunnerImpl struct {
	ctx context.Context
}

func (s *syncRunnerImpl) ID() string               { return "test-sync" }
func (s *syncRunnerImpl) Context() context.Context { return s.ctx }
func (s *syncRunnerImpl) Run(activity domain.Activity[any, any], in any) (any, error) {
	return activity.Run(s.ctx, in)
}

// memStates is an in-memory StateRepository.
type memStates struct {
	m map[string]domain.DeploymentState
}

func newMemStates() *memStates { return &memStates{m: map[string]domain.DeploymentState{}} }

func (s *memStates) Get(_ context.Context, env string) (domain.DeploymentState, error) {
	state, ok := s.m[env]
	if !ok {
		return domain.DeploymentState{}, domain.ErrNotFound
	}
	return state, nil
}

func (s *memStates) Put(_ context.Context, state domain.DeploymentState) error {
	s.m[state.Environment] = state
	return nil
}

// memSnapshots is an in-memory append-only SnapshotRepository.
type memSnapshots struct {
	list []domain.StateSnapshot
}

func (s *memSnapshots) Append(_ context.Context, snap domain.StateSnapshot) (domain.SnapshotID, error) {
	for _, existing := range s.list {
		if existing.ID == snap.ID {
			return "", domain.ErrAlreadyExists
		}
	}
	s.list = append(s.list, snap)
	return snap.ID, nil
}

func (s *memSnapshots) Get(_ context.Context, id domain.SnapshotID) (domain.StateSnapshot, error) {
	for _, snap := range s.list {
		if snap.ID == id {
			return snap, nil
		}
	}
	return domain.StateSnapshot{}, domain.ErrNotFound
}

func (s *memSnapshots) ListByEnvironment(_ context.Context, env string) ([]domain.StateSnapshot, error) {
	var out []domain.StateSnapshot
	for i := len(s.list) - 1; i >= 0; i-- {
		if s.list[i].Environment == env {
			out = append(out, s.list[i])
		}
	}
	return out, nil
}

func (s *memSnapshots) PruneBefore(_ context.Context, env string, cutoff time.Time) (int, error) {
	var kept []domain.StateSnapshot
	pruned := 0
	for _, snap := range s.list {
		if snap.Environment == env && snap.TakenAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, snap)
	}
	s.list = kept
	return pruned, nil
}

// memAttempts is an in-memory AttemptRepository.
type memAttempts struct {
	list []domain.SwitchAttempt
}

func (a *memAttempts) Append(_ context.Context, attempt domain.SwitchAttempt) error {
	a.list = append(a.list, attempt)
	return nil
}

func (a *memAttempts) ListByEnvironment(_ context.Context, env string) ([]domain.SwitchAttempt, error) {
	var out []domain.SwitchAttempt
	for _, attempt := range a.list {
		if attempt.Environment == env {
			out = append(out, attempt)
		}
	}
	return out, nil
}

// scriptedValidator returns one scripted verdict per call, repeating the
// last entry once the script runs out.
type scriptedValidator struct {
	script []bool
	calls  int
}

func (v *scriptedValidator) Validate(_ context.Context, _ string, slot domain.Slot, _ domain.ValidationPolicy) (domain.HealthVerdict, error) {
	idx := v.calls
	if idx >= len(v.script) {
		idx = len(v.script) - 1
	}
	v.calls++
	passed := v.script[idx]
	detail := "ok"
	if !passed {
		detail = "endpoint probe timed out"
	}
	return domain.HealthVerdict{
		Slot:   slot,
		Passed: passed,
		Checks: []domain.CheckResult{
			{Check: domain.CheckEndpoint, Passed: passed, Detail: detail},
		},
		EvaluatedAt: time.Now(),
	}, nil
}

// scriptedConverger succeeds or fails per call according to its script
// (nil = success) and counts every call.
type scriptedConverger struct {
	script  []error
	calls   int
	applied []domain.Slot
}

func (c *scriptedConverger) Converge(_ context.Context, _ string, target domain.Slot) (domain.ConvergenceResult, error) {
	idx := c.calls
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	c.calls++
	if len(c.script) > 0 {
		if err := c.script[idx]; err != nil {
			return domain.ConvergenceResult{}, err
		}
	}
	c.applied = append(c.applied, target)
	return domain.ConvergenceResult{AppliedSlot: target, PlanID: fmt.Sprintf("plan-%d", c.calls)}, nil
}

// stubLiveEngine supports the snapshotter's plan-id read only.
type stubLiveEngine struct{}

func (stubLiveEngine) Plan(_ context.Context, _ domain.DesiredState) (domain.ConvergencePlan, error) {
	return domain.ConvergencePlan{}, errors.New("not used")
}
func (stubLiveEngine) Apply(_ context.Context, _ domain.ConvergencePlan) error {
	return errors.New("not used")
}
func (stubLiveEngine) ReadLiveState(_ context.Context, env string) (domain.LiveState, error) {
	return domain.LiveState{Environment: env, PlanID: "prior-plan"}, nil
}

type fixture struct {
	states    *memStates
	snapshots *memSnapshots
	attempts  *memAttempts
	validator *scriptedValidator
	converger *scriptedConverger
	wf        *domain.SwitchWorkflow
	recorder  *recordingRunner
}

func testPolicy() domain.SwitchPolicy {
	validation := domain.ValidationPolicy{
		Checks:      []domain.CheckName{domain.CheckEndpoint},
		MaxAttempts: 1,
	}
	return domain.SwitchPolicy{
		PreValidation:  validation,
		PostValidation: validation,
		Rollback: domain.RollbackPolicy{
			MaxAttempts: 2,
			Validation:  validation,
		},
	}
}

func newFixture(t *testing.T, active domain.Slot, validator *scriptedValidator, converger *scriptedConverger) *fixture {
	t.Helper()
	states := newMemStates()
	state := domain.NewDeploymentState("dev")
	state.ActiveSlot = active
	state.LastKnownGood = active
	states.m["dev"] = state

	snapshots := &memSnapshots{}
	attempts := &memAttempts{}

	wf := &domain.SwitchWorkflow{
		States:      states,
		Snapshotter: &domain.Snapshotter{Snapshots: snapshots, Engine: stubLiveEngine{}},
		Validator:   validator,
		Converger:   converger,
		Rollback: &domain.RollbackController{
			Converger: converger,
			Validator: validator,
			Attempts:  attempts,
		},
		Attempts: attempts,
	}

	ctx := context.Background()
	return &fixture{
		states:    states,
		snapshots: snapshots,
		attempts:  attempts,
		validator: validator,
		converger: converger,
		wf:        wf,
		recorder:  &recordingRunner{ctx: ctx, delegate: &syncRunnerImpl{ctx: ctx}},
	}
}

func (f *fixture) run(t *testing.T, target domain.Slot) domain.SwitchResult {
	t.Helper()
	result, err := f.wf.Run(f.recorder, domain.SwitchRequest{
		Environment: "dev",
		Target:      target,
		Policy:      testPolicy(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result
}

func (f *fixture) activeSlot(t *testing.T) domain.Slot {
	t.Helper()
	state, err := f.states.Get(context.Background(), "dev")
	if err != nil {
		t.Fatalf("Get state: %v", err)
	}
	return state.ActiveSlot
}

// Scenario A: healthy target, clean apply, healthy result.
func TestSwitch_CommitsHealthyTarget(t *testing.T) {
	f := newFixture(t, domain.SlotBlue,
		&scriptedValidator{script: []bool{true, true}},
		&scriptedConverger{},
	)

	result := f.run(t, domain.SlotGreen)

	if result.Outcome != domain.OutcomeCommitted {
		t.Fatalf("Outcome = %q, want committed (reason: %s)", result.Outcome, result.Reason)
	}
	if got := f.activeSlot(t); got != domain.SlotGreen {
		t.Errorf("ActiveSlot = %q, want green", got)
	}
	if f.converger.calls != 1 {
		t.Errorf("converge calls = %d, want 1", f.converger.calls)
	}
	if len(f.attempts.list) != 1 || f.attempts.list[0].Outcome != domain.AttemptSuccess {
		t.Errorf("attempt log = %+v, want exactly one success attempt", f.attempts.list)
	}
	if result.State.LastKnownGood != domain.SlotGreen {
		t.Errorf("LastKnownGood = %q, want green after commit", result.State.LastKnownGood)
	}
}

// Scenario B: target fails pre-switch validation; the switch is never
// attempted against an unhealthy target.
func TestSwitch_AbortsOnPreValidationFailure(t *testing.T) {
	f := newFixture(t, domain.SlotBlue,
		&scriptedValidator{script: []bool{false}},
		&scriptedConverger{},
	)

	result := f.run(t, domain.SlotGreen)

	if result.Outcome != domain.OutcomeAborted {
		t.Fatalf("Outcome = %q, want aborted", result.Outcome)
	}
	if f.converger.calls != 0 {
		t.Errorf("converge calls = %d, want 0 (failure containment)", f.converger.calls)
	}
	if got := f.activeSlot(t); got != domain.SlotBlue {
		t.Errorf("ActiveSlot = %q, want blue unchanged", got)
	}
	if len(f.snapshots.list) != 0 {
		t.Errorf("snapshots = %d, want 0 (no mutation was attempted)", len(f.snapshots.list))
	}
	if len(f.attempts.list) != 1 || f.attempts.list[0].Outcome != domain.AttemptValidationFailed {
		t.Errorf("attempt log = %+v, want one validation-failed attempt", f.attempts.list)
	}
}

// Scenario C: post-switch validation fails, rollback restores blue.
func TestSwitch_RollsBackOnPostValidationFailure(t *testing.T) {
	// Validator calls: pre-switch (pass), post-switch (fail), rollback
	// verification (pass).
	f := newFixture(t, domain.SlotBlue,
		&scriptedValidator{script: []bool{true, false, true}},
		&scriptedConverger{},
	)

	result := f.run(t, domain.SlotGreen)

	if result.Outcome != domain.OutcomeAborted {
		t.Fatalf("Outcome = %q, want aborted-with-rollback (reason: %s)", result.Outcome, result.Reason)
	}
	if !result.RolledBack {
		t.Error("RolledBack = false, want true")
	}
	if got := f.activeSlot(t); got != domain.SlotBlue {
		t.Errorf("ActiveSlot = %q, want blue restored", got)
	}
	// Converge ran twice: once to green, once back to blue.
	if f.converger.calls != 2 {
		t.Errorf("converge calls = %d, want 2", f.converger.calls)
	}
	if len(f.converger.applied) != 2 || f.converger.applied[1] != domain.SlotBlue {
		t.Errorf("applied slots = %v, want [green blue]", f.converger.applied)
	}
	if len(f.attempts.list) < 2 {
		t.Fatalf("attempt log length = %d, want >= 2", len(f.attempts.list))
	}
	last := f.attempts.list[len(f.attempts.list)-1]
	if last.Outcome != domain.AttemptRolledBack {
		t.Errorf("last attempt outcome = %q, want rolled-back", last.Outcome)
	}
}

// Scenario D: rollback itself exhausts its budget; the environment
// latches fatal with the unsafe slot recorded for operator inspection.
func TestSwitch_FatalWhenRollbackExhausted(t *testing.T) {
	convErr := fmt.Errorf("%w: provider rejected change", domain.ErrConvergenceFailed)
	// Converge calls: switch to green (ok), then rollback attempts all fail.
	f := newFixture(t, domain.SlotBlue,
		&scriptedValidator{script: []bool{true, false}},
		&scriptedConverger{script: []error{nil, convErr, convErr}},
	)

	result := f.run(t, domain.SlotGreen)

	if result.Outcome != domain.OutcomeFatal {
		t.Fatalf("Outcome = %q, want fatal (reason: %s)", result.Outcome, result.Reason)
	}
	state, err := f.states.Get(context.Background(), "dev")
	if err != nil {
		t.Fatal(err)
	}
	if state.ActiveSlot != domain.SlotGreen {
		t.Errorf("ActiveSlot = %q, want green (unsafe state left for inspection)", state.ActiveSlot)
	}
	if !state.Fatal {
		t.Error("Fatal latch not set")
	}
	if state.LastKnownGood != domain.SlotBlue {
		t.Errorf("LastKnownGood = %q, want blue preserved", state.LastKnownGood)
	}
	// Rollback budget was 2 attempts: 1 switch converge + 2 rollback converges.
	if f.converger.calls != 3 {
		t.Errorf("converge calls = %d, want 3 (bounded rollback)", f.converger.calls)
	}

	var rollbackFailures int
	for _, a := range f.attempts.list {
		if a.Outcome == domain.AttemptRollbackFailed {
			rollbackFailures++
		}
	}
	if rollbackFailures != 2 {
		t.Errorf("rollback-failed attempts = %d, want 2", rollbackFailures)
	}

	// A latched environment refuses further automated switches.
	again := f.run(t, domain.SlotBlue)
	if again.Outcome != domain.OutcomeFatal {
		t.Errorf("switch after fatal latch: Outcome = %q, want fatal", again.Outcome)
	}
	if !strings.Contains(again.Reason, "clear the latch") {
		t.Errorf("Reason = %q, want latch hint", again.Reason)
	}
}

// Scenario E: switching to the already-active slot is a committed no-op.
func TestSwitch_NoOpWhenTargetAlreadyActive(t *testing.T) {
	f := newFixture(t, domain.SlotBlue,
		&scriptedValidator{script: []bool{true}},
		&scriptedConverger{},
	)

	result := f.run(t, domain.SlotBlue)

	if result.Outcome != domain.OutcomeCommitted {
		t.Fatalf("Outcome = %q, want committed", result.Outcome)
	}
	if f.converger.calls != 0 {
		t.Errorf("converge calls = %d, want 0", f.converger.calls)
	}
	if f.validator.calls != 0 {
		t.Errorf("validator calls = %d, want 0", f.validator.calls)
	}
	if len(f.attempts.list) != 0 {
		t.Errorf("attempt log = %+v, want empty for a no-op", f.attempts.list)
	}
}

// The snapshot must be captured strictly before the mutating converge
// call, for every switch that reaches Converging.
func TestSwitch_SnapshotPrecedesConvergence(t *testing.T) {
	f := newFixture(t, domain.SlotBlue,
		&scriptedValidator{script: []bool{true, true}},
		&scriptedConverger{},
	)

	f.run(t, domain.SlotGreen)

	snapAt := f.recorder.indexOf("capture-snapshot")
	convergeAt := f.recorder.indexOf("converge-slot")
	if snapAt < 0 || convergeAt < 0 {
		t.Fatalf("activities missing: recorded %v", f.recorder.names)
	}
	if snapAt >= convergeAt {
		t.Errorf("snapshot at %d, converge at %d: snapshot must come first", snapAt, convergeAt)
	}

	if len(f.snapshots.list) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(f.snapshots.list))
	}
	snap := f.snapshots.list[0]
	if snap.RestoreTarget() != domain.SlotBlue {
		t.Errorf("snapshot restore target = %q, want blue (pre-attempt slot)", snap.RestoreTarget())
	}
	if snap.PlanID != "prior-plan" {
		t.Errorf("snapshot PlanID = %q, want prior-plan", snap.PlanID)
	}
}

// ConvergenceFailed aborts without rollback: no traffic moved.
func TestSwitch_AbortsWithoutRollbackOnConvergenceFailure(t *testing.T) {
	convErr := fmt.Errorf("%w: quota exceeded", domain.ErrConvergenceFailed)
	f := newFixture(t, domain.SlotBlue,
		&scriptedValidator{script: []bool{true}},
		&scriptedConverger{script: []error{convErr}},
	)

	result := f.run(t, domain.SlotGreen)

	if result.Outcome != domain.OutcomeAborted {
		t.Fatalf("Outcome = %q, want aborted", result.Outcome)
	}
	if result.RolledBack {
		t.Error("RolledBack = true, want false (nothing to roll back)")
	}
	if got := f.activeSlot(t); got != domain.SlotBlue {
		t.Errorf("ActiveSlot = %q, want blue", got)
	}
	if len(f.attempts.list) != 1 || f.attempts.list[0].Outcome != domain.AttemptConvergenceFailed {
		t.Errorf("attempt log = %+v, want one convergence-failed attempt", f.attempts.list)
	}
}

// A verification mismatch is classified distinctly in the abort reason.
func TestSwitch_ReportsVerificationMismatch(t *testing.T) {
	mismatch := fmt.Errorf("%w: requested green, live state reports blue", domain.ErrVerificationMismatch)
	f := newFixture(t, domain.SlotBlue,
		&scriptedValidator{script: []bool{true}},
		&scriptedConverger{script: []error{mismatch}},
	)

	result := f.run(t, domain.SlotGreen)

	if result.Outcome != domain.OutcomeAborted {
		t.Fatalf("Outcome = %q, want aborted", result.Outcome)
	}
	if !strings.Contains(result.Reason, string(domain.FailureVerificationMismatch)) {
		t.Errorf("Reason = %q, want verification-mismatch classification", result.Reason)
	}
}

// The force policy turns the hard precondition into a warning.
func TestSwitch_ForcePolicyProceedsPastFailedPreValidation(t *testing.T) {
	f := newFixture(t, domain.SlotBlue,
		&scriptedValidator{script: []bool{false, true}},
		&scriptedConverger{},
	)

	policy := testPolicy()
	policy.ForceUnvalidated = true
	result, err := f.wf.Run(f.recorder, domain.SwitchRequest{
		Environment: "dev",
		Target:      domain.SlotGreen,
		Policy:      policy,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Outcome != domain.OutcomeCommitted {
		t.Fatalf("Outcome = %q, want committed (reason: %s)", result.Outcome, result.Reason)
	}
	if !strings.Contains(result.Reason, "forced") {
		t.Errorf("Reason = %q, want forced notice", result.Reason)
	}
	if f.converger.calls != 1 {
		t.Errorf("converge calls = %d, want 1", f.converger.calls)
	}
}

// First switch for an unknown environment initializes blue-active state.
func TestSwitch_InitializesStateOnFirstDeployment(t *testing.T) {
	f := newFixture(t, domain.SlotBlue,
		&scriptedValidator{script: []bool{true, true}},
		&scriptedConverger{},
	)
	delete(f.states.m, "dev")

	result := f.run(t, domain.SlotGreen)

	if result.Outcome != domain.OutcomeCommitted {
		t.Fatalf("Outcome = %q, want committed (reason: %s)", result.Outcome, result.Reason)
	}
	if got := f.activeSlot(t); got != domain.SlotGreen {
		t.Errorf("ActiveSlot = %q, want green", got)
	}
}
