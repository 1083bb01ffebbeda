package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// ValidationPolicy bounds one validation round. The overall round budget
// is MaxAttempts probes per check with a fixed Interval between
// attempts; exhausting the budget fails the check.
type ValidationPolicy struct {
	Checks      []CheckName
	MaxAttempts uint
	Interval    time.Duration
	// SettleDelay is waited once before the first probe. Used for
	// post-switch validation to let traffic stabilize on the new slot.
	SettleDelay time.Duration
}

// DefaultValidationPolicy runs every check up to three times, one
// second apart.
func DefaultValidationPolicy() ValidationPolicy {
	return ValidationPolicy{
		Checks:      DefaultChecks,
		MaxAttempts: 3,
		Interval:    time.Second,
	}
}

// Validator produces a HealthVerdict for a slot.
type Validator interface {
	Validate(ctx context.Context, environment string, slot Slot, policy ValidationPolicy) (HealthVerdict, error)
}

// RetryingValidator wraps a Prober with bounded per-check retries so
// callers need not reason about the eventual consistency of freshly
// provisioned infrastructure (DNS propagation, service warm-up).
// Independent checks fan out concurrently within a round; each check
// short-circuits on its first successful probe, and the aggregate
// verdict is the AND of all checks.
type RetryingValidator struct {
	Prober    Prober
	Endpoints EndpointResolver
	Now       func() time.Time
}

func (v *RetryingValidator) Validate(ctx context.Context, environment string, slot Slot, policy ValidationPolicy) (HealthVerdict, error) {
	if policy.MaxAttempts == 0 {
		return HealthVerdict{}, fmt.Errorf("%w: validation needs at least one attempt", ErrInvalidArgument)
	}
	checks := policy.Checks
	if len(checks) == 0 {
		checks = DefaultChecks
	}

	endpoint, err := v.Endpoints.Resolve(ctx, environment, slot)
	if err != nil {
		return HealthVerdict{}, fmt.Errorf("resolve endpoint for %s/%s: %w", environment, slot, err)
	}

	if policy.SettleDelay > 0 {
		select {
		case <-time.After(policy.SettleDelay):
		case <-ctx.Done():
			return HealthVerdict{}, ctx.Err()
		}
	}

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check CheckName) {
			defer wg.Done()
			results[i] = v.runCheck(ctx, endpoint, check, policy)
		}(i, check)
	}
	wg.Wait()

	verdict := HealthVerdict{
		Slot:        slot,
		Passed:      true,
		Checks:      results,
		EvaluatedAt: v.now(),
	}
	for _, r := range results {
		verdict.Passed = verdict.Passed && r.Passed
	}
	return verdict, nil
}

// runCheck probes one check up to MaxAttempts times, keeping the last
// result. A round-budget overrun (context expiry) is reported the same
// way as an explicit probe failure.
func (v *RetryingValidator) runCheck(ctx context.Context, endpoint SlotEndpoint, check CheckName, policy ValidationPolicy) CheckResult {
	var last CheckResult
	err := retry.Do(
		func() error {
			last = v.Prober.Probe(ctx, endpoint, check)
			if !last.Passed {
				return fmt.Errorf("check %s: %s", check, last.Detail)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(policy.MaxAttempts),
		retry.Delay(policy.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil && last.Check == "" {
		// Context expired before a single probe completed.
		return CheckResult{Check: check, Passed: false, Detail: err.Error()}
	}
	return last
}

func (v *RetryingValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
