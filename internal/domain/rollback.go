package domain

import (
	"context"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

// RollbackPolicy bounds the compensating action after a failed switch.
type RollbackPolicy struct {
	MaxAttempts uint
	Interval    time.Duration
	Validation  ValidationPolicy
}

// RollbackResult reports whether the prior slot was restored.
type RollbackResult struct {
	Succeeded bool
	Restored  Slot
	Attempts  int
	Detail    string
}

// RollbackController drives "switch back to the previous slot" with a
// bounded attempt budget. Every attempt converges to the snapshotted
// slot and then validates it healthy; both must succeed for the rollback
// to count. Exhausting the budget is fatal and reported loudly, since
// it means the environment may be serving traffic from an unvalidated
// slot with no automated recovery path remaining.
type RollbackController struct {
	Converger Converger
	Validator Validator
	Attempts  AttemptRepository
	Now       func() time.Time
}

// Rollback restores the slot recorded in snapshot. Each attempt is
// appended to the audit trail with outcome AttemptRolledBack or
// AttemptRollbackFailed. On exhaustion it returns ErrRollbackFailed.
func (c *RollbackController) Rollback(ctx context.Context, snapshot StateSnapshot, policy RollbackPolicy) (RollbackResult, error) {
	if policy.MaxAttempts == 0 {
		return RollbackResult{}, fmt.Errorf("%w: rollback needs at least one attempt", ErrInvalidArgument)
	}

	target := snapshot.RestoreTarget()
	env := snapshot.Environment
	attemptNo := 0

	err := retry.Do(
		func() error {
			attemptNo++
			if err := c.attempt(ctx, env, target, policy); err != nil {
				c.record(ctx, env, target, attemptNo, AttemptRollbackFailed, err.Error())
				return err
			}
			c.record(ctx, env, target, attemptNo, AttemptRolledBack, "prior slot restored and validated")
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(policy.MaxAttempts),
		retry.Delay(policy.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		log.Error().
			Str("environment", env).
			Str("restore_slot", string(target)).
			Int("attempts", attemptNo).
			Err(err).
			Msg("ROLLBACK EXHAUSTED: environment may be serving an unvalidated slot, manual intervention required")
		return RollbackResult{Succeeded: false, Restored: target, Attempts: attemptNo, Detail: err.Error()},
			fmt.Errorf("%w: %v", ErrRollbackFailed, err)
	}

	return RollbackResult{Succeeded: true, Restored: target, Attempts: attemptNo}, nil
}

func (c *RollbackController) attempt(ctx context.Context, env string, target Slot, policy RollbackPolicy) error {
	if _, err := c.Converger.Converge(ctx, env, target); err != nil {
		return fmt.Errorf("converge back to %s: %w", target, err)
	}
	verdict, err := c.Validator.Validate(ctx, env, target, policy.Validation)
	if err != nil {
		return fmt.Errorf("validate restored slot %s: %w", target, err)
	}
	if !verdict.Passed {
		return fmt.Errorf("restored slot %s unhealthy: failed checks %v", target, verdict.FailedChecks())
	}
	return nil
}

// record appends an audit entry; failures to write the trail do not
// change the rollback outcome, only the log.
func (c *RollbackController) record(ctx context.Context, env string, target Slot, attemptNo int, outcome AttemptOutcome, detail string) {
	attempt := SwitchAttempt{
		Environment: env,
		FromSlot:    target.Other(),
		ToSlot:      target,
		Attempt:     attemptNo,
		Outcome:     outcome,
		Detail:      detail,
		RecordedAt:  c.now(),
	}
	if err := c.Attempts.Append(ctx, attempt); err != nil {
		log.Warn().Err(err).Str("environment", env).Msg("failed to record rollback attempt")
	}
}

func (c *RollbackController) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
