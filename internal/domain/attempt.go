package domain

import "time"

// AttemptOutcome classifies how one switch (or rollback) attempt ended.
type AttemptOutcome string

const (
	AttemptSuccess           AttemptOutcome = "success"
	AttemptValidationFailed  AttemptOutcome = "validation-failed"
	AttemptConvergenceFailed AttemptOutcome = "convergence-failed"
	AttemptRolledBack        AttemptOutcome = "rolled-back"
	AttemptRollbackFailed    AttemptOutcome = "rollback-failed"
)

// SwitchAttempt is one entry in the audit trail of a switch request.
// The sequence of attempts for one request reconstructs what the
// orchestrator did and why.
type SwitchAttempt struct {
	Environment string
	FromSlot    Slot
	ToSlot      Slot
	Attempt     int
	Outcome     AttemptOutcome
	Detail      string
	RecordedAt  time.Time
}
