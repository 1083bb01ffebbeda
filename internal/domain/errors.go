package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource with the same identity
	// already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates that a caller-provided value violates
	// a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrValidationFailed indicates that a slot failed health validation
	// before any traffic was moved. Recoverable: the switch aborts with
	// no mutation performed.
	ErrValidationFailed = errors.New("slot validation failed")

	// ErrConvergenceFailed indicates that the convergence engine could
	// not plan or apply the requested routing change. Recoverable: no
	// traffic moved, the switch aborts without rollback.
	ErrConvergenceFailed = errors.New("convergence failed")

	// ErrVerificationMismatch indicates that the engine reported a
	// successful apply but the live state disagrees with the requested
	// state. It wraps ErrConvergenceFailed so callers classifying on the
	// broader kind still match, while logging can single it out: it
	// implies the external engine's own guarantees were violated.
	ErrVerificationMismatch = fmt.Errorf("live state verification mismatch: %w", ErrConvergenceFailed)

	// ErrPostSwitchValidationFailed indicates the newly active slot is
	// unhealthy after a successful apply. Triggers automatic rollback.
	ErrPostSwitchValidationFailed = errors.New("post-switch validation failed")

	// ErrRollbackFailed indicates rollback exhausted its attempt budget
	// without restoring a healthy prior slot. Fatal: the environment may
	// be serving traffic from an unvalidated slot and requires manual
	// intervention.
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrFatalState indicates the environment is latched fatal by an
	// earlier failed rollback and refuses automated switches until the
	// latch is manually cleared.
	ErrFatalState = errors.New("environment is in fatal state")

	// ErrSwitchInProgress indicates another switch is already running
	// for the same environment.
	ErrSwitchInProgress = errors.New("switch already in progress")
)
