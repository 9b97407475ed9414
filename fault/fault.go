// CLAUDE:SUMMARY Failure classes shared by the discovery and processing loops, and the single loop-fatal policy.
// Package fault defines the failure taxonomy of the pipeline.
//
// Every error that reaches a loop boundary is classified with errors.Is
// against one of the sentinels below. Only ErrCollaboratorUnavailable ends a
// loop; the other classes are cycle-local and only feed the loop backoff.
package fault

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransientIO covers log, store and state read/write failures.
	ErrTransientIO = errors.New("transient I/O failure")

	// ErrNotFound means an expected page region or selector is absent.
	ErrNotFound = errors.New("not found")

	// ErrTimeout means an awaited page state never appeared within budget.
	ErrTimeout = errors.New("timeout")

	// ErrCollaboratorUnavailable means the browser connection is lost or refused.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// IsFatal reports whether err must terminate the loop that observed it.
// Context cancellation is not fatal: loops treat it as a clean stop.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrCollaboratorUnavailable)
}

// Unavailable wraps err as a collaborator-unavailable failure.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrCollaboratorUnavailable, err)
}

// TransientIO wraps err as a transient I/O failure.
func TransientIO(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientIO, err)
}
