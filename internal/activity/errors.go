package activity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when a session transition is not allowed
	// from the current state (start while recording, stop while idle).
	ErrInvalidState = errors.New("invalid session state")

	// ErrLocationUnavailable is reported by a location source in place of a
	// sample. It never ends a session.
	ErrLocationUnavailable = errors.New("location unavailable")

	ErrInvalidType   = errors.New("invalid activity type")
	ErrInvalidSample = errors.New("invalid geo sample")
	ErrNotFound      = errors.New("activity not found")
)

// PersistenceError reports a failed store operation. The activity involved
// is left untouched in memory so the caller may retry.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("persistence: %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence: %s %s failed: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
