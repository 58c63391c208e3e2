package migrator

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict means the live schema or its history diverges from what the
	// declared changes expect.
	ErrConflict = errors.New("schema conflict")
	// ErrAlreadyApplied is returned when a change at or below the current version is applied again
	ErrAlreadyApplied = errors.New("change already applied")
	// ErrPrecondition means existing data would not survive the change
	ErrPrecondition = errors.New("change precondition failed")
	// ErrLocked means another migration holds the schema lock
	ErrLocked = fmt.Errorf("%w: migration in progress", ErrConflict)
	// ErrInvalidChange means the change is malformed against the schema model
	ErrInvalidChange = errors.New("invalid change")
)

// ChangeError ties a failure to the change that caused it
type ChangeError struct {
	Version     int
	Description string
	Err         error
}

func (e *ChangeError) Error() string {
	return fmt.Sprintf("migrator: change %d (%s): %v", e.Version, e.Description, e.Err)
}

func (e *ChangeError) Unwrap() error {
	return e.Err
}

func conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func preconditionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidChange, fmt.Sprintf(format, args...))
}
