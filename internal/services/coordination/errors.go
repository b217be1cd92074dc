package coordination

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrResolutionFailure = errors.New("resolution failure")
	ErrTimeoutExceeded   = errors.New("timeout exceeded")
	ErrInternal          = errors.New("internal error")
	ErrEngineClosed      = errors.New("coordination engine closed")
)

// ValidationError rejects a single malformed event.
type ValidationError struct {
	EventID string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("event rejected: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("event %q rejected: %s %s", e.EventID, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StageError aborts a coordination pass.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("coordination stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool { return target == ErrInternal }

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
