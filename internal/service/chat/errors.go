package chat

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w or already restored", ErrNotFound)
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnavailable     = errors.New("backend unavailable")
	ErrConflict        = errors.New("concurrent modification, retry later")
)

// BackendError wraps a failed backend call. It matches ErrUnavailable and
// unwraps to the underlying cause, so context deadlines stay detectable.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is reports ErrUnavailable as a match.
func (e *BackendError) Is(target error) bool { return target == ErrUnavailable }

func backendErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
