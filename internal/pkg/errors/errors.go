package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a lookup that is expected to exist and does not.
	// A get-by-id returning absent is not an error; GetThreadAuthor on an
	// unknown thread is.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks access to a thread the caller does not own.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation marks malformed domain input (element with no source,
	// step type outside the enum, object key escaping the storage root).
	ErrValidation = errors.New("validation error")
	// ErrPersistence marks a transient storage or data-layer failure.
	ErrPersistence = errors.New("persistence error")
	// ErrTransportClosed marks an emit against a session whose socket is gone.
	ErrTransportClosed = errors.New("transport closed")
	// ErrCancelled is raised at the next suspension point after the user
	// presses stop.
	ErrCancelled = errors.New("cancelled")
	// ErrTimeout marks an expired AskUser deadline when RaiseOnTimeout is set.
	ErrTimeout = errors.New("timeout")
)

func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrValidation}, args...)...)
}

func Persistence(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
