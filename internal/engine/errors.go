package engine

import (
	"errors"
	"fmt"

	"pizzabot/internal/session"
)

var (
	// ErrExternalService matches every collaborator failure
	ErrExternalService = errors.New("external service failure")

	// ErrPaymentTokenMismatch is returned when a payment confirmation does not
	// match the token issued for the user's pending order
	ErrPaymentTokenMismatch = errors.New("payment token mismatch")

	// errIgnored marks an event the current state does not handle
	errIgnored = errors.New("event ignored")

	// errCommitted marks a transition whose handler already persisted the session
	errCommitted = errors.New("session already committed")
)

// ExternalServiceError wraps a failed commerce, geocoder or messaging call
type ExternalServiceError struct {
	Op  string
	Err error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalService
}

// MissingContextFieldError means a handler needed a field no earlier state set
type MissingContextFieldError struct {
	Field string
	State session.State
}

func (e *MissingContextFieldError) Error() string {
	return fmt.Sprintf("missing context field %q in state %s", e.Field, e.State)
}

// UnrecognizedStateError is returned for a persisted state the engine does not know
type UnrecognizedStateError struct {
	State session.State
}

func (e *UnrecognizedStateError) Error() string {
	return fmt.Sprintf("unrecognized state %q", e.State)
}

func external(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalServiceError{Op: op, Err: err}
}
