package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPhase is returned when a state carries a phase outside the sequence.
	ErrUnknownPhase = errors.New("unknown phase")

	// ErrGatewayUnavailable is returned when the model gateway fails or returns nothing.
	ErrGatewayUnavailable = errors.New("model gateway unavailable")

	// ErrSessionComplete is returned when advancing a session that already reached the output phase.
	ErrSessionComplete = errors.New("session already complete")

	// ErrSessionNotFound is returned when a session ID cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotTerminal is returned when artifacts are requested before the output phase.
	ErrNotTerminal = errors.New("session has not reached the output phase")

	// ErrAlreadyFinalized is returned when artifact generation was already claimed for a session.
	ErrAlreadyFinalized = errors.New("artifacts already generated for session")

	// ErrArtifactsNotFound is returned when no artifacts were persisted yet.
	ErrArtifactsNotFound = errors.New("artifacts not found")
)

// UnknownPhaseError carries the offending phase value.
type UnknownPhaseError struct {
	Value string
}

func (e *UnknownPhaseError) Error() string {
	return fmt.Sprintf("unknown phase %q", e.Value)
}

func (e *UnknownPhaseError) Unwrap() error { return ErrUnknownPhase }

// GatewayError wraps a model gateway failure with the operation that triggered it.
type GatewayError struct {
	Operation string
	Cause     error
}

func (e *GatewayError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %v", e.Operation, ErrGatewayUnavailable)
	}
	return fmt.Sprintf("%s: %v: %v", e.Operation, ErrGatewayUnavailable, e.Cause)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *GatewayError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrGatewayUnavailable}
	}
	return []error{ErrGatewayUnavailable, e.Cause}
}
