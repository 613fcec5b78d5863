package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is matched by every rejected state machine move.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrValidationFailed is matched by input gate failures that carry a user-facing reason.
	ErrValidationFailed = errors.New("validation failed")
	// ErrNotFound is matched when a referenced order, shipment, return or linked record is absent.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentModification signals that the record changed between read and write.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// TransitionError names the state and event that a state machine refused.
type TransitionError struct {
	Machine string
	State   string
	Event   string
}

func (e *TransitionError) Error() string {
	if e.Machine == "" {
		return fmt.Sprintf("invalid transition: %s -> %s", e.State, e.Event)
	}
	return fmt.Sprintf("%s: invalid transition: %s -> %s", e.Machine, e.State, e.Event)
}

// Is allows errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NewTransitionError constructs a TransitionError.
func NewTransitionError(machine, state, event string) *TransitionError {
	return &TransitionError{Machine: machine, State: state, Event: event}
}

// ValidationError reports an input gate failure. Reason is surfaced verbatim to callers.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is allows errors.Is(err, ErrValidationFailed).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is allows errors.Is(err, ErrNotFound).
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError constructs a NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError reports a failed version precondition on a record.
type ConflictError struct {
	Entity   string
	ID       string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	if e.Expected == 0 && e.Actual == 0 {
		return fmt.Sprintf("%s %q was modified concurrently", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s %q was modified concurrently: expected version %d, found %d", e.Entity, e.ID, e.Expected, e.Actual)
}

// Is allows errors.Is(err, ErrConcurrentModification).
func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrentModification
}
