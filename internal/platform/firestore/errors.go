package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is a Firestore failure classified by its gRPC code. It satisfies
// repositories.RepositoryError so services can map it without importing this package.
type Error struct {
	Op   string
	Code codes.Code
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) IsNotFound() bool { return e.Code == codes.NotFound }

// IsConflict covers create-on-existing and aborted transactions.
func (e *Error) IsConflict() bool {
	switch e.Code {
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition:
		return true
	}
	return false
}

func (e *Error) IsUnavailable() bool {
	switch e.Code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return true
	}
	return false
}

// WrapError classifies err under op. Context errors and already wrapped errors pass through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var wrapped *Error
	if errors.As(err, &wrapped) {
		return err
	}
	code := status.Code(err)
	if code == codes.Canceled {
		return context.Canceled
	}
	return &Error{Op: op, Code: code, Err: err}
}

// NotFound reports a lookup resolved by query that matched nothing.
func NotFound(op, what string) error {
	return &Error{Op: op, Code: codes.NotFound, Err: fmt.Errorf("%s not found", what)}
}

func isDone(err error) bool {
	return errors.Is(err, iterator.Done)
}
