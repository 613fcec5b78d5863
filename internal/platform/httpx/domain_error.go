package httpx

import (
	"context"
	"errors"
	"net/http"

	domain "github.com/furnitune/api/internal/domain"
)

// FromError maps a domain error onto the canonical error envelope. Unknown errors become a
// generic 500 so internal messages never reach clients.
func FromError(err error) Error {
	if err == nil {
		return NewError("internal_error", "internal server error", http.StatusInternalServerError)
	}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		apiErr := NewError("validation_failed", validation.Reason, http.StatusUnprocessableEntity)
		if validation.Field != "" {
			apiErr = apiErr.WithDetails(map[string]any{"field": validation.Field})
		}
		return apiErr
	}

	var transition *domain.TransitionError
	if errors.As(err, &transition) {
		return NewError("invalid_transition", transition.Error(), http.StatusConflict).WithDetails(map[string]any{
			"state": transition.State,
			"event": transition.Event,
		})
	}

	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return NewError(notFound.Entity+"_not_found", notFound.Entity+" not found", http.StatusNotFound)
	}

	switch {
	case errors.Is(err, domain.ErrConcurrentModification):
		return NewError("concurrent_modification", "resource was modified concurrently; reload and retry", http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidTransition):
		return NewError("invalid_transition", err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrValidationFailed):
		return NewError("validation_failed", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrNotFound):
		return NewError("not_found", "resource not found", http.StatusNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError("timeout", "request timed out", http.StatusGatewayTimeout)
	case errors.Is(err, context.Canceled):
		return NewError("request_canceled", "request canceled", 499)
	}
	return NewError("internal_error", "internal server error", http.StatusInternalServerError)
}

// WriteDomainError writes err using the FromError mapping.
func WriteDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	WriteError(ctx, w, FromError(err))
}
