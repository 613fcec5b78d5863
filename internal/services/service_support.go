package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/repositories"
)

const instrumentationName = "github.com/furnitune/api/internal/services"

const (
	orderIDPrefix         = "ord_"
	shipmentIDPrefix      = "shp_"
	shipmentEventIDPrefix = "sev_"
	returnIDPrefix        = "ret_"
	notificationIDPrefix  = "ntf_"
)

var (
	tracer = otel.Tracer(instrumentationName)

	transitionCounter metric.Int64Counter
)

func init() {
	counter, err := otel.GetMeterProvider().Meter(instrumentationName).Int64Counter(
		"furnitune.state_transitions",
		metric.WithDescription("Count of committed payment, shipment and return state transitions"),
	)
	if err == nil {
		transitionCounter = counter
	}
}

// Logger is the structured logging hook every service accepts.
type Logger func(ctx context.Context, event string, fields map[string]any)

func nopLogger(context.Context, string, map[string]any) {}

func defaultIDGenerator() string {
	return ulid.Make().String()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// mapRepositoryError converts persistence failures into the domain error taxonomy. Errors that
// already carry a domain category pass through untouched.
func mapRepositoryError(entity, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrValidationFailed) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrConcurrentModification) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return domain.NewNotFoundError(entity, id)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", &domain.ConflictError{Entity: entity, ID: id}, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%s: repository unavailable: %w", entity, err)
		}
	}
	return err
}

func checkVersion(entity, id string, expected *int64, actual int64) error {
	if expected == nil || *expected == actual {
		return nil
	}
	return &domain.ConflictError{Entity: entity, ID: id, Expected: *expected, Actual: actual}
}

func requireID(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", domain.NewValidationError(field, field+" is required")
	}
	return value, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func recordTransition(ctx context.Context, machine, from, to string) {
	if transitionCounter == nil {
		return
	}
	transitionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("machine", machine),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
