package auth

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/furnitune/api/internal/platform/httpx"
)

// MetricsRecorder records verification outcomes for the customer, scheduler and courier gates.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// MetricsRecorderFunc adapts a function to MetricsRecorder.
type MetricsRecorderFunc func(context.Context, string, bool, string, time.Duration)

// RecordVerification implements MetricsRecorder.
func (f MetricsRecorderFunc) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if f != nil {
		f(ctx, kind, success, reason, duration)
	}
}

type otelRecorder struct {
	outcomes metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewOTelRecorder publishes verification outcomes as OpenTelemetry instruments.
func NewOTelRecorder(meter metric.Meter) (MetricsRecorder, error) {
	outcomes, err := meter.Int64Counter("furnitune.auth.verifications",
		metric.WithDescription("Request authentication attempts by gate and outcome."))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("furnitune.auth.verification_latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Time spent verifying request credentials."))
	if err != nil {
		return nil, err
	}
	return &otelRecorder{outcomes: outcomes, latency: latency}, nil
}

func (r *otelRecorder) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("gate", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	r.outcomes.Add(ctx, 1, attrs)
	r.latency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func recordVerification(ctx context.Context, metrics MetricsRecorder, kind string, success bool, reason string, start, end time.Time) {
	if metrics == nil {
		return
	}
	metrics.RecordVerification(ctx, kind, success, reason, end.Sub(start))
}

func respondAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}
