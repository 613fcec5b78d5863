// Package requestctx carries per-request values shared by middleware and handlers.
package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
)

var nop = zap.NewNop()

// TraceInfo is the Cloud Trace context parsed from the incoming request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Resource renders the Cloud Logging trace resource name, or "" without a project.
func (t TraceInfo) Resource() string {
	if t.TraceID == "" || t.ProjectID == "" {
		return ""
	}
	return "projects/" + t.ProjectID + "/traces/" + t.TraceID
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = nop
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request-scoped logger, falling back to a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return nop
}

// HasLogger reports whether a request-scoped logger was installed.
func HasLogger(ctx context.Context) bool {
	return Logger(ctx) != nop
}

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(ctx, traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID returns the trace id or "".
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

type callerKey struct{}

// CallerSlot is filled by the auth middleware after the access logger attached it, so
// the completion line can name the caller.
type CallerSlot struct {
	mu   sync.Mutex
	id   string
	role string
}

// Get returns the recorded caller id and role.
func (s *CallerSlot) Get() (id, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.role
}

// WithCallerSlot attaches an empty slot to ctx.
func WithCallerSlot(ctx context.Context) (context.Context, *CallerSlot) {
	slot := &CallerSlot{}
	return context.WithValue(ctx, callerKey{}, slot), slot
}

// SetCaller records the authenticated caller when a slot is present.
func SetCaller(ctx context.Context, id, role string) {
	slot, ok := ctx.Value(callerKey{}).(*CallerSlot)
	if !ok {
		return
	}
	slot.mu.Lock()
	slot.id, slot.role = id, role
	slot.mu.Unlock()
}
