package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/furnitune/api/internal/platform/auth"
	"github.com/furnitune/api/internal/platform/httpx"
)

const (
	// DefaultHeader carries the client-chosen key.
	DefaultHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from the store.
	ReplayedHeader = "Idempotent-Replayed"

	maxKeyLength = 255
	maxBodyBytes = 1 << 20
)

type config struct {
	header     string
	ttl        time.Duration
	methods    map[string]bool
	requireKey bool
	logger     *zap.Logger
	now        func() time.Time
}

// Option customises Middleware.
type Option func(*config)

// WithHeader changes the header the key is read from.
func WithHeader(name string) Option {
	return func(c *config) {
		if name = strings.TrimSpace(name); name != "" {
			c.header = name
		}
	}
}

// WithTTL sets how long keys are held.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMethods replaces the guarded methods (POST, PUT, PATCH, DELETE by default).
func WithMethods(methods ...string) Option {
	return func(c *config) {
		if len(methods) == 0 {
			return
		}
		c.methods = make(map[string]bool, len(methods))
		for _, m := range methods {
			c.methods[strings.ToUpper(strings.TrimSpace(m))] = true
		}
	}
}

// RequireKey rejects guarded requests without a key instead of passing them through.
func RequireKey() Option {
	return func(c *config) { c.requireKey = true }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// Middleware guards mutating requests carrying an idempotency key. The first request claims
// the key, runs and stores its response. Retries with the same body replay that response;
// retries with a different body are rejected. 5xx responses are not stored so the client
// can retry them.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := config{
		header: DefaultHeader,
		ttl:    DefaultTTL,
		methods: map[string]bool{
			http.MethodPost:   true,
			http.MethodPut:    true,
			http.MethodPatch:  true,
			http.MethodDelete: true,
		},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !cfg.methods[r.Method] {
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get(cfg.header))
			if key == "" {
				if cfg.requireKey {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", cfg.header+" header is required", http.StatusBadRequest))
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if !validKey(key) {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_invalid", cfg.header+" must be 1-255 printable ASCII characters", http.StatusBadRequest))
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("request_too_large", "request body could not be read", http.StatusRequestEntityTooLarge))
				return
			}

			ticket := Ticket{
				Principal:   principal(ctx),
				Key:         key,
				Fingerprint: fingerprint(r.Method, r.URL.Path, body),
			}
			logger := cfg.logger.With(zap.String("idempotency_key", key), zap.String("principal", ticket.Principal))

			outcome, entry, err := store.Claim(ctx, ticket, cfg.now(), cfg.ttl)
			switch {
			case errors.Is(err, ErrKeyReused):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_reused", "key was already used for a different request", http.StatusUnprocessableEntity))
				return
			case err != nil:
				logger.Error("idempotency claim failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "idempotency store unavailable", http.StatusServiceUnavailable).WithRetryAfter(time.Second))
				return
			}

			switch outcome {
			case Replay:
				replay(w, entry)
				return
			case InFlight:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this key is still running", http.StatusConflict).WithRetryAfter(time.Second))
				return
			}

			rec := &recorder{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			// Storage must outlive a client disconnect.
			storeCtx := context.WithoutCancel(ctx)
			if rec.code() >= http.StatusInternalServerError {
				if err := store.Abandon(storeCtx, ticket); err != nil {
					logger.Warn("idempotency abandon failed", zap.Error(err))
				}
				rec.flush(w)
				return
			}
			snap := Snapshot{Status: rec.code(), Header: rec.header, Body: rec.body.Bytes()}
			if err := store.Complete(storeCtx, ticket, snap, cfg.now(), cfg.ttl); err != nil {
				logger.Error("idempotency complete failed", zap.Error(err))
				if err := store.Abandon(storeCtx, ticket); err != nil {
					logger.Warn("idempotency abandon failed", zap.Error(err))
				}
			}
			rec.flush(w)
		})
	}
}

func validKey(key string) bool {
	if len(key) > maxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodyBytes {
		return nil, errors.New("idempotency: body exceeds limit")
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func principal(ctx context.Context) string {
	if id, ok := auth.IdentityFromContext(ctx); ok && id.UID != "" {
		return "user:" + id.UID
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc.Subject != "" {
		return "service:" + svc.Subject
	}
	if signed, ok := auth.SignedRequestFromContext(ctx); ok && signed.Courier != "" {
		return "courier:" + signed.Courier
	}
	return "anonymous"
}

func replay(w http.ResponseWriter, entry Entry) {
	header := w.Header()
	for name, values := range entry.Header {
		header[name] = append([]string(nil), values...)
	}
	header.Set(ReplayedHeader, "true")
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(entry.Body)
}

// recorder buffers the handler response so it can be stored before the client sees it.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *recorder) flush(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range r.header {
		dst[name] = values
	}
	w.WriteHeader(r.code())
	_, _ = w.Write(r.body.Bytes())
}
