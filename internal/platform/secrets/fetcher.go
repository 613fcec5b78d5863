// Package secrets resolves secret://name[?version=N&project=P] references against Google
// Secret Manager. Slashes in the name map to underscores, so secret://hmac/courier reads the
// Secret Manager secret "hmac_courier".
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCacheTTL     = 10 * time.Minute
	defaultFallbackFile = ".secrets.local"
	meterName           = "github.com/furnitune/api/internal/platform/secrets"
)

// AccessClient is the slice of the Secret Manager client the fetcher calls.
type AccessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher caches resolved values for a TTL so rotated secrets are picked up without a
// restart. Outside production a dotenv-style file can stand in for Secret Manager.
type Fetcher struct {
	client     AccessClient
	ownsClient bool
	project    string
	ttl        time.Duration
	now        func() time.Time
	logger     *zap.Logger
	resolves   metric.Int64Counter

	allowFallback bool
	fallbackFile  string
	fallbackOnce  sync.Once
	fallback      map[string]string

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cached
}

type cached struct {
	value   string
	expires time.Time
}

type settings struct {
	Fetcher
	clientOpts []option.ClientOption
	meter      metric.Meter
}

// Option customises NewFetcher.
type Option func(*settings)

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProject sets the project used when a reference has no ?project=.
func WithProject(projectID string) Option {
	return func(s *settings) { s.project = strings.TrimSpace(projectID) }
}

// WithFallbackFile enables resolving from a dotenv file keyed by secret name
// (hmac_courier=...) when Secret Manager is unreachable or denies access. Never enable it in production.
func WithFallbackFile(path string) Option {
	return func(s *settings) {
		s.allowFallback = true
		if path = strings.TrimSpace(path); path != "" {
			s.fallbackFile = path
		}
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithMeter(m metric.Meter) Option {
	return func(s *settings) { s.meter = m }
}

// WithClient injects an access client; the fetcher will not close it.
func WithClient(client AccessClient) Option {
	return func(s *settings) { s.client = client }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(s *settings) { s.clientOpts = append(s.clientOpts, opts...) }
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// NewFetcher builds a Fetcher. When no client is injected one is dialled; a dial failure is
// fatal unless a fallback file was configured.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	s := settings{Fetcher: Fetcher{
		ttl:          defaultCacheTTL,
		now:          time.Now,
		logger:       zap.NewNop(),
		fallbackFile: defaultFallbackFile,
		cache:        make(map[string]cached),
	}}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.meter == nil {
		s.meter = otel.Meter(meterName)
	}

	f := &s.Fetcher
	var err error
	if f.resolves, err = s.meter.Int64Counter("secrets.resolve",
		metric.WithDescription("Secret resolutions by source"),
	); err != nil {
		return nil, fmt.Errorf("secrets: register metric: %w", err)
	}

	if f.client == nil {
		client, err := secretmanager.NewClient(ctx, s.clientOpts...)
		switch {
		case err == nil:
			f.client, f.ownsClient = client, true
		case f.allowFallback:
			f.logger.Warn("secret manager unavailable, resolving from fallback file only", zap.Error(err))
		default:
			return nil, fmt.Errorf("secrets: secret manager client: %w", err)
		}
	}
	return f, nil
}

func (f *Fetcher) Close() error {
	if f.ownsClient {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the secret value for ref. Concurrent misses for one reference share a
// single Secret Manager call.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	parsed, err := parse(ref)
	if err != nil {
		return "", err
	}
	key := parsed.resource(f.project)

	f.mu.RLock()
	entry, ok := f.cache[key]
	f.mu.RUnlock()
	if ok && f.now().Before(entry.expires) {
		f.count(ctx, "cache")
		return entry.value, nil
	}

	v, err, _ := f.group.Do(key, func() (any, error) {
		value, source, err := f.load(ctx, parsed, key)
		if err != nil {
			f.count(ctx, "error")
			return "", err
		}
		f.count(ctx, source)
		f.mu.Lock()
		f.cache[key] = cached{value: value, expires: f.now().Add(f.ttl)}
		f.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate forgets every cached version of ref.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parse(ref)
	if err != nil {
		return
	}
	prefix := strings.TrimSuffix(parsed.resource(f.project), parsed.versionOrLatest())
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.HasPrefix(key, prefix) {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) load(ctx context.Context, ref reference, resource string) (string, string, error) {
	if f.client != nil && ref.project(f.project) != "" {
		resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
		if err == nil {
			return string(resp.GetPayload().GetData()), "remote", nil
		}
		if !f.allowFallback || !fallbackEligible(err) {
			return "", "", fmt.Errorf("secrets: access %s: %w", ref.raw, err)
		}
		f.logger.Debug("secret manager refused, trying fallback file", zap.String("ref", ref.raw), zap.Error(err))
	}
	if !f.allowFallback {
		return "", "", fmt.Errorf("secrets: no project configured for %s", ref.raw)
	}
	if value, ok := f.fallbackValue(ref); ok {
		return value, "fallback", nil
	}
	return "", "", fmt.Errorf("secrets: %s not found in %s", ref.raw, f.fallbackFile)
}

func (f *Fetcher) fallbackValue(ref reference) (string, bool) {
	f.fallbackOnce.Do(func() {
		values, err := godotenv.Read(f.fallbackFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("fallback secrets file unreadable", zap.String("path", f.fallbackFile), zap.Error(err))
		}
		f.fallback = values
	})
	value, ok := f.fallback[ref.name]
	return value, ok
}

func (f *Fetcher) count(ctx context.Context, source string) {
	f.resolves.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

type reference struct {
	raw       string
	name      string
	version   string
	projectID string
}

func parse(ref string) (reference, error) {
	raw := strings.TrimSpace(ref)
	if strings.HasPrefix(raw, "sm://") {
		raw = "secret://" + strings.TrimPrefix(raw, "sm://")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: %q is not a secret:// reference", ref)
	}
	name := strings.ReplaceAll(strings.Trim(u.Host+u.Path, "/"), "/", "_")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: %q names no secret", ref)
	}
	q := u.Query()
	return reference{
		raw:       raw,
		name:      name,
		version:   strings.TrimSpace(q.Get("version")),
		projectID: strings.TrimSpace(q.Get("project")),
	}, nil
}

func (r reference) project(fallback string) string {
	if r.projectID != "" {
		return r.projectID
	}
	return fallback
}

func (r reference) versionOrLatest() string {
	if r.version == "" {
		return "latest"
	}
	return r.version
}

func (r reference) resource(defaultProject string) string {
	return "projects/" + r.project(defaultProject) + "/secrets/" + r.name + "/versions/" + r.versionOrLatest()
}
