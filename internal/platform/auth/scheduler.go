package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/furnitune/api/internal/platform/requestctx"
)

// SchedulerPolicy describes which Google-signed tokens may call /internal routes.
type SchedulerPolicy struct {
	Audience string
	Issuers  []string
	// ServiceAccounts limits callers by the token's email claim. Empty accepts any caller.
	ServiceAccounts []string
}

// OIDCValidator verifies Google-signed OIDC tokens sent by Cloud Scheduler and IAP.
type OIDCValidator struct {
	keys    *JWKSCache
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

// WithOIDCLogger sets the logger.
func WithOIDCLogger(logger *zap.Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithOIDCMetrics sets the metrics recorder.
func WithOIDCMetrics(metrics MetricsRecorder) OIDCOption {
	return func(v *OIDCValidator) {
		v.metrics = metrics
	}
}

// WithOIDCClock injects the time source.
func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewOIDCValidator constructs a validator backed by keys.
func NewOIDCValidator(keys *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{keys: keys, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// ServiceIdentity is the verified caller of an internal route.
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity stores the caller on ctx.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity != nil {
		requestctx.SetCaller(ctx, identity.Subject, "service")
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext returns the caller stored by RequireOIDC.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

// RequireOIDC rejects requests without a token matching policy. Tokens are read from the
// Authorization bearer or the IAP assertion header.
func (v *OIDCValidator) RequireOIDC(policy SchedulerPolicy) func(http.Handler) http.Handler {
	audience := strings.TrimSpace(policy.Audience)
	issuers := trimmedSet(policy.Issuers)
	accounts := trimmedSet(policy.ServiceAccounts)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()
			fail := func(status int, reason, code, message string) {
				recordVerification(ctx, v.metrics, "oidc", false, reason, start, v.now())
				respondAuthError(w, r, status, code, message)
			}

			if audience == "" || v.keys == nil {
				fail(http.StatusServiceUnavailable, "not_configured", "verification_unavailable", "oidc verification not configured")
				return
			}
			raw := oidcToken(r)
			if raw == "" {
				fail(http.StatusUnauthorized, "token_missing", "unauthenticated", "oidc token missing")
				return
			}

			claims := jwt.MapClaims{}
			if _, err := parser.ParseWithClaims(raw, claims, v.keys.Keyfunc(ctx)); err != nil {
				if errors.Is(err, ErrJWKSFetchFailed) {
					v.logger.Warn("oidc keys unavailable", zap.Error(err))
					fail(http.StatusServiceUnavailable, "jwks_unavailable", "verification_unavailable", "oidc keys unavailable")
					return
				}
				fail(http.StatusUnauthorized, "token_invalid", "invalid_token", "oidc token verification failed")
				return
			}

			issuer, _ := claims["iss"].(string)
			if len(issuers) > 0 && !slices.Contains(issuers, issuer) {
				fail(http.StatusUnauthorized, "issuer_mismatch", "invalid_token", "oidc issuer mismatch")
				return
			}
			if !claims.VerifyAudience(audience, true) {
				v.logger.Info("oidc audience mismatch", zap.String("expected", audience))
				fail(http.StatusUnauthorized, "audience_mismatch", "invalid_token", "oidc audience mismatch")
				return
			}
			email, _ := claims["email"].(string)
			if len(accounts) > 0 && !slices.Contains(accounts, strings.ToLower(email)) {
				fail(http.StatusForbidden, "caller_denied", "forbidden", "caller not allowed")
				return
			}

			subject, _ := claims["sub"].(string)
			recordVerification(ctx, v.metrics, "oidc", true, "ok", start, v.now())
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, &ServiceIdentity{
				Subject: subject,
				Email:   email,
				Issuer:  issuer,
			})))
		})
	}
}

func oidcToken(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion"))
}

func trimmedSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.ToLower(strings.TrimSpace(value)); value != "" {
			out = append(out, value)
		}
	}
	return out
}
