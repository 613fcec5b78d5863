package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
)

const (
	roleClaim            = "role"
	adminClaim           = "admin"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns Firebase bearer tokens into request identities.
type Authenticator struct {
	verifier TokenVerifier
	logger   *zap.Logger
	metrics  MetricsRecorder
	now      func() time.Time
	timeout  time.Duration
}

// Option customises the Authenticator.
type Option func(*Authenticator)

// WithAuthLogger sets the logger used for verification failures.
func WithAuthLogger(logger *zap.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAuthMetrics sets the verification metrics recorder.
func WithAuthMetrics(metrics MetricsRecorder) Option {
	return func(a *Authenticator) {
		a.metrics = metrics
	}
}

// WithVerificationTimeout bounds each token verification.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier: verifier,
		logger:   zap.NewNop(),
		now:      time.Now,
		timeout:  defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth verifies the bearer token. When roles are given the identity must carry one
// of them; otherwise any signed-in user passes.
func (a *Authenticator) RequireFirebaseAuth(roles ...string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = normaliseRole(role); role != "" {
			allowed = append(allowed, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := a.now()
			ctx := r.Context()
			fail := func(status int, reason, code, message string) {
				recordVerification(ctx, a.metrics, "firebase", false, reason, start, a.now())
				respondAuthError(w, r, status, code, message)
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				fail(http.StatusUnauthorized, "token_missing", "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a.verifier == nil {
				fail(http.StatusServiceUnavailable, "verifier_unavailable", "verification_unavailable", "authentication unavailable")
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			decoded, err := a.verifier.VerifyIDToken(verifyCtx, token)
			cancel()
			if err != nil {
				if firebaseauth.IsIDTokenExpired(err) {
					fail(http.StatusUnauthorized, "token_expired", "token_expired", "firebase id token expired")
					return
				}
				a.logger.Debug("firebase token rejected", zap.Error(err))
				fail(http.StatusUnauthorized, "token_invalid", "invalid_token", "firebase id token invalid")
				return
			}

			identity := identityFromToken(decoded)
			if len(allowed) > 0 && !identity.HasAnyRole(allowed...) {
				fail(http.StatusForbidden, "role_denied", "forbidden", "staff access required")
				return
			}

			recordVerification(ctx, a.metrics, "firebase", true, "ok", start, a.now())
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// identityFromToken reads roles from the "role" claim (string or list) and treats the legacy
// boolean "admin" claim as the admin role. Users without a role are customers.
func identityFromToken(token *firebaseauth.Token) *Identity {
	identity := &Identity{
		UID:   token.UID,
		Email: stringClaim(token.Claims, "email"),
		Name:  stringClaim(token.Claims, "name"),
	}

	seen := map[string]bool{}
	add := func(role string) {
		if role = normaliseRole(role); role != "" && !seen[role] {
			seen[role] = true
			identity.Roles = append(identity.Roles, role)
		}
	}
	switch v := token.Claims[roleClaim].(type) {
	case string:
		add(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	}
	if isAdmin, _ := token.Claims[adminClaim].(bool); isAdmin {
		add(RoleAdmin)
	}
	if len(identity.Roles) == 0 {
		add(RoleCustomer)
	}
	return identity
}

func stringClaim(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

var errVerifierNotInitialised = errors.New("auth: firebase verifier not initialised")
