package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSignatureHeader = "X-Courier-Signature"
	defaultTimestampHeader = "X-Courier-Timestamp"
	defaultNonceHeader     = "X-Courier-Nonce"
	defaultClockSkew       = 5 * time.Minute
	defaultNonceTTL        = 10 * time.Minute
	maxSignedBody          = 64 * 1024
)

// SecretProvider resolves the signing secret for a courier.
type SecretProvider interface {
	GetSecret(ctx context.Context, courier string) (string, error)
}

// SecretProviderFunc adapts a function to SecretProvider.
type SecretProviderFunc func(context.Context, string) (string, error)

// GetSecret implements SecretProvider.
func (f SecretProviderFunc) GetSecret(ctx context.Context, courier string) (string, error) {
	return f(ctx, courier)
}

// ErrUnknownCourier is returned by StaticSecrets for couriers without a configured secret.
var ErrUnknownCourier = errors.New("auth: courier secret not configured")

// StaticSecrets serves secrets from configuration, keyed by lower-case courier name.
func StaticSecrets(secrets map[string]string) SecretProvider {
	normalised := make(map[string]string, len(secrets))
	for name, secret := range secrets {
		normalised[strings.ToLower(strings.TrimSpace(name))] = secret
	}
	return SecretProviderFunc(func(_ context.Context, courier string) (string, error) {
		secret, ok := normalised[courier]
		if !ok || secret == "" {
			return "", fmt.Errorf("%w: %s", ErrUnknownCourier, courier)
		}
		return secret, nil
	})
}

// SignedRequest describes a verified courier callback.
type SignedRequest struct {
	Courier   string
	Timestamp time.Time
	Nonce     string
}

type signedRequestContextKey struct{}

// WithSignedRequest stores the verified callback metadata on ctx.
func WithSignedRequest(ctx context.Context, signed *SignedRequest) context.Context {
	return context.WithValue(ctx, signedRequestContextKey{}, signed)
}

// SignedRequestFromContext returns the metadata stored by the signature middleware.
func SignedRequestFromContext(ctx context.Context) (*SignedRequest, bool) {
	signed, ok := ctx.Value(signedRequestContextKey{}).(*SignedRequest)
	return signed, ok && signed != nil
}

// SignatureValidator verifies courier callbacks signed with HMAC-SHA256 over
// "METHOD\nPATH\nTIMESTAMP\nNONCE\nhex(sha256(body))".
type SignatureValidator struct {
	secrets SecretProvider
	nonces  NonceStore
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time

	signatureHeader string
	timestampHeader string
	nonceHeader     string
	clockSkew       time.Duration
	nonceTTL        time.Duration
}

// SignatureOption customises the validator.
type SignatureOption func(*SignatureValidator)

// WithSignatureHeaders overrides header names. Empty values keep the defaults.
func WithSignatureHeaders(signature, timestamp, nonce string) SignatureOption {
	return func(v *SignatureValidator) {
		if signature != "" {
			v.signatureHeader = signature
		}
		if timestamp != "" {
			v.timestampHeader = timestamp
		}
		if nonce != "" {
			v.nonceHeader = nonce
		}
	}
}

// WithSignatureWindow sets the accepted clock skew and how long nonces are remembered.
func WithSignatureWindow(skew, nonceTTL time.Duration) SignatureOption {
	return func(v *SignatureValidator) {
		if skew > 0 {
			v.clockSkew = skew
		}
		if nonceTTL > 0 {
			v.nonceTTL = nonceTTL
		}
	}
}

// WithSignatureLogger sets the logger.
func WithSignatureLogger(logger *zap.Logger) SignatureOption {
	return func(v *SignatureValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithSignatureMetrics sets the metrics recorder.
func WithSignatureMetrics(metrics MetricsRecorder) SignatureOption {
	return func(v *SignatureValidator) {
		v.metrics = metrics
	}
}

// WithSignatureClock injects the time source.
func WithSignatureClock(now func() time.Time) SignatureOption {
	return func(v *SignatureValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewSignatureValidator constructs a validator.
func NewSignatureValidator(secrets SecretProvider, nonces NonceStore, opts ...SignatureOption) *SignatureValidator {
	v := &SignatureValidator{
		secrets:         secrets,
		nonces:          nonces,
		logger:          zap.NewNop(),
		now:             time.Now,
		signatureHeader: defaultSignatureHeader,
		timestampHeader: defaultTimestampHeader,
		nonceHeader:     defaultNonceHeader,
		clockSkew:       defaultClockSkew,
		nonceTTL:        defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// RequireSignature verifies the callback against the secret of the courier chosen by resolver.
func (v *SignatureValidator) RequireSignature(resolver func(*http.Request) (string, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := v.now()
			ctx := r.Context()
			fail := func(status int, reason, code, message string) {
				recordVerification(ctx, v.metrics, "courier", false, reason, start, v.now())
				respondAuthError(w, r, status, code, message)
			}

			courier, ok := "", false
			if resolver != nil {
				courier, ok = resolver(r)
			}
			if !ok || courier == "" {
				fail(http.StatusUnauthorized, "courier_unknown", "unknown_courier", "courier not recognised")
				return
			}

			secret, err := v.secrets.GetSecret(ctx, courier)
			if errors.Is(err, ErrUnknownCourier) {
				fail(http.StatusUnauthorized, "courier_unknown", "unknown_courier", "courier not recognised")
				return
			}
			if err != nil {
				v.logger.Warn("courier secret lookup failed", zap.String("courier", courier), zap.Error(err))
				fail(http.StatusServiceUnavailable, "secret_unavailable", "verification_unavailable", "signature verification unavailable")
				return
			}

			signature, err := decodeSignature(strings.TrimSpace(r.Header.Get(v.signatureHeader)))
			if err != nil {
				fail(http.StatusUnauthorized, "signature_missing", "signature_invalid", "signature missing or malformed")
				return
			}
			rawTimestamp := strings.TrimSpace(r.Header.Get(v.timestampHeader))
			timestamp, err := parseSignatureTimestamp(rawTimestamp)
			if err != nil {
				fail(http.StatusUnauthorized, "timestamp_invalid", "timestamp_invalid", "signature timestamp missing or malformed")
				return
			}
			if skew := v.now().Sub(timestamp); skew > v.clockSkew || skew < -v.clockSkew {
				fail(http.StatusUnauthorized, "timestamp_skew", "timestamp_skew", "signature timestamp outside allowed window")
				return
			}
			nonce := strings.TrimSpace(r.Header.Get(v.nonceHeader))
			if nonce == "" {
				fail(http.StatusUnauthorized, "nonce_missing", "nonce_missing", "signature nonce missing")
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				fail(http.StatusBadRequest, "body_unreadable", "invalid_body", "unable to read body for signature verification")
				return
			}
			expected := sign([]byte(secret), canonicalRequest(r.Method, r.URL.EscapedPath(), body, rawTimestamp, nonce))
			if !hmac.Equal(signature, expected) {
				fail(http.StatusUnauthorized, "signature_mismatch", "signature_mismatch", "signature verification failed")
				return
			}

			if v.nonces == nil {
				fail(http.StatusServiceUnavailable, "nonce_store_unavailable", "verification_unavailable", "nonce store unavailable")
				return
			}
			fresh, err := v.nonces.UseNonce(ctx, courier, nonce, v.now().Add(v.nonceTTL))
			if err != nil {
				v.logger.Error("courier nonce store failed", zap.Error(err))
				fail(http.StatusServiceUnavailable, "nonce_store_error", "verification_unavailable", "nonce storage error")
				return
			}
			if !fresh {
				fail(http.StatusUnauthorized, "nonce_replay", "nonce_replay", "duplicate signature nonce")
				return
			}

			recordVerification(ctx, v.metrics, "courier", true, "ok", start, v.now())
			next.ServeHTTP(w, r.WithContext(WithSignedRequest(ctx, &SignedRequest{
				Courier:   courier,
				Timestamp: timestamp,
				Nonce:     nonce,
			})))
		})
	}
}

// RequireCourier verifies callbacks from a single fixed courier.
func (v *SignatureValidator) RequireCourier(courier string) func(http.Handler) http.Handler {
	courier = strings.ToLower(strings.TrimSpace(courier))
	return v.RequireSignature(func(*http.Request) (string, bool) { return courier, courier != "" })
}

// SignRequest computes the signature a courier must send. It is exported for clients and tests.
func SignRequest(secret, method, path, timestamp, nonce string, body []byte) string {
	return hex.EncodeToString(sign([]byte(secret), canonicalRequest(method, path, body, timestamp, nonce)))
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxSignedBody {
		return nil, errors.New("auth: signed body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func decodeSignature(value string) ([]byte, error) {
	value = strings.TrimPrefix(value, "sha256=")
	if value == "" {
		return nil, errors.New("auth: empty signature")
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be hex or base64 encoded")
}

func parseSignatureTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("auth: timestamp empty")
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
	}
	return ts.UTC(), nil
}

func canonicalRequest(method, path string, body []byte, timestamp, nonce string) []byte {
	if path == "" {
		path = "/"
	}
	digest := sha256.Sum256(body)
	return []byte(strings.Join([]string{
		strings.ToUpper(method),
		path,
		timestamp,
		nonce,
		hex.EncodeToString(digest[:]),
	}, "\n"))
}

func sign(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
