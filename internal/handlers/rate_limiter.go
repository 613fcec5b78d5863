package handlers

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/furnitune/api/internal/platform/auth"
	"github.com/furnitune/api/internal/platform/httpx"
)

// RateLimit throttles requests per authenticated user, falling back to the client IP.
// A non-positive limit disables throttling.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return passthrough
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(rateLimited),
	)
}

// CourierRateLimit throttles courier callbacks per signing secret.
func CourierRateLimit(burst int) func(http.Handler) http.Handler {
	if burst <= 0 {
		return passthrough
	}
	return httprate.Limit(burst, time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if signed, ok := auth.SignedRequestFromContext(r.Context()); ok && signed.Courier != "" {
				return "courier:" + signed.Courier, nil
			}
			return clientIPKey(r), nil
		}),
		httprate.WithLimitHandler(rateLimited),
	)
}

func rateLimitKey(r *http.Request) (string, error) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if uid := strings.TrimSpace(identity.UID); uid != "" {
			return "user:" + uid, nil
		}
	}
	return clientIPKey(r), nil
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
}

func passthrough(next http.Handler) http.Handler {
	return next
}
