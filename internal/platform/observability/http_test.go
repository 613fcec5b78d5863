package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/furnitune/api/internal/platform/auth"
	"github.com/furnitune/api/internal/platform/requestctx"
)

func TestAccessLogRecordsRouteStatusAndCaller(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := chi.NewRouter()
	r.Use(AccessLog(zap.New(core)))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_1", Roles: []string{auth.RoleCustomer}})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/orders/{orderID}", func(w http.ResponseWriter, req *http.Request) {
		assert.True(t, requestctx.HasLogger(req.Context()))
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/orders/{orderID}", fields["route"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
	assert.Equal(t, "user_1", fields["caller_id"])
	assert.Equal(t, auth.RoleCustomer, fields["caller_role"])
}

func TestRecovererWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := Recoverer(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("ledger exploded")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/ord_1/payments", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error":"internal_error"`)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestScrubStripsControlCharacters(t *testing.T) {
	assert.Equal(t, "abc", scrub("a\nb\x00c", 10))
	assert.Equal(t, "ab", scrub("abcdef", 2))
}
