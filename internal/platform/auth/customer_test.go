package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireFirebaseAuth_AllowsStaffToken(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID: "uid-123",
			Claims: map[string]any{
				"role":  []any{"Staff", "admin"},
				"email": "ops@furnitune.example",
			},
		},
	}
	metrics := &recordingMetrics{}
	authn := NewAuthenticator(verifier, WithAuthLogger(zap.NewNop()), WithAuthMetrics(metrics))

	called := false
	handler := authn.RequireFirebaseAuth(RoleStaff)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" || identity.Email != "ops@furnitune.example" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		if !identity.IsStaff() || !identity.HasRole(RoleAdmin) {
			t.Fatalf("expected staff and admin roles, got %v", identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer token-abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called || rr.Code != http.StatusNoContent {
		t.Fatalf("expected handler to run, status %d", rr.Code)
	}
	if verifier.received != "token-abc" {
		t.Fatalf("expected token-abc, got %q", verifier.received)
	}
	if got := metrics.last(); !got.success || got.kind != "firebase" {
		t.Fatalf("unexpected metric %+v", got)
	}
}

func TestRequireFirebaseAuth_MissingToken(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{})
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Basic abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "unauthenticated" {
		t.Fatalf("expected unauthenticated error code, got %v", body["error"])
	}
}

func TestRequireFirebaseAuth_InvalidToken(t *testing.T) {
	metrics := &recordingMetrics{}
	authn := NewAuthenticator(&stubTokenVerifier{err: errors.New("bad signature")}, WithAuthMetrics(metrics))
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := metrics.last(); got.success || got.reason != "token_invalid" {
		t.Fatalf("unexpected metric %+v", got)
	}
}

func TestRequireFirebaseAuth_CustomerDeniedStaffRoute(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "buyer-1", Claims: map[string]any{}}}
	authn := NewAuthenticator(verifier)
	handler := authn.RequireFirebaseAuth(RoleStaff, RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/ord_1:cancel", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRequireFirebaseAuth_NilVerifier(t *testing.T) {
	handler := NewAuthenticator(nil).RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestIdentityFromToken_Roles(t *testing.T) {
	cases := []struct {
		name   string
		claims map[string]any
		want   []string
	}{
		{name: "no role defaults to customer", claims: map[string]any{}, want: []string{RoleCustomer}},
		{name: "single string", claims: map[string]any{"role": " STAFF "}, want: []string{RoleStaff}},
		{name: "string slice", claims: map[string]any{"role": []string{"staff", "staff"}}, want: []string{RoleStaff}},
		{name: "admin flag", claims: map[string]any{"admin": true}, want: []string{RoleAdmin}},
		{name: "role plus admin flag", claims: map[string]any{"role": "staff", "admin": true}, want: []string{RoleStaff, RoleAdmin}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			identity := identityFromToken(&firebaseauth.Token{UID: "u", Claims: tc.claims})
			if len(identity.Roles) != len(tc.want) {
				t.Fatalf("expected roles %v, got %v", tc.want, identity.Roles)
			}
			for i, role := range tc.want {
				if identity.Roles[i] != role {
					t.Fatalf("expected roles %v, got %v", tc.want, identity.Roles)
				}
			}
		})
	}
}
