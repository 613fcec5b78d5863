package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestInternalHandlersInvalidateRevenue(t *testing.T) {
	calls := 0
	revenue := &stubRevenueService{
		invalidateFn: func(context.Context) error {
			calls++
			return nil
		},
	}
	router := chi.NewRouter()
	router.Route("/internal", NewInternalHandlers(revenue).Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/revenue:invalidate", nil))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if calls != 1 {
		t.Fatalf("expected one invalidation, got %d", calls)
	}
}

func TestInternalHandlersInvalidateRevenueFailure(t *testing.T) {
	revenue := &stubRevenueService{
		invalidateFn: func(context.Context) error {
			return errors.New("redis: connection refused")
		},
	}
	router := chi.NewRouter()
	router.Route("/internal", NewInternalHandlers(revenue).Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/revenue:invalidate", nil))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

func TestInternalHandlersWithoutRevenueService(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/internal", NewInternalHandlers(nil).Routes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/revenue:invalidate", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
