package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/platform/auth"
	"github.com/furnitune/api/internal/services"
)

func TestCourierSecretResolver(t *testing.T) {
	resolve := CourierSecretResolver(map[string]string{"LBC": "secret-a", "jnt": "secret-b"})

	cases := []struct {
		header string
		name   string
		ok     bool
	}{
		{" lbc ", "lbc", true},
		{"JNT", "jnt", true},
		{"ninjavan", "ninjavan", false},
		{"", "", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/courier/shipments/shp_1", nil)
		if tc.header != "" {
			req.Header.Set(CourierHeader, tc.header)
		}
		name, ok := resolve(req)
		if name != tc.name || ok != tc.ok {
			t.Fatalf("header %q: expected (%q,%v), got (%q,%v)", tc.header, tc.name, tc.ok, name, ok)
		}
	}
}

func TestCourierWebhookTransitionsShipment(t *testing.T) {
	var captured services.ShipmentTransitionCommand
	shipments := &stubShipmentService{
		transitionFn: func(_ context.Context, cmd services.ShipmentTransitionCommand) (services.Shipment, error) {
			captured = cmd
			return services.Shipment{ID: cmd.ShipmentID, Status: cmd.To, Version: 2}, nil
		},
	}
	router := chi.NewRouter()
	router.Route("/webhooks", NewCourierWebhookHandlers(shipments, nil).Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/courier/shipments/shp_ord_1", strings.NewReader(`{"to":"in_transit","note":"hub scan"}`))
	req = req.WithContext(auth.WithSignedRequest(req.Context(), &auth.SignedRequest{Courier: "lbc"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorID != "courier:lbc" {
		t.Fatalf("expected courier actor, got %q", captured.ActorID)
	}
	if captured.To != domain.ShipmentStatusInTransit {
		t.Fatalf("expected in_transit, got %s", captured.To)
	}
}

func TestCourierWebhookRequiresSignature(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/webhooks", NewCourierWebhookHandlers(&stubShipmentService{}, nil).Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/courier/shipments/shp_ord_1", strings.NewReader(`{"to":"delivered"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCourierWebhookInvalidTransition(t *testing.T) {
	shipments := &stubShipmentService{
		transitionFn: func(context.Context, services.ShipmentTransitionCommand) (services.Shipment, error) {
			return services.Shipment{}, domain.NewTransitionError("shipment", "delivered", "in_transit")
		},
	}
	router := chi.NewRouter()
	router.Route("/webhooks", NewCourierWebhookHandlers(shipments, nil).Routes)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/courier/shipments/shp_ord_1", strings.NewReader(`{"to":"in_transit"}`))
	req = req.WithContext(auth.WithSignedRequest(req.Context(), &auth.SignedRequest{Courier: "jnt"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}
