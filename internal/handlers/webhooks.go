package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/furnitune/api/internal/platform/auth"
	"github.com/furnitune/api/internal/platform/httpx"
	"github.com/furnitune/api/internal/services"
)

// CourierHeader names the courier whose signing secret verifies a callback.
const CourierHeader = "X-Courier-Name"

// CourierWebhookHandlers lets signed courier callbacks advance shipments.
type CourierWebhookHandlers struct {
	shipments services.ShipmentService
	limiter   func(http.Handler) http.Handler
}

// NewCourierWebhookHandlers constructs the courier webhook handlers. Signature verification is
// installed on the /webhooks group by the router.
func NewCourierWebhookHandlers(shipments services.ShipmentService, limiter func(http.Handler) http.Handler) *CourierWebhookHandlers {
	if limiter == nil {
		limiter = passthrough
	}
	return &CourierWebhookHandlers{shipments: shipments, limiter: limiter}
}

// Routes registers the /webhooks endpoints.
func (h *CourierWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(h.limiter).Post("/courier/shipments/{shipmentID}", h.shipmentCallback)
}

func (h *CourierWebhookHandlers) shipmentCallback(w http.ResponseWriter, r *http.Request) {
	signed, ok := auth.SignedRequestFromContext(r.Context())
	if !ok || strings.TrimSpace(signed.Courier) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "signed courier request required", http.StatusUnauthorized))
		return
	}
	writeShipmentTransition(w, r, h.shipments, "courier:"+signed.Courier)
}

// CourierSecretResolver selects the signing secret from the courier header. Only couriers with a
// configured secret are accepted.
func CourierSecretResolver(configured map[string]string) func(*http.Request) (string, bool) {
	known := make(map[string]struct{}, len(configured))
	for name := range configured {
		if name = normalizeCourier(name); name != "" {
			known[name] = struct{}{}
		}
	}
	return func(r *http.Request) (string, bool) {
		name := normalizeCourier(r.Header.Get(CourierHeader))
		if name == "" {
			return "", false
		}
		_, ok := known[name]
		return name, ok
	}
}

func normalizeCourier(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
