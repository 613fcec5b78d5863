package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/furnitune/api/internal/platform/httpx"
	"github.com/furnitune/api/internal/services"
)

// InternalHandlers serves scheduler-triggered maintenance endpoints.
type InternalHandlers struct {
	revenue services.RevenueService
}

// NewInternalHandlers constructs the internal handlers.
func NewInternalHandlers(revenue services.RevenueService) *InternalHandlers {
	return &InternalHandlers{revenue: revenue}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/revenue:invalidate", h.invalidateRevenue)
}

func (h *InternalHandlers) invalidateRevenue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.revenue == nil {
		httpx.WriteError(ctx, w, httpx.NewError("revenue_unavailable", "revenue service unavailable", http.StatusServiceUnavailable))
		return
	}
	if err := h.revenue.Invalidate(ctx); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("revenue_invalidate_failed", "failed to invalidate revenue cache", http.StatusBadGateway))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
