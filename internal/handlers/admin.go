package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/platform/auth"
	"github.com/furnitune/api/internal/platform/httpx"
	"github.com/furnitune/api/internal/services"
)

const (
	paymentEventDeposit    = "deposit_recorded"
	paymentEventAssessment = "assessment_finalized"
	paymentEventAdditional = "additional_payment_recorded"
	paymentEventRefund     = "refund_issued"
)

// AdminHandlers exposes staff operations over orders, shipments, returns and revenue.
type AdminHandlers struct {
	authn         *auth.Authenticator
	ledger        services.OrderLedgerService
	proofs        services.PaymentProofService
	shipments     services.ShipmentService
	returns       services.ReturnService
	revenue       services.RevenueService
	countOnlyPaid bool
	replays       func(http.Handler) http.Handler
}

// AdminHandlersOption customises AdminHandlers.
type AdminHandlersOption func(*AdminHandlers)

// WithRevenueCountOnlyPaidDefault sets the revenue policy used when the query omits countOnlyPaid.
func WithRevenueCountOnlyPaidDefault(value bool) AdminHandlersOption {
	return func(h *AdminHandlers) {
		h.countOnlyPaid = value
	}
}

// WithAdminIdempotency installs idempotency-key handling on staff mutations.
func WithAdminIdempotency(mw func(http.Handler) http.Handler) AdminHandlersOption {
	return func(h *AdminHandlers) {
		if mw != nil {
			h.replays = mw
		}
	}
}

// AdminServices groups the services behind the admin routes.
type AdminServices struct {
	Ledger    services.OrderLedgerService
	Proofs    services.PaymentProofService
	Shipments services.ShipmentService
	Returns   services.ReturnService
	Revenue   services.RevenueService
}

// NewAdminHandlers constructs the admin handlers.
func NewAdminHandlers(authn *auth.Authenticator, svc AdminServices, opts ...AdminHandlersOption) *AdminHandlers {
	h := &AdminHandlers{
		authn:     authn,
		ledger:    svc.Ledger,
		proofs:    svc.Proofs,
		shipments: svc.Shipments,
		returns:   svc.Returns,
		revenue:   svc.Revenue,
		replays:   passthrough,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/orders/{orderID}", h.getOrder)
	r.Get("/orders/{orderID}/payment-proofs:download-url", h.proofDownloadURL)
	r.Get("/shipments/{shipmentID}", h.getShipment)
	r.Get("/returns/{returnID}", h.getReturn)
	r.Get("/revenue", h.revenueReport)

	r.Group(func(mut chi.Router) {
		mut.Use(h.replays)
		mut.Post("/orders/{orderID}/payments", h.applyPayment)
		mut.Post("/orders/{orderID}:cancel", h.cancelOrder)
		mut.Post("/orders/{orderID}/shipment", h.ensureShipment)
		mut.Post("/shipments/{shipmentID}:transition", h.transitionShipment)
		mut.Post("/returns/{returnID}:approve", h.approveReturn)
		mut.Post("/returns/{returnID}:reject", h.rejectReturn)
		mut.Post("/returns/{returnID}:receive", h.receiveReturn)
		mut.Post("/returns/{returnID}:refund", h.refundReturn)
	})
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	view, err := h.ledger.GetOrder(ctx, services.GetOrderQuery{OrderID: orderID})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	setVersionHeader(w, view.Order.Version)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

type paymentEventRequest struct {
	Event           string           `json:"event" validate:"required,oneof=deposit_recorded assessment_finalized additional_payment_recorded refund_issued"`
	Amount          *decimal.Decimal `json:"amount" validate:"omitempty,gte=0"`
	AssessedTotal   *decimal.Decimal `json:"assessed_total" validate:"omitempty,gte=0"`
	RequestedAmount *decimal.Decimal `json:"requested_amount" validate:"omitempty,gte=0"`
	ProofPath       string           `json:"proof_path" validate:"max=512"`
	Note            string           `json:"note" validate:"max=1000"`
	Reason          string           `json:"reason" validate:"max=1000"`
	ExpectedVersion *int64           `json:"expected_version" validate:"omitempty,gte=1"`
}

func (req paymentEventRequest) toEvent() (services.PaymentEvent, error) {
	amount := func(field string, value *decimal.Decimal) (domain.Money, error) {
		if value == nil {
			return 0, domain.NewValidationError(field, field+" is required")
		}
		return *moneyFromDecimal(value), nil
	}
	switch req.Event {
	case paymentEventDeposit:
		value, err := amount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return services.DepositRecorded{Amount: value, ProofPath: strings.TrimSpace(req.ProofPath)}, nil
	case paymentEventAssessment:
		total, err := amount("assessed_total", req.AssessedTotal)
		if err != nil {
			return nil, err
		}
		return services.AssessmentFinalized{
			AssessedTotal:   total,
			RequestedAmount: moneyFromDecimal(req.RequestedAmount),
			Note:            req.Note,
		}, nil
	case paymentEventAdditional:
		value, err := amount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return services.AdditionalPaymentRecorded{Amount: value, ProofPath: strings.TrimSpace(req.ProofPath)}, nil
	case paymentEventRefund:
		value, err := amount("amount", req.Amount)
		if err != nil {
			return nil, err
		}
		return services.RefundIssued{Amount: value, Reason: req.Reason}, nil
	}
	return nil, domain.NewValidationError("event", "unsupported payment event")
}

func (h *AdminHandlers) applyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	var req paymentEventRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	event, err := req.toEvent()
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	view, err := h.ledger.ApplyPaymentEvent(ctx, services.PaymentEventCommand{
		OrderID:         orderID,
		Event:           event,
		ExpectedVersion: version,
		ActorID:         identity.UID,
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	setVersionHeader(w, view.Order.Version)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

type cancelOrderRequest struct {
	Reason          string `json:"reason" validate:"max=1000"`
	ExpectedVersion *int64 `json:"expected_version" validate:"omitempty,gte=1"`
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	var req cancelOrderRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	view, err := h.ledger.Cancel(ctx, services.CancelOrderCommand{
		OrderID:         orderID,
		Reason:          req.Reason,
		ExpectedVersion: version,
		ActorID:         identity.UID,
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	setVersionHeader(w, view.Order.Version)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

func (h *AdminHandlers) proofDownloadURL(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeProofDownload(w, r, h.proofs, identity, isStaff(identity))
}

type ensureShipmentRequest struct {
	Carrier        string `json:"carrier" validate:"max=80"`
	TrackingNumber string `json:"tracking_number" validate:"max=80"`
}

func (h *AdminHandlers) ensureShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	var req ensureShipmentRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	shipment, err := h.shipments.EnsureForOrder(ctx, services.EnsureShipmentCommand{
		OrderID:        orderID,
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		ActorID:        identity.UID,
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	setVersionHeader(w, shipment.Version)
	writeJSONResponse(w, http.StatusOK, shipmentResponse{Shipment: buildShipmentPayload(shipment)})
}

func (h *AdminHandlers) getShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipmentID, ok := pathParam(w, r, chi.URLParam(r, "shipmentID"), "shipment id")
	if !ok {
		return
	}
	shipment, err := h.shipments.Get(ctx, shipmentID)
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	setVersionHeader(w, shipment.Version)
	writeJSONResponse(w, http.StatusOK, shipmentResponse{Shipment: buildShipmentPayload(shipment)})
}

type shipmentTransitionRequest struct {
	To              string `json:"to" validate:"required,max=40"`
	Note            string `json:"note" validate:"max=1000"`
	ExpectedVersion *int64 `json:"expected_version" validate:"omitempty,gte=1"`
}

func (h *AdminHandlers) transitionShipment(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeShipmentTransition(w, r, h.shipments, identity.UID)
}

// writeShipmentTransition is shared by the admin route and the courier webhook.
func writeShipmentTransition(w http.ResponseWriter, r *http.Request, shipments services.ShipmentService, actorID string) {
	ctx := r.Context()
	shipmentID, ok := pathParam(w, r, chi.URLParam(r, "shipmentID"), "shipment id")
	if !ok {
		return
	}
	var req shipmentTransitionRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	to, known := domain.ParseShipmentStatus(req.To)
	if !known {
		httpx.WriteDomainError(ctx, w, domain.NewValidationError("to", "unknown shipment status"))
		return
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	shipment, err := shipments.Transition(ctx, services.ShipmentTransitionCommand{
		ShipmentID:      shipmentID,
		To:              to,
		Note:            req.Note,
		ActorID:         actorID,
		ExpectedVersion: version,
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	setVersionHeader(w, shipment.Version)
	writeJSONResponse(w, http.StatusOK, shipmentResponse{Shipment: buildShipmentPayload(shipment)})
}

func (h *AdminHandlers) getReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	returnID, ok := pathParam(w, r, chi.URLParam(r, "returnID"), "return id")
	if !ok {
		return
	}
	request, err := h.returns.Get(ctx, returnID)
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	setVersionHeader(w, request.Version)
	writeJSONResponse(w, http.StatusOK, returnResponse{Return: buildReturnPayload(request)})
}

type returnDecisionRequest struct {
	Reason          string `json:"reason" validate:"max=1000"`
	ExpectedVersion *int64 `json:"expected_version" validate:"omitempty,gte=1"`
}

type returnDecision func(context.Context, services.ReturnDecisionCommand) (services.ReturnRequest, error)

func (h *AdminHandlers) approveReturn(w http.ResponseWriter, r *http.Request) {
	h.decideReturn(w, r, false, h.returns.Approve)
}

func (h *AdminHandlers) rejectReturn(w http.ResponseWriter, r *http.Request) {
	h.decideReturn(w, r, true, h.returns.Reject)
}

func (h *AdminHandlers) receiveReturn(w http.ResponseWriter, r *http.Request) {
	h.decideReturn(w, r, false, h.returns.MarkReceived)
}

func (h *AdminHandlers) decideReturn(w http.ResponseWriter, r *http.Request, requireBody bool, decide returnDecision) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	returnID, ok := pathParam(w, r, chi.URLParam(r, "returnID"), "return id")
	if !ok {
		return
	}
	var req returnDecisionRequest
	if !decodeJSON(w, r, &req, !requireBody) {
		return
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	request, err := decide(ctx, services.ReturnDecisionCommand{
		ReturnID:        returnID,
		Reason:          req.Reason,
		ActorID:         identity.UID,
		ExpectedVersion: version,
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	setVersionHeader(w, request.Version)
	writeJSONResponse(w, http.StatusOK, returnResponse{Return: buildReturnPayload(request)})
}

type returnRefundRequest struct {
	Amount          *decimal.Decimal `json:"amount" validate:"omitempty,gt=0"`
	Method          string           `json:"method" validate:"max=40"`
	ExpectedVersion *int64           `json:"expected_version" validate:"omitempty,gte=1"`
}

type returnRefundResponse struct {
	Return returnPayload `json:"return"`
	Order  orderPayload  `json:"order"`
}

func (h *AdminHandlers) refundReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	returnID, ok := pathParam(w, r, chi.URLParam(r, "returnID"), "return id")
	if !ok {
		return
	}
	var req returnRefundRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	version, err := expectedVersion(r, req.ExpectedVersion)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.returns.IssueRefund(ctx, services.ReturnRefundCommand{
		ReturnID:        returnID,
		Amount:          moneyFromDecimal(req.Amount),
		Method:          req.Method,
		ActorID:         identity.UID,
		ExpectedVersion: version,
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	setVersionHeader(w, result.Return.Version)
	writeJSONResponse(w, http.StatusOK, returnRefundResponse{
		Return: buildReturnPayload(result.Return),
		Order:  buildOrderPayload(result.Order),
	})
}

func (h *AdminHandlers) revenueReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	countOnlyPaid, err := parseBoolParam(r.URL.Query().Get("countOnlyPaid"), h.countOnlyPaid)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "countOnlyPaid must be a boolean", http.StatusBadRequest))
		return
	}

	summary, err := h.revenue.Report(ctx, services.RevenueQuery{CountOnlyPaid: countOnlyPaid})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "private, no-store")
	writeJSONResponse(w, http.StatusOK, buildRevenueResponse(summary, countOnlyPaid))
}
