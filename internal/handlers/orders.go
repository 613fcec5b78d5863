package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/platform/auth"
	"github.com/furnitune/api/internal/platform/httpx"
	"github.com/furnitune/api/internal/platform/pagination"
	"github.com/furnitune/api/internal/services"
)

var listablePaymentStatuses = []string{
	string(domain.PaymentStatusPending),
	string(domain.PaymentStatusDepositPaid),
	string(domain.PaymentStatusAwaitingAdditionalPayment),
	string(domain.PaymentStatusPaid),
	string(domain.PaymentStatusRefunded),
	string(domain.PaymentStatusCancelled),
}

// OrderHandlers exposes the customer order, payment proof, return and shipment endpoints.
type OrderHandlers struct {
	authn     *auth.Authenticator
	ledger    services.OrderLedgerService
	proofs    services.PaymentProofService
	returns   services.ReturnService
	shipments services.ShipmentService
	limiter   func(http.Handler) http.Handler
	replays   func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderMutationLimiter throttles customer mutations.
func WithOrderMutationLimiter(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = mw
	}
}

// WithOrderIdempotency installs idempotency-key handling on customer mutations. It runs after
// authentication so keys are scoped to the caller.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		if mw != nil {
			h.replays = mw
		}
	}
}

// NewOrderHandlers constructs the customer order handlers.
func NewOrderHandlers(authn *auth.Authenticator, ledger services.OrderLedgerService, proofs services.PaymentProofService, returns services.ReturnService, shipments services.ShipmentService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:     authn,
		ledger:    ledger,
		proofs:    proofs,
		returns:   returns,
		shipments: shipments,
		limiter:   passthrough,
		replays:   passthrough,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/payment-proofs:download-url", h.proofDownloadURL)
	r.Get("/{orderID}/return-eligibility", h.returnEligibility)
	r.Get("/{orderID}/shipment", h.getShipment)

	r.Group(func(mut chi.Router) {
		mut.Use(h.limiter, h.replays)
		mut.Post("/{orderID}/payment-proofs:upload-url", h.proofUploadURL)
		mut.Post("/{orderID}/payment-proofs", h.confirmProof)
		mut.Post("/{orderID}/returns:upload-url", h.returnPhotoUploadURL)
		mut.Post("/{orderID}/returns", h.submitReturn)
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{AllowedStatuses: listablePaymentStatuses})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.ledger.ListOrders(ctx, services.OrderListFilter{
		UserID:        identity.UID,
		PaymentStatus: parsePaymentStatuses(params.Statuses),
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}

	resp := orderListResponse{
		Items:         make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, view := range page.Items {
		resp.Items = append(resp.Items, buildOrderPayload(view))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}

	view, err := h.ledger.GetOrder(ctx, services.GetOrderQuery{OrderID: orderID, UserID: identity.UID})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	setVersionHeader(w, view.Order.Version)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

type proofUploadRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=deposit additional"`
	FileName    string `json:"file_name" validate:"required,max=200"`
	ContentType string `json:"content_type" validate:"omitempty,max=100"`
}

func (h *OrderHandlers) proofUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	var req proofUploadRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	signed, err := h.proofs.IssueUploadURL(ctx, services.ProofUploadCommand{
		OrderID:     orderID,
		UserID:      identity.UID,
		Kind:        req.Kind,
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSignedURLPayload(signed))
}

type confirmProofRequest struct {
	Kind       string `json:"kind" validate:"required,oneof=deposit additional"`
	ObjectPath string `json:"object_path" validate:"required,max=512"`
}

func (h *OrderHandlers) confirmProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	var req confirmProofRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	view, err := h.proofs.ConfirmProof(ctx, services.ConfirmProofCommand{
		OrderID:    orderID,
		UserID:     identity.UID,
		Kind:       req.Kind,
		ObjectPath: req.ObjectPath,
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	setVersionHeader(w, view.Order.Version)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(view)})
}

func (h *OrderHandlers) proofDownloadURL(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeProofDownload(w, r, h.proofs, identity, false)
}

// writeProofDownload is shared by the customer and admin download routes.
func writeProofDownload(w http.ResponseWriter, r *http.Request, proofs services.PaymentProofService, identity *auth.Identity, staff bool) {
	ctx := r.Context()
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	path, ok := pathParam(w, r, r.URL.Query().Get("path"), "path")
	if !ok {
		return
	}
	signed, err := proofs.DownloadURL(ctx, services.ProofDownloadCommand{
		OrderID:    orderID,
		ObjectPath: path,
		ActorID:    identity.UID,
		Staff:      staff,
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSONResponse(w, http.StatusOK, buildSignedURLPayload(signed))
}

func (h *OrderHandlers) returnEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}

	eligibility, err := h.returns.Evaluate(ctx, services.GetOrderQuery{OrderID: orderID, UserID: identity.UID})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildEligibilityPayload(eligibility))
}

type returnPhotoUploadRequest struct {
	FileName    string `json:"file_name" validate:"required,max=200"`
	ContentType string `json:"content_type" validate:"omitempty,max=100"`
}

func (h *OrderHandlers) returnPhotoUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	var req returnPhotoUploadRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	signed, err := h.returns.IssuePhotoUploadURL(ctx, services.ReturnPhotoUploadCommand{
		OrderID:     orderID,
		UserID:      identity.UID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSignedURLPayload(signed))
}

type submitReturnRequest struct {
	Items []struct {
		ProductRef string `json:"product_ref" validate:"required"`
		Quantity   int    `json:"quantity" validate:"gte=1"`
	} `json:"items" validate:"required,min=1,dive"`
	ReasonCode    string `json:"reason_code" validate:"required,max=64"`
	Details       string `json:"details" validate:"max=2000"`
	AccountName   string `json:"account_name" validate:"required,max=120"`
	AccountNumber string `json:"account_number" validate:"required,max=34"`
	PhotoPath     string `json:"photo_path" validate:"required,max=512"`
}

func (h *OrderHandlers) submitReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}
	var req submitReturnRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	submission := services.ReturnSubmission{
		ReasonCode:    req.ReasonCode,
		Details:       req.Details,
		AccountName:   req.AccountName,
		AccountNumber: req.AccountNumber,
		PhotoPath:     req.PhotoPath,
	}
	for _, item := range req.Items {
		submission.Items = append(submission.Items, services.ReturnItemSelection{
			ProductRef: strings.TrimSpace(item.ProductRef),
			Quantity:   item.Quantity,
		})
	}

	created, err := h.returns.Submit(ctx, services.SubmitReturnCommand{
		OrderID: orderID,
		UserID:  identity.UID,
		Payload: submission,
	})
	if err != nil {
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, returnResponse{Return: buildReturnPayload(created)})
}

func (h *OrderHandlers) getShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathParam(w, r, chi.URLParam(r, "orderID"), "order id")
	if !ok {
		return
	}

	shipment, err := h.shipments.GetForOrder(ctx, services.GetOrderQuery{OrderID: orderID, UserID: identity.UID})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("shipment_not_found", "shipment not found", http.StatusNotFound))
			return
		}
		httpx.WriteDomainError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, shipmentResponse{Shipment: buildShipmentPayload(shipment)})
}
