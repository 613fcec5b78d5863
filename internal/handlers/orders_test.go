package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/services"
)

func sampleOrderView() services.OrderView {
	assessed := domain.Money(150000)
	return services.OrderView{
		Order: services.Order{
			ID:            "ord_01HZX9ABCDEF",
			UserID:        "user-1",
			Origin:        domain.OriginCatalog,
			Status:        "processing",
			PaymentStatus: domain.PaymentStatusAwaitingAdditionalPayment,
			Total:         120000,
			AssessedTotal: &assessed,
			Deposit:       60000,
			Items: []domain.OrderItem{
				{ProductRef: "sofa-3s", Name: "Three seater", Quantity: 2, UnitPrice: 60000},
			},
			Version:   4,
			CreatedAt: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
		},
		Ledger: services.Ledger{
			Assessed:            true,
			AssessedTotal:       150000,
			Deposit:             60000,
			RequestedAdditional: 90000,
			NetPaid:             60000,
			BalanceDue:          90000,
			NextPayment:         90000,
		},
		ProgressStage: domain.ProgressPreparing,
	}
}

func newOrderRouter(h *OrderHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/orders", h.Routes)
	return router
}

func TestOrderHandlersListOrders(t *testing.T) {
	var captured services.OrderListFilter
	ledger := &stubLedgerService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.OrderView], error) {
			captured = filter
			return domain.CursorPage[services.OrderView]{
				Items:         []services.OrderView{sampleOrderView()},
				NextPageToken: "next-token",
			}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, ledger, nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/orders?pageSize=10&status=deposit_paid,PAID", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected filter scoped to user-1, got %q", captured.UserID)
	}
	if captured.Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", captured.Pagination.PageSize)
	}
	if len(captured.PaymentStatus) != 2 || captured.PaymentStatus[1] != domain.PaymentStatusPaid {
		t.Fatalf("unexpected payment status filter %v", captured.PaymentStatus)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 order, got %d", len(resp.Items))
	}
	order := resp.Items[0]
	if order.Ledger.BalanceDue != 90000 || order.Ledger.NextPayment != 90000 {
		t.Fatalf("unexpected ledger payload %#v", order.Ledger)
	}
	if order.ProgressStage != "preparing" {
		t.Fatalf("expected progress stage preparing, got %s", order.ProgressStage)
	}
	if order.Items[0].Total != 120000 {
		t.Fatalf("expected line total 120000, got %d", order.Items[0].Total)
	}
	if resp.NextPageToken != "next-token" {
		t.Fatalf("expected next token, got %q", resp.NextPageToken)
	}
}

func TestOrderHandlersListOrdersRejectsUnknownStatus(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubLedgerService{}, nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/orders?status=shipped", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrder(t *testing.T) {
	var captured services.GetOrderQuery
	ledger := &stubLedgerService{
		getFn: func(_ context.Context, query services.GetOrderQuery) (services.OrderView, error) {
			captured = query
			if query.OrderID != "ord_01HZX9ABCDEF" {
				return services.OrderView{}, domain.NewNotFoundError("order", query.OrderID)
			}
			return sampleOrderView(), nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, ledger, nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_01HZX9ABCDEF", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected ownership check for user-1, got %q", captured.UserID)
	}
	if etag := rr.Header().Get("ETag"); etag != `"4"` {
		t.Fatalf("expected ETag \"4\", got %s", etag)
	}

	req = httptest.NewRequest(http.MethodGet, "/orders/ord_missing", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "order_not_found" {
		t.Fatalf("expected order_not_found, got %v", body["error"])
	}
}

func TestOrderHandlersRequireIdentity(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubLedgerService{}, nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersProofUploadURL(t *testing.T) {
	expires := time.Date(2025, 5, 2, 9, 15, 0, 0, time.UTC)
	var captured services.ProofUploadCommand
	proofs := &stubProofService{
		uploadFn: func(_ context.Context, cmd services.ProofUploadCommand) (services.SignedUpload, error) {
			captured = cmd
			return services.SignedUpload{
				ObjectPath: "payments/ord_01HZX9ABCDEF/deposit/01J_receipt.png",
				URL:        "https://storage.example/signed",
				Method:     "put",
				Headers:    map[string]string{"Content-Type": "image/png"},
				ExpiresAt:  expires,
			}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, nil, proofs, nil, nil))

	body := `{"kind":"deposit","file_name":"receipt.png","content_type":"image/png"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_01HZX9ABCDEF/payment-proofs:upload-url", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_01HZX9ABCDEF" || captured.UserID != "user-1" || captured.Kind != "deposit" {
		t.Fatalf("unexpected command %#v", captured)
	}
	var resp signedURLPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Method != "PUT" {
		t.Fatalf("expected method upper-cased, got %s", resp.Method)
	}
	if resp.ExpiresAt != expires.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected expiry %s", resp.ExpiresAt)
	}
}

func TestOrderHandlersProofUploadURLValidatesKind(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, nil, &stubProofService{}, nil, nil))

	body := `{"kind":"tip","file_name":"receipt.png"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/payment-proofs:upload-url", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1"))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	var resp struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Fields["kind"] != "oneof" {
		t.Fatalf("expected kind oneof failure, got %v", resp.Fields)
	}
}

func TestOrderHandlersConfirmProofInvalidTransition(t *testing.T) {
	proofs := &stubProofService{
		confirmFn: func(context.Context, services.ConfirmProofCommand) (services.OrderView, error) {
			return services.OrderView{}, domain.NewTransitionError("payment", "paid", "proof:additional")
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, nil, proofs, nil, nil))

	body := `{"kind":"additional","object_path":"payments/ord_1/additional/x.png"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/payment-proofs", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["error"] != "invalid_transition" || resp["state"] != "paid" {
		t.Fatalf("unexpected error payload %v", resp)
	}
}

func TestOrderHandlersProofDownloadURLIsCustomerScoped(t *testing.T) {
	var captured services.ProofDownloadCommand
	proofs := &stubProofService{
		downloadFn: func(_ context.Context, cmd services.ProofDownloadCommand) (services.SignedUpload, error) {
			captured = cmd
			return services.SignedUpload{ObjectPath: cmd.ObjectPath, URL: "https://storage.example/get", Method: "GET"}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, nil, proofs, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1/payment-proofs:download-url?path=payments/ord_1/deposit/a.png", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1", "staff"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Staff {
		t.Fatalf("customer route must never grant staff access")
	}
	if captured.ObjectPath != "payments/ord_1/deposit/a.png" || captured.ActorID != "user-1" {
		t.Fatalf("unexpected command %#v", captured)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store cache control")
	}
}

func TestOrderHandlersReturnEligibility(t *testing.T) {
	deadline := time.Date(2025, 5, 9, 15, 0, 0, 0, time.UTC)
	returns := &stubReturnService{
		evaluateFn: func(context.Context, services.GetOrderQuery) (services.ReturnEligibility, error) {
			return services.ReturnEligibility{Allowed: true, Deadline: &deadline, DaysRemaining: 2}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, nil, nil, returns, nil))

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1/return-eligibility", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp eligibilityPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Allowed || resp.DaysRemaining != 2 || resp.Deadline != deadline.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected eligibility %#v", resp)
	}
}

func TestOrderHandlersSubmitReturn(t *testing.T) {
	var captured services.SubmitReturnCommand
	returns := &stubReturnService{
		submitFn: func(_ context.Context, cmd services.SubmitReturnCommand) (services.ReturnRequest, error) {
			captured = cmd
			return services.ReturnRequest{
				ID:                 "ret_01J",
				OrderID:            cmd.OrderID,
				UserID:             cmd.UserID,
				Status:             domain.ReturnStatusRequested,
				RequestedAmount:    60000,
				AccountNumberLast4: "6789",
				Version:            1,
			}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, nil, nil, returns, nil))

	body := `{
		"items":[{"product_ref":"sofa-3s","quantity":1}],
		"reason_code":"damaged",
		"details":"leg cracked",
		"account_name":"Juan Dela Cruz",
		"account_number":"0123456789",
		"photo_path":"returns/user-1/ord_1/1714550400_leg.jpg"
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/returns", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(captured.Payload.Items) != 1 || captured.Payload.Items[0].ProductRef != "sofa-3s" {
		t.Fatalf("unexpected items %#v", captured.Payload.Items)
	}
	if captured.Payload.AccountNumber != "0123456789" {
		t.Fatalf("expected full account number forwarded to the service")
	}
	var resp returnResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Return.AccountNumberLast4 != "6789" || resp.Return.Status != "requested" {
		t.Fatalf("unexpected return payload %#v", resp.Return)
	}
	if strings.Contains(rr.Body.String(), "0123456789") {
		t.Fatalf("response must not echo the full account number")
	}
}

func TestOrderHandlersSubmitReturnValidation(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, nil, nil, &stubReturnService{}, nil))

	body := `{"items":[],"reason_code":"damaged","account_name":"A","account_number":"1","photo_path":"p"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/returns", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1"))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestOrderHandlersMutationRateLimit(t *testing.T) {
	returns := &stubReturnService{
		photoFn: func(context.Context, services.ReturnPhotoUploadCommand) (services.SignedUpload, error) {
			return services.SignedUpload{URL: "https://storage.example/put", Method: "PUT"}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, nil, nil, returns, nil, WithOrderMutationLimiter(RateLimit(1))))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/orders/ord_1/returns:upload-url", strings.NewReader(`{"file_name":"leg.jpg"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, withIdentity(req, "user-1"))
		return rr.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", code)
	}
}

func TestOrderHandlersShipmentNotFound(t *testing.T) {
	shipments := &stubShipmentService{
		forOrderFn: func(context.Context, services.GetOrderQuery) (services.Shipment, error) {
			return services.Shipment{}, domain.NewNotFoundError("shipment", "shp_ord_1")
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, nil, nil, nil, shipments))

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1/shipment", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(req, "user-1"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
