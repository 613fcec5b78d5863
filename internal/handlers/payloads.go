package handlers

import (
	"strings"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/services"
)

type orderPayload struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	Origin           string              `json:"origin"`
	Status           string              `json:"status"`
	PaymentStatus    string              `json:"payment_status"`
	ProgressStage    string              `json:"progress_stage"`
	Total            int64               `json:"total"`
	Items            []orderItemPayload  `json:"items"`
	Ledger           ledgerPayload       `json:"ledger"`
	Proofs           proofsPayload       `json:"proofs"`
	ReturnPolicyDays *int                `json:"return_policy_days,omitempty"`
	ReturnDeadlineAt string              `json:"return_deadline_at,omitempty"`
	ReturnLocked     bool                `json:"return_locked"`
	RepairID         string              `json:"repair_id,omitempty"`
	CustomID         string              `json:"custom_id,omitempty"`
	Version          int64               `json:"version"`
	CreatedAt        string              `json:"created_at,omitempty"`
	UpdatedAt        string              `json:"updated_at,omitempty"`
	PaidAt           string              `json:"paid_at,omitempty"`
	DeliveredAt      string              `json:"delivered_at,omitempty"`
	RefundedAt       string              `json:"refunded_at,omitempty"`
	CancelledAt      string              `json:"cancelled_at,omitempty"`
}

type orderItemPayload struct {
	ProductRef string `json:"product_ref"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Total      int64  `json:"total"`
}

type ledgerPayload struct {
	Assessed            bool  `json:"assessed"`
	AssessedTotal       int64 `json:"assessed_total"`
	Deposit             int64 `json:"deposit"`
	AdditionalPaid      int64 `json:"additional_paid"`
	Refunded            int64 `json:"refunded"`
	RequestedAdditional int64 `json:"requested_additional"`
	NetPaid             int64 `json:"net_paid"`
	BalanceDue          int64 `json:"balance_due"`
	NextPayment         int64 `json:"next_payment"`
}

type proofsPayload struct {
	DepositPath     string   `json:"deposit_path,omitempty"`
	AdditionalPaths []string `json:"additional_paths,omitempty"`
	PendingReview   bool     `json:"pending_review"`
	LastUploadedAt  string   `json:"last_uploaded_at,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func buildOrderPayload(view services.OrderView) orderPayload {
	order := view.Order
	payload := orderPayload{
		ID:               order.ID,
		UserID:           order.UserID,
		Origin:           string(order.Origin),
		Status:           order.Status,
		PaymentStatus:    string(order.PaymentStatus),
		ProgressStage:    string(view.ProgressStage),
		Total:            order.Total.Int64(),
		Items:            make([]orderItemPayload, 0, len(order.Items)),
		ReturnPolicyDays: order.ReturnPolicyDays,
		ReturnDeadlineAt: formatTimePtr(order.ReturnDeadlineAt),
		ReturnLocked:     order.ReturnLocked,
		RepairID:         order.RepairID,
		CustomID:         order.CustomID,
		Version:          order.Version,
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
		PaidAt:           formatTimePtr(order.PaidAt),
		DeliveredAt:      formatTimePtr(order.DeliveredAt),
		RefundedAt:       formatTimePtr(order.RefundedAt),
		CancelledAt:      formatTimePtr(order.CancelledAt),
		Ledger: ledgerPayload{
			Assessed:            view.Ledger.Assessed,
			AssessedTotal:       view.Ledger.AssessedTotal.Int64(),
			Deposit:             view.Ledger.Deposit.Int64(),
			AdditionalPaid:      view.Ledger.AdditionalPaid.Int64(),
			Refunded:            view.Ledger.Refunded.Int64(),
			RequestedAdditional: view.Ledger.RequestedAdditional.Int64(),
			NetPaid:             view.Ledger.NetPaid.Int64(),
			BalanceDue:          view.Ledger.BalanceDue.Int64(),
			NextPayment:         view.Ledger.NextPayment.Int64(),
		},
		Proofs: proofsPayload{
			DepositPath:     order.Proofs.DepositPath,
			AdditionalPaths: order.Proofs.AdditionalPaths,
			PendingReview:   order.Proofs.PendingReview,
			LastUploadedAt:  formatTimePtr(order.Proofs.LastUploadedAt),
		},
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductRef: item.ProductRef,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.Int64(),
			Total:      item.LineTotal().Int64(),
		})
	}
	return payload
}

type shipmentPayload struct {
	ID             string                 `json:"id"`
	OrderID        string                 `json:"order_id"`
	Status         string                 `json:"status"`
	Carrier        string                 `json:"carrier,omitempty"`
	TrackingNumber string                 `json:"tracking_number,omitempty"`
	Version        int64                  `json:"version"`
	CreatedAt      string                 `json:"created_at,omitempty"`
	UpdatedAt      string                 `json:"updated_at,omitempty"`
	Events         []shipmentEventPayload `json:"events,omitempty"`
}

type shipmentEventPayload struct {
	ID    string `json:"id"`
	From  string `json:"from"`
	To    string `json:"to"`
	Note  string `json:"note,omitempty"`
	Actor string `json:"actor,omitempty"`
	At    string `json:"at"`
}

type shipmentResponse struct {
	Shipment shipmentPayload `json:"shipment"`
}

func buildShipmentPayload(shipment services.Shipment) shipmentPayload {
	payload := shipmentPayload{
		ID:             shipment.ID,
		OrderID:        shipment.OrderID,
		Status:         string(shipment.Status),
		Carrier:        shipment.Carrier,
		TrackingNumber: shipment.TrackingNumber,
		Version:        shipment.Version,
		CreatedAt:      formatTime(shipment.CreatedAt),
		UpdatedAt:      formatTime(shipment.UpdatedAt),
	}
	for _, event := range shipment.Events {
		payload.Events = append(payload.Events, shipmentEventPayload{
			ID:    event.ID,
			From:  string(event.From),
			To:    string(event.To),
			Note:  event.Note,
			Actor: event.Actor,
			At:    formatTime(event.At),
		})
	}
	return payload
}

type returnPayload struct {
	ID                 string              `json:"id"`
	OrderID            string              `json:"order_id"`
	UserID             string              `json:"user_id"`
	Status             string              `json:"status"`
	Items              []returnItemPayload `json:"items"`
	ReasonCode         string              `json:"reason_code"`
	Details            string              `json:"details,omitempty"`
	RequestedAmount    int64               `json:"requested_amount"`
	RefundChannel      string              `json:"refund_channel,omitempty"`
	AccountName        string              `json:"account_name,omitempty"`
	AccountNumberLast4 string              `json:"account_number_last4,omitempty"`
	PhotoPath          string              `json:"photo_path,omitempty"`
	RefundAmount       int64               `json:"refund_amount,omitempty"`
	RefundMethod       string              `json:"refund_method,omitempty"`
	RejectionReason    string              `json:"rejection_reason,omitempty"`
	DecidedBy          string              `json:"decided_by,omitempty"`
	Version            int64               `json:"version"`
	CreatedAt          string              `json:"created_at,omitempty"`
	DecidedAt          string              `json:"decided_at,omitempty"`
	ReceivedAt         string              `json:"received_at,omitempty"`
	RefundedAt         string              `json:"refunded_at,omitempty"`
}

type returnItemPayload struct {
	ProductRef string `json:"product_ref"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

type returnResponse struct {
	Return returnPayload `json:"return"`
}

func buildReturnPayload(request services.ReturnRequest) returnPayload {
	payload := returnPayload{
		ID:                 request.ID,
		OrderID:            request.OrderID,
		UserID:             request.UserID,
		Status:             string(request.Status),
		Items:              make([]returnItemPayload, 0, len(request.Items)),
		ReasonCode:         request.ReasonCode,
		Details:            request.Details,
		RequestedAmount:    request.RequestedAmount.Int64(),
		RefundChannel:      string(request.RefundChannel),
		AccountName:        request.AccountName,
		AccountNumberLast4: request.AccountNumberLast4,
		PhotoPath:          request.PhotoPath,
		RefundAmount:       request.RefundAmount.Int64(),
		RefundMethod:       request.RefundMethod,
		RejectionReason:    request.RejectionReason,
		DecidedBy:          request.DecidedBy,
		Version:            request.Version,
		CreatedAt:          formatTime(request.CreatedAt),
		DecidedAt:          formatTimePtr(request.DecidedAt),
		ReceivedAt:         formatTimePtr(request.ReceivedAt),
		RefundedAt:         formatTimePtr(request.RefundedAt),
	}
	for _, item := range request.Items {
		payload.Items = append(payload.Items, returnItemPayload{
			ProductRef: item.ProductRef,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.Int64(),
		})
	}
	return payload
}

type eligibilityPayload struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason,omitempty"`
	Deadline      string `json:"deadline,omitempty"`
	DaysRemaining int    `json:"days_remaining"`
}

func buildEligibilityPayload(eligibility services.ReturnEligibility) eligibilityPayload {
	return eligibilityPayload{
		Allowed:       eligibility.Allowed,
		Reason:        eligibility.Reason,
		Deadline:      formatTimePtr(eligibility.Deadline),
		DaysRemaining: eligibility.DaysRemaining,
	}
}

type signedURLPayload struct {
	ObjectPath string            `json:"object_path"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	ExpiresAt  string            `json:"expires_at"`
}

func buildSignedURLPayload(signed services.SignedUpload) signedURLPayload {
	return signedURLPayload{
		ObjectPath: signed.ObjectPath,
		URL:        signed.URL,
		Method:     strings.ToUpper(signed.Method),
		Headers:    signed.Headers,
		ExpiresAt:  formatTime(signed.ExpiresAt),
	}
}

type revenuePointPayload struct {
	Date          string `json:"date"`
	Gross         int64  `json:"gross"`
	Refunds       int64  `json:"refunds"`
	NetCumulative int64  `json:"net_cumulative"`
}

type revenueResponse struct {
	Series         []revenuePointPayload `json:"series"`
	Gross          int64                 `json:"gross"`
	Refunds        int64                 `json:"refunds"`
	Net            int64                 `json:"net"`
	ShippedCount   int                   `json:"shipped_count"`
	DeliveredCount int                   `json:"delivered_count"`
	CountOnlyPaid  bool                  `json:"count_only_paid"`
	GeneratedAt    string                `json:"generated_at,omitempty"`
	Cached         bool                  `json:"cached"`
}

func buildRevenueResponse(summary services.RevenueSummary, countOnlyPaid bool) revenueResponse {
	resp := revenueResponse{
		Series:         make([]revenuePointPayload, 0, len(summary.Report.Series)),
		Gross:          summary.Report.Totals.Gross.Int64(),
		Refunds:        summary.Report.Totals.Refunds.Int64(),
		Net:            summary.Report.Totals.Net,
		ShippedCount:   summary.ShippedCount,
		DeliveredCount: summary.DeliveredCount,
		CountOnlyPaid:  countOnlyPaid,
		GeneratedAt:    formatTime(summary.GeneratedAt),
		Cached:         summary.Cached,
	}
	for _, point := range summary.Report.Series {
		resp.Series = append(resp.Series, revenuePointPayload{
			Date:          point.Date,
			Gross:         point.Gross.Int64(),
			Refunds:       point.Refunds.Int64(),
			NetCumulative: point.NetCumulative,
		})
	}
	return resp
}

func parsePaymentStatuses(values []string) []domain.PaymentStatus {
	if len(values) == 0 {
		return nil
	}
	statuses := make([]domain.PaymentStatus, 0, len(values))
	for _, value := range values {
		statuses = append(statuses, domain.PaymentStatus(value))
	}
	return statuses
}
