package domain

import "strings"

// Origin identifies which flow produced an order.
type Origin string

const (
	OriginCatalog       Origin = "catalog"
	OriginRepair        Origin = "repair"
	OriginCustomization Origin = "customization"
)

// PaymentStatus is the closed set of order payment states.
type PaymentStatus string

const (
	PaymentStatusPending                   PaymentStatus = "pending"
	PaymentStatusDepositPaid               PaymentStatus = "deposit_paid"
	PaymentStatusAwaitingAdditionalPayment PaymentStatus = "awaiting_additional_payment"
	PaymentStatusPaid                      PaymentStatus = "paid"
	PaymentStatusRefunded                  PaymentStatus = "refunded"
	PaymentStatusCancelled                 PaymentStatus = "cancelled"
)

// ParsePaymentStatus maps stored or legacy payment strings onto the closed set.
// Unknown values fall back to pending.
func ParsePaymentStatus(raw string) PaymentStatus {
	key := normalizeKey(raw)
	switch key {
	case "deposit_paid", "partially_paid", "partial", "downpayment_paid":
		return PaymentStatusDepositPaid
	case "awaiting_additional_payment", "additional_payment_required", "awaiting_payment":
		return PaymentStatusAwaitingAdditionalPayment
	case "paid", "fully_paid", "completed":
		return PaymentStatusPaid
	case "refunded", "refund_issued":
		return PaymentStatusRefunded
	case "cancelled", "canceled":
		return PaymentStatusCancelled
	default:
		return PaymentStatusPending
	}
}

// IsTerminal reports whether no further payment events are accepted.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusRefunded || s == PaymentStatusCancelled
}

// ShipmentStatus is the fulfillment vocabulary driven by the shipment state machine.
type ShipmentStatus string

const (
	ShipmentStatusPending        ShipmentStatus = "pending"
	ShipmentStatusProcessing     ShipmentStatus = "processing"
	ShipmentStatusReadyToShip    ShipmentStatus = "ready_to_ship"
	ShipmentStatusShipped        ShipmentStatus = "shipped"
	ShipmentStatusInTransit      ShipmentStatus = "in_transit"
	ShipmentStatusOutForDelivery ShipmentStatus = "out_for_delivery"
	ShipmentStatusDelivered      ShipmentStatus = "delivered"
	ShipmentStatusReturned       ShipmentStatus = "returned"
	ShipmentStatusCancelled      ShipmentStatus = "cancelled"
)

// ParseShipmentStatus returns the canonical status and whether raw named one.
func ParseShipmentStatus(raw string) (ShipmentStatus, bool) {
	key := normalizeKey(raw)
	if key == "canceled" {
		key = "cancelled"
	}
	status := ShipmentStatus(key)
	switch status {
	case ShipmentStatusPending, ShipmentStatusProcessing, ShipmentStatusReadyToShip,
		ShipmentStatusShipped, ShipmentStatusInTransit, ShipmentStatusOutForDelivery,
		ShipmentStatusDelivered, ShipmentStatusReturned, ShipmentStatusCancelled:
		return status, true
	}
	return "", false
}

// ProgressStage is the five step customer-facing progress vocabulary.
type ProgressStage string

const (
	ProgressProcessing ProgressStage = "processing"
	ProgressPreparing  ProgressStage = "preparing"
	ProgressToShip     ProgressStage = "to_ship"
	ProgressToReceive  ProgressStage = "to_receive"
	ProgressToRate     ProgressStage = "to_rate"
)

// Rank orders progress stages from 0 (processing) to 4 (to_rate).
func (p ProgressStage) Rank() int {
	switch p {
	case ProgressPreparing:
		return 1
	case ProgressToShip:
		return 2
	case ProgressToReceive:
		return 3
	case ProgressToRate:
		return 4
	default:
		return 0
	}
}

// ReturnStatus tracks a return request through review and refund.
type ReturnStatus string

const (
	ReturnStatusRequested    ReturnStatus = "requested"
	ReturnStatusApproved     ReturnStatus = "approved"
	ReturnStatusRejected     ReturnStatus = "rejected"
	ReturnStatusReceived     ReturnStatus = "received"
	ReturnStatusRefundIssued ReturnStatus = "refund_issued"
)

// IsTerminal reports whether the request accepts no further decisions.
func (s ReturnStatus) IsTerminal() bool {
	return s == ReturnStatusRejected || s == ReturnStatusRefundIssued
}

// RefundChannel names the destination for return refunds.
type RefundChannel string

const (
	RefundChannelGCash RefundChannel = "gcash"
)

// SaleKind distinguishes revenue sources.
type SaleKind string

const (
	SaleKindOrder         SaleKind = "order"
	SaleKindRepair        SaleKind = "repair"
	SaleKindCustomization SaleKind = "customization"
)

func normalizeKey(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	return key
}

// NormalizeStatusKey lowercases a free-form status and joins words with underscores.
func NormalizeStatusKey(raw string) string {
	return normalizeKey(raw)
}
