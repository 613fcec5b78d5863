package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Order is one customer transaction. Catalog purchases, repair jobs and customization jobs
// share this shape and differ only by Origin.
type Order struct {
	ID            string
	UserID        string
	Origin        Origin
	Status        string
	PaymentStatus PaymentStatus
	Items         []OrderItem
	Total         Money

	AssessedTotal       *Money
	Deposit             Money
	AdditionalPaid      Money
	Refunded            Money
	RequestedAdditional Money

	Proofs PaymentProofs

	ReturnPolicyDays *int
	ReturnDeadlineAt *time.Time
	ReturnLocked     bool

	RepairID string
	CustomID string

	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StatusUpdatedAt *time.Time
	PaidAt          *time.Time
	DeliveredAt     *time.Time
	RefundedAt      *time.Time
	CancelledAt     *time.Time
}

// OrderItem is a purchased line.
type OrderItem struct {
	ProductRef string
	Name       string
	Quantity   int
	UnitPrice  Money
}

// LineTotal returns quantity times unit price.
func (i OrderItem) LineTotal() Money {
	if i.Quantity <= 0 {
		return 0
	}
	return Money(int64(i.UnitPrice.Clamp()) * int64(i.Quantity))
}

// PaymentProofs stores object paths of uploaded payment proofs.
type PaymentProofs struct {
	DepositPath     string
	AdditionalPaths []string
	PendingReview   bool
	LastUploadedAt  *time.Time
}

// WorkOrder is a repair or customization record that may be linked to an order.
type WorkOrder struct {
	ID              string
	Kind            SaleKind
	UserID          string
	Status          string
	PaymentStatus   string
	Total           Money
	Refunded        *Money
	CreatedAt       *time.Time
	UpdatedAt       *time.Time
	PaidAt          *time.Time
	RefundedAt      *time.Time
	CancelledAt     *time.Time
	StatusUpdatedAt *time.Time
}

// Shipment tracks physical delivery for exactly one order.
type Shipment struct {
	ID             string
	OrderID        string
	UserID         string
	Status         ShipmentStatus
	Carrier        string
	TrackingNumber string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Events         []ShipmentEvent
}

// ShipmentEvent is an immutable entry in a shipment's trail.
type ShipmentEvent struct {
	ID         string
	ShipmentID string
	From       ShipmentStatus
	To         ShipmentStatus
	Note       string
	Actor      string
	At         time.Time
}

// ReturnRequest is a customer's request to send items back for a refund.
type ReturnRequest struct {
	ID                 string
	OrderID            string
	UserID             string
	Status             ReturnStatus
	Items              []ReturnItem
	ReasonCode         string
	Details            string
	RequestedAmount    Money
	RefundChannel      RefundChannel
	AccountName        string
	AccountNumberLast4 string
	PhotoPath          string

	RefundAmount    Money
	RefundMethod    string
	RejectionReason string
	DecidedBy       string

	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DecidedAt  *time.Time
	ReceivedAt *time.Time
	RefundedAt *time.Time
}

// ReturnItem is a selected line on a return request.
type ReturnItem struct {
	ProductRef string
	Name       string
	Quantity   int
	UnitPrice  Money
}

// LineTotal returns quantity times unit price.
func (i ReturnItem) LineTotal() Money {
	if i.Quantity <= 0 {
		return 0
	}
	return Money(int64(i.UnitPrice.Clamp()) * int64(i.Quantity))
}

// Notification is an intent to inform a user about an order change.
type Notification struct {
	ID        string
	UserID    string
	Type      string
	OrderID   string
	Title     string
	Body      string
	Link      string
	Read      bool
	CreatedAt time.Time
}

// SaleRecord is the read-only projection of an order, repair or customization used for revenue reporting.
type SaleRecord struct {
	ID              string
	Kind            SaleKind
	Status          string
	PaymentStatus   string
	Total           Money
	Refunded        *Money
	RepairRef       string
	PaidAt          *time.Time
	CreatedAt       *time.Time
	UpdatedAt       *time.Time
	RefundedAt      *time.Time
	CancelledAt     *time.Time
	StatusUpdatedAt *time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
