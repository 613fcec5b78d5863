package services

import (
	"context"
	"time"

	domain "github.com/furnitune/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	Shipment           = domain.Shipment
	ShipmentEvent      = domain.ShipmentEvent
	ReturnRequest      = domain.ReturnRequest
	Notification       = domain.Notification
	SystemHealthReport = domain.SystemHealthReport
)

// OrderLedgerService exposes the reconciled financial view of orders and applies payment events.
type OrderLedgerService interface {
	GetOrder(ctx context.Context, query GetOrderQuery) (OrderView, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[OrderView], error)
	ApplyPaymentEvent(ctx context.Context, cmd PaymentEventCommand) (OrderView, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (OrderView, error)
}

// PaymentProofService issues upload URLs for payment proofs and records confirmed uploads.
type PaymentProofService interface {
	IssueUploadURL(ctx context.Context, cmd ProofUploadCommand) (SignedUpload, error)
	ConfirmProof(ctx context.Context, cmd ConfirmProofCommand) (OrderView, error)
	DownloadURL(ctx context.Context, cmd ProofDownloadCommand) (SignedUpload, error)
}

// ShipmentService drives the shipment lifecycle.
type ShipmentService interface {
	EnsureForOrder(ctx context.Context, cmd EnsureShipmentCommand) (Shipment, error)
	Transition(ctx context.Context, cmd ShipmentTransitionCommand) (Shipment, error)
	Get(ctx context.Context, shipmentID string) (Shipment, error)
	GetForOrder(ctx context.Context, query GetOrderQuery) (Shipment, error)
}

// ReturnService evaluates, records, and decides return requests.
type ReturnService interface {
	Evaluate(ctx context.Context, query GetOrderQuery) (ReturnEligibility, error)
	IssuePhotoUploadURL(ctx context.Context, cmd ReturnPhotoUploadCommand) (SignedUpload, error)
	Submit(ctx context.Context, cmd SubmitReturnCommand) (ReturnRequest, error)
	Get(ctx context.Context, returnID string) (ReturnRequest, error)
	Approve(ctx context.Context, cmd ReturnDecisionCommand) (ReturnRequest, error)
	Reject(ctx context.Context, cmd ReturnDecisionCommand) (ReturnRequest, error)
	MarkReceived(ctx context.Context, cmd ReturnDecisionCommand) (ReturnRequest, error)
	IssueRefund(ctx context.Context, cmd ReturnRefundCommand) (ReturnRefundResult, error)
}

// RevenueService reports cumulative net revenue for the admin dashboard.
type RevenueService interface {
	Report(ctx context.Context, query RevenueQuery) (RevenueSummary, error)
	Invalidate(ctx context.Context) error
}

// NotificationDispatcher delivers notification intents after a transaction commits.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, intents ...Notification)
}

// SystemService aggregates utility endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type                  string
	OrderID               string
	UserID                string
	PreviousPaymentStatus string
	PaymentStatus         string
	ActorID               string
	Version               int64
	OccurredAt            time.Time
	Metadata              map[string]any
}

// UploadSigner produces signed object URLs.
type UploadSigner interface {
	SignUpload(ctx context.Context, bucket, object, contentType string) (SignedUpload, error)
	SignDownload(ctx context.Context, bucket, object, ownerID string) (SignedUpload, error)
}

// ObjectChecker reports whether an uploaded object exists.
type ObjectChecker interface {
	Exists(ctx context.Context, bucket, object string) (bool, error)
}

// ReportCache stores serialised revenue reports.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Purge(ctx context.Context) error
}

// NotificationPublisher fans notification intents out to delivery workers.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, notification Notification) error
}

// OrderView is an order together with its derived ledger and display stage.
type OrderView struct {
	Order         Order
	Ledger        Ledger
	ProgressStage domain.ProgressStage
}

// GetOrderQuery loads an order. A non-empty UserID restricts access to that customer.
type GetOrderQuery struct {
	OrderID string
	UserID  string
}

// OrderListFilter pages through a customer's orders.
type OrderListFilter struct {
	UserID        string
	PaymentStatus []domain.PaymentStatus
	Pagination    Pagination
}

// PaymentEventCommand applies one payment event to an order.
type PaymentEventCommand struct {
	OrderID         string
	Event           PaymentEvent
	ExpectedVersion *int64
	ActorID         string
}

// CancelOrderCommand cancels an order that has not received money.
type CancelOrderCommand struct {
	OrderID         string
	Reason          string
	ExpectedVersion *int64
	ActorID         string
}

// SignedUpload is a signed URL plus the object path it targets.
type SignedUpload struct {
	ObjectPath string
	URL        string
	Method     string
	Headers    map[string]string
	ExpiresAt  time.Time
}

// ProofUploadCommand requests an upload URL for a payment proof.
type ProofUploadCommand struct {
	OrderID     string
	UserID      string
	Kind        string
	FileName    string
	ContentType string
}

// ConfirmProofCommand records an uploaded payment proof on the order.
type ConfirmProofCommand struct {
	OrderID    string
	UserID     string
	Kind       string
	ObjectPath string
}

// ProofDownloadCommand requests a download URL for a recorded payment proof.
type ProofDownloadCommand struct {
	OrderID    string
	ObjectPath string
	ActorID    string
	Staff      bool
}

// EnsureShipmentCommand creates the shipment for an order when missing.
type EnsureShipmentCommand struct {
	OrderID        string
	Carrier        string
	TrackingNumber string
	ActorID        string
}

// ShipmentTransitionCommand advances a shipment.
type ShipmentTransitionCommand struct {
	ShipmentID      string
	To              domain.ShipmentStatus
	Note            string
	ActorID         string
	ExpectedVersion *int64
}

// ReturnPhotoUploadCommand requests an upload URL for a return photo.
type ReturnPhotoUploadCommand struct {
	OrderID     string
	UserID      string
	FileName    string
	ContentType string
}

// SubmitReturnCommand files a new return request.
type SubmitReturnCommand struct {
	OrderID string
	UserID  string
	Payload ReturnSubmission
}

// ReturnDecisionCommand records a staff decision on a return.
type ReturnDecisionCommand struct {
	ReturnID        string
	Reason          string
	ActorID         string
	ExpectedVersion *int64
}

// ReturnRefundCommand issues the refund for an approved or received return.
// A nil Amount refunds the requested amount.
type ReturnRefundCommand struct {
	ReturnID        string
	Amount          *domain.Money
	Method          string
	ActorID         string
	ExpectedVersion *int64
}

// ReturnRefundResult is the updated return and order after a refund.
type ReturnRefundResult struct {
	Return ReturnRequest
	Order  OrderView
}

// RevenueQuery selects the revenue policy.
type RevenueQuery struct {
	CountOnlyPaid bool
}

// RevenueSummary is the revenue report plus dashboard counters.
type RevenueSummary struct {
	Report         RevenueReport
	ShippedCount   int
	DeliveredCount int
	GeneratedAt    time.Time
	Cached         bool
}
