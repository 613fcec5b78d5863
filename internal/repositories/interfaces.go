package repositories

import (
	"context"
	"time"

	domain "github.com/furnitune/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	WorkOrders() WorkOrderRepository
	Shipments() ShipmentRepository
	Returns() ReturnRepository
	Notifications() NotificationRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
// Repository calls made with the ctx handed to fn join the transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order documents including their ledger fields.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// ListAll streams every order; used by revenue reporting.
	ListAll(ctx context.Context) ([]domain.Order, error)
}

// WorkOrderRepository reads repair and customization records linked to orders.
type WorkOrderRepository interface {
	FindByID(ctx context.Context, kind domain.SaleKind, id string) (domain.WorkOrder, error)
	ListAll(ctx context.Context, kind domain.SaleKind) ([]domain.WorkOrder, error)
}

// ShipmentRepository stores shipments and their append-only event history.
type ShipmentRepository interface {
	FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error)
	FindByOrderID(ctx context.Context, orderID string) (domain.Shipment, error)
	Insert(ctx context.Context, shipment domain.Shipment) error
	Update(ctx context.Context, shipment domain.Shipment) error
	AppendEvent(ctx context.Context, event domain.ShipmentEvent) error
	ListEvents(ctx context.Context, shipmentID string) ([]domain.ShipmentEvent, error)
}

// ReturnRepository stores return requests.
type ReturnRepository interface {
	FindByID(ctx context.Context, returnID string) (domain.ReturnRequest, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error)
	Insert(ctx context.Context, request domain.ReturnRequest) error
	Update(ctx context.Context, request domain.ReturnRequest) error
}

// NotificationRepository persists customer notifications under the owning user.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Notification], error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows customer order listings.
type OrderListFilter struct {
	UserID        string
	PaymentStatus []domain.PaymentStatus
	CreatedAfter  *time.Time
	Pagination    domain.Pagination
}
