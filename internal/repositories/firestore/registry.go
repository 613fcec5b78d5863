package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/furnitune/api/internal/platform/firestore"
	"github.com/furnitune/api/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider      *pfirestore.Provider
	uow           *pfirestore.UnitOfWork
	orders        *OrderRepository
	workOrders    *WorkOrderRepository
	shipments     *ShipmentRepository
	returns       *ReturnRepository
	notifications *NotificationRepository
	health        *HealthRepository
}

// NewRegistry constructs every repository over a shared provider.
func NewRegistry(provider *pfirestore.Provider, txOpts ...pfirestore.TxOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	workOrders, err := NewWorkOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("work orders: %w", err)
	}
	shipments, err := NewShipmentRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("shipments: %w", err)
	}
	returns, err := NewReturnRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("returns: %w", err)
	}
	notifications, err := NewNotificationRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}
	return &Registry{
		provider:      provider,
		uow:           pfirestore.NewUnitOfWork(provider, txOpts...),
		orders:        orders,
		workOrders:    workOrders,
		shipments:     shipments,
		returns:       returns,
		notifications: notifications,
		health:        NewHealthRepository(provider, 0),
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) WorkOrders() repositories.WorkOrderRepository { return r.workOrders }

func (r *Registry) Shipments() repositories.ShipmentRepository { return r.shipments }

func (r *Registry) Returns() repositories.ReturnRepository { return r.returns }

func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx runs fn in a Firestore transaction shared by every repository in the registry.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

var _ repositories.Registry = (*Registry)(nil)
