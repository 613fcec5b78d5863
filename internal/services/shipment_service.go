package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/repositories"
)

const shipmentEntity = "shipment"

var shipmentStatusLabels = map[domain.ShipmentStatus]string{
	domain.ShipmentStatusProcessing:     "being processed",
	domain.ShipmentStatusReadyToShip:    "ready to ship",
	domain.ShipmentStatusShipped:        "shipped",
	domain.ShipmentStatusInTransit:      "in transit",
	domain.ShipmentStatusOutForDelivery: "out for delivery",
	domain.ShipmentStatusDelivered:      "delivered",
	domain.ShipmentStatusReturned:       "returned",
	domain.ShipmentStatusCancelled:      "cancelled",
}

// ShipmentServiceDeps bundles collaborators required by the shipment service.
type ShipmentServiceDeps struct {
	Orders      repositories.OrderRepository
	Shipments   repositories.ShipmentRepository
	UnitOfWork  repositories.UnitOfWork
	Policy      ReturnPolicy
	Clock       func() time.Time
	IDGenerator func() string
	Notifier    NotificationDispatcher
	Events      OrderEventPublisher
	Revenue     RevenueCacheInvalidator
	Logger      Logger
}

type shipmentService struct {
	orders     repositories.OrderRepository
	shipments  repositories.ShipmentRepository
	unitOfWork repositories.UnitOfWork
	policy     ReturnPolicy
	clock      func() time.Time
	newID      func() string
	notifier   NotificationDispatcher
	events     OrderEventPublisher
	revenue    RevenueCacheInvalidator
	logger     Logger
}

// NewShipmentService constructs the shipment lifecycle service.
func NewShipmentService(deps ShipmentServiceDeps) (ShipmentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("shipment service: order repository is required")
	}
	if deps.Shipments == nil {
		return nil, errors.New("shipment service: shipment repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	policy := deps.Policy
	if policy.DefaultWindowDays <= 0 {
		policy.DefaultWindowDays = DefaultReturnWindowDays
	}
	return &shipmentService{
		orders:     deps.Orders,
		shipments:  deps.Shipments,
		unitOfWork: unit,
		policy:     policy,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		notifier: deps.Notifier,
		events:   deps.Events,
		revenue:  deps.Revenue,
		logger:   logger,
	}, nil
}

// EnsureForOrder creates the order's shipment at pending unless one already exists.
func (s *shipmentService) EnsureForOrder(ctx context.Context, cmd EnsureShipmentCommand) (Shipment, error) {
	orderID, err := requireID("orderId", cmd.OrderID)
	if err != nil {
		return Shipment{}, err
	}

	now := s.clock()
	var (
		result  Shipment
		created bool
	)
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		created = false
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(orderEntity, orderID, err)
		}
		existing, err := s.shipments.FindByOrderID(txCtx, orderID)
		if err == nil {
			result = existing
			return nil
		}
		if mapped := mapRepositoryError(shipmentEntity, orderID, err); !errors.Is(mapped, domain.ErrNotFound) {
			return mapped
		}
		if order.PaymentStatus.IsTerminal() {
			return domain.NewTransitionError(shipmentMachineName, string(order.PaymentStatus), "CreateShipment")
		}
		shipment := domain.Shipment{
			ID:             shipmentIDPrefix + order.ID,
			OrderID:        order.ID,
			UserID:         order.UserID,
			Status:         domain.ShipmentStatusPending,
			Carrier:        sanitizeFreeText(cmd.Carrier),
			TrackingNumber: strings.TrimSpace(cmd.TrackingNumber),
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.shipments.Insert(txCtx, shipment); err != nil {
			return mapRepositoryError(shipmentEntity, shipment.ID, err)
		}
		result = shipment
		created = true
		return nil
	})
	if err != nil {
		return Shipment{}, mapRepositoryError(shipmentEntity, orderID, err)
	}
	if created {
		s.logger(ctx, "shipment.created", map[string]any{
			"orderId":    orderID,
			"shipmentId": result.ID,
			"actorId":    cmd.ActorID,
		})
	}
	return result, nil
}

// Transition advances the shipment and mirrors the new status onto the order in one transaction.
// Delivery stamps the order's deliveredAt, which opens the return window.
func (s *shipmentService) Transition(ctx context.Context, cmd ShipmentTransitionCommand) (result Shipment, err error) {
	shipmentID, err := requireID("shipmentId", cmd.ShipmentID)
	if err != nil {
		return Shipment{}, err
	}
	if cmd.To == "" {
		return Shipment{}, domain.NewValidationError("to", "Target status is required")
	}

	ctx, span := startSpan(ctx, "ShipmentService.Transition",
		attribute.String("shipment.id", shipmentID),
		attribute.String("shipment.to", string(cmd.To)),
	)
	defer func() { endSpan(span, err) }()

	now := s.clock()
	note := sanitizeFreeText(cmd.Note)
	var (
		from  domain.ShipmentStatus
		order domain.Order
	)
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		shipment, err := s.shipments.FindByID(txCtx, shipmentID)
		if err != nil {
			return mapRepositoryError(shipmentEntity, shipmentID, err)
		}
		if err := checkVersion(shipmentEntity, shipmentID, cmd.ExpectedVersion, shipment.Version); err != nil {
			return err
		}
		next, event, err := ApplyShipmentTransition(shipment, cmd.To, note, cmd.ActorID, now)
		if err != nil {
			return err
		}

		var linked domain.Order
		mirror := cmd.To != domain.ShipmentStatusCancelled
		if mirror {
			linked, err = s.orders.FindByID(txCtx, shipment.OrderID)
			if err != nil {
				return mapRepositoryError(orderEntity, shipment.OrderID, err)
			}
		}

		next.Version = shipment.Version + 1
		event.ID = shipmentEventIDPrefix + s.newID()
		if err := s.shipments.Update(txCtx, next); err != nil {
			return mapRepositoryError(shipmentEntity, shipmentID, err)
		}
		if err := s.shipments.AppendEvent(txCtx, event); err != nil {
			return mapRepositoryError(shipmentEntity, shipmentID, err)
		}
		if mirror {
			linked = s.applyToOrder(linked, cmd.To, now)
			if err := s.orders.Update(txCtx, linked); err != nil {
				return mapRepositoryError(orderEntity, linked.ID, err)
			}
		}

		from = shipment.Status
		order = linked
		result = next
		return nil
	})
	if err != nil {
		return Shipment{}, mapRepositoryError(shipmentEntity, shipmentID, err)
	}

	recordTransition(ctx, shipmentMachineName, string(from), string(result.Status))
	s.logger(ctx, "shipment.transitioned", map[string]any{
		"shipmentId": shipmentID,
		"orderId":    result.OrderID,
		"from":       string(from),
		"to":         string(result.Status),
		"actorId":    cmd.ActorID,
		"version":    result.Version,
	})
	s.notifyTransition(ctx, result, order)
	if result.Status == domain.ShipmentStatusDelivered {
		publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
			Type:          orderEventDelivered,
			OrderID:       result.OrderID,
			UserID:        result.UserID,
			PaymentStatus: string(order.PaymentStatus),
			ActorID:       cmd.ActorID,
			Version:       order.Version,
			OccurredAt:    now,
		})
	}
	invalidateRevenue(ctx, s.revenue, s.logger)
	return result, nil
}

func (s *shipmentService) Get(ctx context.Context, shipmentID string) (Shipment, error) {
	id, err := requireID("shipmentId", shipmentID)
	if err != nil {
		return Shipment{}, err
	}
	shipment, err := s.shipments.FindByID(ctx, id)
	if err != nil {
		return Shipment{}, mapRepositoryError(shipmentEntity, id, err)
	}
	return s.withEvents(ctx, shipment)
}

// GetForOrder returns the shipment of an order the caller owns.
func (s *shipmentService) GetForOrder(ctx context.Context, query GetOrderQuery) (Shipment, error) {
	orderID, err := requireID("orderId", query.OrderID)
	if err != nil {
		return Shipment{}, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Shipment{}, mapRepositoryError(orderEntity, orderID, err)
	}
	if !ownsOrder(order, query.UserID) {
		return Shipment{}, domain.NewNotFoundError(orderEntity, orderID)
	}
	shipment, err := s.shipments.FindByOrderID(ctx, orderID)
	if err != nil {
		return Shipment{}, mapRepositoryError(shipmentEntity, orderID, err)
	}
	return s.withEvents(ctx, shipment)
}

func (s *shipmentService) withEvents(ctx context.Context, shipment Shipment) (Shipment, error) {
	events, err := s.shipments.ListEvents(ctx, shipment.ID)
	if err != nil {
		return Shipment{}, mapRepositoryError(shipmentEntity, shipment.ID, err)
	}
	shipment.Events = events
	return shipment, nil
}

func (s *shipmentService) applyToOrder(order domain.Order, to domain.ShipmentStatus, now time.Time) domain.Order {
	order.Status = string(to)
	order.StatusUpdatedAt = timePtr(now)
	order.UpdatedAt = now
	if to == domain.ShipmentStatusDelivered {
		if order.DeliveredAt == nil {
			order.DeliveredAt = timePtr(now)
		}
		if order.ReturnPolicyDays == nil {
			days := s.policy.DefaultWindowDays
			order.ReturnPolicyDays = &days
		}
	}
	order.Version++
	return order
}

func (s *shipmentService) notifyTransition(ctx context.Context, shipment Shipment, order domain.Order) {
	if s.notifier == nil {
		return
	}
	label, ok := shipmentStatusLabels[shipment.Status]
	if !ok {
		return
	}
	if order.ID == "" {
		order = domain.Order{ID: shipment.OrderID, UserID: shipment.UserID}
	}
	body := fmt.Sprintf("Your order is now %s.", label)
	if shipment.Status == domain.ShipmentStatusDelivered {
		days := s.policy.DefaultWindowDays
		if order.ReturnPolicyDays != nil {
			days = *order.ReturnPolicyDays
		}
		body = fmt.Sprintf("Your order was delivered. You can request a return within %d days.", days)
	}
	s.notifier.Dispatch(ctx, orderNotification(order, notificationTypeShipment,
		fmt.Sprintf("Order %s status updated", shortID(order.ID)), body))
}
