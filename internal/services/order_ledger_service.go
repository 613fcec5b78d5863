package services

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/repositories"
)

const (
	orderEventPaymentApplied = "order.payment.applied"
	orderEventCancelled      = "order.cancelled"
	orderEventProofUploaded  = "order.payment_proof.uploaded"
	orderEventDelivered      = "order.delivered"
	orderEventRefunded       = "order.refunded"

	orderEntity = "order"
)

// RevenueCacheInvalidator drops cached revenue reports after money moves.
type RevenueCacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// OrderLedgerServiceDeps bundles collaborators required to construct the order ledger service.
type OrderLedgerServiceDeps struct {
	Orders     repositories.OrderRepository
	WorkOrders repositories.WorkOrderRepository
	Shipments  repositories.ShipmentRepository
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Notifier   NotificationDispatcher
	Events     OrderEventPublisher
	Revenue    RevenueCacheInvalidator
	Logger     Logger
}

type orderLedgerService struct {
	orders     repositories.OrderRepository
	workOrders repositories.WorkOrderRepository
	shipments  repositories.ShipmentRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	notifier   NotificationDispatcher
	events     OrderEventPublisher
	revenue    RevenueCacheInvalidator
	logger     Logger
}

// NewOrderLedgerService wires dependencies into a concrete OrderLedgerService implementation.
func NewOrderLedgerService(deps OrderLedgerServiceDeps) (OrderLedgerService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order ledger service: order repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &orderLedgerService{
		orders:     deps.Orders,
		workOrders: deps.WorkOrders,
		shipments:  deps.Shipments,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		notifier: deps.Notifier,
		events:   deps.Events,
		revenue:  deps.Revenue,
		logger:   logger,
	}, nil
}

func (s *orderLedgerService) GetOrder(ctx context.Context, query GetOrderQuery) (OrderView, error) {
	orderID, err := requireID("orderId", query.OrderID)
	if err != nil {
		return OrderView{}, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderView{}, mapRepositoryError(orderEntity, orderID, err)
	}
	if !ownsOrder(order, query.UserID) {
		return OrderView{}, domain.NewNotFoundError(orderEntity, orderID)
	}
	return s.view(ctx, order), nil
}

func (s *orderLedgerService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[OrderView], error) {
	userID, err := requireID("userId", filter.UserID)
	if err != nil {
		return domain.CursorPage[OrderView]{}, err
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:        userID,
		PaymentStatus: filter.PaymentStatus,
		Pagination:    filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[OrderView]{}, mapRepositoryError(orderEntity, userID, err)
	}
	views := make([]OrderView, 0, len(page.Items))
	for _, order := range page.Items {
		views = append(views, s.view(ctx, order))
	}
	return domain.CursorPage[OrderView]{Items: views, NextPageToken: page.NextPageToken}, nil
}

func (s *orderLedgerService) ApplyPaymentEvent(ctx context.Context, cmd PaymentEventCommand) (OrderView, error) {
	if cmd.Event == nil {
		return OrderView{}, domain.NewValidationError("event", "Payment event is required")
	}
	return s.apply(ctx, cmd.OrderID, cmd.Event, cmd.ExpectedVersion, cmd.ActorID)
}

func (s *orderLedgerService) Cancel(ctx context.Context, cmd CancelOrderCommand) (OrderView, error) {
	return s.apply(ctx, cmd.OrderID, OrderCancelled{Reason: strings.TrimSpace(cmd.Reason)}, cmd.ExpectedVersion, cmd.ActorID)
}

func (s *orderLedgerService) apply(ctx context.Context, rawID string, event PaymentEvent, expected *int64, actorID string) (view OrderView, err error) {
	orderID, err := requireID("orderId", rawID)
	if err != nil {
		return OrderView{}, err
	}

	ctx, span := startSpan(ctx, "OrderLedgerService.ApplyPaymentEvent",
		attribute.String("order.id", orderID),
		attribute.String("payment.event", event.EventName()),
	)
	defer func() { endSpan(span, err) }()

	now := s.clock()
	var transition PaymentTransition
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(orderEntity, orderID, err)
		}
		if err := checkVersion(orderEntity, orderID, expected, order.Version); err != nil {
			return err
		}
		next, err := ApplyPaymentEvent(order, event, now)
		if err != nil {
			return err
		}
		next.Order.Version = order.Version + 1
		if err := s.orders.Update(txCtx, next.Order); err != nil {
			return mapRepositoryError(orderEntity, orderID, err)
		}
		transition = next
		return nil
	})
	if err != nil {
		return OrderView{}, mapRepositoryError(orderEntity, orderID, err)
	}

	s.afterPaymentCommit(ctx, transition, event, actorID)
	return s.view(ctx, transition.Order), nil
}

// afterPaymentCommit runs the side effects of a committed payment transition.
func (s *orderLedgerService) afterPaymentCommit(ctx context.Context, transition PaymentTransition, event PaymentEvent, actorID string) {
	order := transition.Order
	recordTransition(ctx, paymentMachineName, string(transition.Previous), string(order.PaymentStatus))
	s.logger(ctx, "order.payment.applied", map[string]any{
		"orderId": order.ID,
		"event":   event.EventName(),
		"from":    string(transition.Previous),
		"to":      string(order.PaymentStatus),
		"applied": transition.Applied.Int64(),
		"netPaid": transition.Ledger.NetPaid.Int64(),
		"balance": transition.Ledger.BalanceDue.Int64(),
		"version": order.Version,
		"actorId": actorID,
	})

	if s.notifier != nil && len(transition.Notifications) > 0 {
		s.notifier.Dispatch(ctx, transition.Notifications...)
	}

	eventType := orderEventPaymentApplied
	if _, ok := event.(OrderCancelled); ok {
		eventType = orderEventCancelled
	}
	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:                  eventType,
		OrderID:               order.ID,
		UserID:                order.UserID,
		PreviousPaymentStatus: string(transition.Previous),
		PaymentStatus:         string(order.PaymentStatus),
		ActorID:               actorID,
		Version:               order.Version,
		OccurredAt:            order.UpdatedAt,
		Metadata: map[string]any{
			"event":   event.EventName(),
			"applied": transition.Applied.Int64(),
		},
	})

	invalidateRevenue(ctx, s.revenue, s.logger)
}

func (s *orderLedgerService) view(ctx context.Context, order domain.Order) OrderView {
	return buildOrderView(ctx, order, s.workOrders, s.shipments, s.logger)
}

// buildOrderView derives the ledger and the furthest progress stage across the order, its
// shipment and any linked repair or customization.
func buildOrderView(ctx context.Context, order domain.Order, workOrders repositories.WorkOrderRepository, shipments repositories.ShipmentRepository, logger Logger) OrderView {
	statuses := []string{order.Status}
	if workOrders != nil {
		for kind, id := range map[domain.SaleKind]string{
			domain.SaleKindRepair:        order.RepairID,
			domain.SaleKindCustomization: order.CustomID,
		} {
			if strings.TrimSpace(id) == "" {
				continue
			}
			linked, err := workOrders.FindByID(ctx, kind, id)
			if err != nil {
				logger(ctx, "order.view.linked_lookup_failed", map[string]any{
					"orderId": order.ID,
					"kind":    string(kind),
					"id":      id,
					"error":   err.Error(),
				})
				continue
			}
			statuses = append(statuses, linked.Status)
		}
	}
	if shipments != nil {
		if shipment, err := shipments.FindByOrderID(ctx, order.ID); err == nil {
			statuses = append(statuses, string(shipment.Status))
		}
	}
	return OrderView{
		Order:         order,
		Ledger:        ComputeLedger(order),
		ProgressStage: FurthestProgressStage(statuses...),
	}
}

func ownsOrder(order domain.Order, userID string) bool {
	userID = strings.TrimSpace(userID)
	return userID == "" || order.UserID == userID
}

func publishOrderEvent(ctx context.Context, publisher OrderEventPublisher, logger Logger, event OrderEvent) {
	if publisher == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.PaymentStatus,
		})
	}
}

func invalidateRevenue(ctx context.Context, revenue RevenueCacheInvalidator, logger Logger) {
	if revenue == nil {
		return
	}
	if err := revenue.Invalidate(ctx); err != nil {
		logger(ctx, "revenue.cache.invalidate.failed", map[string]any{"error": err.Error()})
	}
}
