package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/repositories"
)

type ledgerFixture struct {
	svc      OrderLedgerService
	orders   *fakeOrderRepo
	notifier *captureNotifier
	events   *recordingEvents
	revenue  *countingInvalidator
	logs     *logRecorder
}

func newLedgerFixture(t *testing.T, now time.Time, orders ...domain.Order) ledgerFixture {
	t.Helper()
	fx := ledgerFixture{
		orders:   newFakeOrderRepo(orders...),
		notifier: &captureNotifier{},
		events:   &recordingEvents{},
		revenue:  &countingInvalidator{},
		logs:     &logRecorder{},
	}
	svc, err := NewOrderLedgerService(OrderLedgerServiceDeps{
		Orders:     fx.orders,
		UnitOfWork: &rollbackUnitOfWork{orders: fx.orders},
		Clock:      func() time.Time { return now },
		Notifier:   fx.notifier,
		Events:     fx.events,
		Revenue:    fx.revenue,
		Logger:     fx.logs.log,
	})
	require.NoError(t, err)
	fx.svc = svc
	return fx
}

func pendingOrder() domain.Order {
	return domain.Order{
		ID:            "ord_01HZX9ABCDEF",
		UserID:        "user_1",
		Origin:        domain.OriginCatalog,
		Status:        "processing",
		PaymentStatus: domain.PaymentStatusPending,
		Total:         150000,
		Version:       1,
		CreatedAt:     time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestOrderLedgerServiceAppliesDeposit(t *testing.T) {
	now := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	fx := newLedgerFixture(t, now, pendingOrder())

	view, err := fx.svc.ApplyPaymentEvent(context.Background(), PaymentEventCommand{
		OrderID:         "ord_01HZX9ABCDEF",
		Event:           DepositRecorded{Amount: 50000, ProofPath: "payments/ord_01HZX9ABCDEF/deposit/a_proof.png"},
		ExpectedVersion: int64Ptr(1),
		ActorID:         "staff_1",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusDepositPaid, view.Order.PaymentStatus)
	assert.Equal(t, int64(2), view.Order.Version)
	assert.Equal(t, domain.Money(50000), view.Ledger.NetPaid)
	assert.Equal(t, now, view.Order.UpdatedAt)

	stored, err := fx.orders.FindByID(context.Background(), "ord_01HZX9ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, domain.Money(50000), stored.Deposit)

	require.Len(t, fx.events.events, 1)
	event := fx.events.events[0]
	assert.Equal(t, orderEventPaymentApplied, event.Type)
	assert.Equal(t, string(domain.PaymentStatusPending), event.PreviousPaymentStatus)
	assert.Equal(t, string(domain.PaymentStatusDepositPaid), event.PaymentStatus)
	assert.Equal(t, "staff_1", event.ActorID)

	assert.Equal(t, []string{"Payment received"}, fx.notifier.titles())
	assert.Equal(t, 1, fx.revenue.calls)
	assert.True(t, fx.logs.has("order.payment.applied"))
}

func TestOrderLedgerServiceRejectsStaleVersion(t *testing.T) {
	fx := newLedgerFixture(t, time.Now(), pendingOrder())

	_, err := fx.svc.ApplyPaymentEvent(context.Background(), PaymentEventCommand{
		OrderID:         "ord_01HZX9ABCDEF",
		Event:           DepositRecorded{Amount: 1000},
		ExpectedVersion: int64Ptr(7),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConcurrentModification))

	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(7), conflict.Expected)
	assert.Equal(t, int64(1), conflict.Actual)

	assert.Empty(t, fx.orders.updates)
	assert.Empty(t, fx.events.events)
	assert.Empty(t, fx.notifier.intents)
	assert.Zero(t, fx.revenue.calls)
}

func TestOrderLedgerServiceWriteConflictMapsToConcurrentModification(t *testing.T) {
	fx := newLedgerFixture(t, time.Now(), pendingOrder())
	fx.orders.updateErr = fakeRepoError{conflict: true}

	_, err := fx.svc.ApplyPaymentEvent(context.Background(), PaymentEventCommand{
		OrderID: "ord_01HZX9ABCDEF",
		Event:   DepositRecorded{Amount: 1000},
	})
	assert.True(t, errors.Is(err, domain.ErrConcurrentModification))
}

func TestOrderLedgerServiceRefundOnPendingIsInvalidTransition(t *testing.T) {
	fx := newLedgerFixture(t, time.Now(), pendingOrder())

	_, err := fx.svc.ApplyPaymentEvent(context.Background(), PaymentEventCommand{
		OrderID: "ord_01HZX9ABCDEF",
		Event:   RefundIssued{Amount: 1000},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	stored, _ := fx.orders.FindByID(context.Background(), "ord_01HZX9ABCDEF")
	assert.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, int64(1), stored.Version)
}

func TestOrderLedgerServiceMissingOrder(t *testing.T) {
	fx := newLedgerFixture(t, time.Now())

	_, err := fx.svc.ApplyPaymentEvent(context.Background(), PaymentEventCommand{
		OrderID: "ord_missing",
		Event:   DepositRecorded{Amount: 1000},
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = fx.svc.ApplyPaymentEvent(context.Background(), PaymentEventCommand{OrderID: "ord_missing"})
	assert.True(t, errors.Is(err, domain.ErrValidationFailed))
}

func TestOrderLedgerServiceCancel(t *testing.T) {
	fx := newLedgerFixture(t, time.Now(), pendingOrder())

	view, err := fx.svc.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "ord_01HZX9ABCDEF",
		Reason:  "customer request",
		ActorID: "staff_1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, view.Order.PaymentStatus)
	assert.Equal(t, "cancelled", view.Order.Status)

	require.Len(t, fx.events.events, 1)
	assert.Equal(t, orderEventCancelled, fx.events.events[0].Type)
	assert.Equal(t, []string{"Order 01HZX9 cancelled"}, fx.notifier.titles())

	_, err = fx.svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_01HZX9ABCDEF"})
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestOrderLedgerServiceEventPublishFailureIsLogged(t *testing.T) {
	fx := newLedgerFixture(t, time.Now(), pendingOrder())
	fx.events.err = errors.New("pubsub down")

	_, err := fx.svc.ApplyPaymentEvent(context.Background(), PaymentEventCommand{
		OrderID: "ord_01HZX9ABCDEF",
		Event:   DepositRecorded{Amount: 1000},
	})
	require.NoError(t, err)
	assert.True(t, fx.logs.has("order.event.publish.failed"))
}

func TestOrderLedgerServiceGetOrderUsesFurthestLinkedStage(t *testing.T) {
	order := pendingOrder()
	order.RepairID = "rep_1"
	orders := newFakeOrderRepo(order)
	workOrders := &fakeWorkOrderRepo{records: map[domain.SaleKind][]domain.WorkOrder{
		domain.SaleKindRepair: {{ID: "rep_1", Kind: domain.SaleKindRepair, Status: "Out for Delivery"}},
	}}
	svc, err := NewOrderLedgerService(OrderLedgerServiceDeps{
		Orders:     orders,
		WorkOrders: workOrders,
		Shipments:  newFakeShipmentRepo(),
	})
	require.NoError(t, err)

	view, err := svc.GetOrder(context.Background(), GetOrderQuery{OrderID: order.ID, UserID: "user_1"})
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressToReceive, view.ProgressStage)

	_, err = svc.GetOrder(context.Background(), GetOrderQuery{OrderID: order.ID, UserID: "someone_else"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestOrderLedgerServiceListOrders(t *testing.T) {
	var captured repositories.OrderListFilter
	orders := newFakeOrderRepo()
	orders.listFn = func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
		captured = filter
		return domain.CursorPage[domain.Order]{Items: []domain.Order{pendingOrder()}, NextPageToken: "next"}, nil
	}
	svc, err := NewOrderLedgerService(OrderLedgerServiceDeps{Orders: orders})
	require.NoError(t, err)

	page, err := svc.ListOrders(context.Background(), OrderListFilter{
		UserID:        "user_1",
		PaymentStatus: []domain.PaymentStatus{domain.PaymentStatusPending},
		Pagination:    Pagination{PageSize: 10},
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "next", page.NextPageToken)
	assert.Equal(t, "user_1", captured.UserID)
	assert.Equal(t, 10, captured.Pagination.PageSize)

	_, err = svc.ListOrders(context.Background(), OrderListFilter{})
	assert.True(t, errors.Is(err, domain.ErrValidationFailed))
}

func TestNewOrderLedgerServiceRequiresOrders(t *testing.T) {
	_, err := NewOrderLedgerService(OrderLedgerServiceDeps{})
	assert.Error(t, err)
}
