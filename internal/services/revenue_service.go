package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	domain "github.com/furnitune/api/internal/domain"
	"github.com/furnitune/api/internal/repositories"
)

const revenueCacheKeyPrefix = "revenue:report:"

var shippedStatuses = map[string]struct{}{
	string(domain.ShipmentStatusShipped):        {},
	string(domain.ShipmentStatusInTransit):      {},
	string(domain.ShipmentStatusOutForDelivery): {},
	string(domain.ShipmentStatusDelivered):      {},
}

// RevenueServiceDeps bundles collaborators for revenue reporting.
type RevenueServiceDeps struct {
	Orders     repositories.OrderRepository
	WorkOrders repositories.WorkOrderRepository
	Cache      ReportCache
	Location   *time.Location
	Clock      func() time.Time
	Logger     Logger
}

type revenueService struct {
	orders     repositories.OrderRepository
	workOrders repositories.WorkOrderRepository
	cache      ReportCache
	location   *time.Location
	clock      func() time.Time
	logger     Logger
	group      singleflight.Group
}

// NewRevenueService constructs the revenue reporting service. Cache is optional.
func NewRevenueService(deps RevenueServiceDeps) (RevenueService, error) {
	if deps.Orders == nil {
		return nil, errors.New("revenue service: order repository is required")
	}
	if deps.WorkOrders == nil {
		return nil, errors.New("revenue service: work order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &revenueService{
		orders:     deps.Orders,
		workOrders: deps.WorkOrders,
		cache:      deps.Cache,
		location:   loc,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *revenueService) Report(ctx context.Context, query RevenueQuery) (summary RevenueSummary, err error) {
	ctx, span := startSpan(ctx, "RevenueService.Report", attribute.Bool("revenue.count_only_paid", query.CountOnlyPaid))
	defer func() { endSpan(span, err) }()

	key := revenueCacheKey(query)
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		built, err := s.build(ctx, query)
		if err != nil {
			return RevenueSummary{}, err
		}
		s.store(ctx, key, built)
		return built, nil
	})
	if err != nil {
		return RevenueSummary{}, err
	}
	return value.(RevenueSummary), nil
}

func (s *revenueService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Purge(ctx); err != nil {
		return fmt.Errorf("revenue: purge cache: %w", err)
	}
	return nil
}

func (s *revenueService) build(ctx context.Context, query RevenueQuery) (RevenueSummary, error) {
	var (
		orders  []domain.Order
		repairs []domain.WorkOrder
		customs []domain.WorkOrder
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		orders, err = s.orders.ListAll(groupCtx)
		if err != nil {
			return mapRepositoryError(orderEntity, "*", err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		repairs, err = s.workOrders.ListAll(groupCtx, domain.SaleKindRepair)
		if err != nil {
			return mapRepositoryError(string(domain.SaleKindRepair), "*", err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		customs, err = s.workOrders.ListAll(groupCtx, domain.SaleKindCustomization)
		if err != nil {
			return mapRepositoryError(string(domain.SaleKindCustomization), "*", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return RevenueSummary{}, err
	}

	records := make([]domain.SaleRecord, 0, len(orders)+len(repairs)+len(customs))
	for _, order := range orders {
		records = append(records, orderSaleRecord(order))
	}
	for _, work := range repairs {
		records = append(records, workOrderSaleRecord(work))
	}
	for _, work := range customs {
		records = append(records, workOrderSaleRecord(work))
	}

	summary := RevenueSummary{
		Report: AggregateRevenue(records, RevenuePolicy{
			CountOnlyPaid: query.CountOnlyPaid,
			Location:      s.location,
		}),
		GeneratedAt: s.clock(),
	}
	for _, order := range orders {
		status := domain.NormalizeStatusKey(order.Status)
		if _, ok := shippedStatuses[status]; ok {
			summary.ShippedCount++
		}
		if status == string(domain.ShipmentStatusDelivered) {
			summary.DeliveredCount++
		}
	}

	s.logger(ctx, "revenue.report.built", map[string]any{
		"orders":        len(orders),
		"repairs":       len(repairs),
		"customs":       len(customs),
		"days":          len(summary.Report.Series),
		"net":           summary.Report.Totals.Net,
		"countOnlyPaid": query.CountOnlyPaid,
	})
	return summary, nil
}

func (s *revenueService) cached(ctx context.Context, key string) (RevenueSummary, bool) {
	if s.cache == nil {
		return RevenueSummary{}, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger(ctx, "revenue.cache.read.failed", map[string]any{"key": key, "error": err.Error()})
		return RevenueSummary{}, false
	}
	if !ok {
		return RevenueSummary{}, false
	}
	var summary RevenueSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		s.logger(ctx, "revenue.cache.decode.failed", map[string]any{"key": key, "error": err.Error()})
		return RevenueSummary{}, false
	}
	summary.Cached = true
	return summary, true
}

func (s *revenueService) store(ctx context.Context, key string, summary RevenueSummary) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw); err != nil {
		s.logger(ctx, "revenue.cache.write.failed", map[string]any{"key": key, "error": err.Error()})
	}
}

func revenueCacheKey(query RevenueQuery) string {
	if query.CountOnlyPaid {
		return revenueCacheKeyPrefix + "paid"
	}
	return revenueCacheKeyPrefix + "all"
}

func orderSaleRecord(order domain.Order) domain.SaleRecord {
	record := domain.SaleRecord{
		ID:              order.ID,
		Kind:            domain.SaleKindOrder,
		Status:          order.Status,
		PaymentStatus:   string(order.PaymentStatus),
		Total:           order.Total,
		RepairRef:       order.RepairID,
		PaidAt:          order.PaidAt,
		RefundedAt:      order.RefundedAt,
		CancelledAt:     order.CancelledAt,
		StatusUpdatedAt: order.StatusUpdatedAt,
	}
	if order.AssessedTotal != nil && *order.AssessedTotal > 0 {
		record.Total = *order.AssessedTotal
	}
	if !order.CreatedAt.IsZero() {
		record.CreatedAt = timePtr(order.CreatedAt)
	}
	if !order.UpdatedAt.IsZero() {
		record.UpdatedAt = timePtr(order.UpdatedAt)
	}
	if order.Refunded > 0 {
		record.Refunded = domain.MoneyPtr(order.Refunded)
	}
	return record
}

func workOrderSaleRecord(work domain.WorkOrder) domain.SaleRecord {
	return domain.SaleRecord{
		ID:              work.ID,
		Kind:            work.Kind,
		Status:          work.Status,
		PaymentStatus:   work.PaymentStatus,
		Total:           work.Total,
		Refunded:        work.Refunded,
		PaidAt:          work.PaidAt,
		CreatedAt:       work.CreatedAt,
		UpdatedAt:       work.UpdatedAt,
		RefundedAt:      work.RefundedAt,
		CancelledAt:     work.CancelledAt,
		StatusUpdatedAt: work.StatusUpdatedAt,
	}
}
