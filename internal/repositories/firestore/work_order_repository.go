package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/furnitune/api/internal/domain"
	pfirestore "github.com/furnitune/api/internal/platform/firestore"
	"github.com/furnitune/api/internal/repositories"
)

const (
	repairCollection        = "repairs"
	customOrderCollection   = "custom_orders"
	workOrderRepositoryName = "work order repository"
)

// WorkOrderRepository reads repair and customization records. Both collections share a shape.
type WorkOrderRepository struct {
	repairs *pfirestore.Collection[workOrderDocument]
	customs *pfirestore.Collection[workOrderDocument]
}

// NewWorkOrderRepository constructs a Firestore-backed work order repository.
func NewWorkOrderRepository(provider *pfirestore.Provider) (*WorkOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("work order repository requires firestore provider")
	}
	return &WorkOrderRepository{
		repairs: pfirestore.NewCollection[workOrderDocument](provider, repairCollection),
		customs: pfirestore.NewCollection[workOrderDocument](provider, customOrderCollection),
	}, nil
}

// FindByID loads one repair or customization record.
func (r *WorkOrderRepository) FindByID(ctx context.Context, kind domain.SaleKind, id string) (domain.WorkOrder, error) {
	base, err := r.collectionFor(kind)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	doc, err := base.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.WorkOrder{}, err
	}
	return decodeWorkOrderDocument(kind, doc.ID, doc.Data), nil
}

// ListAll loads every record of the given kind.
func (r *WorkOrderRepository) ListAll(ctx context.Context, kind domain.SaleKind) ([]domain.WorkOrder, error) {
	base, err := r.collectionFor(kind)
	if err != nil {
		return nil, err
	}
	docs, err := base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.WorkOrder, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeWorkOrderDocument(kind, doc.ID, doc.Data))
	}
	return out, nil
}

func (r *WorkOrderRepository) collectionFor(kind domain.SaleKind) (*pfirestore.Collection[workOrderDocument], error) {
	if r == nil || r.repairs == nil || r.customs == nil {
		return nil, errors.New(workOrderRepositoryName + " not initialised")
	}
	switch kind {
	case domain.SaleKindRepair:
		return r.repairs, nil
	case domain.SaleKindCustomization:
		return r.customs, nil
	default:
		return nil, fmt.Errorf("%s: unsupported kind %q", workOrderRepositoryName, kind)
	}
}

// workOrderDocument tolerates the legacy field spellings found in older repair records.
type workOrderDocument struct {
	UserID          string     `firestore:"userId"`
	Status          string     `firestore:"status"`
	PaymentStatus   string     `firestore:"paymentStatus"`
	TotalCents      *int64     `firestore:"totalCents"`
	PriceCents      *int64     `firestore:"priceCents"`
	RefundsCents    *int64     `firestore:"refundsCents"`
	CreatedAt       *time.Time `firestore:"createdAt"`
	UpdatedAt       *time.Time `firestore:"updatedAt"`
	PaidAt          *time.Time `firestore:"paidAt"`
	RefundedAt      *time.Time `firestore:"refundedAt"`
	CancelledAt     *time.Time `firestore:"cancelledAt"`
	StatusUpdatedAt *time.Time `firestore:"statusUpdatedAt"`
}

func decodeWorkOrderDocument(kind domain.SaleKind, id string, doc workOrderDocument) domain.WorkOrder {
	work := domain.WorkOrder{
		ID:              id,
		Kind:            kind,
		UserID:          doc.UserID,
		Status:          doc.Status,
		PaymentStatus:   doc.PaymentStatus,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		PaidAt:          doc.PaidAt,
		RefundedAt:      doc.RefundedAt,
		CancelledAt:     doc.CancelledAt,
		StatusUpdatedAt: doc.StatusUpdatedAt,
	}
	switch {
	case doc.TotalCents != nil:
		work.Total = domain.Money(*doc.TotalCents)
	case doc.PriceCents != nil:
		work.Total = domain.Money(*doc.PriceCents)
	}
	if doc.RefundsCents != nil {
		work.Refunded = domain.MoneyPtr(domain.Money(*doc.RefundsCents))
	}
	return work
}

var _ repositories.WorkOrderRepository = (*WorkOrderRepository)(nil)
