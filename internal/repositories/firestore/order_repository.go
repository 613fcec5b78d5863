package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/furnitune/api/internal/domain"
	pfirestore "github.com/furnitune/api/internal/platform/firestore"
	"github.com/furnitune/api/internal/platform/pagination"
	"github.com/furnitune/api/internal/repositories"
)

const (
	orderCollection = "orders"
	maxInFilter     = 10
)

// OrderRepository persists orders and their ledger fields in Firestore.
type OrderRepository struct {
	base *pfirestore.Collection[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewCollection[orderDocument](provider, orderCollection),
	}, nil
}

// FindByID loads the order document.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data), nil
}

// Insert creates the order, failing when the id already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	err := r.base.Create(ctx, id, encodeOrderDocument(order))
	return err
}

// Update overwrites the order document. Callers hold the version check.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	err := r.base.Set(ctx, id, encodeOrderDocument(order))
	return err
}

// List returns a page of orders for a user, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	userID := strings.TrimSpace(filter.UserID)
	if userID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: user id is required")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	cursor, err := pagination.DecodeCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
	}

	statuses := make([]string, 0, len(filter.PaymentStatus))
	for _, status := range filter.PaymentStatus {
		if trimmed := strings.TrimSpace(string(status)); trimmed != "" {
			statuses = append(statuses, trimmed)
		}
	}
	if len(statuses) > maxInFilter {
		statuses = statuses[:maxInFilter]
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID)
		switch len(statuses) {
		case 0:
		case 1:
			q = q.Where("paymentStatus", "==", statuses[0])
		default:
			q = q.Where("paymentStatus", "in", statuses)
		}
		if filter.CreatedAfter != nil && !filter.CreatedAfter.IsZero() {
			q = q.Where("createdAt", ">", filter.CreatedAfter.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-2]
		nextToken = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.Data.CreatedAt, ID: last.ID})
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}

// ListAll loads every order. Revenue reporting folds the full history.
func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrderDocument(doc.ID, doc.Data))
	}
	return orders, nil
}

type orderDocument struct {
	UserID        string              `firestore:"userId"`
	Origin        string              `firestore:"origin,omitempty"`
	Status        string              `firestore:"status"`
	PaymentStatus string              `firestore:"paymentStatus"`
	Items         []orderItemDocument `firestore:"items"`
	TotalCents    int64               `firestore:"totalCents"`

	AssessedTotalCents              *int64 `firestore:"assessedTotalCents"`
	DepositCents                    int64  `firestore:"depositCents"`
	AdditionalPaymentsCents         int64  `firestore:"additionalPaymentsCents"`
	RefundsCents                    int64  `firestore:"refundsCents"`
	RequestedAdditionalPaymentCents int64  `firestore:"requestedAdditionalPaymentCents"`

	DepositProofPath          string     `firestore:"depositProofPath,omitempty"`
	AdditionalProofPaths      []string   `firestore:"additionalProofPaths,omitempty"`
	LastAdditionalProofPath   string     `firestore:"lastAdditionalProofPath,omitempty"`
	PaymentProofPendingReview bool       `firestore:"paymentProofPendingReview"`
	PaymentProofUploadedAt    *time.Time `firestore:"paymentProofUploadedAt,omitempty"`

	ReturnPolicyDays *int       `firestore:"returnPolicyDays"`
	ReturnDeadlineAt *time.Time `firestore:"returnDeadlineAt,omitempty"`
	ReturnLocked     bool       `firestore:"returnLocked"`

	RepairID string `firestore:"repairId,omitempty"`
	CustomID string `firestore:"customId,omitempty"`

	Version         int64      `firestore:"version"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
	StatusUpdatedAt *time.Time `firestore:"statusUpdatedAt,omitempty"`
	PaidAt          *time.Time `firestore:"paidAt,omitempty"`
	DeliveredAt     *time.Time `firestore:"deliveredAt,omitempty"`
	RefundedAt      *time.Time `firestore:"refundedAt,omitempty"`
	CancelledAt     *time.Time `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	ProductRef     string `firestore:"productRef"`
	Name           string `firestore:"name"`
	Quantity       int    `firestore:"quantity"`
	UnitPriceCents int64  `firestore:"unitPriceCents"`
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID:                          strings.TrimSpace(order.UserID),
		Origin:                          string(order.Origin),
		Status:                          strings.TrimSpace(order.Status),
		PaymentStatus:                   string(order.PaymentStatus),
		Items:                           make([]orderItemDocument, 0, len(order.Items)),
		TotalCents:                      order.Total.Int64(),
		DepositCents:                    order.Deposit.Int64(),
		AdditionalPaymentsCents:         order.AdditionalPaid.Int64(),
		RefundsCents:                    order.Refunded.Int64(),
		RequestedAdditionalPaymentCents: order.RequestedAdditional.Int64(),
		DepositProofPath:                order.Proofs.DepositPath,
		AdditionalProofPaths:            append([]string(nil), order.Proofs.AdditionalPaths...),
		PaymentProofPendingReview:       order.Proofs.PendingReview,
		PaymentProofUploadedAt:          utcPtr(order.Proofs.LastUploadedAt),
		ReturnPolicyDays:                order.ReturnPolicyDays,
		ReturnDeadlineAt:                utcPtr(order.ReturnDeadlineAt),
		ReturnLocked:                    order.ReturnLocked,
		RepairID:                        strings.TrimSpace(order.RepairID),
		CustomID:                        strings.TrimSpace(order.CustomID),
		Version:                         order.Version,
		CreatedAt:                       order.CreatedAt.UTC(),
		UpdatedAt:                       order.UpdatedAt.UTC(),
		StatusUpdatedAt:                 utcPtr(order.StatusUpdatedAt),
		PaidAt:                          utcPtr(order.PaidAt),
		DeliveredAt:                     utcPtr(order.DeliveredAt),
		RefundedAt:                      utcPtr(order.RefundedAt),
		CancelledAt:                     utcPtr(order.CancelledAt),
	}
	if order.AssessedTotal != nil {
		cents := order.AssessedTotal.Int64()
		doc.AssessedTotalCents = &cents
	}
	if n := len(order.Proofs.AdditionalPaths); n > 0 {
		doc.LastAdditionalProofPath = order.Proofs.AdditionalPaths[n-1]
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductRef:     strings.TrimSpace(item.ProductRef),
			Name:           strings.TrimSpace(item.Name),
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPrice.Int64(),
		})
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                  id,
		UserID:              doc.UserID,
		Origin:              domain.Origin(doc.Origin),
		Status:              doc.Status,
		PaymentStatus:       domain.ParsePaymentStatus(doc.PaymentStatus),
		Items:               make([]domain.OrderItem, 0, len(doc.Items)),
		Total:               domain.Money(doc.TotalCents),
		Deposit:             domain.Money(doc.DepositCents),
		AdditionalPaid:      domain.Money(doc.AdditionalPaymentsCents),
		Refunded:            domain.Money(doc.RefundsCents),
		RequestedAdditional: domain.Money(doc.RequestedAdditionalPaymentCents),
		Proofs: domain.PaymentProofs{
			DepositPath:     doc.DepositProofPath,
			AdditionalPaths: append([]string(nil), doc.AdditionalProofPaths...),
			PendingReview:   doc.PaymentProofPendingReview,
			LastUploadedAt:  doc.PaymentProofUploadedAt,
		},
		ReturnPolicyDays: doc.ReturnPolicyDays,
		ReturnDeadlineAt: doc.ReturnDeadlineAt,
		ReturnLocked:     doc.ReturnLocked,
		RepairID:         doc.RepairID,
		CustomID:         doc.CustomID,
		Version:          doc.Version,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		StatusUpdatedAt:  doc.StatusUpdatedAt,
		PaidAt:           doc.PaidAt,
		DeliveredAt:      doc.DeliveredAt,
		RefundedAt:       doc.RefundedAt,
		CancelledAt:      doc.CancelledAt,
	}
	if doc.AssessedTotalCents != nil {
		order.AssessedTotal = domain.MoneyPtr(domain.Money(*doc.AssessedTotalCents))
	}
	if len(order.Proofs.AdditionalPaths) == 0 && doc.LastAdditionalProofPath != "" {
		order.Proofs.AdditionalPaths = []string{doc.LastAdditionalProofPath}
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductRef: item.ProductRef,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  domain.Money(item.UnitPriceCents),
		})
	}
	return order
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
