package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/furnitune/api/internal/domain"
	pfirestore "github.com/furnitune/api/internal/platform/firestore"
	"github.com/furnitune/api/internal/repositories"
)

const returnCollection = "returns"

// ReturnRepository persists return requests.
type ReturnRepository struct {
	base *pfirestore.Collection[returnDocument]
}

// NewReturnRepository constructs a Firestore-backed return repository.
func NewReturnRepository(provider *pfirestore.Provider) (*ReturnRepository, error) {
	if provider == nil {
		return nil, errors.New("return repository requires firestore provider")
	}
	return &ReturnRepository{
		base: pfirestore.NewCollection[returnDocument](provider, returnCollection),
	}, nil
}

func (r *ReturnRepository) FindByID(ctx context.Context, returnID string) (domain.ReturnRequest, error) {
	if r == nil || r.base == nil {
		return domain.ReturnRequest{}, errors.New("return repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(returnID))
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	return decodeReturnDocument(doc.ID, doc.Data), nil
}

// ListByOrder returns every request recorded for the order, oldest first.
func (r *ReturnRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("return repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("return repository: order id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReturnRequest, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeReturnDocument(doc.ID, doc.Data))
	}
	return out, nil
}

func (r *ReturnRepository) Insert(ctx context.Context, request domain.ReturnRequest) error {
	if r == nil || r.base == nil {
		return errors.New("return repository not initialised")
	}
	id := strings.TrimSpace(request.ID)
	if id == "" {
		return errors.New("return repository: return id is required")
	}
	err := r.base.Create(ctx, id, encodeReturnDocument(request))
	return err
}

func (r *ReturnRepository) Update(ctx context.Context, request domain.ReturnRequest) error {
	if r == nil || r.base == nil {
		return errors.New("return repository not initialised")
	}
	id := strings.TrimSpace(request.ID)
	if id == "" {
		return errors.New("return repository: return id is required")
	}
	err := r.base.Set(ctx, id, encodeReturnDocument(request))
	return err
}

type returnDocument struct {
	OrderID              string               `firestore:"orderId"`
	UserID               string               `firestore:"userId"`
	Status               string               `firestore:"status"`
	Items                []returnItemDocument `firestore:"items"`
	ReasonCode           string               `firestore:"reasonCode"`
	Details              string               `firestore:"details,omitempty"`
	RequestedAmountCents int64                `firestore:"requestedAmountCents"`
	RefundChannel        string               `firestore:"refundChannel"`
	AccountName          string               `firestore:"accountName"`
	AccountNumberLast4   string               `firestore:"accountNumberLast4"`
	PhotoPath            string               `firestore:"photoPath,omitempty"`
	RefundAmountCents    int64                `firestore:"refundAmountCents"`
	RefundMethod         string               `firestore:"refundMethod,omitempty"`
	RejectionReason      string               `firestore:"rejectionReason,omitempty"`
	DecidedBy            string               `firestore:"decidedBy,omitempty"`
	Version              int64                `firestore:"version"`
	CreatedAt            time.Time            `firestore:"createdAt"`
	UpdatedAt            time.Time            `firestore:"updatedAt"`
	DecidedAt            *time.Time           `firestore:"decidedAt,omitempty"`
	ReceivedAt           *time.Time           `firestore:"receivedAt,omitempty"`
	RefundedAt           *time.Time           `firestore:"refundedAt,omitempty"`
}

type returnItemDocument struct {
	ProductRef     string `firestore:"productRef"`
	Name           string `firestore:"name"`
	Quantity       int    `firestore:"quantity"`
	UnitPriceCents int64  `firestore:"unitPriceCents"`
}

func encodeReturnDocument(request domain.ReturnRequest) returnDocument {
	doc := returnDocument{
		OrderID:              strings.TrimSpace(request.OrderID),
		UserID:               strings.TrimSpace(request.UserID),
		Status:               string(request.Status),
		Items:                make([]returnItemDocument, 0, len(request.Items)),
		ReasonCode:           request.ReasonCode,
		Details:              request.Details,
		RequestedAmountCents: request.RequestedAmount.Int64(),
		RefundChannel:        string(request.RefundChannel),
		AccountName:          request.AccountName,
		AccountNumberLast4:   request.AccountNumberLast4,
		PhotoPath:            request.PhotoPath,
		RefundAmountCents:    request.RefundAmount.Int64(),
		RefundMethod:         request.RefundMethod,
		RejectionReason:      request.RejectionReason,
		DecidedBy:            request.DecidedBy,
		Version:              request.Version,
		CreatedAt:            request.CreatedAt.UTC(),
		UpdatedAt:            request.UpdatedAt.UTC(),
		DecidedAt:            utcPtr(request.DecidedAt),
		ReceivedAt:           utcPtr(request.ReceivedAt),
		RefundedAt:           utcPtr(request.RefundedAt),
	}
	for _, item := range request.Items {
		doc.Items = append(doc.Items, returnItemDocument{
			ProductRef:     item.ProductRef,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPrice.Int64(),
		})
	}
	return doc
}

func decodeReturnDocument(id string, doc returnDocument) domain.ReturnRequest {
	request := domain.ReturnRequest{
		ID:                 id,
		OrderID:            doc.OrderID,
		UserID:             doc.UserID,
		Status:             domain.ReturnStatus(domain.NormalizeStatusKey(doc.Status)),
		Items:              make([]domain.ReturnItem, 0, len(doc.Items)),
		ReasonCode:         doc.ReasonCode,
		Details:            doc.Details,
		RequestedAmount:    domain.Money(doc.RequestedAmountCents),
		RefundChannel:      domain.RefundChannel(doc.RefundChannel),
		AccountName:        doc.AccountName,
		AccountNumberLast4: doc.AccountNumberLast4,
		PhotoPath:          doc.PhotoPath,
		RefundAmount:       domain.Money(doc.RefundAmountCents),
		RefundMethod:       doc.RefundMethod,
		RejectionReason:    doc.RejectionReason,
		DecidedBy:          doc.DecidedBy,
		Version:            doc.Version,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
		DecidedAt:          doc.DecidedAt,
		ReceivedAt:         doc.ReceivedAt,
		RefundedAt:         doc.RefundedAt,
	}
	for _, item := range doc.Items {
		request.Items = append(request.Items, domain.ReturnItem{
			ProductRef: item.ProductRef,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  domain.Money(item.UnitPriceCents),
		})
	}
	return request
}

var _ repositories.ReturnRepository = (*ReturnRepository)(nil)
