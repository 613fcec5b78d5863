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

const (
	shipmentCollection      = "shipments"
	shipmentEventCollection = "events"
)

// ShipmentRepository persists shipments with an append-only events sub-collection.
type ShipmentRepository struct {
	base   *pfirestore.Collection[shipmentDocument]
	events *pfirestore.Collection[shipmentEventDocument]
}

// NewShipmentRepository constructs a Firestore-backed shipment repository.
func NewShipmentRepository(provider *pfirestore.Provider) (*ShipmentRepository, error) {
	if provider == nil {
		return nil, errors.New("shipment repository requires firestore provider")
	}
	return &ShipmentRepository{
		base:   pfirestore.NewCollection[shipmentDocument](provider, shipmentCollection),
		events: pfirestore.NewCollection[shipmentEventDocument](provider, shipmentCollection),
	}, nil
}

// FindByID loads the shipment header without its events.
func (r *ShipmentRepository) FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	if r == nil || r.base == nil {
		return domain.Shipment{}, errors.New("shipment repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(shipmentID))
	if err != nil {
		return domain.Shipment{}, err
	}
	return decodeShipmentDocument(doc.ID, doc.Data), nil
}

// FindByOrderID loads the shipment attached to an order.
func (r *ShipmentRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Shipment, error) {
	if r == nil || r.base == nil {
		return domain.Shipment{}, errors.New("shipment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Shipment{}, errors.New("shipment repository: order id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).Limit(1)
	})
	if err != nil {
		return domain.Shipment{}, err
	}
	if len(docs) == 0 {
		return domain.Shipment{}, pfirestore.NotFound("shipments.find_by_order", "shipment for order "+orderID)
	}
	return decodeShipmentDocument(docs[0].ID, docs[0].Data), nil
}

// Insert creates the shipment header. A second insert for the same id fails with a conflict.
func (r *ShipmentRepository) Insert(ctx context.Context, shipment domain.Shipment) error {
	if r == nil || r.base == nil {
		return errors.New("shipment repository not initialised")
	}
	id := strings.TrimSpace(shipment.ID)
	if id == "" {
		return errors.New("shipment repository: shipment id is required")
	}
	err := r.base.Create(ctx, id, encodeShipmentDocument(shipment))
	return err
}

// Update overwrites the shipment header.
func (r *ShipmentRepository) Update(ctx context.Context, shipment domain.Shipment) error {
	if r == nil || r.base == nil {
		return errors.New("shipment repository not initialised")
	}
	id := strings.TrimSpace(shipment.ID)
	if id == "" {
		return errors.New("shipment repository: shipment id is required")
	}
	err := r.base.Set(ctx, id, encodeShipmentDocument(shipment))
	return err
}

// AppendEvent records a transition under shipments/{id}/events.
func (r *ShipmentRepository) AppendEvent(ctx context.Context, event domain.ShipmentEvent) error {
	if r == nil || r.events == nil {
		return errors.New("shipment repository not initialised")
	}
	shipmentID := strings.TrimSpace(event.ShipmentID)
	eventID := strings.TrimSpace(event.ID)
	if shipmentID == "" || eventID == "" {
		return errors.New("shipment repository: shipment id and event id are required")
	}
	err := r.events.Child(shipmentID, shipmentEventCollection).Create(ctx, eventID, shipmentEventDocument{
		From:  string(event.From),
		To:    string(event.To),
		Note:  event.Note,
		Actor: event.Actor,
		At:    event.At.UTC(),
	})
	return err
}

// ListEvents returns the shipment history oldest first.
func (r *ShipmentRepository) ListEvents(ctx context.Context, shipmentID string) ([]domain.ShipmentEvent, error) {
	if r == nil || r.events == nil {
		return nil, errors.New("shipment repository not initialised")
	}
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return nil, errors.New("shipment repository: shipment id is required")
	}
	docs, err := r.events.Child(shipmentID, shipmentEventCollection).Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("at", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	events := make([]domain.ShipmentEvent, 0, len(docs))
	for _, doc := range docs {
		from, _ := domain.ParseShipmentStatus(doc.Data.From)
		to, _ := domain.ParseShipmentStatus(doc.Data.To)
		events = append(events, domain.ShipmentEvent{
			ID:         doc.ID,
			ShipmentID: shipmentID,
			From:       from,
			To:         to,
			Note:       doc.Data.Note,
			Actor:      doc.Data.Actor,
			At:         doc.Data.At,
		})
	}
	return events, nil
}

type shipmentDocument struct {
	OrderID        string    `firestore:"orderId"`
	UserID         string    `firestore:"userId"`
	Status         string    `firestore:"status"`
	Carrier        string    `firestore:"carrier,omitempty"`
	TrackingNumber string    `firestore:"trackingNumber,omitempty"`
	Version        int64     `firestore:"version"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

type shipmentEventDocument struct {
	From  string    `firestore:"from"`
	To    string    `firestore:"to"`
	Note  string    `firestore:"note,omitempty"`
	Actor string    `firestore:"actor"`
	At    time.Time `firestore:"at"`
}

func encodeShipmentDocument(shipment domain.Shipment) shipmentDocument {
	return shipmentDocument{
		OrderID:        strings.TrimSpace(shipment.OrderID),
		UserID:         strings.TrimSpace(shipment.UserID),
		Status:         string(shipment.Status),
		Carrier:        strings.TrimSpace(shipment.Carrier),
		TrackingNumber: strings.TrimSpace(shipment.TrackingNumber),
		Version:        shipment.Version,
		CreatedAt:      shipment.CreatedAt.UTC(),
		UpdatedAt:      shipment.UpdatedAt.UTC(),
	}
}

func decodeShipmentDocument(id string, doc shipmentDocument) domain.Shipment {
	status, ok := domain.ParseShipmentStatus(doc.Status)
	if !ok {
		status = domain.ShipmentStatusPending
	}
	return domain.Shipment{
		ID:             id,
		OrderID:        doc.OrderID,
		UserID:         doc.UserID,
		Status:         status,
		Carrier:        doc.Carrier,
		TrackingNumber: doc.TrackingNumber,
		Version:        doc.Version,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

var _ repositories.ShipmentRepository = (*ShipmentRepository)(nil)
