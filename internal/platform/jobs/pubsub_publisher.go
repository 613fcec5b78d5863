package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/furnitune/api/internal/services"
)

// PubSubPublisher publishes notification intents and order events to Pub/Sub topics.
// Either topic may be nil, in which case publishing to it is a no-op.
type PubSubPublisher struct {
	notifications *pubsub.Topic
	orderEvents   *pubsub.Topic
	marshal       func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed publisher.
func NewPubSubPublisher(notifications, orderEvents *pubsub.Topic) (*PubSubPublisher, error) {
	if notifications == nil && orderEvents == nil {
		return nil, errors.New("pubsub publisher: at least one topic is required")
	}
	return &PubSubPublisher{
		notifications: notifications,
		orderEvents:   orderEvents,
		marshal:       json.Marshal,
	}, nil
}

type notificationMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	OrderID   string    `json:"orderId,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type orderEventMessage struct {
	Type                  string         `json:"type"`
	OrderID               string         `json:"orderId"`
	UserID                string         `json:"userId,omitempty"`
	PreviousPaymentStatus string         `json:"previousPaymentStatus,omitempty"`
	PaymentStatus         string         `json:"paymentStatus,omitempty"`
	ActorID               string         `json:"actorId,omitempty"`
	Version               int64          `json:"version"`
	OccurredAt            time.Time      `json:"occurredAt"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// PublishNotification hands a persisted notification to the delivery workers.
func (p *PubSubPublisher) PublishNotification(ctx context.Context, notification services.Notification) error {
	if p == nil || p.notifications == nil {
		return nil
	}
	data, err := p.marshal(notificationMessage{
		ID:        notification.ID,
		UserID:    notification.UserID,
		Type:      notification.Type,
		OrderID:   notification.OrderID,
		Title:     notification.Title,
		Body:      notification.Body,
		Link:      notification.Link,
		CreatedAt: notification.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "notificationId", notification.ID)
	setAttr(attrs, "userId", notification.UserID)
	setAttr(attrs, "type", notification.Type)
	setAttr(attrs, "orderId", notification.OrderID)

	if _, err := p.publish(ctx, p.notifications, data, attrs); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// PublishOrderEvent emits an order lifecycle event. Subscribers order by orderId.
func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.orderEvents == nil {
		return nil
	}
	data, err := p.marshal(orderEventMessage{
		Type:                  event.Type,
		OrderID:               event.OrderID,
		UserID:                event.UserID,
		PreviousPaymentStatus: event.PreviousPaymentStatus,
		PaymentStatus:         event.PaymentStatus,
		ActorID:               event.ActorID,
		Version:               event.Version,
		OccurredAt:            event.OccurredAt,
		Metadata:              event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "paymentStatus", event.PaymentStatus)
	if event.Version > 0 {
		attrs["version"] = strconv.FormatInt(event.Version, 10)
	}

	if _, err := p.publish(ctx, p.orderEvents, data, attrs); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func (p *PubSubPublisher) publish(ctx context.Context, topic *pubsub.Topic, data []byte, attrs map[string]string) (string, error) {
	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	return result.Get(ctx)
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
