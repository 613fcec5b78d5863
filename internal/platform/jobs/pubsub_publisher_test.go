package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/furnitune/api/internal/services"
)

func newTestTopics(t *testing.T, names ...string) (*pstest.Server, []*pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topics := make([]*pubsub.Topic, 0, len(names))
	for _, name := range names {
		topic, err := client.CreateTopic(ctx, name)
		if err != nil {
			t.Fatalf("CreateTopic %s: %v", name, err)
		}
		t.Cleanup(topic.Stop)
		topics = append(topics, topic)
	}
	return srv, topics
}

func TestPubSubPublisherPublishesNotification(t *testing.T) {
	srv, topics := newTestTopics(t, "notifications", "order-events")
	publisher, err := NewPubSubPublisher(topics[0], topics[1])
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}

	createdAt := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	err = publisher.PublishNotification(context.Background(), services.Notification{
		ID:        "ntf_1",
		UserID:    "user_1",
		Type:      "order_status",
		OrderID:   "ord_1",
		Title:     "Payment received for 1",
		Body:      "We received your payment.",
		Link:      "/ordersummary?orderId=ord_1",
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("PublishNotification: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload notificationMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.UserID != "user_1" || payload.Title != "Payment received for 1" || !payload.CreatedAt.Equal(createdAt) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["notificationId"]; attr != "ntf_1" {
		t.Fatalf("expected notificationId attribute, got %q", attr)
	}
}

func TestPubSubPublisherPublishesOrderEvent(t *testing.T) {
	srv, topics := newTestTopics(t, "order-events")
	publisher, err := NewPubSubPublisher(nil, topics[0])
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}

	if err := publisher.PublishNotification(context.Background(), services.Notification{ID: "ntf_skip"}); err != nil {
		t.Fatalf("expected notification publish to be skipped, got %v", err)
	}

	err = publisher.PublishOrderEvent(context.Background(), services.OrderEvent{
		Type:                  "order.refunded",
		OrderID:               "ord_1",
		UserID:                "user_1",
		PreviousPaymentStatus: "paid",
		PaymentStatus:         "refunded",
		ActorID:               "staff_1",
		Version:               7,
		OccurredAt:            time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	attrs := messages[0].Attributes
	if attrs["eventType"] != "order.refunded" || attrs["version"] != "7" || attrs["paymentStatus"] != "refunded" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	var payload orderEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.PreviousPaymentStatus != "paid" || payload.OrderID != "ord_1" {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPublisher(nil, nil); err == nil {
		t.Fatal("expected error without topics")
	}
}
