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
	"github.com/furnitune/api/internal/repositories"
)

const (
	userCollection         = "users"
	notificationCollection = "notifications"
)

// NotificationRepository stores notifications under users/{uid}/notifications.
type NotificationRepository struct {
	users *pfirestore.Collection[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	return &NotificationRepository{
		users: pfirestore.NewCollection[notificationDocument](provider, userCollection),
	}, nil
}

// Insert writes the notification. Replaying an id is a conflict, which keeps redelivery idempotent.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.users == nil {
		return errors.New("notification repository not initialised")
	}
	userID := strings.TrimSpace(notification.UserID)
	id := strings.TrimSpace(notification.ID)
	if userID == "" || id == "" {
		return errors.New("notification repository: user id and notification id are required")
	}
	err := r.users.Child(userID, notificationCollection).Create(ctx, id, notificationDocument{
		Type:      notification.Type,
		OrderID:   notification.OrderID,
		Title:     notification.Title,
		Body:      notification.Body,
		Link:      notification.Link,
		Read:      notification.Read,
		CreatedAt: notification.CreatedAt.UTC(),
	})
	return err
}

// ListByUser pages through a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	if r == nil || r.users == nil {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository: user id is required")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}
	startAfter, err := decodeCreatedCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, fmt.Errorf("notification repository: invalid page token: %w", err)
	}

	docs, err := r.users.Child(userID, notificationCollection).Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-2]
		nextToken, err = encodeCreatedCursor(last.Data.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, err
		}
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.Notification{
			ID:        doc.ID,
			UserID:    userID,
			Type:      doc.Data.Type,
			OrderID:   doc.Data.OrderID,
			Title:     doc.Data.Title,
			Body:      doc.Data.Body,
			Link:      doc.Data.Link,
			Read:      doc.Data.Read,
			CreatedAt: doc.Data.CreatedAt,
		})
	}
	return domain.CursorPage[domain.Notification]{Items: items, NextPageToken: nextToken}, nil
}

type notificationDocument struct {
	Type      string    `firestore:"type"`
	OrderID   string    `firestore:"orderId,omitempty"`
	Title     string    `firestore:"title"`
	Body      string    `firestore:"body"`
	Link      string    `firestore:"link,omitempty"`
	Read      bool      `firestore:"read"`
	CreatedAt time.Time `firestore:"createdAt"`
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)
