package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/furnitune/api/internal/repositories"
)

// NotificationServiceDeps bundles collaborators for notification fan-out.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Publisher     NotificationPublisher
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        Logger
}

type notificationService struct {
	repo      repositories.NotificationRepository
	publisher NotificationPublisher
	clock     func() time.Time
	newID     func() string
	logger    Logger
}

// NewNotificationService constructs the dispatcher used after transactions commit.
func NewNotificationService(deps NotificationServiceDeps) (NotificationDispatcher, error) {
	if deps.Notifications == nil && deps.Publisher == nil {
		return nil, errors.New("notification service: repository or publisher is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &notificationService{
		repo:      deps.Notifications,
		publisher: deps.Publisher,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Dispatch persists and publishes each intent. Failures are logged and never returned; the
// mutation that produced the intent has already committed.
func (s *notificationService) Dispatch(ctx context.Context, intents ...Notification) {
	for _, intent := range intents {
		if strings.TrimSpace(intent.UserID) == "" {
			s.logger(ctx, "notification.skipped", map[string]any{
				"orderId": intent.OrderID,
				"type":    intent.Type,
				"reason":  "missing user",
			})
			continue
		}
		if intent.ID == "" {
			intent.ID = notificationIDPrefix + s.newID()
		}
		if intent.CreatedAt.IsZero() {
			intent.CreatedAt = s.clock()
		}
		intent.Read = false

		if s.repo != nil {
			if err := s.repo.Insert(ctx, intent); err != nil {
				s.logger(ctx, "notification.persist.failed", map[string]any{
					"notificationId": intent.ID,
					"userId":         intent.UserID,
					"orderId":        intent.OrderID,
					"error":          err.Error(),
				})
			}
		}
		if s.publisher != nil {
			if err := s.publisher.PublishNotification(ctx, intent); err != nil {
				s.logger(ctx, "notification.publish.failed", map[string]any{
					"notificationId": intent.ID,
					"userId":         intent.UserID,
					"error":          err.Error(),
				})
			}
		}
	}
}
