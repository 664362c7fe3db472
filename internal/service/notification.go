package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/repository"
)

// NotificationStore is the persistence surface the notification service needs.
type NotificationStore interface {
	ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID, userID uuid.UUID) error
}

// NotificationService exposes the user's event feed.
type NotificationService interface {
	// List returns the user's notifications, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error)

	// MarkRead stamps a notification as read. Scoped to the owner.
	MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error
}

type notificationService struct {
	store  NotificationStore
	logger *slog.Logger
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(store NotificationStore, logger *slog.Logger) NotificationService {
	return &notificationService{
		store:  store,
		logger: logger,
	}
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	const op = "NotificationService.List"

	list, err := s.store.ListNotifications(ctx, userID, 50)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list notifications")
	}
	return list, nil
}

func (s *notificationService) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	const op = "NotificationService.MarkRead"

	if err := s.store.MarkNotificationRead(ctx, notificationID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound(op, "notification", notificationID.String())
		}
		return domain.Internal(err, op, "Failed to mark notification read")
	}
	return nil
}
