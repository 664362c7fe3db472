package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
)

// CreateNotification records one event for later delivery.
func (s *Store) CreateNotification(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, message string) (*domain.Notification, error) {
	const op = "repository.CreateNotification"

	n := domain.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    typ,
		Message: message,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, type, message, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at`,
		n.ID, n.UserID, n.Type, n.Message).Scan(&n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &n, nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Notification, error) {
	const op = "repository.ListNotifications"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, message, read_at, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var list []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// MarkNotificationRead stamps a notification as read, scoped to its owner.
func (s *Store) MarkNotificationRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	const op = "repository.MarkNotificationRead"

	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = now()
		WHERE id = $1 AND user_id = $2 AND read_at IS NULL`,
		notificationID, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
