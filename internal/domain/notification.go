package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies an event emitted for the delivery system
// (email / in-app bell). Delivery is not this core's concern; it only
// guarantees one record per triggering transition.
type NotificationType string

const (
	NotificationRefundIssued     NotificationType = "refund_issued"
	NotificationAccountLocked    NotificationType = "account_locked"
	NotificationCreditsExhausted NotificationType = "credits_exhausted"
	NotificationReportReady      NotificationType = "report_ready"
)

// Notification is one structured event record.
type Notification struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      NotificationType
	Message   string
	ReadAt    *time.Time
	CreatedAt time.Time
}
