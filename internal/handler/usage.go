// This file implements the dashboard handlers: usage summary and the
// notification feed.
//
// Routes:
//   - GET  /api/usage                   -> Usage
//   - GET  /api/notifications           -> Notifications
//   - POST /api/notifications/{id}/read -> MarkNotificationRead
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/middleware"
	"github.com/goodbreeze/breeze/internal/service"
)

// UsageHandler serves the entitlement summary and notification feed.
type UsageHandler struct {
	creditService       service.CreditService
	notificationService service.NotificationService
	logger              *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(creditService service.CreditService, notificationService service.NotificationService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		creditService:       creditService,
		notificationService: notificationService,
		logger:              logger,
	}
}

// RegisterRoutes registers usage routes on the provided mux.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/usage", requireUser(http.HandlerFunc(h.Usage)))
	mux.Handle("GET /api/notifications", requireUser(http.HandlerFunc(h.Notifications)))
	mux.Handle("POST /api/notifications/{id}/read", requireUser(http.HandlerFunc(h.MarkNotificationRead)))
}

// Usage returns the user's entitlement snapshot.
func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	summary, err := h.creditService.GetUsageSummary(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// notificationResponse is the API shape of a notification.
type notificationResponse struct {
	ID        uuid.UUID               `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Message   string                  `json:"message"`
	ReadAt    *time.Time              `json:"read_at,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// Notifications returns the user's notifications, newest first.
func (h *UsageHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	list, err := h.notificationService.List(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]notificationResponse, 0, len(list))
	for i := range list {
		n := &list[i]
		out = append(out, notificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Message:   n.Message,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

// MarkNotificationRead stamps a notification as read.
func (h *UsageHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	notificationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "Invalid notification ID"))
		return
	}

	if err := h.notificationService.MarkRead(r.Context(), notificationID, user.ID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
