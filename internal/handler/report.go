// This file implements the report lifecycle handlers.
//
// Routes:
//   - POST   /api/reports      -> Create (free snapshot works unauthenticated)
//   - GET    /api/reports      -> List
//   - GET    /api/reports/{id} -> Get
//   - DELETE /api/reports/{id} -> Delete
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/middleware"
	"github.com/goodbreeze/breeze/internal/service"
	"github.com/goodbreeze/breeze/internal/storage"
)

// ReportHandler handles report requests.
type ReportHandler struct {
	reportService service.ReportService
	objects       storage.Storage
	limits        *middleware.APIRateLimiter
	logger        *slog.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reportService service.ReportService, objects storage.Storage, limits *middleware.APIRateLimiter, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		objects:       objects,
		limits:        limits,
		logger:        logger,
	}
}

// RegisterRoutes registers report routes on the provided mux. requireUser
// must be the full authenticated stack; it is applied on its own so the
// session is resolved exactly once per request.
//
// Create runs behind withUser rather than requireUser: the free snapshot
// is admitted without a session, and the entitlement engine decides
// whether a login is required for the requested type.
func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux, withUser, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/reports", withUser(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/reports", requireUser(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/reports/{id}", requireUser(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /api/reports/{id}", requireUser(http.HandlerFunc(h.Delete)))
}

// reportResponse is the API shape of a report.
type reportResponse struct {
	ID        uuid.UUID           `json:"id"`
	Type      domain.ReportType   `json:"type"`
	Title     string              `json:"title"`
	Subject   string              `json:"subject"`
	Status    domain.ReportStatus `json:"status"`
	PDFURL    string              `json:"pdf_url,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
}

func toReportResponse(r *domain.Report) reportResponse {
	return reportResponse{
		ID:        r.ID,
		Type:      r.Type,
		Title:     r.Type.Title(),
		Subject:   r.Subject,
		Status:    r.Status,
		PDFURL:    r.PDFURL,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

type createReportRequest struct {
	Type    domain.ReportType `json:"type"`
	Subject string            `json:"subject"`
}

// Create admits a report request through the entitlement engine.
//
// Admission returns 202 with the report ID and the balance that funded
// it. An exhausted denial returns 402 with the upgrade prompt; a denial
// for a paid type without a session returns 401.
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	user := middleware.GetUser(r.Context())

	// The unauthenticated snapshot path is the abuse magnet; throttle it
	// per IP before touching the database.
	if user == nil {
		if !h.limits.AllowSnapshot(clientIP(r)) {
			writeJSONError(w, http.StatusTooManyRequests, domain.ERATELIMIT,
				"Too many requests. Please try again later.")
			return
		}
	}

	var userID *uuid.UUID
	if user != nil {
		userID = &user.ID
	}

	admission, denial, err := h.reportService.Request(r.Context(), userID, req.Type, req.Subject)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if denial != nil {
		switch denial.Reason {
		case domain.DenyReasonAuthRequired:
			respondJSON(w, http.StatusUnauthorized, map[string]any{
				"error": map[string]any{
					"code":    domain.EUNAUTHORIZED,
					"message": "Sign in to request this report",
				},
				"reason": denial.Reason,
			})
		default:
			respondJSON(w, http.StatusPaymentRequired, map[string]any{
				"error": map[string]any{
					"code":    domain.EEXHAUSTED,
					"message": "No report credits remaining.",
				},
				"reason":         denial.Reason,
				"upgrade_prompt": denial.UpgradePrompt,
			})
		}
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"report_id": admission.ReportID,
		"source":    admission.Source,
	})
}

// List returns the user's reports, newest first.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	reports, err := h.reportService.List(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]reportResponse, 0, len(reports))
	for i := range reports {
		out = append(out, toReportResponse(&reports[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"reports": out})
}

// Get returns one report owned by the user.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	reportID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "Invalid report ID"))
		return
	}

	report, err := h.reportService.Get(r.Context(), reportID, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"report": toReportResponse(report)})
}

// Delete removes a report and its stored PDF.
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	reportID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "Invalid report ID"))
		return
	}

	pdfURL, err := h.reportService.Delete(r.Context(), reportID, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// The database row is gone; a leftover object only wastes storage,
	// so deletion failures are logged and swallowed.
	if pdfURL != "" {
		if err := h.objects.Delete(r.Context(), storage.ReportKey(reportID)); err != nil {
			h.logger.Error("failed to delete report object",
				"report_id", reportID, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
