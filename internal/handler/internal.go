// This file implements the internal status callback for out-of-process
// generation workers.
//
// Route:
//   - POST /internal/reports/{id}/status -> ReportStatus
//
// The in-process worker calls the report service directly; this endpoint
// exists for deployments that run generation on separate machines. It is
// authenticated by a static bearer token, never by user sessions.
package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/service"
)

// InternalHandler handles callbacks from external workers.
type InternalHandler struct {
	reportService service.ReportService
	token         string
	logger        *slog.Logger
}

// NewInternalHandler creates a new InternalHandler. The token must be
// non-empty; main skips registration entirely when it is not configured.
func NewInternalHandler(reportService service.ReportService, token string, logger *slog.Logger) *InternalHandler {
	return &InternalHandler{
		reportService: reportService,
		token:         token,
		logger:        logger,
	}
}

// RegisterRoutes registers internal routes on the provided mux.
func (h *InternalHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /internal/reports/{id}/status", h.ReportStatus)
}

type reportStatusRequest struct {
	Status string `json:"status"`
	PDFURL string `json:"pdf_url,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ReportStatus applies a worker-reported lifecycle transition. The
// transitions go through the report service, so the guards and the
// refund-on-failure path behave exactly as they do for in-process jobs.
func (h *InternalHandler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSONError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED, "Invalid worker token")
		return
	}

	reportID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("", "Invalid report ID"))
		return
	}

	var req reportStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	switch req.Status {
	case string(domain.ReportStatusProcessing):
		err = h.reportService.MarkProcessing(r.Context(), reportID)
	case string(domain.ReportStatusCompleted):
		if req.PDFURL == "" {
			ErrorResponse(w, r, h.logger, domain.Invalid("", "pdf_url is required for completion"))
			return
		}
		err = h.reportService.Complete(r.Context(), reportID, req.PDFURL)
	case string(domain.ReportStatusFailed):
		reason := req.Reason
		if reason == "" {
			reason = "worker reported failure"
		}
		err = h.reportService.Fail(r.Context(), reportID, reason)
	default:
		ErrorResponse(w, r, h.logger, domain.Invalid("", "Unknown status"))
		return
	}
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *InternalHandler) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}
