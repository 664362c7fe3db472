// Package jobs contains the background job handlers run by the worker.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/ai"
	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/email"
	"github.com/goodbreeze/breeze/internal/report"
	"github.com/goodbreeze/breeze/internal/repository"
	"github.com/goodbreeze/breeze/internal/service"
	"github.com/goodbreeze/breeze/internal/storage"
	"github.com/goodbreeze/breeze/internal/worker"
)

// generateReportStore is the read surface the handler needs beyond the
// report service.
type generateReportStore interface {
	GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// GenerateReportHandler processes report generation jobs: it asks the AI
// provider for content, renders the PDF, uploads it, and completes the
// report. Failures route through the report service so the debited credit
// is refunded.
type GenerateReportHandler struct {
	store    generateReportStore
	reports  service.ReportService
	provider ai.Provider
	renderer report.Renderer
	storage  storage.Storage
	email    email.Service
	logger   *slog.Logger
}

// generateReportPayload matches the payload enqueued by the report service.
type generateReportPayload struct {
	ReportID uuid.UUID `json:"report_id"`
}

// NewGenerateReportHandler creates a new handler for report generation jobs.
func NewGenerateReportHandler(
	store *repository.Store,
	reports service.ReportService,
	provider ai.Provider,
	objects storage.Storage,
	emailService email.Service,
	logger *slog.Logger,
) *GenerateReportHandler {
	return &GenerateReportHandler{
		store:    store,
		reports:  reports,
		provider: provider,
		renderer: report.NewPDFRenderer(),
		storage:  objects,
		email:    emailService,
		logger:   logger,
	}
}

// Type returns the job type identifier.
func (h *GenerateReportHandler) Type() string {
	return service.JobTypeGenerateReport
}

// Handle executes one report generation job.
func (h *GenerateReportHandler) Handle(ctx context.Context, payload []byte) error {
	var p generateReportPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	rep, err := h.store.GetReport(ctx, p.ReportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return worker.NewPermanentError(fmt.Errorf("report not found: %s", p.ReportID))
		}
		return fmt.Errorf("fetch report: %w", err)
	}

	// A retried job can find the report already finished or swept.
	if rep.Status.IsTerminal() {
		h.logger.Info("report already terminal, skipping generation",
			"report_id", rep.ID, "status", rep.Status)
		return nil
	}

	if err := h.reports.MarkProcessing(ctx, rep.ID); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	h.logger.Info("generating report",
		"report_id", rep.ID,
		"report_type", rep.Type,
		"subject", rep.Subject,
	)

	content, err := h.provider.GenerateReport(ctx, ai.GenerateReportParams{
		ReportType: rep.Type,
		Subject:    rep.Subject,
		ReportID:   rep.ID,
	})
	if err != nil {
		if ai.IsRetryable(err) {
			// Leave the report in processing; the retried job or the
			// stale sweep picks it up.
			return fmt.Errorf("generate content: %w", err)
		}
		h.failReport(ctx, rep.ID, "content generation failed")
		return worker.NewPermanentError(fmt.Errorf("generate content: %w", err))
	}

	var buf bytes.Buffer
	size, err := h.renderer.Render(ctx, rep, content, &buf)
	if err != nil {
		h.failReport(ctx, rep.ID, "report rendering failed")
		return worker.NewPermanentError(fmt.Errorf("render pdf: %w", err))
	}

	key := storage.ReportKey(rep.ID)
	err = h.storage.Put(ctx, key, &buf, storage.PutOptions{
		ContentType: storage.ContentTypePDF,
		MaxSize:     storage.MaxReportSize,
		Overwrite:   true,
	})
	if err != nil {
		return fmt.Errorf("upload pdf: %w", err)
	}

	pdfURL, err := h.storage.URL(ctx, key, domain.ReportRetention)
	if err != nil {
		return fmt.Errorf("resolve pdf url: %w", err)
	}

	if err := h.reports.Complete(ctx, rep.ID, pdfURL); err != nil {
		return fmt.Errorf("complete report: %w", err)
	}

	h.logger.Info("report generated",
		"report_id", rep.ID,
		"storage_key", key,
		"size_bytes", size,
		"duration", content.Usage.Duration,
	)

	h.sendReadyEmail(ctx, rep, pdfURL)

	return nil
}

// failReport fails a report via the service, which issues the refund.
// A failure to fail is only logged; the stale sweep is the backstop.
func (h *GenerateReportHandler) failReport(ctx context.Context, reportID uuid.UUID, reason string) {
	if err := h.reports.Fail(ctx, reportID, reason); err != nil {
		h.logger.Error("failed to mark report failed", "report_id", reportID, "error", err)
	}
}

// sendReadyEmail notifies the owner by email. Email failures never fail
// the job; the report is already completed.
func (h *GenerateReportHandler) sendReadyEmail(ctx context.Context, rep *domain.Report, pdfURL string) {
	if rep.UserID == nil {
		return
	}

	// Don't let a slow SMTP server hold the job slot.
	emailCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	user, err := h.store.GetUserByID(emailCtx, *rep.UserID)
	if err != nil {
		h.logger.Error("failed to load user for report email", "report_id", rep.ID, "error", err)
		return
	}

	if err := h.email.SendReportReadyEmail(emailCtx, user.Email, user.DisplayName(), rep.Type.Title(), pdfURL); err != nil {
		h.logger.Error("failed to send report ready email",
			"report_id", rep.ID, "user_id", user.ID, "error", err)
	}
}
