// This file implements the report lifecycle service: request intake,
// worker-driven status transitions, refund-on-failure, and the stale sweep.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/metrics"
	"github.com/goodbreeze/breeze/internal/repository"
)

// Job type constants matching the worker package.
const (
	JobTypeGenerateReport = "generate_report"
)

// =============================================================================
// Store Interface
// =============================================================================

// ReportStore is the persistence surface the report service needs.
type ReportStore interface {
	GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	ListReportsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Report, error)
	DeleteReport(ctx context.Context, reportID, userID uuid.UUID) (string, error)
	MarkProcessing(ctx context.Context, reportID uuid.UUID) error
	CompleteReport(ctx context.Context, reportID uuid.UUID, pdfURL string) error
	FailReport(ctx context.Context, reportID uuid.UUID, failureMessage string) (repository.FailOutcome, error)
	ListStaleReports(ctx context.Context, olderThan time.Time) ([]domain.Report, error)
	EnqueueJob(ctx context.Context, p repository.EnqueueJobParams) (repository.Job, error)
	CreateNotification(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, message string) (*domain.Notification, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// ReportService manages the report lifecycle from request to terminal state.
type ReportService interface {
	// Request admits a report through the entitlement engine and, on
	// admission, enqueues the generation job. Exactly one of Admission or
	// Denial is returned on a nil error.
	Request(ctx context.Context, userID *uuid.UUID, reportType domain.ReportType, subject string) (*domain.Admission, *domain.Denial, error)

	// Get returns a report, enforcing ownership and the PDF retention
	// window: past expiry the record survives but the download link is gone.
	Get(ctx context.Context, reportID uuid.UUID, userID uuid.UUID) (*domain.Report, error)

	// List returns the user's reports, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]domain.Report, error)

	// Delete removes a report owned by the user and returns the stored PDF
	// URL so the caller can delete the object.
	Delete(ctx context.Context, reportID, userID uuid.UUID) (string, error)

	// MarkProcessing transitions pending -> processing. A report no longer
	// pending (picked up twice, or already swept) is left untouched.
	MarkProcessing(ctx context.Context, reportID uuid.UUID) error

	// Complete transitions a non-terminal report to completed. A late
	// completion racing the sweep loses and is ignored.
	Complete(ctx context.Context, reportID uuid.UUID, pdfURL string) error

	// Fail transitions a non-terminal report to failed and refunds the
	// debited balance exactly once. Calling Fail on a terminal report is a
	// no-op, never a second refund.
	Fail(ctx context.Context, reportID uuid.UUID, reason string) error

	// SweepStale fails every report stuck in pending/processing beyond the
	// stale threshold. Safe to run repeatedly; each transition is guarded.
	SweepStale(ctx context.Context) (int, error)
}

// =============================================================================
// Implementation
// =============================================================================

type reportService struct {
	store       ReportStore
	entitlement EntitlementService
	logger      *slog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(store ReportStore, entitlement EntitlementService, logger *slog.Logger) ReportService {
	return &reportService{
		store:       store,
		entitlement: entitlement,
		logger:      logger,
	}
}

// generateReportPayload is the queue payload for report generation jobs.
// Must match the worker handler's expected shape.
type generateReportPayload struct {
	ReportID uuid.UUID `json:"report_id"`
}

// Request admits and enqueues one report.
func (s *reportService) Request(ctx context.Context, userID *uuid.UUID, reportType domain.ReportType, subject string) (*domain.Admission, *domain.Denial, error) {
	const op = "ReportService.Request"

	admission, denial, err := s.entitlement.CheckAndAdmit(ctx, userID, reportType, subject)
	if err != nil {
		return nil, nil, err
	}
	if denial != nil {
		return nil, denial, nil
	}

	payload, err := json.Marshal(generateReportPayload{ReportID: admission.ReportID})
	if err != nil {
		return nil, nil, domain.Internal(err, op, "Failed to marshal job payload")
	}

	if _, err := s.store.EnqueueJob(ctx, repository.EnqueueJobParams{
		JobType:     JobTypeGenerateReport,
		Payload:     payload,
		Priority:    10,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}); err != nil {
		// The debit already happened. Fail the report so the refund path
		// returns the credit instead of stranding it.
		s.logger.Error("Failed to enqueue generation job", "report_id", admission.ReportID, "error", err)
		if ferr := s.Fail(ctx, admission.ReportID, "failed to schedule generation"); ferr != nil {
			s.logger.Error("Failed to fail unscheduled report", "report_id", admission.ReportID, "error", ferr)
		}
		return nil, nil, domain.Internal(err, op, "Failed to schedule report generation")
	}

	s.logger.Info("Report admitted",
		"report_id", admission.ReportID,
		"type", reportType,
		"source", admission.Source,
	)
	return admission, nil, nil
}

// Get returns a report owned by the user.
func (s *reportService) Get(ctx context.Context, reportID uuid.UUID, userID uuid.UUID) (*domain.Report, error) {
	const op = "ReportService.Get"

	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "report", reportID.String())
		}
		return nil, domain.Internal(err, op, "Failed to get report")
	}
	if report.UserID == nil || *report.UserID != userID {
		// Not-found rather than forbidden: don't confirm the ID exists.
		return nil, domain.NotFound(op, "report", reportID.String())
	}

	// Retention: the record outlives the download.
	if report.ExpiresAt != nil && report.ExpiresAt.Before(time.Now()) {
		report.PDFURL = ""
	}
	return report, nil
}

// List returns the user's reports, newest first.
func (s *reportService) List(ctx context.Context, userID uuid.UUID) ([]domain.Report, error) {
	const op = "ReportService.List"

	reports, err := s.store.ListReportsByUser(ctx, userID, 100)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list reports")
	}

	now := time.Now()
	for i := range reports {
		if reports[i].ExpiresAt != nil && reports[i].ExpiresAt.Before(now) {
			reports[i].PDFURL = ""
		}
	}
	return reports, nil
}

// Delete removes a report owned by the user.
func (s *reportService) Delete(ctx context.Context, reportID, userID uuid.UUID) (string, error) {
	const op = "ReportService.Delete"

	pdfURL, err := s.store.DeleteReport(ctx, reportID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", domain.NotFound(op, "report", reportID.String())
		}
		return "", domain.Internal(err, op, "Failed to delete report")
	}
	return pdfURL, nil
}

// MarkProcessing transitions pending -> processing.
func (s *reportService) MarkProcessing(ctx context.Context, reportID uuid.UUID) error {
	const op = "ReportService.MarkProcessing"

	if err := s.store.MarkProcessing(ctx, reportID); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			s.logger.Warn("Report not pending, skipping processing transition", "report_id", reportID)
			return nil
		}
		return domain.Internal(err, op, "Failed to mark report processing")
	}
	return nil
}

// Complete finalizes a successful generation.
func (s *reportService) Complete(ctx context.Context, reportID uuid.UUID, pdfURL string) error {
	const op = "ReportService.Complete"

	if err := s.store.CompleteReport(ctx, reportID, pdfURL); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			s.logger.Warn("Report already terminal, ignoring completion", "report_id", reportID)
			return nil
		}
		return domain.Internal(err, op, "Failed to complete report")
	}

	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		s.logger.Error("Failed to load completed report", "report_id", reportID, "error", err)
		return nil
	}

	metrics.ReportsGenerated.WithLabelValues(string(report.Type)).Inc()
	if report.UserID != nil {
		if _, err := s.store.CreateNotification(ctx, *report.UserID, domain.NotificationReportReady,
			fmt.Sprintf("Your %s for %q is ready to download.", report.Type.Title(), report.Subject)); err != nil {
			s.logger.Error("Failed to record completion notification", "report_id", reportID, "error", err)
		}
	}

	s.logger.Info("Report completed", "report_id", reportID, "type", report.Type)
	return nil
}

// Fail moves a report to failed and refunds its debit exactly once.
//
// Idempotence lives in the repository guard: the failed transition and the
// refund commit together or not at all, and a transition that finds the
// report already terminal refunds nothing. The error path matters: when the
// refund write fails the whole transaction rolls back, the report stays
// non-terminal, and the hourly sweep retries the transition.
func (s *reportService) Fail(ctx context.Context, reportID uuid.UUID, reason string) error {
	const op = "ReportService.Fail"

	outcome, err := s.store.FailReport(ctx, reportID, reason)
	if err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			s.logger.Info("Report already terminal, no refund issued", "report_id", reportID)
			return nil
		}
		metrics.RefundFailuresTotal.Inc()
		s.logger.Error("Failed-report transition rolled back, sweep will retry",
			"report_id", reportID, "error", err)
		return domain.Internal(err, op, "Failed to fail report")
	}

	report, gerr := s.store.GetReport(ctx, reportID)
	if gerr == nil {
		metrics.ReportsFailed.WithLabelValues(string(report.Type)).Inc()
	}

	if outcome.Refunded {
		metrics.RefundsTotal.WithLabelValues(string(outcome.Source)).Inc()
		if outcome.UserID != nil {
			if _, err := s.store.CreateNotification(ctx, *outcome.UserID, domain.NotificationRefundIssued,
				"A report failed to generate. The credit has been returned to your account."); err != nil {
				s.logger.Error("Failed to record refund notification", "report_id", reportID, "error", err)
			}
		}
	}

	s.logger.Info("Report failed",
		"report_id", reportID,
		"reason", reason,
		"refunded", outcome.Refunded,
		"source", outcome.Source,
	)
	return nil
}

// SweepStale fails reports stuck beyond the stale threshold. Returns how
// many were transitioned.
func (s *reportService) SweepStale(ctx context.Context) (int, error) {
	const op = "ReportService.SweepStale"

	cutoff := time.Now().Add(-domain.StaleReportThreshold)
	stale, err := s.store.ListStaleReports(ctx, cutoff)
	if err != nil {
		return 0, domain.Internal(err, op, "Failed to list stale reports")
	}

	swept := 0
	for i := range stale {
		if err := s.Fail(ctx, stale[i].ID, "report generation timed out"); err != nil {
			s.logger.Error("Sweep failed to fail report", "report_id", stale[i].ID, "error", err)
			continue
		}
		swept++
		metrics.StaleReportsSwept.Inc()
	}

	if swept > 0 {
		s.logger.Warn("Swept stale reports", "count", swept)
	}
	return swept, nil
}
