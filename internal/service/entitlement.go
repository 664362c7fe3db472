// This file implements the entitlement engine: the single decision point
// for whether a report request runs and which balance pays for it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/metrics"
	"github.com/goodbreeze/breeze/internal/repository"
)

// =============================================================================
// Store Interface
// =============================================================================

// EntitlementStore is the persistence surface the entitlement engine needs.
type EntitlementStore interface {
	ActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	AvailableCredits(ctx context.Context, userID uuid.UUID) ([]domain.Credit, error)
	HasEverSubscribed(ctx context.Context, userID uuid.UUID) (bool, error)
	AdmitWithSubscription(ctx context.Context, subID uuid.UUID, p domain.NewReportParams) (*domain.Report, error)
	AdmitWithPackCredit(ctx context.Context, userID uuid.UUID, p domain.NewReportParams) (*domain.Report, error)
	CreateFreeReport(ctx context.Context, p domain.NewReportParams) (*domain.Report, error)
	CreateNotification(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, message string) (*domain.Notification, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// EntitlementService decides and executes report admissions.
type EntitlementService interface {
	// CheckAndAdmit runs the admission decision for one report request.
	//
	// Free-eligible report types are admitted without authentication or
	// debit. Everything else requires a user and a spendable balance:
	// subscription allowance first, then pack credits in expiry order. On
	// success the pending report exists and exactly one unit was debited;
	// a denial mutates nothing.
	//
	// Exactly one of Admission or Denial is returned on a nil error.
	CheckAndAdmit(ctx context.Context, userID *uuid.UUID, reportType domain.ReportType, subject string) (*domain.Admission, *domain.Denial, error)
}

// =============================================================================
// Implementation
// =============================================================================

type entitlementService struct {
	store  EntitlementStore
	logger *slog.Logger
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(store EntitlementStore, logger *slog.Logger) EntitlementService {
	return &entitlementService{
		store:  store,
		logger: logger,
	}
}

// CheckAndAdmit executes the admission decision.
//
// The decision runs in two stages. The planner picks a balance from a
// snapshot; the repository then re-checks that balance's guard inside the
// debit transaction. Admission is decisive: when a concurrent request wins
// the race the guard fails and the caller sees the same exhausted denial as
// an empty balance, never a retry.
func (s *entitlementService) CheckAndAdmit(ctx context.Context, userID *uuid.UUID, reportType domain.ReportType, subject string) (*domain.Admission, *domain.Denial, error) {
	const op = "entitlement.check_and_admit"

	if !reportType.IsValid() {
		return nil, nil, domain.Invalid(op, "Unknown report type")
	}
	if subject == "" {
		return nil, nil, domain.Invalid(op, "Report subject is required")
	}

	if reportType.FreeEligible() {
		report, err := s.store.CreateFreeReport(ctx, domain.NewReportParams{
			UserID:  userID,
			Type:    reportType,
			Subject: subject,
		})
		if err != nil {
			return nil, nil, domain.Internal(err, op, "Failed to create report")
		}
		metrics.AdmissionsTotal.WithLabelValues(string(domain.DebitSourceFree)).Inc()
		return &domain.Admission{ReportID: report.ID, Source: domain.DebitSourceFree}, nil, nil
	}

	if userID == nil {
		metrics.DenialsTotal.WithLabelValues(string(domain.DenyReasonAuthRequired)).Inc()
		return nil, &domain.Denial{Reason: domain.DenyReasonAuthRequired}, nil
	}

	params := domain.NewReportParams{UserID: userID, Type: reportType, Subject: subject}

	admission, err := s.tryAdmit(ctx, *userID, params)
	if err != nil {
		return nil, nil, domain.Internal(err, op, "Failed to admit report")
	}
	if admission != nil {
		metrics.AdmissionsTotal.WithLabelValues(string(admission.Source)).Inc()
		return admission, nil, nil
	}

	return nil, s.deny(ctx, *userID), nil
}

// tryAdmit plans against a snapshot and executes the plan once. A guard
// failure means another request spent the planned balance between the
// snapshot and the debit; that loss is returned as a nil admission, the same
// as an empty balance, so contention surfaces as an exhausted denial.
func (s *entitlementService) tryAdmit(ctx context.Context, userID uuid.UUID, params domain.NewReportParams) (*domain.Admission, error) {
	sub, err := s.store.ActiveSubscription(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	credits, err := s.store.AvailableCredits(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan, ok := domain.PlanAdmission(sub, credits, time.Now())
	if !ok {
		return nil, nil
	}

	var report *domain.Report
	switch plan.Source {
	case domain.DebitSourceSubscription:
		report, err = s.store.AdmitWithSubscription(ctx, sub.ID, params)
	case domain.DebitSourcePack:
		report, err = s.store.AdmitWithPackCredit(ctx, userID, params)
	}
	if err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			return nil, nil
		}
		return nil, err
	}

	return &domain.Admission{ReportID: report.ID, Source: plan.Source}, nil
}

// deny builds the denial with its upgrade prompt and records the exhaustion
// notification. Denials never mutate balances.
func (s *entitlementService) deny(ctx context.Context, userID uuid.UUID) *domain.Denial {
	prompt := domain.UpgradePromptStarter
	ever, err := s.store.HasEverSubscribed(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to check subscription history", "user_id", userID, "error", err)
	} else if ever {
		prompt = domain.UpgradePromptImpulse
	}

	if _, err := s.store.CreateNotification(ctx, userID, domain.NotificationCreditsExhausted,
		"You're out of report credits. Upgrade your plan or grab a credit pack to keep going."); err != nil {
		s.logger.Error("Failed to record exhaustion notification", "user_id", userID, "error", err)
	}

	metrics.DenialsTotal.WithLabelValues(string(domain.DenyReasonExhausted)).Inc()
	return &domain.Denial{Reason: domain.DenyReasonExhausted, UpgradePrompt: prompt}
}
