// This file implements the credit ledger service: grants and the cached
// usage summary shown on the dashboard.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/cache"
	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/metrics"
	"github.com/goodbreeze/breeze/internal/repository"
)

// UsageSummaryTTL bounds how stale the dashboard numbers may be. The
// summary is display-only; admission decisions always read the database.
const UsageSummaryTTL = 30 * time.Second

// =============================================================================
// Store Interface
// =============================================================================

// CreditStore is the persistence surface the credit service needs.
type CreditStore interface {
	GrantCredit(ctx context.Context, p domain.GrantParams) (*domain.Credit, error)
	AvailableCredits(ctx context.Context, userID uuid.UUID) ([]domain.Credit, error)
	AvailableBalance(ctx context.Context, userID uuid.UUID) (int, error)
	ActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// UsageSummary is the dashboard view of a user's entitlement state.
type UsageSummary struct {
	Plan               domain.Plan `json:"plan"`
	SubscriptionActive bool        `json:"subscription_active"`
	AllowanceRemaining int         `json:"allowance_remaining"`
	PackCredits        int         `json:"pack_credits"`
	TotalAvailable     int         `json:"total_available"`
}

// CreditService manages the credit ledger.
type CreditService interface {
	// Grant appends a ledger row.
	// Returns domain.EINVALID for a non-positive amount or unknown product.
	Grant(ctx context.Context, params domain.GrantParams) (*domain.Credit, error)

	// GetUsageSummary returns the user's entitlement snapshot, cached
	// briefly to keep dashboard polling off the ledger tables.
	GetUsageSummary(ctx context.Context, userID uuid.UUID) (*UsageSummary, error)

	// InvalidateUsageSummary drops the cached summary after a grant,
	// debit, or refund so the next read reflects the change.
	InvalidateUsageSummary(ctx context.Context, userID uuid.UUID)
}

// =============================================================================
// Implementation
// =============================================================================

type creditService struct {
	store  CreditStore
	cache  cache.Cache
	logger *slog.Logger
}

// NewCreditService creates a new CreditService.
func NewCreditService(store CreditStore, c cache.Cache, logger *slog.Logger) CreditService {
	return &creditService{
		store:  store,
		cache:  c,
		logger: logger,
	}
}

// Grant appends a ledger row.
func (s *creditService) Grant(ctx context.Context, params domain.GrantParams) (*domain.Credit, error) {
	const op = "CreditService.Grant"

	if params.Amount <= 0 {
		return nil, domain.Invalid(op, "Grant amount must be positive")
	}
	if !params.Product.IsValid() {
		return nil, domain.Invalid(op, "Unknown credit product")
	}

	credit, err := s.store.GrantCredit(ctx, params)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to grant credits")
	}

	metrics.CreditsGrantedTotal.WithLabelValues(string(params.Product)).Add(float64(params.Amount))
	s.InvalidateUsageSummary(ctx, params.UserID)

	s.logger.Info("Credits granted",
		"user_id", params.UserID,
		"amount", params.Amount,
		"product", params.Product,
	)
	return credit, nil
}

// GetUsageSummary returns the cached entitlement snapshot.
func (s *creditService) GetUsageSummary(ctx context.Context, userID uuid.UUID) (*UsageSummary, error) {
	const op = "CreditService.GetUsageSummary"

	key := usageSummaryKey(userID)
	if raw, ok := s.cache.Get(ctx, key); ok {
		var summary UsageSummary
		if err := json.Unmarshal(raw, &summary); err == nil {
			return &summary, nil
		}
		// Corrupt entry; fall through to the database.
		s.cache.Delete(ctx, key)
	}

	summary := UsageSummary{Plan: domain.PlanFree}

	sub, err := s.store.ActiveSubscription(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, domain.Internal(err, op, "Failed to load subscription")
	}
	if sub != nil {
		summary.Plan = sub.Plan
		summary.SubscriptionActive = sub.IsActive()
		if sub.HasAllowance() {
			summary.AllowanceRemaining = sub.CreditsRemaining
		}
	}

	packTotal, err := s.store.AvailableBalance(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load credit balance")
	}
	summary.PackCredits = packTotal
	summary.TotalAvailable = summary.AllowanceRemaining + packTotal

	if raw, err := json.Marshal(summary); err == nil {
		s.cache.Set(ctx, key, raw, UsageSummaryTTL)
	}
	return &summary, nil
}

// InvalidateUsageSummary drops the cached summary.
func (s *creditService) InvalidateUsageSummary(ctx context.Context, userID uuid.UUID) {
	s.cache.Delete(ctx, usageSummaryKey(userID))
}

func usageSummaryKey(userID uuid.UUID) string {
	return fmt.Sprintf("usage_summary:%s", userID)
}
