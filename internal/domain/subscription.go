package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the possible states of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid   SubscriptionStatus = "unpaid"
)

// Plan represents the pricing plan of a subscription.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanStarter Plan = "starter"
	PlanGrowth  Plan = "growth"
	PlanPro     Plan = "pro"
)

// PlanCredits maps paid plans to their monthly report allowance.
// The free plan carries no allowance; free users spend ledger credits only.
var PlanCredits = map[Plan]int{
	PlanStarter: 10,
	PlanGrowth:  50,
	PlanPro:     200,
}

// IsPaid returns true if the plan counts as a paid entitlement source.
func (p Plan) IsPaid() bool {
	_, ok := PlanCredits[p]
	return ok
}

// MonthlyCredits returns the plan's per-period allowance (0 for free).
func (p Plan) MonthlyCredits() int {
	return PlanCredits[p]
}

// Subscription is the per-user recurring-plan record.
//
// CreditsRemaining is the periodic allowance, reset to the plan cap on every
// billing-period renewal. It is only spendable while the status is active or
// trialing AND the plan is a paid one.
type Subscription struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	Plan                 Plan
	Status               SubscriptionStatus
	CreditsRemaining     int
	StripeSubscriptionID string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsActive returns true while the subscription is in a spendable status.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}

// HasAllowance reports whether the subscription can fund a report debit
// right now: paid plan, active or trialing, allowance above zero.
func (s *Subscription) HasAllowance() bool {
	return s != nil && s.IsActive() && s.Plan.IsPaid() && s.CreditsRemaining > 0
}
