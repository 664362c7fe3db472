package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Admission planning
// =============================================================================
//
// The entitlement decision is split in two: a pure planner over a snapshot
// of balances (this file), and the guarded transactional execution of that
// plan in the repository. The planner is the single documented ordering:
//
//  1. Subscription allowance, while the subscription is active/trialing on
//     a paid plan with credits_remaining > 0.
//  2. Pack credits, soonest expiry first (never-expiring rows last),
//     purchase date ascending as tie-break.
//
// Execution re-checks every guard inside the transaction, so a plan that
// loses a race simply fails its guard and surfaces as an exhausted denial.

// AdmissionPlan names the balance a report admission intends to debit.
type AdmissionPlan struct {
	Source   DebitSource
	CreditID uuid.UUID // Set when Source is DebitSourcePack
}

// PlanAdmission chooses the balance to debit from a snapshot of the user's
// entitlement sources. Returns false when nothing is spendable.
func PlanAdmission(sub *Subscription, credits []Credit, now time.Time) (AdmissionPlan, bool) {
	if sub.HasAllowance() {
		return AdmissionPlan{Source: DebitSourceSubscription}, true
	}

	SortCreditsForDebit(credits)
	for i := range credits {
		if credits[i].IsAvailable(now) {
			return AdmissionPlan{Source: DebitSourcePack, CreditID: credits[i].ID}, true
		}
	}

	return AdmissionPlan{}, false
}

// =============================================================================
// Decision results
// =============================================================================

// UpgradePrompt hints which purchase flow to offer on denial.
type UpgradePrompt string

const (
	// UpgradePromptStarter nudges a never-subscribed user to the starter plan.
	UpgradePromptStarter UpgradePrompt = "starter"

	// UpgradePromptImpulse nudges a current or former subscriber to a
	// one-time pack purchase.
	UpgradePromptImpulse UpgradePrompt = "impulse"
)

// DenyReason classifies why an admission request was refused.
type DenyReason string

const (
	DenyReasonAuthRequired DenyReason = "auth_required"
	DenyReasonExhausted    DenyReason = "exhausted"
)

// Admission is a granted report request.
type Admission struct {
	ReportID uuid.UUID
	Source   DebitSource
}

// Denial is a refused report request. Denials never mutate balances.
type Denial struct {
	Reason        DenyReason
	UpgradePrompt UpgradePrompt // Only set for exhausted denials
}
