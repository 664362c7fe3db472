package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func ptrTime(t time.Time) *time.Time { return &t }

func TestPlanAdmission_SubscriptionFirst(t *testing.T) {
	now := time.Now()
	sub := &Subscription{
		Plan:             PlanStarter,
		Status:           SubscriptionStatusActive,
		CreditsRemaining: 5,
	}
	credits := []Credit{
		{ID: uuid.New(), Balance: 3, PurchasedAt: now.Add(-time.Hour)},
	}

	plan, ok := PlanAdmission(sub, credits, now)
	if !ok {
		t.Fatal("expected an admission plan")
	}
	assert.Equal(t, DebitSourceSubscription, plan.Source)
}

func TestPlanAdmission_FallsThroughToPackAtZeroAllowance(t *testing.T) {
	// Active subscription with zero remaining must NOT deny when a pack
	// credit is available.
	now := time.Now()
	sub := &Subscription{
		Plan:             PlanGrowth,
		Status:           SubscriptionStatusActive,
		CreditsRemaining: 0,
	}
	creditID := uuid.New()
	credits := []Credit{
		{ID: creditID, Balance: 1, PurchasedAt: now.Add(-time.Hour)},
	}

	plan, ok := PlanAdmission(sub, credits, now)
	if !ok {
		t.Fatal("expected fall-through to pack credit, got denial")
	}
	assert.Equal(t, DebitSourcePack, plan.Source)
	assert.Equal(t, creditID, plan.CreditID)
}

func TestPlanAdmission_TrialingCountsAsActive(t *testing.T) {
	sub := &Subscription{
		Plan:             PlanPro,
		Status:           SubscriptionStatusTrialing,
		CreditsRemaining: 1,
	}

	plan, ok := PlanAdmission(sub, nil, time.Now())
	assert.True(t, ok, "trialing subscription should fund the debit")
	assert.Equal(t, DebitSourceSubscription, plan.Source)
}

func TestPlanAdmission_CanceledSubscriptionIgnored(t *testing.T) {
	sub := &Subscription{
		Plan:             PlanPro,
		Status:           SubscriptionStatusCanceled,
		CreditsRemaining: 10,
	}

	_, ok := PlanAdmission(sub, nil, time.Now())
	assert.False(t, ok, "canceled subscription must not fund a debit")
}

func TestPlanAdmission_FreePlanNeverPaid(t *testing.T) {
	sub := &Subscription{
		Plan:             PlanFree,
		Status:           SubscriptionStatusActive,
		CreditsRemaining: 10,
	}

	_, ok := PlanAdmission(sub, nil, time.Now())
	assert.False(t, ok, "free plan must not count as a paid entitlement source")
}

func TestPlanAdmission_SoonestExpiringCreditFirst(t *testing.T) {
	now := time.Now()
	soon := uuid.New()
	later := uuid.New()
	never := uuid.New()
	credits := []Credit{
		{ID: never, Balance: 2, PurchasedAt: now.Add(-72 * time.Hour)},
		{ID: later, Balance: 2, PurchasedAt: now.Add(-48 * time.Hour), ExpiresAt: ptrTime(now.Add(30 * 24 * time.Hour))},
		{ID: soon, Balance: 2, PurchasedAt: now.Add(-24 * time.Hour), ExpiresAt: ptrTime(now.Add(48 * time.Hour))},
	}

	plan, ok := PlanAdmission(nil, credits, now)
	if !ok {
		t.Fatal("expected an admission plan")
	}
	assert.Equal(t, soon, plan.CreditID, "soonest-expiring row must be debited first")
}

func TestPlanAdmission_PurchaseDateTieBreak(t *testing.T) {
	now := time.Now()
	expiry := now.Add(24 * time.Hour)
	older := uuid.New()
	newer := uuid.New()
	credits := []Credit{
		{ID: newer, Balance: 1, PurchasedAt: now.Add(-time.Hour), ExpiresAt: ptrTime(expiry)},
		{ID: older, Balance: 1, PurchasedAt: now.Add(-time.Hour * 10), ExpiresAt: ptrTime(expiry)},
	}

	plan, _ := PlanAdmission(nil, credits, now)
	assert.Equal(t, older, plan.CreditID, "equal expiry breaks ties by purchase date")
}

func TestPlanAdmission_SkipsExpiredAndDrainedRows(t *testing.T) {
	now := time.Now()
	live := uuid.New()
	credits := []Credit{
		{ID: uuid.New(), Balance: 3, ExpiresAt: ptrTime(now.Add(-24 * time.Hour))}, // expired
		{ID: uuid.New(), Balance: 0, PurchasedAt: now.Add(-time.Hour)},             // drained
		{ID: live, Balance: 1, PurchasedAt: now},
	}

	plan, ok := PlanAdmission(nil, credits, now)
	assert.True(t, ok)
	assert.Equal(t, live, plan.CreditID)
}

func TestPlanAdmission_NothingSpendable(t *testing.T) {
	now := time.Now()
	credits := []Credit{
		{ID: uuid.New(), Balance: 2, ExpiresAt: ptrTime(now.Add(-time.Minute))},
	}

	_, ok := PlanAdmission(nil, credits, now)
	assert.False(t, ok, "expected no plan when every row is expired")
}
