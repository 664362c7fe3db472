package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/goodbreeze/breeze/internal/billing"
	"github.com/goodbreeze/breeze/internal/domain"
)

// deliverEvent posts a webhook whose signature check yields the given event.
func deliverEvent(t *testing.T, h *WebhookHandler, event stripe.Event) *httptest.ResponseRecorder {
	t.Helper()

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}"))
	req.Header.Set("Stripe-Signature", "sig")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func eventWithRaw(eventType string, raw string) stripe.Event {
	return stripe.Event{
		ID:   "evt_test",
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func passthroughBilling(event stripe.Event) *mockBillingService {
	return &mockBillingService{
		VerifyWebhookSignatureFunc: func(payload []byte, signature string) (stripe.Event, error) {
			return event, nil
		},
		PlanForPriceIDFunc: func(priceID string) domain.Plan {
			if priceID == "price_growth" {
				return domain.PlanGrowth
			}
			return domain.PlanFree
		},
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	billingSvc := &mockBillingService{
		VerifyWebhookSignatureFunc: func(payload []byte, signature string) (stripe.Event, error) {
			return stripe.Event{}, domain.Invalid("", "bad signature")
		},
	}
	h := NewWebhookHandler(billingSvc, &mockUserService{}, &mockCreditService{}, newFakeWebhookStore(), newTestLogger())

	rec := deliverEvent(t, h, stripe.Event{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestWebhookPackPurchaseGrantsCredits(t *testing.T) {
	user := testUser(t)
	event := eventWithRaw("checkout.session.completed",
		`{"id":"cs_1","mode":"payment","customer":{"id":"cus_1"}}`)

	var granted domain.GrantParams
	credits := &mockCreditService{
		GrantFunc: func(ctx context.Context, params domain.GrantParams) (*domain.Credit, error) {
			granted = params
			return &domain.Credit{ID: uuid.New()}, nil
		},
	}
	users := &mockUserService{
		GetByStripeCustomerIDFunc: func(ctx context.Context, customerID string) (*domain.User, error) {
			if customerID != "cus_1" {
				t.Errorf("customer ID = %q, want cus_1", customerID)
			}
			return user, nil
		},
	}
	h := NewWebhookHandler(passthroughBilling(event), users, credits, newFakeWebhookStore(), newTestLogger())

	rec := deliverEvent(t, h, event)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if granted.UserID != user.ID {
		t.Errorf("granted user = %s, want %s", granted.UserID, user.ID)
	}
	if granted.Amount != billing.PackCreditAmount {
		t.Errorf("granted amount = %d, want %d", granted.Amount, billing.PackCreditAmount)
	}
	if granted.Product != domain.CreditProductPack {
		t.Errorf("granted product = %q, want pack", granted.Product)
	}
	if granted.ExpiresAt == nil {
		t.Error("pack credits must carry an expiry")
	}
}

func TestWebhookSubscriptionCheckoutIgnoredByPackPath(t *testing.T) {
	event := eventWithRaw("checkout.session.completed",
		`{"id":"cs_2","mode":"subscription","customer":{"id":"cus_1"}}`)

	credits := &mockCreditService{
		GrantFunc: func(ctx context.Context, params domain.GrantParams) (*domain.Credit, error) {
			t.Error("subscription checkout must not grant pack credits")
			return nil, nil
		},
	}
	h := NewWebhookHandler(passthroughBilling(event), &mockUserService{}, credits, newFakeWebhookStore(), newTestLogger())

	rec := deliverEvent(t, h, event)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestWebhookSubscriptionCreatedSeedsAllowance(t *testing.T) {
	user := testUser(t)
	event := eventWithRaw("customer.subscription.created",
		`{"id":"sub_1","status":"active","customer":{"id":"cus_1"},"items":{"data":[{"price":{"id":"price_growth"}}]}}`)

	users := &mockUserService{
		GetByStripeCustomerIDFunc: func(ctx context.Context, customerID string) (*domain.User, error) {
			return user, nil
		},
	}
	store := newFakeWebhookStore()
	h := NewWebhookHandler(passthroughBilling(event), users, &mockCreditService{}, store, newTestLogger())

	rec := deliverEvent(t, h, event)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	sub, err := store.GetSubscriptionByStripeID(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("subscription not stored: %v", err)
	}
	if sub.Plan != domain.PlanGrowth {
		t.Errorf("plan = %q, want growth", sub.Plan)
	}
	if sub.Status != domain.SubscriptionStatusActive {
		t.Errorf("status = %q, want active", sub.Status)
	}
	if sub.CreditsRemaining != domain.PlanGrowth.MonthlyCredits() {
		t.Errorf("credits = %d, want %d", sub.CreditsRemaining, domain.PlanGrowth.MonthlyCredits())
	}
	if sub.UserID != user.ID {
		t.Errorf("user = %s, want %s", sub.UserID, user.ID)
	}
}

func TestWebhookSubscriptionDeletedCancels(t *testing.T) {
	user := testUser(t)
	store := newFakeWebhookStore()
	_ = store.UpsertSubscription(context.Background(), &domain.Subscription{
		ID: uuid.New(), UserID: user.ID, Plan: domain.PlanGrowth,
		Status: domain.SubscriptionStatusActive, CreditsRemaining: 50,
		StripeSubscriptionID: "sub_1",
	})

	event := eventWithRaw("customer.subscription.deleted", `{"id":"sub_1","status":"canceled"}`)
	credits := &mockCreditService{}
	h := NewWebhookHandler(passthroughBilling(event), &mockUserService{}, credits, store, newTestLogger())

	rec := deliverEvent(t, h, event)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	sub, _ := store.GetSubscriptionByStripeID(context.Background(), "sub_1")
	if sub.Status != domain.SubscriptionStatusCanceled {
		t.Errorf("status = %q, want canceled", sub.Status)
	}
	if len(credits.Invalidated) != 1 || credits.Invalidated[0] != user.ID {
		t.Error("cancellation should invalidate the owner's usage summary")
	}
}

func TestWebhookRenewalResetsAllowance(t *testing.T) {
	user := testUser(t)
	store := newFakeWebhookStore()
	_ = store.UpsertSubscription(context.Background(), &domain.Subscription{
		ID: uuid.New(), UserID: user.ID, Plan: domain.PlanGrowth,
		Status: domain.SubscriptionStatusActive, CreditsRemaining: 3,
		StripeSubscriptionID: "sub_1",
	})

	event := eventWithRaw("invoice.payment_succeeded",
		`{"id":"in_1","subscription":{"id":"sub_1"},"billing_reason":"subscription_cycle"}`)
	h := NewWebhookHandler(passthroughBilling(event), &mockUserService{}, &mockCreditService{}, store, newTestLogger())

	rec := deliverEvent(t, h, event)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	sub, _ := store.GetSubscriptionByStripeID(context.Background(), "sub_1")
	if sub.CreditsRemaining != domain.PlanGrowth.MonthlyCredits() {
		t.Errorf("credits = %d, want plan cap %d", sub.CreditsRemaining, domain.PlanGrowth.MonthlyCredits())
	}
}

func TestWebhookNonRenewalPaymentKeepsAllowance(t *testing.T) {
	user := testUser(t)
	store := newFakeWebhookStore()
	_ = store.UpsertSubscription(context.Background(), &domain.Subscription{
		ID: uuid.New(), UserID: user.ID, Plan: domain.PlanGrowth,
		Status: domain.SubscriptionStatusActive, CreditsRemaining: 3,
		StripeSubscriptionID: "sub_1",
	})

	// The first invoice of a new subscription is not a renewal.
	event := eventWithRaw("invoice.payment_succeeded",
		`{"id":"in_1","subscription":{"id":"sub_1"},"billing_reason":"subscription_create"}`)
	h := NewWebhookHandler(passthroughBilling(event), &mockUserService{}, &mockCreditService{}, store, newTestLogger())

	deliverEvent(t, h, event)

	sub, _ := store.GetSubscriptionByStripeID(context.Background(), "sub_1")
	if sub.CreditsRemaining != 3 {
		t.Errorf("credits = %d, want unchanged 3", sub.CreditsRemaining)
	}
}

func TestWebhookPaymentFailedSetsPastDue(t *testing.T) {
	user := testUser(t)
	store := newFakeWebhookStore()
	_ = store.UpsertSubscription(context.Background(), &domain.Subscription{
		ID: uuid.New(), UserID: user.ID, Plan: domain.PlanStarter,
		Status: domain.SubscriptionStatusActive, CreditsRemaining: 10,
		StripeSubscriptionID: "sub_1",
	})

	event := eventWithRaw("invoice.payment_failed",
		`{"id":"in_2","subscription":{"id":"sub_1"}}`)
	h := NewWebhookHandler(passthroughBilling(event), &mockUserService{}, &mockCreditService{}, store, newTestLogger())

	rec := deliverEvent(t, h, event)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	sub, _ := store.GetSubscriptionByStripeID(context.Background(), "sub_1")
	if sub.Status != domain.SubscriptionStatusPastDue {
		t.Errorf("status = %q, want past_due", sub.Status)
	}
}

func TestWebhookUnconfiguredBillingAcks(t *testing.T) {
	h := NewWebhookHandler(nil, &mockUserService{}, &mockCreditService{}, newFakeWebhookStore(), newTestLogger())

	rec := deliverEvent(t, h, stripe.Event{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
