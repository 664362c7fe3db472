// This file implements the Stripe webhook handler.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// The route is PUBLIC; authentication is the webhook signature. Stripe
// delivers events at least once, so every write the handlers make is
// idempotent: subscription rows are upserted by Stripe subscription ID
// and status changes repeat harmlessly.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/goodbreeze/breeze/internal/billing"
	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/service"
)

// webhookStore is the subscription persistence surface the webhook
// handler needs.
type webhookStore interface {
	UpsertSubscription(ctx context.Context, sub *domain.Subscription) error
	UpdateSubscriptionStatus(ctx context.Context, stripeSubID string, status domain.SubscriptionStatus) error
	ResetAllowance(ctx context.Context, stripeSubID string, credits int) error
	GetSubscriptionByStripeID(ctx context.Context, stripeSubID string) (*domain.Subscription, error)
}

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing       billing.Service
	userService   service.UserService
	creditService service.CreditService
	store         webhookStore
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, userService service.UserService, creditService service.CreditService, store webhookStore, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:       billingService,
		userService:   userService,
		creditService: creditService,
		store:         store,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
//
// After the signature verifies, the response is always 200: returning an
// error would make Stripe redeliver an event we already looked at, and
// processing failures are recovered from logs, not retries.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	ctx := r.Context()
	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		h.handleSubscriptionEvent(ctx, event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded":
		h.handlePaymentSucceeded(ctx, event)
	case "invoice.payment_failed":
		h.handlePaymentFailed(ctx, event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

// handleCheckoutCompleted grants pack credits for one-time purchases.
// Subscription checkouts are handled by the subscription events instead.
func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return
	}

	if session.Mode != stripe.CheckoutSessionModePayment {
		return
	}
	if session.Customer == nil {
		h.logger.Warn("checkout session missing customer", "session_id", session.ID)
		return
	}

	user, err := h.userService.GetByStripeCustomerID(ctx, session.Customer.ID)
	if err != nil {
		h.logger.Error("user not found for pack purchase",
			"customer_id", session.Customer.ID, "session_id", session.ID, "error", err)
		return
	}

	expiry := time.Now().AddDate(0, 0, billing.PackCreditValidityDays)
	if _, err := h.creditService.Grant(ctx, domain.GrantParams{
		UserID:    user.ID,
		Amount:    billing.PackCreditAmount,
		Product:   domain.CreditProductPack,
		ExpiresAt: &expiry,
	}); err != nil {
		h.logger.Error("failed to grant pack credits",
			"user_id", user.ID, "session_id", session.ID, "error", err)
		return
	}

	h.logger.Info("pack credits granted",
		"user_id", user.ID, "amount", billing.PackCreditAmount, "session_id", session.ID)
}

// handleSubscriptionEvent upserts the subscription row for created and
// updated events. The upsert seeds a fresh allowance on insert and leaves
// credits_remaining alone on update, so a mid-period status change never
// refills the allowance.
func (h *WebhookHandler) handleSubscriptionEvent(ctx context.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err)
		return
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID)
		return
	}

	user, err := h.userService.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		h.logger.Warn("user not found for subscription event",
			"customer_id", sub.Customer.ID, "subscription_id", sub.ID)
		return
	}

	plan := domain.PlanFree
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		plan = h.billing.PlanForPriceID(sub.Items.Data[0].Price.ID)
	}
	status := mapSubscriptionStatus(sub.Status)

	record := &domain.Subscription{
		ID:                   uuid.New(),
		UserID:               user.ID,
		Plan:                 plan,
		Status:               status,
		CreditsRemaining:     plan.MonthlyCredits(),
		StripeSubscriptionID: sub.ID,
	}
	if err := h.store.UpsertSubscription(ctx, record); err != nil {
		h.logger.Error("failed to upsert subscription",
			"user_id", user.ID, "subscription_id", sub.ID, "error", err)
		return
	}

	h.creditService.InvalidateUsageSummary(ctx, user.ID)
	h.logger.Info("subscription event processed",
		"user_id", user.ID, "subscription_id", sub.ID, "plan", plan, "status", status)
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription deleted event", "error", err)
		return
	}

	if err := h.store.UpdateSubscriptionStatus(ctx, sub.ID, domain.SubscriptionStatusCanceled); err != nil {
		h.logger.Error("failed to cancel subscription", "subscription_id", sub.ID, "error", err)
		return
	}

	h.invalidateForSubscription(ctx, sub.ID)
	h.logger.Info("subscription canceled", "subscription_id", sub.ID)
}

// handlePaymentSucceeded reactivates a past_due subscription and, on a
// billing-period renewal, resets the allowance to the plan cap. Unused
// allowance does not roll over.
func (h *WebhookHandler) handlePaymentSucceeded(ctx context.Context, event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment succeeded event", "error", err)
		return
	}

	if invoice.Subscription == nil {
		return
	}
	subID := invoice.Subscription.ID

	record, err := h.store.GetSubscriptionByStripeID(ctx, subID)
	if err != nil {
		h.logger.Debug("no subscription row for paid invoice", "subscription_id", subID)
		return
	}

	if record.Status == domain.SubscriptionStatusPastDue || record.Status == domain.SubscriptionStatusUnpaid {
		if err := h.store.UpdateSubscriptionStatus(ctx, subID, domain.SubscriptionStatusActive); err != nil {
			h.logger.Error("failed to reactivate subscription", "subscription_id", subID, "error", err)
		}
	}

	if invoice.BillingReason == stripe.InvoiceBillingReasonSubscriptionCycle {
		if err := h.store.ResetAllowance(ctx, subID, record.Plan.MonthlyCredits()); err != nil {
			h.logger.Error("failed to reset allowance", "subscription_id", subID, "error", err)
			return
		}
		h.logger.Info("allowance reset",
			"subscription_id", subID, "plan", record.Plan, "credits", record.Plan.MonthlyCredits())
	}

	h.creditService.InvalidateUsageSummary(ctx, record.UserID)
}

func (h *WebhookHandler) handlePaymentFailed(ctx context.Context, event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment failed event", "error", err)
		return
	}

	if invoice.Subscription == nil {
		return
	}
	subID := invoice.Subscription.ID

	if err := h.store.UpdateSubscriptionStatus(ctx, subID, domain.SubscriptionStatusPastDue); err != nil {
		h.logger.Error("failed to set past_due", "subscription_id", subID, "error", err)
		return
	}

	h.invalidateForSubscription(ctx, subID)
	h.logger.Warn("payment failed, subscription past due", "subscription_id", subID)
}

// invalidateForSubscription drops the owner's cached usage summary after
// a status change keyed only by Stripe subscription ID.
func (h *WebhookHandler) invalidateForSubscription(ctx context.Context, stripeSubID string) {
	record, err := h.store.GetSubscriptionByStripeID(ctx, stripeSubID)
	if err != nil {
		return
	}
	h.creditService.InvalidateUsageSummary(ctx, record.UserID)
}

// mapSubscriptionStatus converts a Stripe subscription status to ours.
func mapSubscriptionStatus(s stripe.SubscriptionStatus) domain.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive:
		return domain.SubscriptionStatusActive
	case stripe.SubscriptionStatusTrialing:
		return domain.SubscriptionStatusTrialing
	case stripe.SubscriptionStatusPastDue:
		return domain.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return domain.SubscriptionStatusCanceled
	case stripe.SubscriptionStatusUnpaid:
		return domain.SubscriptionStatusUnpaid
	default:
		return domain.SubscriptionStatusInactive
	}
}
