// Package billing provides Stripe billing integration for subscriptions and
// one-time credit pack purchases.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/goodbreeze/breeze/internal/domain"
)

// PackCreditAmount is the ledger grant for one credit pack purchase.
const PackCreditAmount = 5

// PackCreditValidityDays is how long purchased pack credits stay spendable.
const PackCreditValidityDays = 365

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a new Stripe customer for the given email.
	CreateCustomer(email, name string) (string, error)

	// CreateSubscriptionCheckout creates a Checkout session for a recurring
	// plan. Returns the checkout URL to redirect the user to.
	CreateSubscriptionCheckout(customerID, priceID, successURL, cancelURL string) (string, error)

	// CreatePackCheckout creates a one-time-payment Checkout session for a
	// credit pack. Returns the checkout URL to redirect the user to.
	CreatePackCheckout(customerID, successURL, cancelURL string) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the user to.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// GetSubscription retrieves a Stripe subscription by ID.
	GetSubscription(subscriptionID string) (*stripe.Subscription, error)

	// CancelSubscription sets a subscription to cancel at period end.
	CancelSubscription(subscriptionID string) error

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PlanForPriceID returns the plan for a given Stripe price ID, or
	// PlanFree when the price is unknown.
	PlanForPriceID(priceID string) domain.Plan

	// PriceIDForPlan returns the Stripe price ID configured for a plan.
	PriceIDForPlan(plan domain.Plan) string

	// IsPackPriceID reports whether the price ID is the one-time credit pack.
	IsPackPriceID(priceID string) bool
}

// PriceConfig holds the Stripe price IDs for each sellable product.
type PriceConfig struct {
	StarterPriceID string
	GrowthPriceID  string
	ProPriceID     string
	PackPriceID    string
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	prices        PriceConfig
	priceToPlan   map[string]domain.Plan
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	priceToPlan := make(map[string]domain.Plan)
	if prices.StarterPriceID != "" {
		priceToPlan[prices.StarterPriceID] = domain.PlanStarter
	}
	if prices.GrowthPriceID != "" {
		priceToPlan[prices.GrowthPriceID] = domain.PlanGrowth
	}
	if prices.ProPriceID != "" {
		priceToPlan[prices.ProPriceID] = domain.PlanPro
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		prices:        prices,
		priceToPlan:   priceToPlan,
	}
}

func (s *stripeService) CreateCustomer(email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreateSubscriptionCheckout(customerID, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePackCheckout(customerID, successURL, cancelURL string) (string, error) {
	if s.prices.PackPriceID == "" {
		return "", fmt.Errorf("pack price not configured")
	}
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.prices.PackPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create pack checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe get subscription: %w", err)
	}
	return sub, nil
}

func (s *stripeService) CancelSubscription(subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	_, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) PlanForPriceID(priceID string) domain.Plan {
	if plan, ok := s.priceToPlan[priceID]; ok {
		return plan
	}
	return domain.PlanFree
}

func (s *stripeService) PriceIDForPlan(plan domain.Plan) string {
	switch plan {
	case domain.PlanStarter:
		return s.prices.StarterPriceID
	case domain.PlanGrowth:
		return s.prices.GrowthPriceID
	case domain.PlanPro:
		return s.prices.ProPriceID
	}
	return ""
}

func (s *stripeService) IsPackPriceID(priceID string) bool {
	return priceID != "" && priceID == s.prices.PackPriceID
}
