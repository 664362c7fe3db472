// This file implements the billing handlers backed by Stripe Checkout
// and the Customer Portal.
//
// Routes:
//   - POST /api/billing/checkout -> CreateCheckout
//   - POST /api/billing/portal   -> OpenPortal
package handler

import (
	"log/slog"
	"net/http"

	"github.com/goodbreeze/breeze/internal/billing"
	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/middleware"
	"github.com/goodbreeze/breeze/internal/service"
)

// BillingHandler handles checkout and portal requests.
type BillingHandler struct {
	billing     billing.Service
	userService service.UserService
	baseURL     string
	logger      *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured.
func NewBillingHandler(billingService billing.Service, userService service.UserService, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:     billingService,
		userService: userService,
		baseURL:     baseURL,
		logger:      logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.OpenPortal)))
}

type checkoutRequest struct {
	// Product is "plan" for a recurring subscription or "pack" for a
	// one-time credit pack.
	Product string      `json:"product"`
	Plan    domain.Plan `json:"plan,omitempty"`
}

// CreateCheckout creates a Stripe Checkout session and returns its URL.
//
// A phone number on file is a precondition for any purchase. Report
// generation never requires one; only money movement does.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.CreateCheckout"

	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Internal(nil, op, "Billing is not configured"))
		return
	}

	if !user.HasPhone() {
		ErrorResponse(w, r, h.logger,
			domain.Payment(op, "Add a phone number to your profile before purchasing"))
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	customerID, err := h.ensureCustomer(r, user)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	successURL := h.baseURL + "/billing/success"
	cancelURL := h.baseURL + "/billing"

	var checkoutURL string
	switch req.Product {
	case "pack":
		checkoutURL, err = h.billing.CreatePackCheckout(customerID, successURL, cancelURL)
	case "plan":
		priceID := h.billing.PriceIDForPlan(req.Plan)
		if priceID == "" {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "Unknown plan"))
			return
		}
		checkoutURL, err = h.billing.CreateSubscriptionCheckout(customerID, priceID, successURL, cancelURL)
	default:
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Product must be \"plan\" or \"pack\""))
		return
	}
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to create checkout session"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"checkout_url": checkoutURL})
}

// OpenPortal creates a Stripe Customer Portal session and returns its URL.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	const op = "handler.OpenPortal"

	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Internal(nil, op, "Billing is not configured"))
		return
	}

	if user.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No billing account yet"))
		return
	}

	portalURL, err := h.billing.CreatePortalSession(user.StripeCustomerID, h.baseURL+"/billing")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "Failed to create portal session"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"portal_url": portalURL})
}

// ensureCustomer returns the user's Stripe customer ID, creating the
// customer on first purchase.
func (h *BillingHandler) ensureCustomer(r *http.Request, user *domain.User) (string, error) {
	const op = "handler.ensureCustomer"

	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	customerID, err := h.billing.CreateCustomer(user.Email, user.Name)
	if err != nil {
		return "", domain.Internal(err, op, "Failed to create billing customer")
	}
	if err := h.userService.UpdateStripeCustomer(r.Context(), user.ID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}
