package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/repository"
	"github.com/goodbreeze/breeze/internal/service"
	"github.com/goodbreeze/breeze/internal/storage"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Mock UserService
// =============================================================================

type mockUserService struct {
	RegisterFunc                func(ctx context.Context, params domain.RegisterParams) (*domain.User, error)
	LoginFunc                   func(ctx context.Context, params service.LoginParams) (*domain.LoginResult, error)
	LogoutFunc                  func(ctx context.Context, token string) error
	GetByIDFunc                 func(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetBySessionTokenFunc       func(ctx context.Context, token string) (*domain.User, error)
	UpdateProfileFunc           func(ctx context.Context, params domain.ProfileUpdateParams) error
	UpdateStripeCustomerFunc    func(ctx context.Context, userID uuid.UUID, customerID string) error
	GetByStripeCustomerIDFunc   func(ctx context.Context, customerID string) (*domain.User, error)
	DeleteExpiredSessionsCalled bool
}

func (m *mockUserService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, params)
	}
	return nil, errors.New("RegisterFunc not implemented")
}

func (m *mockUserService) Login(ctx context.Context, params service.LoginParams) (*domain.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, params)
	}
	return nil, errors.New("LoginFunc not implemented")
}

func (m *mockUserService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

func (m *mockUserService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, errors.New("GetByIDFunc not implemented")
}

func (m *mockUserService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	if m.GetBySessionTokenFunc != nil {
		return m.GetBySessionTokenFunc(ctx, token)
	}
	return nil, domain.Unauthorized("", "Invalid or expired session")
}

func (m *mockUserService) UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, params)
	}
	return errors.New("UpdateProfileFunc not implemented")
}

func (m *mockUserService) DeleteExpiredSessions(ctx context.Context) error {
	m.DeleteExpiredSessionsCalled = true
	return nil
}

func (m *mockUserService) UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, customerID string) error {
	if m.UpdateStripeCustomerFunc != nil {
		return m.UpdateStripeCustomerFunc(ctx, userID, customerID)
	}
	return nil
}

func (m *mockUserService) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	if m.GetByStripeCustomerIDFunc != nil {
		return m.GetByStripeCustomerIDFunc(ctx, customerID)
	}
	return nil, domain.NotFound("", "user", customerID)
}

// =============================================================================
// Mock ReportService
// =============================================================================

type mockReportService struct {
	RequestFunc  func(ctx context.Context, userID *uuid.UUID, reportType domain.ReportType, subject string) (*domain.Admission, *domain.Denial, error)
	GetFunc      func(ctx context.Context, reportID, userID uuid.UUID) (*domain.Report, error)
	ListFunc     func(ctx context.Context, userID uuid.UUID) ([]domain.Report, error)
	DeleteFunc   func(ctx context.Context, reportID, userID uuid.UUID) (string, error)
	CompleteFunc func(ctx context.Context, reportID uuid.UUID, pdfURL string) error
	FailFunc     func(ctx context.Context, reportID uuid.UUID, reason string) error
}

func (m *mockReportService) Request(ctx context.Context, userID *uuid.UUID, reportType domain.ReportType, subject string) (*domain.Admission, *domain.Denial, error) {
	if m.RequestFunc != nil {
		return m.RequestFunc(ctx, userID, reportType, subject)
	}
	return nil, nil, errors.New("RequestFunc not implemented")
}

func (m *mockReportService) Get(ctx context.Context, reportID, userID uuid.UUID) (*domain.Report, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, reportID, userID)
	}
	return nil, errors.New("GetFunc not implemented")
}

func (m *mockReportService) List(ctx context.Context, userID uuid.UUID) ([]domain.Report, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID)
	}
	return nil, errors.New("ListFunc not implemented")
}

func (m *mockReportService) Delete(ctx context.Context, reportID, userID uuid.UUID) (string, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, reportID, userID)
	}
	return "", errors.New("DeleteFunc not implemented")
}

func (m *mockReportService) MarkProcessing(ctx context.Context, reportID uuid.UUID) error {
	return nil
}

func (m *mockReportService) Complete(ctx context.Context, reportID uuid.UUID, pdfURL string) error {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, reportID, pdfURL)
	}
	return nil
}

func (m *mockReportService) Fail(ctx context.Context, reportID uuid.UUID, reason string) error {
	if m.FailFunc != nil {
		return m.FailFunc(ctx, reportID, reason)
	}
	return nil
}

func (m *mockReportService) SweepStale(ctx context.Context) (int, error) {
	return 0, nil
}

// =============================================================================
// Mock Storage
// =============================================================================

type mockStorage struct {
	DeletedKeys []string
	DeleteErr   error
}

func (m *mockStorage) Put(ctx context.Context, key string, r io.Reader, opts storage.PutOptions) error {
	return nil
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	return nil, storage.ObjectInfo{}, storage.ErrNotFound
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	m.DeletedKeys = append(m.DeletedKeys, key)
	return m.DeleteErr
}

func (m *mockStorage) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://files.example.com/" + key, nil
}

func (m *mockStorage) Exists(ctx context.Context, key string) (bool, error) {
	return false, nil
}

// =============================================================================
// Mock CreditService
// =============================================================================

type mockCreditService struct {
	GrantFunc           func(ctx context.Context, params domain.GrantParams) (*domain.Credit, error)
	GetUsageSummaryFunc func(ctx context.Context, userID uuid.UUID) (*service.UsageSummary, error)
	Invalidated         []uuid.UUID
}

func (m *mockCreditService) Grant(ctx context.Context, params domain.GrantParams) (*domain.Credit, error) {
	if m.GrantFunc != nil {
		return m.GrantFunc(ctx, params)
	}
	return nil, errors.New("GrantFunc not implemented")
}

func (m *mockCreditService) GetUsageSummary(ctx context.Context, userID uuid.UUID) (*service.UsageSummary, error) {
	if m.GetUsageSummaryFunc != nil {
		return m.GetUsageSummaryFunc(ctx, userID)
	}
	return nil, errors.New("GetUsageSummaryFunc not implemented")
}

func (m *mockCreditService) InvalidateUsageSummary(ctx context.Context, userID uuid.UUID) {
	m.Invalidated = append(m.Invalidated, userID)
}

// =============================================================================
// Mock NotificationService
// =============================================================================

type mockNotificationService struct {
	ListFunc     func(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error)
	MarkReadFunc func(ctx context.Context, notificationID, userID uuid.UUID) error
}

func (m *mockNotificationService) List(ctx context.Context, userID uuid.UUID) ([]domain.Notification, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID)
	}
	return nil, errors.New("ListFunc not implemented")
}

func (m *mockNotificationService) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, notificationID, userID)
	}
	return errors.New("MarkReadFunc not implemented")
}

// =============================================================================
// Mock billing.Service
// =============================================================================

type mockBillingService struct {
	CreateCustomerFunc             func(email, name string) (string, error)
	CreateSubscriptionCheckoutFunc func(customerID, priceID, successURL, cancelURL string) (string, error)
	CreatePackCheckoutFunc         func(customerID, successURL, cancelURL string) (string, error)
	CreatePortalSessionFunc        func(customerID, returnURL string) (string, error)
	VerifyWebhookSignatureFunc     func(payload []byte, signature string) (stripe.Event, error)
	PlanForPriceIDFunc             func(priceID string) domain.Plan
	PriceIDForPlanFunc             func(plan domain.Plan) string
}

func (m *mockBillingService) CreateCustomer(email, name string) (string, error) {
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(email, name)
	}
	return "cus_test", nil
}

func (m *mockBillingService) CreateSubscriptionCheckout(customerID, priceID, successURL, cancelURL string) (string, error) {
	if m.CreateSubscriptionCheckoutFunc != nil {
		return m.CreateSubscriptionCheckoutFunc(customerID, priceID, successURL, cancelURL)
	}
	return "https://checkout.stripe.com/test", nil
}

func (m *mockBillingService) CreatePackCheckout(customerID, successURL, cancelURL string) (string, error) {
	if m.CreatePackCheckoutFunc != nil {
		return m.CreatePackCheckoutFunc(customerID, successURL, cancelURL)
	}
	return "https://checkout.stripe.com/test-pack", nil
}

func (m *mockBillingService) CreatePortalSession(customerID, returnURL string) (string, error) {
	if m.CreatePortalSessionFunc != nil {
		return m.CreatePortalSessionFunc(customerID, returnURL)
	}
	return "https://billing.stripe.com/test", nil
}

func (m *mockBillingService) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (m *mockBillingService) CancelSubscription(subscriptionID string) error {
	return nil
}

func (m *mockBillingService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if m.VerifyWebhookSignatureFunc != nil {
		return m.VerifyWebhookSignatureFunc(payload, signature)
	}
	return stripe.Event{}, errors.New("VerifyWebhookSignatureFunc not implemented")
}

func (m *mockBillingService) PlanForPriceID(priceID string) domain.Plan {
	if m.PlanForPriceIDFunc != nil {
		return m.PlanForPriceIDFunc(priceID)
	}
	return domain.PlanFree
}

func (m *mockBillingService) PriceIDForPlan(plan domain.Plan) string {
	if m.PriceIDForPlanFunc != nil {
		return m.PriceIDForPlanFunc(plan)
	}
	return ""
}

func (m *mockBillingService) IsPackPriceID(priceID string) bool {
	return priceID == "price_pack"
}

// =============================================================================
// Fake webhook subscription store
// =============================================================================

type fakeWebhookStore struct {
	subs map[string]*domain.Subscription
}

func newFakeWebhookStore() *fakeWebhookStore {
	return &fakeWebhookStore{subs: make(map[string]*domain.Subscription)}
}

func (f *fakeWebhookStore) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	if existing, ok := f.subs[sub.StripeSubscriptionID]; ok {
		existing.Plan = sub.Plan
		existing.Status = sub.Status
		*sub = *existing
		return nil
	}
	cp := *sub
	f.subs[sub.StripeSubscriptionID] = &cp
	return nil
}

func (f *fakeWebhookStore) UpdateSubscriptionStatus(ctx context.Context, stripeSubID string, status domain.SubscriptionStatus) error {
	sub, ok := f.subs[stripeSubID]
	if !ok {
		return repository.ErrNotFound
	}
	sub.Status = status
	return nil
}

func (f *fakeWebhookStore) ResetAllowance(ctx context.Context, stripeSubID string, credits int) error {
	sub, ok := f.subs[stripeSubID]
	if !ok {
		return repository.ErrNotFound
	}
	sub.CreditsRemaining = credits
	return nil
}

func (f *fakeWebhookStore) GetSubscriptionByStripeID(ctx context.Context, stripeSubID string) (*domain.Subscription, error) {
	sub, ok := f.subs[stripeSubID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// testUser returns a user suitable for authenticated-request tests.
func testUser(t *testing.T) *domain.User {
	t.Helper()
	return &domain.User{
		ID:    uuid.New(),
		Email: "owner@example.com",
		Name:  "Test Owner",
	}
}
