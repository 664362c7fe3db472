// Package service contains the business logic layer.
//
// Services orchestrate interactions between repositories, external APIs,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/goodbreeze/breeze/internal/captcha"
	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/email"
	"github.com/goodbreeze/breeze/internal/metrics"
	"github.com/goodbreeze/breeze/internal/repository"
	"github.com/goodbreeze/breeze/internal/validate"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	// Cost 12 provides good security (~250ms on modern hardware) while being
	// fast enough for login flows. NIST recommends cost 10+.
	//
	// SECURITY NOTE: This should NOT be configurable at runtime to prevent
	// accidental weakening. If you need to change it, do so here and redeploy.
	BcryptCost = 12

	// SessionTokenBytes is the number of random bytes for session tokens.
	// 32 bytes = 256 bits of entropy. The token is hex-encoded to 64
	// characters for storage/transmission.
	SessionTokenBytes = 32

	// SessionDuration is how long a session remains valid.
	SessionDuration = 7 * 24 * time.Hour

	// MinPasswordLength is the minimum password length.
	// NIST SP 800-63B recommends 8+ characters minimum.
	MinPasswordLength = 8

	// MaxPasswordLength prevents DoS via bcrypt on very long passwords.
	// bcrypt has a 72-byte limit anyway, but we cap earlier for clarity.
	MaxPasswordLength = 72

	// SignupBonusCredits is the ledger grant every new account receives.
	SignupBonusCredits = 3

	// SignupBonusValidity is how long the signup grant stays spendable.
	SignupBonusValidity = 30 * 24 * time.Hour
)

// =============================================================================
// Store Interface
// =============================================================================

// UserStore is the persistence surface the user service needs. Satisfied by
// *repository.Store; tests use in-memory fakes.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, p domain.ProfileUpdateParams) error
	SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error)
	CountUsersWithPhoneExcluding(ctx context.Context, phone string, excludeUserID uuid.UUID) (int, error)
	IncrementFailedLogins(ctx context.Context, userID uuid.UUID) (int, *time.Time, error)
	ResetFailedLogins(ctx context.Context, userID uuid.UUID) error
	CreateSession(ctx context.Context, sess *domain.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
	GrantCredit(ctx context.Context, p domain.GrantParams) (*domain.Credit, error)
	CreateNotification(ctx context.Context, userID uuid.UUID, typ domain.NotificationType, message string) (*domain.Notification, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// UserService defines the interface for account and session operations.
type UserService interface {
	// Register creates a new user account and grants the signup bonus.
	// Returns domain.ECONFLICT if email already exists.
	// Returns domain.EINVALID for validation errors, including disposable
	// email domains and junk phone numbers.
	Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error)

	// Login authenticates a user and creates a new session.
	//
	// The result distinguishes three outcomes: success (User and Token set),
	// active lockout (Locked with RetryAfter), and bad credentials
	// (AttemptsRemaining counting down to the lockout). An account with
	// recorded failures must also pass the CAPTCHA check when one is
	// configured.
	Login(ctx context.Context, params LoginParams) (*domain.LoginResult, error)

	// Logout invalidates a session by its raw token.
	// This is idempotent - calling with an invalid token is not an error.
	Logout(ctx context.Context, token string) error

	// GetByID retrieves a user by their ID.
	// Returns domain.ENOTFOUND if user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetBySessionToken retrieves a user by their session token.
	// Returns domain.EUNAUTHORIZED if token is invalid or expired.
	GetBySessionToken(ctx context.Context, token string) (*domain.User, error)

	// UpdateProfile updates a user's name and phone. The phone, when given,
	// must pass junk-number validation and be unused by other accounts.
	UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error

	// DeleteExpiredSessions removes all expired sessions from the database.
	// This should be called periodically (e.g., daily) to clean up.
	DeleteExpiredSessions(ctx context.Context) error

	// UpdateStripeCustomer saves the Stripe customer ID for a user.
	UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error

	// GetByStripeCustomerID retrieves a user by their Stripe customer ID.
	// Returns domain.ENOTFOUND if no user has that customer ID.
	GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error)
}

// LoginParams carries one login attempt.
type LoginParams struct {
	Email        string
	Password     string
	CaptchaToken string
	RemoteIP     string
}

// =============================================================================
// Implementation
// =============================================================================

type userService struct {
	store    UserStore
	verifier captcha.Verifier
	email    email.Service
	logger   *slog.Logger
}

// NewUserService creates a new UserService instance.
func NewUserService(store UserStore, verifier captcha.Verifier, emailService email.Service, logger *slog.Logger) UserService {
	return &userService{
		store:    store,
		verifier: verifier,
		email:    emailService,
		logger:   logger,
	}
}

// Register creates a new user account.
//
// Flow:
// 1. Normalize and validate email, password, and optional phone
// 2. Reject disposable email domains
// 3. Check email availability, hash the password
// 4. Create the user and grant the signup bonus
//
// The raw password is never logged or stored. On duplicate email the
// password is hashed anyway to keep response timing uniform.
func (s *userService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	const op = "UserService.Register"

	params.Email = validate.NormalizeEmail(params.Email)
	params.Name = strings.TrimSpace(params.Name)
	params.Phone = strings.TrimSpace(params.Phone)

	if err := validate.ValidateEmail(params.Email); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid email address")
	}
	if validate.IsDisposableEmail(params.Email) {
		return nil, domain.Invalid(op, "Disposable email addresses are not accepted")
	}
	if err := validatePassword(params.Password); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Invalid password")
	}
	if params.Phone != "" {
		if !validate.IsValidPhone(params.Phone) {
			return nil, domain.Invalid(op, "Invalid phone number")
		}
		params.Phone = validate.NormalizePhone(params.Phone)
	}

	_, err := s.store.GetUserByEmail(ctx, params.Email)
	if err == nil {
		// User exists - hash the password anyway to prevent timing attacks
		_, _ = bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
		return nil, domain.Conflict(op, "Email already registered")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, domain.Internal(err, op, "Failed to check email availability")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to hash password")
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        params.Email,
		PasswordHash: string(passwordHash),
		Name:         params.Name,
		Phone:        params.Phone,
		Role:         domain.RoleUser,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, domain.Internal(err, op, "Failed to create user")
	}

	// Signup bonus. Registration already succeeded, so a grant failure is
	// logged and the account is returned anyway.
	expiry := time.Now().Add(SignupBonusValidity)
	if _, err := s.store.GrantCredit(ctx, domain.GrantParams{
		UserID:    user.ID,
		Amount:    SignupBonusCredits,
		Product:   domain.CreditProductSignupBonus,
		ExpiresAt: &expiry,
	}); err != nil {
		s.logger.Error("Failed to grant signup bonus", "user_id", user.ID, "error", err)
	} else {
		metrics.CreditsGrantedTotal.WithLabelValues(string(domain.CreditProductSignupBonus)).Add(SignupBonusCredits)
	}

	metrics.RegistrationsTotal.Inc()
	s.logger.Info("User registered", "user_id", user.ID)

	go s.sendWelcomeEmail(user)

	return user, nil
}

// Login authenticates a user against the lockout guard.
//
// Order matters: the lockout window is checked before the password, so a
// locked account rejects even the correct password without resetting the
// counter. A failed comparison increments the counter in place; the
// repository arms the lockout window atomically when the threshold is hit.
func (s *userService) Login(ctx context.Context, params LoginParams) (*domain.LoginResult, error) {
	const op = "UserService.Login"

	email := validate.NormalizeEmail(params.Email)

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn a hash so unknown emails take as long as bad passwords.
			_, _ = bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
			metrics.LoginAttemptsTotal.WithLabelValues("bad_credentials").Inc()
			return nil, domain.Unauthorized(op, "Invalid email or password")
		}
		return nil, domain.Internal(err, op, "Failed to look up user")
	}

	now := time.Now()
	if user.IsLockedOut(now) {
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return &domain.LoginResult{
			Locked:     true,
			RetryAfter: user.LockoutRemaining(now),
		}, nil
	}

	// A supplied token must verify before the password is compared, and
	// accounts with recorded failures must pass the challenge regardless.
	if params.CaptchaToken != "" || user.FailedLoginAttempts > 0 {
		if err := s.verifier.Verify(ctx, params.CaptchaToken, params.RemoteIP); err != nil {
			s.logger.Info("CAPTCHA verification failed", "user_id", user.ID, "error", err)
			return nil, domain.Unauthorized(op, "Verification challenge failed")
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(params.Password)); err != nil {
		attempts, lockoutUntil, incErr := s.store.IncrementFailedLogins(ctx, user.ID)
		if incErr != nil {
			return nil, domain.Internal(incErr, op, "Failed to record login attempt")
		}

		metrics.LoginAttemptsTotal.WithLabelValues("bad_credentials").Inc()

		if lockoutUntil != nil && lockoutUntil.After(now) {
			metrics.LockoutsTotal.Inc()
			s.logger.Warn("Account locked after repeated failures", "user_id", user.ID, "attempts", attempts)
			if _, nerr := s.store.CreateNotification(ctx, user.ID, domain.NotificationAccountLocked,
				fmt.Sprintf("Your account was locked for %d minutes after %d failed login attempts.",
					int(domain.LockoutDuration.Minutes()), attempts)); nerr != nil {
				s.logger.Error("Failed to record lockout notification", "user_id", user.ID, "error", nerr)
			}
			go s.sendAccountLockedEmail(user)
			return &domain.LoginResult{
				Locked:     true,
				RetryAfter: time.Until(*lockoutUntil),
			}, nil
		}

		remaining := domain.LockoutThreshold - attempts
		if remaining < 0 {
			remaining = 0
		}
		return &domain.LoginResult{AttemptsRemaining: remaining}, nil
	}

	// Success: clear the counter and any expired lockout window.
	if err := s.store.ResetFailedLogins(ctx, user.ID); err != nil {
		return nil, domain.Internal(err, op, "Failed to reset login attempts")
	}

	token, tokenHash, err := generateSessionToken()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate session token")
	}

	session := &domain.Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: now.Add(SessionDuration),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, domain.Internal(err, op, "Failed to create session")
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.logger.Info("User logged in", "user_id", user.ID)
	return &domain.LoginResult{User: user, Token: token}, nil
}

// Logout invalidates a session by raw token. Idempotent.
func (s *userService) Logout(ctx context.Context, token string) error {
	const op = "UserService.Logout"

	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, hashToken(token)); err != nil {
		return domain.Internal(err, op, "Failed to delete session")
	}
	return nil
}

// GetByID retrieves a user by ID.
func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "UserService.GetByID"

	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to get user")
	}
	return user, nil
}

// GetBySessionToken validates a raw session token and returns its user.
func (s *userService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	const op = "UserService.GetBySessionToken"

	if token == "" {
		return nil, domain.Unauthorized(op, "Authentication required")
	}

	session, err := s.store.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Unauthorized(op, "Invalid or expired session")
		}
		return nil, domain.Internal(err, op, "Failed to look up session")
	}

	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Unauthorized(op, "Invalid or expired session")
		}
		return nil, domain.Internal(err, op, "Failed to get user")
	}
	return user, nil
}

// UpdateProfile writes name and phone after validating the phone and
// checking that no other account carries it.
func (s *userService) UpdateProfile(ctx context.Context, params domain.ProfileUpdateParams) error {
	const op = "UserService.UpdateProfile"

	params.Name = strings.TrimSpace(params.Name)
	params.Phone = strings.TrimSpace(params.Phone)

	if params.Phone != "" {
		if !validate.IsValidPhone(params.Phone) {
			return domain.Invalid(op, "Invalid phone number")
		}
		params.Phone = validate.NormalizePhone(params.Phone)

		n, err := s.store.CountUsersWithPhoneExcluding(ctx, params.Phone, params.UserID)
		if err != nil {
			return domain.Internal(err, op, "Failed to check phone availability")
		}
		if n > 0 {
			return domain.Conflict(op, "Phone number already in use")
		}
	}

	if err := s.store.UpdateProfile(ctx, params); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound(op, "user", params.UserID.String())
		}
		return domain.Internal(err, op, "Failed to update profile")
	}
	return nil
}

// DeleteExpiredSessions removes expired sessions.
func (s *userService) DeleteExpiredSessions(ctx context.Context) error {
	const op = "UserService.DeleteExpiredSessions"

	n, err := s.store.DeleteExpiredSessions(ctx)
	if err != nil {
		return domain.Internal(err, op, "Failed to delete expired sessions")
	}
	if n > 0 {
		s.logger.Info("Deleted expired sessions", "count", n)
	}
	return nil
}

// UpdateStripeCustomer saves the Stripe customer ID for a user.
func (s *userService) UpdateStripeCustomer(ctx context.Context, userID uuid.UUID, stripeCustomerID string) error {
	const op = "UserService.UpdateStripeCustomer"

	if err := s.store.SetStripeCustomerID(ctx, userID, stripeCustomerID); err != nil {
		return domain.Internal(err, op, "Failed to save Stripe customer")
	}
	return nil
}

// GetByStripeCustomerID resolves a webhook's customer reference.
func (s *userService) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*domain.User, error) {
	const op = "UserService.GetByStripeCustomerID"

	user, err := s.store.GetUserByStripeCustomerID(ctx, stripeCustomerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "user", stripeCustomerID)
		}
		return nil, domain.Internal(err, op, "Failed to get user")
	}
	return user, nil
}

// sendWelcomeEmail runs off the request path; the account exists whether
// or not the greeting lands.
func (s *userService) sendWelcomeEmail(user *domain.User) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.email.SendWelcomeEmail(ctx, user.Email, user.DisplayName(), SignupBonusCredits); err != nil {
		s.logger.Error("Failed to send welcome email", "user_id", user.ID, "error", err)
	}
}

// sendAccountLockedEmail warns the owner that their account was locked.
// Sent only when the lockout arms, not on attempts against an already
// locked account.
func (s *userService) sendAccountLockedEmail(user *domain.User) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	minutes := int(domain.LockoutDuration.Minutes())
	if err := s.email.SendAccountLockedEmail(ctx, user.Email, user.DisplayName(), minutes); err != nil {
		s.logger.Error("Failed to send account locked email", "user_id", user.ID, "error", err)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}
	return nil
}

// generateSessionToken returns a raw token and its storage hash. Only the
// hash is persisted; a database leak cannot replay sessions.
func generateSessionToken() (token, tokenHash string, err error) {
	buf := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
