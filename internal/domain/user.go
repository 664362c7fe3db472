// Package domain contains core business types and interfaces.
//
// This file defines the User domain type and related types for
// authentication and account lockout.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role classifies an account for access control and billing exemptions.
type Role string

const (
	RoleUser      Role = "user"
	RoleTester    Role = "tester"
	RoleAdmin     Role = "admin"
	RoleAffiliate Role = "affiliate"
)

// IsValid returns true if the role is a recognized value.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleTester, RoleAdmin, RoleAffiliate:
		return true
	}
	return false
}

// Lockout policy for failed logins.
const (
	// LockoutThreshold is the number of consecutive failed login attempts
	// that triggers a timed lockout.
	LockoutThreshold = 3

	// LockoutDuration is how long an account stays locked after hitting
	// the threshold.
	LockoutDuration = 30 * time.Minute
)

// User represents a registered Good Breeze account.
//
// This is the domain representation, decoupled from the database layer so
// business logic works with plain Go types.
type User struct {
	ID                  uuid.UUID
	Email               string
	PasswordHash        string // Never expose this in API responses
	Name                string
	Phone               string // Normalized, empty when not on file
	Role                Role
	StripeCustomerID    string
	FailedLoginAttempts int
	LockoutUntil        *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLockedOut reports whether the account is inside an active lockout window.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutUntil != nil && u.LockoutUntil.After(now)
}

// LockoutRemaining returns the time left on the lockout window, rounded up
// to the next whole minute for user-facing messages. Zero when not locked.
func (u *User) LockoutRemaining(now time.Time) time.Duration {
	if !u.IsLockedOut(now) {
		return 0
	}
	return u.LockoutUntil.Sub(now)
}

// HasPhone reports whether a phone number is on file. The paid checkout
// flow requires one; report generation does not.
func (u *User) HasPhone() bool {
	return u.Phone != ""
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Session represents an authenticated session.
//
// Sessions are stored in the database with a hashed token. The raw token is
// only given to the client once (at login).
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string // SHA-256 hash of the session token
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// RegisterParams contains the validated parameters for user registration.
type RegisterParams struct {
	Email    string
	Password string // Raw password, hashed by the service
	Name     string
	Phone    string // Optional at signup; required for checkout later
}

// LoginResult contains the outcome of a login attempt.
//
// Exactly one of the three shapes applies:
//   - success: User and Token are set
//   - locked: Locked is true and RetryAfter carries the remaining wait
//   - bad credentials: AttemptsRemaining counts down to the lockout
type LoginResult struct {
	User  *User
	Token string // Raw session token, only returned once

	Locked            bool
	RetryAfter        time.Duration
	AttemptsRemaining int
}

// Succeeded reports whether the attempt produced an authenticated session.
func (r *LoginResult) Succeeded() bool {
	return r.User != nil && r.Token != ""
}

// ProfileUpdateParams contains parameters for updating a user's profile.
type ProfileUpdateParams struct {
	UserID uuid.UUID
	Name   string
	Phone  string
}
