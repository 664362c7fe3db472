package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// CreditProduct identifies how a ledger grant was earned.
type CreditProduct string

const (
	CreditProductPack        CreditProduct = "pack"
	CreditProductSignupBonus CreditProduct = "signup_bonus"
	CreditProductReferral    CreditProduct = "referral"
	CreditProductTestimonial CreditProduct = "testimonial"
)

// IsValid returns true if the product is a recognized value.
func (p CreditProduct) IsValid() bool {
	switch p {
	case CreditProductPack, CreditProductSignupBonus, CreditProductReferral, CreditProductTestimonial:
		return true
	}
	return false
}

// Credit is one append-only ledger row: a grant of N report credits.
//
// Grants are never merged or deleted. Balance only ever moves toward zero
// through debits (and back up one step on a refund); a spent row stays in
// the table for audit. Expiry is a read-time filter: an expired row keeps
// its stored balance but contributes nothing to availability.
type Credit struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Balance     int // Remaining credits, >= 0
	InitialSize int // Credits originally granted
	Product     CreditProduct
	PurchasedAt time.Time
	ExpiresAt   *time.Time // nil = never expires
}

// IsAvailable reports whether this row can fund a debit at the given time.
func (c *Credit) IsAvailable(now time.Time) bool {
	if c.Balance <= 0 {
		return false
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return false
	}
	return true
}

// AvailableTotal sums the spendable balance across ledger rows at the given
// time. Expired rows and drained rows contribute nothing.
func AvailableTotal(credits []Credit, now time.Time) int {
	total := 0
	for i := range credits {
		if credits[i].IsAvailable(now) {
			total += credits[i].Balance
		}
	}
	return total
}

// SortCreditsForDebit orders rows so the first available row is the one to
// debit: soonest expiry first (rows about to lapse are spent before rows
// that never expire), purchase date ascending as the tie-break.
func SortCreditsForDebit(credits []Credit) {
	sort.SliceStable(credits, func(i, j int) bool {
		a, b := credits[i], credits[j]
		switch {
		case a.ExpiresAt == nil && b.ExpiresAt == nil:
			return a.PurchasedAt.Before(b.PurchasedAt)
		case a.ExpiresAt == nil:
			return false
		case b.ExpiresAt == nil:
			return true
		case !a.ExpiresAt.Equal(*b.ExpiresAt):
			return a.ExpiresAt.Before(*b.ExpiresAt)
		default:
			return a.PurchasedAt.Before(b.PurchasedAt)
		}
	})
}

// GrantParams describes a new ledger grant.
type GrantParams struct {
	UserID    uuid.UUID
	Amount    int
	Product   CreditProduct
	ExpiresAt *time.Time
}
