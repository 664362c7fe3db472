package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
)

const selectSubscription = `
	SELECT id, user_id, plan, status, credits_remaining,
	       coalesce(stripe_subscription_id, ''), created_at, updated_at
	FROM subscriptions`

// ActiveSubscription returns the user's most recent spendable subscription,
// or ErrNotFound when none is active or trialing.
func (s *Store) ActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	const op = "repository.ActiveSubscription"

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, selectSubscription+`
		WHERE user_id = $1 AND status IN ('active', 'trialing')
		ORDER BY created_at DESC
		LIMIT 1`,
		userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// HasEverSubscribed reports whether any subscription row, in any status, has
// ever existed for the user. Drives the upgrade prompt on denials: never
// subscribed means pitch a plan, lapsed means pitch a pack.
func (s *Store) HasEverSubscribed(ctx context.Context, userID uuid.UUID) (bool, error) {
	const op = "repository.HasEverSubscribed"

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM subscriptions WHERE user_id = $1)`,
		userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// GetSubscriptionByStripeID resolves a webhook's subscription reference.
func (s *Store) GetSubscriptionByStripeID(ctx context.Context, stripeSubID string) (*domain.Subscription, error) {
	const op = "repository.GetSubscriptionByStripeID"

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, selectSubscription+`
		WHERE stripe_subscription_id = $1`,
		stripeSubID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// UpsertSubscription creates or updates the row keyed by Stripe subscription
// ID. Webhook deliveries are at-least-once, so the write must be idempotent.
func (s *Store) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	const op = "repository.UpsertSubscription"

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions (id, user_id, plan, status, credits_remaining, stripe_subscription_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (stripe_subscription_id) DO UPDATE
		SET plan = EXCLUDED.plan,
		    status = EXCLUDED.status,
		    updated_at = now()
		RETURNING id, credits_remaining, created_at, updated_at`,
		sub.ID, sub.UserID, sub.Plan, sub.Status, sub.CreditsRemaining, sub.StripeSubscriptionID,
	).Scan(&sub.ID, &sub.CreditsRemaining, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateSubscriptionStatus applies a status change from a webhook event.
func (s *Store) UpdateSubscriptionStatus(ctx context.Context, stripeSubID string, status domain.SubscriptionStatus) error {
	const op = "repository.UpdateSubscriptionStatus"

	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = $2, updated_at = now()
		WHERE stripe_subscription_id = $1`,
		stripeSubID, status)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetAllowance restores the subscription's periodic allowance to the plan
// cap. Called on billing-period renewal; unused allowance does not roll over.
func (s *Store) ResetAllowance(ctx context.Context, stripeSubID string, credits int) error {
	const op = "repository.ResetAllowance"

	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET credits_remaining = $2, updated_at = now()
		WHERE stripe_subscription_id = $1`,
		stripeSubID, credits)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSubscription(row *sql.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.CreditsRemaining,
		&sub.StripeSubscriptionID, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
