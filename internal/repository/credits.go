package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
)

// GrantCredit appends one ledger row. Grants are append-only; nothing ever
// updates InitialSize or merges rows.
func (s *Store) GrantCredit(ctx context.Context, p domain.GrantParams) (*domain.Credit, error) {
	const op = "repository.GrantCredit"

	c := domain.Credit{
		ID:          uuid.New(),
		UserID:      p.UserID,
		Balance:     p.Amount,
		InitialSize: p.Amount,
		Product:     p.Product,
		ExpiresAt:   p.ExpiresAt,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO credits (id, user_id, balance, initial_size, product, purchased_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
		RETURNING purchased_at`,
		c.ID, c.UserID, c.Balance, c.InitialSize, c.Product, nullTime(c.ExpiresAt),
	).Scan(&c.PurchasedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// AvailableCredits returns the user's spendable ledger rows in debit order:
// soonest expiry first, never-expiring rows last, purchase date as tie-break.
// Expired and drained rows are filtered at read time; their stored balances
// are never zeroed.
func (s *Store) AvailableCredits(ctx context.Context, userID uuid.UUID) ([]domain.Credit, error) {
	const op = "repository.AvailableCredits"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, balance, initial_size, product, purchased_at, expires_at
		FROM credits
		WHERE user_id = $1
		  AND balance > 0
		  AND (expires_at IS NULL OR expires_at >= now())
		ORDER BY expires_at ASC NULLS LAST, purchased_at ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var credits []domain.Credit
	for rows.Next() {
		var c domain.Credit
		var expires sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserID, &c.Balance, &c.InitialSize, &c.Product, &c.PurchasedAt, &expires); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		if expires.Valid {
			c.ExpiresAt = &expires.Time
		}
		credits = append(credits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return credits, nil
}

// AvailableBalance sums the user's spendable ledger credits.
func (s *Store) AvailableBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	const op = "repository.AvailableBalance"

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT coalesce(sum(balance), 0)
		FROM credits
		WHERE user_id = $1
		  AND balance > 0
		  AND (expires_at IS NULL OR expires_at >= now())`,
		userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
