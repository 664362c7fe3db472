package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
)

// CreateUser inserts a new user row. The caller has already hashed the
// password and normalized email and phone.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	const op = "repository.CreateUser"

	query := `
		INSERT INTO users (id, email, password_hash, name, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.Name, nullString(u.Phone), u.Role,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetUserByEmail fetches a user by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const op = "repository.GetUserByEmail"

	u, err := s.scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByID fetches a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "repository.GetUserByID"

	u, err := s.scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateProfile writes name and phone for a user.
func (s *Store) UpdateProfile(ctx context.Context, p domain.ProfileUpdateParams) error {
	const op = "repository.UpdateProfile"

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET name = $2, phone = $3, updated_at = now()
		WHERE id = $1`,
		p.UserID, p.Name, nullString(p.Phone))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStripeCustomerID records the Stripe customer created for a user.
func (s *Store) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	const op = "repository.SetStripeCustomerID"

	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET stripe_customer_id = $2, updated_at = now()
		WHERE id = $1`,
		userID, customerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetUserByStripeCustomerID resolves a webhook's customer reference.
func (s *Store) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	const op = "repository.GetUserByStripeCustomerID"

	u, err := s.scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE stripe_customer_id = $1`, customerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// CountUsersWithPhoneExcluding counts other accounts already carrying the
// given normalized phone number. Used to keep phone numbers unique across
// accounts without a DB constraint (legacy rows may share numbers).
func (s *Store) CountUsersWithPhoneExcluding(ctx context.Context, phone string, excludeUserID uuid.UUID) (int, error) {
	const op = "repository.CountUsersWithPhoneExcluding"

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM users WHERE phone = $1 AND id <> $2`,
		phone, excludeUserID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// IncrementFailedLogins bumps the failure counter in place and arms the
// lockout window the moment the counter reaches the threshold. Returns the
// post-increment state so the caller can report attempts remaining without a
// second read.
func (s *Store) IncrementFailedLogins(ctx context.Context, userID uuid.UUID) (attempts int, lockoutUntil *time.Time, err error) {
	const op = "repository.IncrementFailedLogins"

	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    lockout_until = CASE
		        WHEN failed_login_attempts + 1 >= $2
		        THEN now() + ($3 * interval '1 minute')
		        ELSE lockout_until
		    END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts, lockout_until`

	var lockout sql.NullTime
	err = s.db.QueryRowContext(ctx, query,
		userID, domain.LockoutThreshold, int(domain.LockoutDuration.Minutes()),
	).Scan(&attempts, &lockout)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, fmt.Errorf("%s: %w", op, err)
	}
	if lockout.Valid {
		lockoutUntil = &lockout.Time
	}
	return attempts, lockoutUntil, nil
}

// ResetFailedLogins clears the failure counter and any lockout window after
// a successful authentication.
func (s *Store) ResetFailedLogins(ctx context.Context, userID uuid.UUID) error {
	const op = "repository.ResetFailedLogins"

	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, lockout_until = NULL, updated_at = now()
		WHERE id = $1`,
		userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

const selectUser = `
	SELECT id, email, password_hash, coalesce(name, ''), coalesce(phone, ''),
	       role, coalesce(stripe_customer_id, ''),
	       failed_login_attempts, lockout_until, created_at, updated_at
	FROM users`

func (s *Store) scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var lockout sql.NullTime
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Phone,
		&u.Role, &u.StripeCustomerID,
		&u.FailedLoginAttempts, &lockout, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lockout.Valid {
		u.LockoutUntil = &lockout.Time
	}
	return &u, nil
}

// =============================================================================
// Sessions
// =============================================================================

// CreateSession stores a session with its hashed token.
func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	const op = "repository.CreateSession"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		sess.ID, sess.UserID, sess.TokenHash, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetSessionByTokenHash looks up an unexpired session by its hashed token.
func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	const op = "repository.GetSessionByTokenHash"

	var sess domain.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM sessions
		WHERE token_hash = $1 AND expires_at > now()`,
		tokenHash).Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sess, nil
}

// DeleteSession removes a session by its hashed token.
func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	const op = "repository.DeleteSession"

	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their expiry. Run periodically.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	const op = "repository.DeleteExpiredSessions"

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// nullString maps "" to NULL so optional columns stay NULL instead of empty.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
