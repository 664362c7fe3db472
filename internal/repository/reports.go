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

// AdmitWithSubscription debits one unit of subscription allowance and inserts
// the pending report in a single transaction. The debit is a guarded UPDATE;
// when a concurrent request drained the allowance first, the guard matches
// zero rows and the whole admission fails with ErrGuardFailed without
// inserting anything. Allowance can never go below zero.
func (s *Store) AdmitWithSubscription(ctx context.Context, subID uuid.UUID, p domain.NewReportParams) (*domain.Report, error) {
	const op = "repository.AdmitWithSubscription"

	var report *domain.Report
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET credits_remaining = credits_remaining - 1, updated_at = now()
			WHERE id = $1
			  AND credits_remaining > 0
			  AND status IN ('active', 'trialing')`,
			subID)
		if err != nil {
			return fmt.Errorf("debit allowance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrGuardFailed
		}

		report, err = insertReport(ctx, tx, p, domain.DebitSourceSubscription, nil, &subID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrGuardFailed) {
			return nil, ErrGuardFailed
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return report, nil
}

// AdmitWithPackCredit locks the user's first spendable ledger row in debit
// order, decrements it, and inserts the pending report, all in one
// transaction. The blocking FOR UPDATE serializes concurrent admissions for
// the same user: each waiter re-evaluates the row after the lock clears, so
// it either lands on a row that is still spendable or falls off the end and
// fails with ErrGuardFailed.
func (s *Store) AdmitWithPackCredit(ctx context.Context, userID uuid.UUID, p domain.NewReportParams) (*domain.Report, error) {
	const op = "repository.AdmitWithPackCredit"

	var report *domain.Report
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var creditID uuid.UUID
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM credits
			WHERE user_id = $1
			  AND balance > 0
			  AND (expires_at IS NULL OR expires_at >= now())
			ORDER BY expires_at ASC NULLS LAST, purchased_at ASC
			FOR UPDATE
			LIMIT 1`,
			userID).Scan(&creditID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrGuardFailed
			}
			return fmt.Errorf("lock credit: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE credits SET balance = balance - 1
			WHERE id = $1 AND balance > 0`,
			creditID)
		if err != nil {
			return fmt.Errorf("debit credit: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrGuardFailed
		}

		report, err = insertReport(ctx, tx, p, domain.DebitSourcePack, &creditID, nil)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrGuardFailed) {
			return nil, ErrGuardFailed
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return report, nil
}

// CreateFreeReport inserts a pending report on the frictionless path. No
// balance is touched and no authentication is required, so UserID may be nil.
func (s *Store) CreateFreeReport(ctx context.Context, p domain.NewReportParams) (*domain.Report, error) {
	const op = "repository.CreateFreeReport"

	var report *domain.Report
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		report, err = insertReport(ctx, tx, p, domain.DebitSourceFree, nil, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return report, nil
}

func insertReport(ctx context.Context, tx *sql.Tx, p domain.NewReportParams, source domain.DebitSource, creditID, subID *uuid.UUID) (*domain.Report, error) {
	r := domain.Report{
		ID:            uuid.New(),
		UserID:        p.UserID,
		Type:          p.Type,
		Subject:       p.Subject,
		Status:        domain.ReportStatusPending,
		DebitSource:   source,
		DebitedCredit: creditID,
		DebitedSub:    subID,
	}

	err := tx.QueryRowContext(ctx, `
		INSERT INTO reports (id, user_id, type, subject, status, debit_source, debited_credit_id, debited_subscription_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at`,
		r.ID, nullUUID(r.UserID), r.Type, r.Subject, r.Status, r.DebitSource,
		nullUUID(creditID), nullUUID(subID),
	).Scan(&r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return &r, nil
}

// MarkProcessing moves a pending report to processing. Returns ErrGuardFailed
// when the report is not pending (already picked up, or swept to failed).
func (s *Store) MarkProcessing(ctx context.Context, reportID uuid.UUID) error {
	const op = "repository.MarkProcessing"

	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET status = 'processing'
		WHERE id = $1 AND status = 'pending'`,
		reportID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGuardFailed
	}
	return nil
}

// CompleteReport finalizes a successful generation: terminal status, PDF
// location, completion time, and the retention window for the download.
// Guarded on a non-terminal status so a late completion cannot resurrect a
// report the sweep already failed and refunded.
func (s *Store) CompleteReport(ctx context.Context, reportID uuid.UUID, pdfURL string) error {
	const op = "repository.CompleteReport"

	res, err := s.db.ExecContext(ctx, `
		UPDATE reports
		SET status = 'completed',
		    pdf_url = $2,
		    completed_at = now(),
		    expires_at = now() + $3 * interval '1 day'
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		reportID, pdfURL, int(domain.ReportRetention.Hours()/24))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGuardFailed
	}
	return nil
}

// FailOutcome reports what FailReport did.
type FailOutcome struct {
	Refunded bool
	Source   domain.DebitSource
	UserID   *uuid.UUID
}

// FailReport moves a report to failed and refunds the balance its admission
// debited, in one transaction. The status write is guarded on a non-terminal
// status, which is what makes the refund exactly-once: a second failure call,
// or a failure racing the sweep, matches zero rows and returns ErrGuardFailed
// without touching any balance. A refund write error rolls back the status
// change too, so a later sweep retries the whole transition.
func (s *Store) FailReport(ctx context.Context, reportID uuid.UUID, failureMessage string) (FailOutcome, error) {
	const op = "repository.FailReport"

	var out FailOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var source domain.DebitSource
		var creditID, subID uuid.NullUUID
		var userID uuid.NullUUID
		err := tx.QueryRowContext(ctx, `
			UPDATE reports
			SET status = 'failed', failure_message = $2
			WHERE id = $1 AND status IN ('pending', 'processing')
			RETURNING debit_source, debited_credit_id, debited_subscription_id, user_id`,
			reportID, failureMessage).Scan(&source, &creditID, &subID, &userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrGuardFailed
			}
			return fmt.Errorf("mark failed: %w", err)
		}

		out.Source = source
		if userID.Valid {
			out.UserID = &userID.UUID
		}

		switch source {
		case domain.DebitSourcePack:
			if !creditID.Valid {
				return fmt.Errorf("pack debit without credit id on report %s", reportID)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE credits SET balance = balance + 1 WHERE id = $1`,
				creditID.UUID); err != nil {
				return fmt.Errorf("refund credit: %w", err)
			}
		case domain.DebitSourceSubscription:
			if !subID.Valid {
				return fmt.Errorf("subscription debit without subscription id on report %s", reportID)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE subscriptions SET credits_remaining = credits_remaining + 1, updated_at = now()
				WHERE id = $1`,
				subID.UUID); err != nil {
				return fmt.Errorf("refund allowance: %w", err)
			}
		case domain.DebitSourceFree:
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE reports SET refunded_at = now() WHERE id = $1`,
			reportID); err != nil {
			return fmt.Errorf("stamp refund: %w", err)
		}
		out.Refunded = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrGuardFailed) {
			return FailOutcome{}, ErrGuardFailed
		}
		return FailOutcome{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

const selectReport = `
	SELECT id, user_id, type, subject, status,
	       debit_source, debited_credit_id, debited_subscription_id,
	       refunded_at, coalesce(failure_message, ''), coalesce(pdf_url, ''),
	       created_at, completed_at, expires_at
	FROM reports`

// GetReport fetches a report by ID.
func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	const op = "repository.GetReport"

	r, err := scanReport(s.db.QueryRowContext(ctx, selectReport+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}

// ListReportsByUser returns the user's reports, newest first.
func (s *Store) ListReportsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Report, error) {
	const op = "repository.ListReportsByUser"

	rows, err := s.db.QueryContext(ctx, selectReport+`
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	return collectReports(rows, op)
}

// ListStaleReports returns non-terminal reports older than the given cutoff.
// The sweep fails each one through FailReport, which re-checks the status
// guard, so a report that completes between the list and the sweep is safe.
func (s *Store) ListStaleReports(ctx context.Context, olderThan time.Time) ([]domain.Report, error) {
	const op = "repository.ListStaleReports"

	rows, err := s.db.QueryContext(ctx, selectReport+`
		WHERE status IN ('pending', 'processing')
		  AND created_at < $1
		ORDER BY created_at ASC`,
		olderThan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	return collectReports(rows, op)
}

// DeleteReport removes a report owned by the given user. Returns the PDF URL
// that was stored so the caller can delete the object too.
func (s *Store) DeleteReport(ctx context.Context, reportID, userID uuid.UUID) (string, error) {
	const op = "repository.DeleteReport"

	var pdfURL sql.NullString
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM reports WHERE id = $1 AND user_id = $2
		RETURNING pdf_url`,
		reportID, userID).Scan(&pdfURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return pdfURL.String, nil
}

func scanReport(row *sql.Row) (*domain.Report, error) {
	var r domain.Report
	var userID, creditID, subID uuid.NullUUID
	var refundedAt, completedAt, expiresAt sql.NullTime
	err := row.Scan(
		&r.ID, &userID, &r.Type, &r.Subject, &r.Status,
		&r.DebitSource, &creditID, &subID,
		&refundedAt, &r.FailureMessage, &r.PDFURL,
		&r.CreatedAt, &completedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}
	applyReportNullables(&r, userID, creditID, subID, refundedAt, completedAt, expiresAt)
	return &r, nil
}

func collectReports(rows *sql.Rows, op string) ([]domain.Report, error) {
	var reports []domain.Report
	for rows.Next() {
		var r domain.Report
		var userID, creditID, subID uuid.NullUUID
		var refundedAt, completedAt, expiresAt sql.NullTime
		err := rows.Scan(
			&r.ID, &userID, &r.Type, &r.Subject, &r.Status,
			&r.DebitSource, &creditID, &subID,
			&refundedAt, &r.FailureMessage, &r.PDFURL,
			&r.CreatedAt, &completedAt, &expiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		applyReportNullables(&r, userID, creditID, subID, refundedAt, completedAt, expiresAt)
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return reports, nil
}

func applyReportNullables(r *domain.Report, userID, creditID, subID uuid.NullUUID, refundedAt, completedAt, expiresAt sql.NullTime) {
	if userID.Valid {
		r.UserID = &userID.UUID
	}
	if creditID.Valid {
		r.DebitedCredit = &creditID.UUID
	}
	if subID.Valid {
		r.DebitedSub = &subID.UUID
	}
	if refundedAt.Valid {
		r.RefundedAt = &refundedAt.Time
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	if expiresAt.Valid {
		r.ExpiresAt = &expiresAt.Time
	}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
