package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/domain"
)

const paymentColumns = `id, merchant_transaction_id, user_id, amount, currency, status,
	payment_details, created_at, updated_at, name`

func tableFor(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindOrder:
		return "orders", nil
	case domain.KindDonation:
		return "donations", nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidRequest, kind)
	}
}

// FindPayment looks a record up by its merchant transaction id, the only key
// a gateway callback carries.
func (s *Store) FindPayment(ctx context.Context, kind domain.Kind, merchantTxnID string) (*domain.Payment, error) {
	p, _, err := findPayment(ctx, s.db, kind, merchantTxnID)
	return p, err
}

func findPayment(ctx context.Context, q querier, kind domain.Kind, merchantTxnID string) (*domain.Payment, string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, "", err
	}
	row := q.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM "+table+" WHERE merchant_transaction_id = ?",
		merchantTxnID,
	)
	p, name, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%s %s: %w", kind, merchantTxnID, apperr.ErrRecordNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("find %s: %w", kind, err)
	}
	return p, name, nil
}

// Transition moves a PENDING record to t.To. The write is conditional on the
// stored status still being PENDING; only the caller whose write lands gets
// applied=true, and for SUCCESS the aggregate total and leaderboard entry are
// incremented in the same transaction. A record already in a terminal state
// is left untouched.
func (s *Store) Transition(ctx context.Context, kind domain.Kind, merchantTxnID string, t domain.Transition) (bool, error) {
	if !t.To.Terminal() {
		return false, fmt.Errorf("%w: %s is not a terminal status", apperr.ErrInvalidTransition, t.To)
	}
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	p, name, err := findPayment(ctx, tx, kind, merchantTxnID)
	if err != nil {
		return false, err
	}

	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE "+table+" SET status = ?, payment_details = ?, updated_at = ? WHERE merchant_transaction_id = ? AND status = ?",
		string(t.To), nullableJSON(t.Details), formatTime(at), merchantTxnID, string(domain.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if t.To == domain.StatusSuccess {
		if err := applySuccess(ctx, tx, kind, p, name, at); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// ListPending returns PENDING records created before cutoff, oldest first.
func (s *Store) ListPending(ctx context.Context, kind domain.Kind, cutoff time.Time, limit int) ([]domain.Payment, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM "+table+" WHERE status = ? AND created_at < ? ORDER BY created_at LIMIT ?",
		string(domain.StatusPending), formatTime(cutoff), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, _, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) CountByStatus(ctx context.Context, kind domain.Kind) (domain.StatusCounts, error) {
	var counts domain.StatusCounts
	table, err := tableFor(kind)
	if err != nil {
		return counts, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM "+table+" GROUP BY status")
	if err != nil {
		return counts, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("scan: %w", err)
		}
		counts.Add(domain.PaymentStatus(status), n)
	}
	return counts, rows.Err()
}

func scanPayment(sc scanner) (*domain.Payment, string, error) {
	var p domain.Payment
	var status, createdAt, updatedAt, name string
	var details sql.NullString

	err := sc.Scan(
		&p.ID, &p.MerchantTransactionID, &p.UserID, &p.Amount, &p.Currency,
		&status, &details, &createdAt, &updatedAt, &name,
	)
	if err != nil {
		return nil, "", err
	}

	p.Status = domain.PaymentStatus(status)
	p.PaymentDetails = rawJSON(details)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, name, nil
}
