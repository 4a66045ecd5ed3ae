package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/domain"
)

const donationColumns = `id, merchant_transaction_id, user_id, amount, currency, status,
	payment_details, created_at, updated_at, name, phone, message`

func (s *Store) CreateDonation(ctx context.Context, d *domain.Donation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO donations (`+donationColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.MerchantTransactionID, d.UserID, d.Amount, d.Currency,
		string(d.Status), nullableJSON(d.PaymentDetails),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
		d.Name, d.Phone, d.Message,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert donation %s: %w", d.ID, apperr.ErrDuplicate)
		}
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

func (s *Store) GetDonation(ctx context.Context, id string) (*domain.Donation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+donationColumns+" FROM donations WHERE id = ?", id)
	d, err := scanDonation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("donation %s: %w", id, apperr.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get donation: %w", err)
	}
	return d, nil
}

func (s *Store) ListDonations(ctx context.Context, f domain.ListFilter) ([]domain.Donation, int, error) {
	f = f.Normalize()
	where, args := statusWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM donations"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+donationColumns+" FROM donations"+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	donations := []domain.Donation{}
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		donations = append(donations, *d)
	}
	return donations, total, rows.Err()
}

func scanDonation(sc scanner) (*domain.Donation, error) {
	var d domain.Donation
	var status, createdAt, updatedAt string
	var details sql.NullString

	err := sc.Scan(
		&d.ID, &d.MerchantTransactionID, &d.UserID, &d.Amount, &d.Currency,
		&status, &details, &createdAt, &updatedAt, &d.Name, &d.Phone, &d.Message,
	)
	if err != nil {
		return nil, err
	}

	d.Status = domain.PaymentStatus(status)
	d.PaymentDetails = rawJSON(details)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}
