package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/domain"
)

const orderColumns = `id, merchant_transaction_id, user_id, amount, currency, status,
	payment_details, created_at, updated_at, variant, quantity, name, email,
	phone, address, fulfillment_status`

// CreateOrder inserts a new order. A reused id or merchant transaction id
// fails with apperr.ErrDuplicate.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	addr, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.MerchantTransactionID, o.UserID, o.Amount, o.Currency,
		string(o.Status), nullableJSON(o.PaymentDetails),
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
		o.Variant, o.Quantity, o.Name, o.Email, o.Phone, string(addr),
		string(o.FulfillmentStatus),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert order %s: %w", o.ID, apperr.ErrDuplicate)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, s.db, id)
}

func getOrder(ctx context.Context, q querier, id string) (*domain.Order, error) {
	row := q.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, f domain.ListFilter) ([]domain.Order, int, error) {
	f = f.Normalize()
	where, args := statusWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders"+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, total, rows.Err()
}

// UpdateFulfillment moves a paid order along the fulfilment lifecycle.
func (s *Store) UpdateFulfillment(ctx context.Context, id string, to domain.FulfillmentStatus) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	o, err := getOrder(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := o.CheckFulfillment(to); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET fulfillment_status = ?, updated_at = ? WHERE id = ? AND fulfillment_status = ?",
		string(to), formatTime(now), id, string(o.FulfillmentStatus),
	)
	if err != nil {
		return nil, fmt.Errorf("update fulfillment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	o.FulfillmentStatus = to
	o.UpdatedAt = now
	return o, nil
}

// --- helpers ---

func statusWhere(f domain.ListFilter) (string, []any) {
	if f.Status == "" {
		return "", nil
	}
	return " WHERE status = ?", []any{string(f.Status)}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func rawJSON(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func scanOrder(sc scanner) (*domain.Order, error) {
	var o domain.Order
	var status, createdAt, updatedAt, addr, fulfillment string
	var details sql.NullString

	err := sc.Scan(
		&o.ID, &o.MerchantTransactionID, &o.UserID, &o.Amount, &o.Currency,
		&status, &details, &createdAt, &updatedAt, &o.Variant, &o.Quantity,
		&o.Name, &o.Email, &o.Phone, &addr, &fulfillment,
	)
	if err != nil {
		return nil, err
	}

	o.Status = domain.PaymentStatus(status)
	o.PaymentDetails = rawJSON(details)
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	o.FulfillmentStatus = domain.FulfillmentStatus(fulfillment)
	if err := json.Unmarshal([]byte(addr), &o.Address); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	return &o, nil
}
