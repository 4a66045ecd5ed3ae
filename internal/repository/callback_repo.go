package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/natureofthedivine/storefront/internal/domain"
)

// LogCallback appends one callback delivery to the audit log.
func (s *Store) LogCallback(ctx context.Context, l *domain.CallbackLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO callback_logs (id, kind, merchant_transaction_id, verified, outcome, payload, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, string(l.Kind), nullableString(l.MerchantTransactionID), boolToInt(l.Verified),
		string(l.Outcome), l.Payload, formatTime(l.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("insert callback log: %w", err)
	}
	return nil
}

// CallbackLogs returns the deliveries recorded for one merchant transaction,
// oldest first.
func (s *Store) CallbackLogs(ctx context.Context, merchantTxnID string) ([]domain.CallbackLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, merchant_transaction_id, verified, outcome, payload, received_at
		FROM callback_logs WHERE merchant_transaction_id = ? ORDER BY received_at, rowid`,
		merchantTxnID,
	)
	if err != nil {
		return nil, fmt.Errorf("query callback logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.CallbackLog{}
	for rows.Next() {
		var l domain.CallbackLog
		var kind, outcome, receivedAt string
		var txn sql.NullString
		var verified int
		if err := rows.Scan(&l.ID, &kind, &txn, &verified, &outcome, &l.Payload, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan callback log: %w", err)
		}
		l.Kind = domain.Kind(kind)
		l.MerchantTransactionID = txn.String
		l.Verified = verified == 1
		l.Outcome = domain.CallbackOutcome(outcome)
		l.ReceivedAt = parseTime(receivedAt)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
