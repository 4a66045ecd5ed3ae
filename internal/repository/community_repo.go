package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/natureofthedivine/storefront/internal/domain"
)

// applySuccess bumps the running total and the payer's leaderboard entry.
// It must run inside the transaction that moved the record to SUCCESS.
func applySuccess(ctx context.Context, q querier, kind domain.Kind, p *domain.Payment, name string, at time.Time) error {
	ts := formatTime(at)

	_, err := q.ExecContext(ctx,
		`INSERT INTO totals (kind, currency, amount, count, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (kind, currency) DO UPDATE SET
			amount = amount + excluded.amount,
			count = count + 1,
			updated_at = excluded.updated_at`,
		string(kind), p.Currency, p.Amount, ts,
	)
	if err != nil {
		return fmt.Errorf("upsert total: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO leaderboard (kind, currency, user_id, name, amount, count, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (kind, currency, user_id) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE name END,
			amount = amount + excluded.amount,
			count = count + 1,
			updated_at = excluded.updated_at`,
		string(kind), p.Currency, p.UserID, name, p.Amount, ts,
	)
	if err != nil {
		return fmt.Errorf("upsert leaderboard: %w", err)
	}
	return nil
}

// Totals returns the confirmed totals for kind, one row per currency.
func (s *Store) Totals(ctx context.Context, kind domain.Kind) ([]domain.Total, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT currency, amount, count, updated_at FROM totals WHERE kind = ? ORDER BY currency",
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	totals := []domain.Total{}
	for rows.Next() {
		t := domain.Total{Kind: kind}
		var updatedAt string
		if err := rows.Scan(&t.Currency, &t.Amount, &t.Count, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		t.UpdatedAt = parseTime(updatedAt)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// Leaderboard returns the top payers for kind in currency, highest first.
func (s *Store) Leaderboard(ctx context.Context, kind domain.Kind, currency string, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, name, amount, count, updated_at FROM leaderboard
		WHERE kind = ? AND currency = ?
		ORDER BY amount DESC, updated_at ASC
		LIMIT ?`,
		string(kind), currency, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []domain.LeaderboardEntry{}
	for rows.Next() {
		e := domain.LeaderboardEntry{Kind: kind, Currency: currency}
		var updatedAt string
		if err := rows.Scan(&e.UserID, &e.Name, &e.Amount, &e.Count, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		e.UpdatedAt = parseTime(updatedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
