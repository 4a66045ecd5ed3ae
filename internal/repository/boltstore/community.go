package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/natureofthedivine/storefront/internal/domain"
)

func totalKey(kind domain.Kind, currency string) []byte {
	return []byte(string(kind) + "|" + currency)
}

func leaderPrefix(kind domain.Kind, currency string) []byte {
	return []byte(string(kind) + "|" + currency + "|")
}

func applySuccess(tx *bolt.Tx, kind domain.Kind, p *domain.Payment, name string, at time.Time) error {
	tb := tx.Bucket(bucketTotals)
	tk := totalKey(kind, p.Currency)
	total := domain.Total{Kind: kind, Currency: p.Currency}
	if v := tb.Get(tk); v != nil {
		if err := json.Unmarshal(v, &total); err != nil {
			return err
		}
	}
	total.Amount += p.Amount
	total.Count++
	total.UpdatedAt = at
	data, err := json.Marshal(total)
	if err != nil {
		return err
	}
	if err := tb.Put(tk, data); err != nil {
		return err
	}

	lb := tx.Bucket(bucketLeaderboard)
	lk := append(leaderPrefix(kind, p.Currency), p.UserID...)
	entry := domain.LeaderboardEntry{Kind: kind, Currency: p.Currency, UserID: p.UserID}
	if v := lb.Get(lk); v != nil {
		if err := json.Unmarshal(v, &entry); err != nil {
			return err
		}
	}
	if name != "" {
		entry.Name = name
	}
	entry.Amount += p.Amount
	entry.Count++
	entry.UpdatedAt = at
	data, err = json.Marshal(entry)
	if err != nil {
		return err
	}
	return lb.Put(lk, data)
}

func (s *Store) Totals(ctx context.Context, kind domain.Kind) ([]domain.Total, error) {
	totals := []domain.Total{}
	prefix := []byte(string(kind) + "|")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTotals).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var t domain.Total
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			totals = append(totals, t)
		}
		return nil
	})
	return totals, err
}

func (s *Store) Leaderboard(ctx context.Context, kind domain.Kind, currency string, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	entries := []domain.LeaderboardEntry{}
	prefix := leaderPrefix(kind, currency)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLeaderboard).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e domain.LeaderboardEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Amount != entries[j].Amount {
			return entries[i].Amount > entries[j].Amount
		}
		return entries[i].UpdatedAt.Before(entries[j].UpdatedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) LogCallback(ctx context.Context, l *domain.CallbackLog) error {
	data, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCallbacks).Put([]byte(l.ID), data)
	})
}

func (s *Store) CallbackLogs(ctx context.Context, merchantTxnID string) ([]domain.CallbackLog, error) {
	logs := []domain.CallbackLog{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCallbacks).ForEach(func(k, v []byte) error {
			var l domain.CallbackLog
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			if l.MerchantTransactionID == merchantTxnID {
				logs = append(logs, l)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].ReceivedAt.Before(logs[j].ReceivedAt) })
	return logs, nil
}
