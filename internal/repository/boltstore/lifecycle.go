package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/domain"
)

// record is a decoded order or donation with direct access to its payment
// fields.
type record struct {
	value   any
	payment *domain.Payment
	name    string
}

func decodeRecord(kind domain.Kind, v []byte) (*record, error) {
	switch kind {
	case domain.KindOrder:
		var o domain.Order
		if err := json.Unmarshal(v, &o); err != nil {
			return nil, err
		}
		return &record{value: &o, payment: &o.Payment, name: o.Name}, nil
	case domain.KindDonation:
		var d domain.Donation
		if err := json.Unmarshal(v, &d); err != nil {
			return nil, err
		}
		return &record{value: &d, payment: &d.Payment, name: d.Name}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidRequest, kind)
	}
}

func lookup(tx *bolt.Tx, kind domain.Kind, txn string) (*record, []byte, error) {
	records, txns, err := buckets(kind)
	if err != nil {
		return nil, nil, err
	}
	id := tx.Bucket(txns).Get([]byte(txn))
	if id == nil {
		return nil, nil, fmt.Errorf("%s %s: %w", kind, txn, apperr.ErrRecordNotFound)
	}
	v := tx.Bucket(records).Get(id)
	if v == nil {
		return nil, nil, fmt.Errorf("%s %s: %w", kind, txn, apperr.ErrRecordNotFound)
	}
	rec, err := decodeRecord(kind, v)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return rec, append([]byte(nil), id...), nil
}

func (s *Store) FindPayment(ctx context.Context, kind domain.Kind, merchantTxnID string) (*domain.Payment, error) {
	var p *domain.Payment
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, _, err := lookup(tx, kind, merchantTxnID)
		if err != nil {
			return err
		}
		p = rec.payment
		return nil
	})
	return p, err
}

// Transition moves a PENDING record to t.To. Only the caller that observes
// PENDING gets applied=true; for SUCCESS the total and leaderboard entry are
// bumped in the same transaction.
func (s *Store) Transition(ctx context.Context, kind domain.Kind, merchantTxnID string, t domain.Transition) (bool, error) {
	if !t.To.Terminal() {
		return false, fmt.Errorf("%w: %s is not a terminal status", apperr.ErrInvalidTransition, t.To)
	}
	records, _, err := buckets(kind)
	if err != nil {
		return false, err
	}

	applied := false
	err = s.db.Update(func(tx *bolt.Tx) error {
		rec, id, err := lookup(tx, kind, merchantTxnID)
		if err != nil {
			return err
		}
		if rec.payment.Status != domain.StatusPending {
			return nil
		}

		at := t.At
		if at.IsZero() {
			at = time.Now()
		}
		rec.payment.Status = t.To
		rec.payment.PaymentDetails = t.Details
		rec.payment.UpdatedAt = at.UTC()

		data, err := json.Marshal(rec.value)
		if err != nil {
			return err
		}
		if err := tx.Bucket(records).Put(id, data); err != nil {
			return err
		}
		if t.To == domain.StatusSuccess {
			if err := applySuccess(tx, kind, rec.payment, rec.name, at.UTC()); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// ListPending returns PENDING records created before cutoff, oldest first.
func (s *Store) ListPending(ctx context.Context, kind domain.Kind, cutoff time.Time, limit int) ([]domain.Payment, error) {
	records, _, err := buckets(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	var out []domain.Payment
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(records).ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(kind, v)
			if err != nil {
				return err
			}
			if rec.payment.Status == domain.StatusPending && rec.payment.CreatedAt.Before(cutoff) {
				out = append(out, *rec.payment)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountByStatus(ctx context.Context, kind domain.Kind) (domain.StatusCounts, error) {
	var counts domain.StatusCounts
	records, _, err := buckets(kind)
	if err != nil {
		return counts, err
	}
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(records).ForEach(func(k, v []byte) error {
			var p domain.Payment
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			counts.Add(p.Status, 1)
			return nil
		})
	})
	return counts, err
}
