// Package boltstore keeps orders, donations and their aggregates in a single
// BoltDB file.
//
// Every mutating operation runs inside one db.Update transaction. Bolt allows
// a single writer at a time, so the read-check-write in Transition cannot
// interleave with another writer: the first caller to find the record
// PENDING wins and every later caller sees the terminal status.
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

var (
	bucketOrders      = []byte("orders")
	bucketDonations   = []byte("donations")
	bucketOrderTxn    = []byte("order_txn")
	bucketDonationTxn = []byte("donation_txn")
	bucketTotals      = []byte("totals")
	bucketLeaderboard = []byte("leaderboard")
	bucketCallbacks   = []byte("callback_logs")
)

type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path and ensures every bucket
// exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			bucketOrders, bucketDonations, bucketOrderTxn, bucketDonationTxn,
			bucketTotals, bucketLeaderboard, bucketCallbacks,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

func buckets(kind domain.Kind) (records, txns []byte, err error) {
	switch kind {
	case domain.KindOrder:
		return bucketOrders, bucketOrderTxn, nil
	case domain.KindDonation:
		return bucketDonations, bucketDonationTxn, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidRequest, kind)
	}
}

// create stores v under id and indexes it by merchant transaction id. Either
// key already being present fails with apperr.ErrDuplicate and nothing is
// written.
func (s *Store) create(kind domain.Kind, id, txn string, v any) error {
	records, txns, err := buckets(kind)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		rb, tb := tx.Bucket(records), tx.Bucket(txns)
		if rb.Get([]byte(id)) != nil {
			return fmt.Errorf("%s %s: %w", kind, id, apperr.ErrDuplicate)
		}
		if tb.Get([]byte(txn)) != nil {
			return fmt.Errorf("%s txn %s: %w", kind, txn, apperr.ErrDuplicate)
		}
		if err := rb.Put([]byte(id), data); err != nil {
			return err
		}
		return tb.Put([]byte(txn), []byte(id))
	})
}

func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	return s.create(domain.KindOrder, o.ID, o.MerchantTransactionID, o)
}

func (s *Store) CreateDonation(ctx context.Context, d *domain.Donation) error {
	return s.create(domain.KindDonation, d.ID, d.MerchantTransactionID, d)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	if err := s.get(bucketOrders, domain.KindOrder, id, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) GetDonation(ctx context.Context, id string) (*domain.Donation, error) {
	var d domain.Donation
	if err := s.get(bucketDonations, domain.KindDonation, id, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) get(bucket []byte, kind domain.Kind, id string, dst any) error {
	return s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%s %s: %w", kind, id, apperr.ErrRecordNotFound)
		}
		return json.Unmarshal(v, dst)
	})
}

func (s *Store) ListOrders(ctx context.Context, f domain.ListFilter) ([]domain.Order, int, error) {
	f = f.Normalize()
	var all []domain.Order
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOrders).ForEach(func(k, v []byte) error {
			var o domain.Order
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			if f.Status == "" || o.Status == f.Status {
				all = append(all, o)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	lo, hi := page(len(all), f)
	out := make([]domain.Order, 0, hi-lo)
	return append(out, all[lo:hi]...), len(all), nil
}

func (s *Store) ListDonations(ctx context.Context, f domain.ListFilter) ([]domain.Donation, int, error) {
	f = f.Normalize()
	var all []domain.Donation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDonations).ForEach(func(k, v []byte) error {
			var d domain.Donation
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if f.Status == "" || d.Status == f.Status {
				all = append(all, d)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	lo, hi := page(len(all), f)
	out := make([]domain.Donation, 0, hi-lo)
	return append(out, all[lo:hi]...), len(all), nil
}

func page(n int, f domain.ListFilter) (int, int) {
	lo := min(f.Offset(), n)
	hi := min(lo+f.Limit, n)
	return lo, hi
}

// UpdateFulfillment moves a paid order along the fulfilment lifecycle.
func (s *Store) UpdateFulfillment(ctx context.Context, id string, to domain.FulfillmentStatus) (*domain.Order, error) {
	var result domain.Order
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOrders)
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("order %s: %w", id, apperr.ErrRecordNotFound)
		}
		if err := json.Unmarshal(v, &result); err != nil {
			return err
		}
		if err := result.CheckFulfillment(to); err != nil {
			return err
		}
		result.FulfillmentStatus = to
		result.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
