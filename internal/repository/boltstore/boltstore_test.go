package boltstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/domain"
	"github.com/natureofthedivine/storefront/internal/repository/boltstore"
	"github.com/natureofthedivine/storefront/internal/repository/storetest"
)

func newTestStore(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return newTestStore(t) })
}

func TestFailedCreateWritesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateOrder(ctx, storetest.NewOrder("o1", "MT1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Same txn, new id: the record must not be stored under o2.
	if err := s.CreateOrder(ctx, storetest.NewOrder("o2", "MT1")); !errors.Is(err, apperr.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := s.GetOrder(ctx, "o2"); !errors.Is(err, apperr.ErrRecordNotFound) {
		t.Fatalf("expected o2 to be absent, got %v", err)
	}

	p, err := s.FindPayment(ctx, domain.KindOrder, "MT1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if p.ID != "o1" {
		t.Fatalf("txn index repointed to %s", p.ID)
	}
}

func TestPing(t *testing.T) {
	if err := newTestStore(t).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
