package repository_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/natureofthedivine/storefront/internal/repository"
	"github.com/natureofthedivine/storefront/internal/repository/storetest"
)

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	s, err := repository.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return newTestStore(t) })
}

func TestOpenIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := repository.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.CreateOrder(context.Background(), storetest.NewOrder("o1", "MT1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.Close()

	s, err = repository.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := s.GetOrder(context.Background(), "o1"); err != nil {
		t.Fatalf("order lost across reopen: %v", err)
	}
}
