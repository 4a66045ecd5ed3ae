package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/domain"
	"github.com/natureofthedivine/storefront/internal/payment"
)

type stubStore struct {
	pending map[domain.Kind][]domain.Payment
	cutoffs []time.Time
	err     error
}

func (s *stubStore) ListPending(ctx context.Context, kind domain.Kind, cutoff time.Time, limit int) ([]domain.Payment, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	if s.err != nil {
		return nil, s.err
	}
	return s.pending[kind], nil
}

type stubChecker struct {
	mu      sync.Mutex
	results map[string]payment.Confirmation
	errs    map[string]error
	calls   []string
}

func (c *stubChecker) Recheck(ctx context.Context, kind domain.Kind, txn string) (payment.Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, string(kind)+"/"+txn)
	if err := c.errs[txn]; err != nil {
		return payment.Confirmation{}, err
	}
	return c.results[txn], nil
}

func payments(txns ...string) []domain.Payment {
	out := make([]domain.Payment, len(txns))
	for i, txn := range txns {
		out[i] = domain.Payment{MerchantTransactionID: txn, Status: domain.StatusPending}
	}
	return out
}

func TestRunTalliesOutcomes(t *testing.T) {
	store := &stubStore{pending: map[domain.Kind][]domain.Payment{
		domain.KindOrder:    payments("MT1", "MT2", "MT3"),
		domain.KindDonation: payments("MT4", "MT5", "MT6"),
	}}
	checker := &stubChecker{
		results: map[string]payment.Confirmation{
			"MT1": {Status: domain.StatusSuccess, Applied: true},
			"MT2": {Status: domain.StatusFailure, Applied: true},
			"MT3": {Status: domain.StatusPending},
			"MT4": {Status: domain.StatusSuccess, Applied: false},
			"MT5": {Status: domain.StatusFailure, Applied: true},
		},
		errs: map[string]error{
			"MT6": fmt.Errorf("status check: %w", apperr.ErrGatewayUnavailable),
		},
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(store, checker, 30*time.Minute, 3)
	svc.now = func() time.Time { return now }

	res, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := Result{Checked: 6, Succeeded: 1, Failed: 2, StillPending: 1, Errors: 1}
	if *res != want {
		t.Fatalf("expected %+v, got %+v", want, *res)
	}
	if len(checker.calls) != 6 {
		t.Fatalf("expected 6 rechecks, got %d", len(checker.calls))
	}
	for _, c := range store.cutoffs {
		if !c.Equal(now.Add(-30 * time.Minute)) {
			t.Fatalf("unexpected cutoff %s", c)
		}
	}
}

func TestRunListFailureAborts(t *testing.T) {
	store := &stubStore{err: errors.New("disk full")}
	svc := NewService(store, &stubChecker{}, time.Minute, 1)

	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected error when pending records cannot be listed")
	}
}

func TestRunNothingPending(t *testing.T) {
	svc := NewService(&stubStore{}, &stubChecker{}, time.Minute, 0)

	res, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if *res != (Result{}) {
		t.Fatalf("expected empty result, got %+v", *res)
	}
}
