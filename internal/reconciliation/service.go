// Package reconciliation re-checks payments that are still PENDING long
// after initiation, typically because the payer abandoned the gateway page or
// the callback never arrived.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/domain"
	"github.com/natureofthedivine/storefront/internal/payment"
)

const batchSize = 500

// Result summarises one reconciliation run.
type Result struct {
	Checked      int `json:"checked"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	StillPending int `json:"still_pending"`
	Errors       int `json:"errors"`
}

type Store interface {
	ListPending(ctx context.Context, kind domain.Kind, cutoff time.Time, limit int) ([]domain.Payment, error)
}

// Rechecker is implemented by *payment.Service.
type Rechecker interface {
	Recheck(ctx context.Context, kind domain.Kind, merchantTxnID string) (payment.Confirmation, error)
}

// Service performs reconciliation of stale PENDING records against the
// gateway's status endpoint.
type Service struct {
	store       Store
	checker     Rechecker
	window      time.Duration
	concurrency int
	now         func() time.Time
}

// NewService creates a reconciliation service. Records younger than window
// are left alone.
func NewService(store Store, checker Rechecker, window time.Duration, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		store:       store,
		checker:     checker,
		window:      window,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Run re-checks every stale PENDING order and donation. Per-record failures
// are counted and logged; only a failure to list records aborts the run.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	cutoff := s.now().Add(-s.window)
	result := &Result{}

	for _, kind := range []domain.Kind{domain.KindOrder, domain.KindDonation} {
		pending, err := s.store.ListPending(ctx, kind, cutoff, batchSize)
		if err != nil {
			return nil, fmt.Errorf("list pending %s: %w", kind, err)
		}
		if err := s.recheck(ctx, kind, pending, result); err != nil {
			return nil, err
		}
	}

	log.Printf("[reconciliation] Results: checked=%d, succeeded=%d, failed=%d, pending=%d, errors=%d",
		result.Checked, result.Succeeded, result.Failed, result.StillPending, result.Errors)

	return result, nil
}

func (s *Service) recheck(ctx context.Context, kind domain.Kind, pending []domain.Payment, result *Result) error {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, p := range pending {
		g.Go(func() error {
			res, err := s.checker.Recheck(ctx, kind, p.MerchantTransactionID)

			mu.Lock()
			defer mu.Unlock()
			result.Checked++
			switch {
			case errors.Is(err, context.Canceled):
				return err
			case err != nil:
				result.Errors++
				level := "WARNING"
				if errors.Is(err, apperr.ErrGatewayUnavailable) {
					level = "INFO"
				}
				log.Printf("[reconciliation] %s: %s %s not rechecked: %v", level, kind, p.MerchantTransactionID, err)
			case !res.Applied && res.Status == domain.StatusPending:
				result.StillPending++
			case !res.Applied:
				// Settled by a callback between listing and rechecking.
			case res.Status == domain.StatusSuccess:
				result.Succeeded++
			default:
				result.Failed++
			}
			return nil
		})
	}
	return g.Wait()
}
