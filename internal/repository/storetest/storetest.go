// Package storetest holds the behaviour every record store backend must
// share. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/domain"
)

type Store interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, f domain.ListFilter) ([]domain.Order, int, error)
	UpdateFulfillment(ctx context.Context, id string, to domain.FulfillmentStatus) (*domain.Order, error)

	CreateDonation(ctx context.Context, d *domain.Donation) error
	GetDonation(ctx context.Context, id string) (*domain.Donation, error)
	ListDonations(ctx context.Context, f domain.ListFilter) ([]domain.Donation, int, error)

	FindPayment(ctx context.Context, kind domain.Kind, merchantTxnID string) (*domain.Payment, error)
	Transition(ctx context.Context, kind domain.Kind, merchantTxnID string, t domain.Transition) (bool, error)
	ListPending(ctx context.Context, kind domain.Kind, cutoff time.Time, limit int) ([]domain.Payment, error)
	CountByStatus(ctx context.Context, kind domain.Kind) (domain.StatusCounts, error)

	Totals(ctx context.Context, kind domain.Kind) ([]domain.Total, error)
	Leaderboard(ctx context.Context, kind domain.Kind, currency string, limit int) ([]domain.LeaderboardEntry, error)

	LogCallback(ctx context.Context, l *domain.CallbackLog) error
	CallbackLogs(ctx context.Context, merchantTxnID string) ([]domain.CallbackLog, error)
}

// Run exercises s against the shared contract. newStore must return an
// empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetOrder", func(t *testing.T) { testCreateAndGetOrder(t, newStore(t)) })
	t.Run("DuplicateMerchantTransaction", func(t *testing.T) { testDuplicate(t, newStore(t)) })
	t.Run("CreateAndGetDonation", func(t *testing.T) { testCreateAndGetDonation(t, newStore(t)) })
	t.Run("FindPayment", func(t *testing.T) { testFindPayment(t, newStore(t)) })
	t.Run("TransitionSuccessAppliesOnce", func(t *testing.T) { testTransitionSuccess(t, newStore(t)) })
	t.Run("TransitionFailureLeavesTotals", func(t *testing.T) { testTransitionFailure(t, newStore(t)) })
	t.Run("TerminalIsFinal", func(t *testing.T) { testTerminalIsFinal(t, newStore(t)) })
	t.Run("ConcurrentTransitions", func(t *testing.T) { testConcurrentTransitions(t, newStore(t)) })
	t.Run("TransitionUnknown", func(t *testing.T) { testTransitionUnknown(t, newStore(t)) })
	t.Run("Leaderboard", func(t *testing.T) { testLeaderboard(t, newStore(t)) })
	t.Run("ListPending", func(t *testing.T) { testListPending(t, newStore(t)) })
	t.Run("ListAndCount", func(t *testing.T) { testListAndCount(t, newStore(t)) })
	t.Run("Fulfillment", func(t *testing.T) { testFulfillment(t, newStore(t)) })
	t.Run("CallbackLogs", func(t *testing.T) { testCallbackLogs(t, newStore(t)) })
}

// NewOrder builds a PENDING paperback order.
func NewOrder(id, txn string) *domain.Order {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Order{
		Payment: domain.Payment{
			ID:                    id,
			MerchantTransactionID: txn,
			UserID:                "MUID" + id,
			Amount:                29900,
			Currency:              "INR",
			Status:                domain.StatusPending,
			CreatedAt:             now,
			UpdatedAt:             now,
		},
		Variant:  "paperback",
		Quantity: 1,
		Name:     "Asha",
		Phone:    "9999999999",
		Address: domain.Address{
			Line1:    "12 Temple Road",
			City:     "Pune",
			State:    "MH",
			Postcode: "411001",
			Country:  "IN",
		},
		FulfillmentStatus: domain.FulfillmentNew,
	}
}

// NewDonation builds a PENDING donation.
func NewDonation(id, txn, user string, amount int64) *domain.Donation {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Donation{
		Payment: domain.Payment{
			ID:                    id,
			MerchantTransactionID: txn,
			UserID:                user,
			Amount:                amount,
			Currency:              "INR",
			Status:                domain.StatusPending,
			CreatedAt:             now,
			UpdatedAt:             now,
		},
		Name:  "Donor " + user,
		Phone: "8888888888",
	}
}

func success(details string) domain.Transition {
	return domain.Transition{To: domain.StatusSuccess, Details: []byte(details), At: time.Now()}
}

func failure(details string) domain.Transition {
	return domain.Transition{To: domain.StatusFailure, Details: []byte(details), At: time.Now()}
}

func testCreateAndGetOrder(t *testing.T, s Store) {
	ctx := context.Background()
	o := NewOrder("o1", "MT1")
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MerchantTransactionID != "MT1" || got.Amount != 29900 || got.Status != domain.StatusPending {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got.Address.City != "Pune" || got.FulfillmentStatus != domain.FulfillmentNew {
		t.Fatalf("unexpected order details: %+v", got)
	}
	if got.PaymentDetails != nil {
		t.Fatalf("expected no payment details, got %s", got.PaymentDetails)
	}

	if _, err := s.GetOrder(ctx, "missing"); !errors.Is(err, apperr.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func testDuplicate(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.CreateOrder(ctx, NewOrder("o1", "MT1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateOrder(ctx, NewOrder("o2", "MT1")); !errors.Is(err, apperr.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused txn, got %v", err)
	}
	if err := s.CreateDonation(ctx, NewDonation("d1", "MTD1", "u1", 100)); err != nil {
		t.Fatalf("create donation: %v", err)
	}
	if err := s.CreateDonation(ctx, NewDonation("d1", "MTD2", "u1", 100)); !errors.Is(err, apperr.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused id, got %v", err)
	}
}

func testCreateAndGetDonation(t *testing.T, s Store) {
	ctx := context.Background()
	d := NewDonation("d1", "MTD1", "u1", 50000)
	d.Message = "for the temple"
	if err := s.CreateDonation(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetDonation(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 50000 || got.Message != "for the temple" || got.Status != domain.StatusPending {
		t.Fatalf("unexpected donation: %+v", got)
	}
	if _, err := s.GetDonation(ctx, "nope"); !errors.Is(err, apperr.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func testFindPayment(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.CreateOrder(ctx, NewOrder("o1", "MT1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	p, err := s.FindPayment(ctx, domain.KindOrder, "MT1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if p.ID != "o1" || p.Amount != 29900 {
		t.Fatalf("unexpected payment: %+v", p)
	}
	if _, err := s.FindPayment(ctx, domain.KindDonation, "MT1"); !errors.Is(err, apperr.ErrRecordNotFound) {
		t.Fatalf("order txn must not resolve as donation, got %v", err)
	}
}

func testTransitionSuccess(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.CreateDonation(ctx, NewDonation("d1", "MTD1", "u1", 50000)); err != nil {
		t.Fatalf("create: %v", err)
	}

	applied, err := s.Transition(ctx, domain.KindDonation, "MTD1", success(`{"code":"PAYMENT_SUCCESS"}`))
	if err != nil || !applied {
		t.Fatalf("expected applied transition, got applied=%v err=%v", applied, err)
	}
	applied, err = s.Transition(ctx, domain.KindDonation, "MTD1", success(`{"code":"PAYMENT_SUCCESS","n":2}`))
	if err != nil || applied {
		t.Fatalf("expected repeat to be a no-op, got applied=%v err=%v", applied, err)
	}

	d, err := s.GetDonation(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", d.Status)
	}
	if string(d.PaymentDetails) != `{"code":"PAYMENT_SUCCESS"}` {
		t.Fatalf("details overwritten by duplicate: %s", d.PaymentDetails)
	}

	totals, err := s.Totals(ctx, domain.KindDonation)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if len(totals) != 1 || totals[0].Amount != 50000 || totals[0].Count != 1 || totals[0].Currency != "INR" {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	orderTotals, err := s.Totals(ctx, domain.KindOrder)
	if err != nil {
		t.Fatalf("order totals: %v", err)
	}
	if len(orderTotals) != 0 {
		t.Fatalf("donation leaked into order totals: %+v", orderTotals)
	}
}

func testTransitionFailure(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.CreateOrder(ctx, NewOrder("o1", "MT1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	applied, err := s.Transition(ctx, domain.KindOrder, "MT1", failure(`{"code":"PAYMENT_ERROR"}`))
	if err != nil || !applied {
		t.Fatalf("expected applied failure, got applied=%v err=%v", applied, err)
	}
	totals, err := s.Totals(ctx, domain.KindOrder)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if len(totals) != 0 {
		t.Fatalf("failure must not touch totals: %+v", totals)
	}
	entries, err := s.Leaderboard(ctx, domain.KindOrder, "INR", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("failure must not touch leaderboard: %+v", entries)
	}
}

func testTerminalIsFinal(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.CreateOrder(ctx, NewOrder("o1", "MT1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Transition(ctx, domain.KindOrder, "MT1", failure(`{"code":"PAYMENT_ERROR"}`)); err != nil {
		t.Fatalf("transition: %v", err)
	}
	applied, err := s.Transition(ctx, domain.KindOrder, "MT1", success(`{"code":"PAYMENT_SUCCESS"}`))
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if applied {
		t.Fatal("FAILURE must not move to SUCCESS")
	}
	o, err := s.GetOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.Status != domain.StatusFailure {
		t.Fatalf("expected FAILURE, got %s", o.Status)
	}
	if _, err := s.Transition(ctx, domain.KindOrder, "MT1", domain.Transition{To: domain.StatusPending}); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for PENDING target, got %v", err)
	}
}

func testConcurrentTransitions(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.CreateDonation(ctx, NewDonation("d1", "MTD1", "u1", 1000)); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 16
	results := make([]bool, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			applied, err := s.Transition(ctx, domain.KindDonation, "MTD1", success(fmt.Sprintf(`{"worker":%d}`, i)))
			results[i] = applied
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("transition: %v", err)
	}

	n := 0
	for _, applied := range results {
		if applied {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("expected exactly one applied transition, got %d", n)
	}

	totals, err := s.Totals(ctx, domain.KindDonation)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if len(totals) != 1 || totals[0].Amount != 1000 || totals[0].Count != 1 {
		t.Fatalf("expected a single increment, got %+v", totals)
	}
}

func testTransitionUnknown(t *testing.T, s Store) {
	_, err := s.Transition(context.Background(), domain.KindOrder, "MT-missing", success(`{}`))
	if !errors.Is(err, apperr.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func testLeaderboard(t *testing.T, s Store) {
	ctx := context.Background()
	donations := []*domain.Donation{
		NewDonation("d1", "MT1", "alice", 1000),
		NewDonation("d2", "MT2", "bob", 5000),
		NewDonation("d3", "MT3", "alice", 3000),
		NewDonation("d4", "MT4", "carol", 2000),
	}
	for _, d := range donations {
		if err := s.CreateDonation(ctx, d); err != nil {
			t.Fatalf("create %s: %v", d.ID, err)
		}
		if _, err := s.Transition(ctx, domain.KindDonation, d.MerchantTransactionID, success(`{}`)); err != nil {
			t.Fatalf("transition %s: %v", d.ID, err)
		}
	}

	entries, err := s.Leaderboard(ctx, domain.KindDonation, "INR", 2)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].UserID != "bob" || entries[0].Amount != 5000 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].UserID != "alice" || entries[1].Amount != 4000 || entries[1].Count != 2 {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}

	usd, err := s.Leaderboard(ctx, domain.KindDonation, "USD", 10)
	if err != nil {
		t.Fatalf("leaderboard usd: %v", err)
	}
	if len(usd) != 0 {
		t.Fatalf("expected no USD entries, got %+v", usd)
	}
}

func testListPending(t *testing.T, s Store) {
	ctx := context.Background()
	old := NewOrder("o1", "MT1")
	old.CreatedAt = time.Now().Add(-2 * time.Hour).UTC().Truncate(time.Second)
	fresh := NewOrder("o2", "MT2")
	settled := NewOrder("o3", "MT3")
	settled.CreatedAt = old.CreatedAt

	for _, o := range []*domain.Order{old, fresh, settled} {
		if err := s.CreateOrder(ctx, o); err != nil {
			t.Fatalf("create %s: %v", o.ID, err)
		}
	}
	if _, err := s.Transition(ctx, domain.KindOrder, "MT3", failure(`{}`)); err != nil {
		t.Fatalf("transition: %v", err)
	}

	pending, err := s.ListPending(ctx, domain.KindOrder, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].MerchantTransactionID != "MT1" {
		t.Fatalf("expected only MT1, got %+v", pending)
	}
}

func testListAndCount(t *testing.T, s Store) {
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		o := NewOrder(fmt.Sprintf("o%d", i), fmt.Sprintf("MT%d", i))
		o.CreatedAt = o.CreatedAt.Add(time.Duration(i) * time.Second)
		if err := s.CreateOrder(ctx, o); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := s.Transition(ctx, domain.KindOrder, "MT2", success(`{}`)); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := s.Transition(ctx, domain.KindOrder, "MT4", failure(`{}`)); err != nil {
		t.Fatalf("transition: %v", err)
	}

	all, total, err := s.ListOrders(ctx, domain.ListFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(all) != 2 {
		t.Fatalf("expected page of 2 out of 5, got %d of %d", len(all), total)
	}
	if all[0].ID != "o5" {
		t.Fatalf("expected newest first, got %s", all[0].ID)
	}

	page3, _, err := s.ListOrders(ctx, domain.ListFilter{Limit: 2, Page: 3})
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(page3) != 1 || page3[0].ID != "o1" {
		t.Fatalf("unexpected last page: %+v", page3)
	}

	paid, total, err := s.ListOrders(ctx, domain.ListFilter{Status: domain.StatusSuccess})
	if err != nil {
		t.Fatalf("list paid: %v", err)
	}
	if total != 1 || len(paid) != 1 || paid[0].ID != "o2" {
		t.Fatalf("unexpected paid orders: %+v", paid)
	}

	counts, err := s.CountByStatus(ctx, domain.KindOrder)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	want := domain.StatusCounts{Pending: 3, Success: 1, Failure: 1}
	if counts != want {
		t.Fatalf("expected %+v, got %+v", want, counts)
	}

	donations, total, err := s.ListDonations(ctx, domain.ListFilter{})
	if err != nil {
		t.Fatalf("list donations: %v", err)
	}
	if total != 0 || len(donations) != 0 {
		t.Fatalf("expected no donations, got %d", total)
	}
}

func testFulfillment(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.CreateOrder(ctx, NewOrder("o1", "MT1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.UpdateFulfillment(ctx, "o1", domain.FulfillmentDispatched); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("unpaid order must not ship, got %v", err)
	}
	if _, err := s.Transition(ctx, domain.KindOrder, "MT1", success(`{}`)); err != nil {
		t.Fatalf("transition: %v", err)
	}

	o, err := s.UpdateFulfillment(ctx, "o1", domain.FulfillmentDispatched)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if o.FulfillmentStatus != domain.FulfillmentDispatched || o.Status != domain.StatusSuccess {
		t.Fatalf("unexpected order: %+v", o)
	}
	if _, err := s.UpdateFulfillment(ctx, "o1", domain.FulfillmentNew); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition going backwards, got %v", err)
	}
	if _, err := s.UpdateFulfillment(ctx, "missing", domain.FulfillmentDispatched); !errors.Is(err, apperr.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	got, err := s.GetOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FulfillmentStatus != domain.FulfillmentDispatched {
		t.Fatalf("fulfillment not persisted: %s", got.FulfillmentStatus)
	}
}

func testCallbackLogs(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	logs := []*domain.CallbackLog{
		{ID: "c1", Kind: domain.KindOrder, MerchantTransactionID: "MT1", Verified: false, Outcome: domain.OutcomeRejected, Payload: "a", ReceivedAt: base},
		{ID: "c2", Kind: domain.KindOrder, MerchantTransactionID: "MT1", Verified: true, Outcome: domain.OutcomeApplied, Payload: "b", ReceivedAt: base.Add(time.Second)},
		{ID: "c3", Kind: domain.KindOrder, Verified: false, Outcome: domain.OutcomeMalformed, Payload: "c", ReceivedAt: base},
	}
	for _, l := range logs {
		if err := s.LogCallback(ctx, l); err != nil {
			t.Fatalf("log %s: %v", l.ID, err)
		}
	}

	got, err := s.CallbackLogs(ctx, "MT1")
	if err != nil {
		t.Fatalf("callback logs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(got))
	}
	if got[0].ID != "c1" || got[1].ID != "c2" || !got[1].Verified || got[1].Outcome != domain.OutcomeApplied {
		t.Fatalf("unexpected logs: %+v", got)
	}
}
