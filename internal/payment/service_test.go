package payment_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/checksum"
	"github.com/natureofthedivine/storefront/internal/domain"
	"github.com/natureofthedivine/storefront/internal/gateway"
	"github.com/natureofthedivine/storefront/internal/gateway/gatewaytest"
	"github.com/natureofthedivine/storefront/internal/payment"
	"github.com/natureofthedivine/storefront/internal/pricing"
	"github.com/natureofthedivine/storefront/internal/repository"
)

type harness struct {
	svc   *payment.Service
	store *repository.Store
	gw    *gatewaytest.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := repository.Open(filepath.Join(t.TempDir(), "payment.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	gw := gatewaytest.New(t)
	client := gateway.New(gw.KeysFor(), 2*time.Second)
	resolver := pricing.NewResolver(nil, 0, time.Hour, 0)
	svc := payment.NewService(store, client, resolver, gatewaytest.Keys.Salt(), "https://shop.example/")
	return &harness{svc: svc, store: store, gw: gw}
}

func paperback() payment.OrderRequest {
	return payment.OrderRequest{
		Variant: "paperback",
		Name:    "Asha",
		Phone:   "+91 98765-43210",
		Address: domain.Address{Line1: "12 Temple Road", City: "Pune", Postcode: "411001"},
	}
}

func (h *harness) placeOrder(t *testing.T) *payment.Initiation {
	t.Helper()
	init, err := h.svc.InitiateOrder(context.Background(), paperback())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return init
}

func (h *harness) callback(t *testing.T, kind domain.Kind, txn, code string) (domain.CallbackOutcome, error) {
	t.Helper()
	response, header := gatewaytest.Callback(txn, code, 29900)
	return h.svc.HandleCallback(context.Background(), kind, payment.Callback{Response: response, Header: header})
}

func (h *harness) order(t *testing.T, id string) *domain.Order {
	t.Helper()
	o, err := h.svc.OrderStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if o == nil {
		t.Fatalf("order %s not found", id)
	}
	return o
}

func (h *harness) totals(t *testing.T, kind domain.Kind) []domain.Total {
	t.Helper()
	totals, err := h.store.Totals(context.Background(), kind)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	return totals
}

func TestInitiateOrderStoresPendingBeforeRedirect(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)

	if init.Amount != 29900 || init.Currency != "INR" {
		t.Fatalf("expected 29900 INR, got %d %s", init.Amount, init.Currency)
	}
	if !strings.HasPrefix(init.MerchantTransactionID, "MT") {
		t.Fatalf("unexpected merchant transaction id %q", init.MerchantTransactionID)
	}
	if !strings.Contains(init.RedirectURL, init.MerchantTransactionID) {
		t.Fatalf("redirect %q does not come from the gateway", init.RedirectURL)
	}

	o := h.order(t, init.ID)
	if o.Status != domain.StatusPending || o.MerchantTransactionID != init.MerchantTransactionID {
		t.Fatalf("unexpected stored order: %+v", o)
	}
	if o.Phone != "919876543210" || o.Address.Country != "IN" || o.FulfillmentStatus != domain.FulfillmentNew {
		t.Fatalf("order not normalized: %+v", o)
	}
	if !strings.HasPrefix(o.UserID, "MUID") {
		t.Fatalf("expected generated user id, got %q", o.UserID)
	}

	pays := h.gw.Pays()
	if len(pays) != 1 {
		t.Fatalf("expected 1 pay request, got %d", len(pays))
	}
	p := pays[0]
	if p.MerchantTransactionID != init.MerchantTransactionID || p.Amount != 29900 || p.MerchantUserID != o.UserID {
		t.Fatalf("unexpected pay request: %+v", p)
	}
	if p.CallbackURL != "https://shop.example/api/v1/callbacks/order?txn="+init.MerchantTransactionID {
		t.Fatalf("unexpected callback url %q", p.CallbackURL)
	}
	if !strings.Contains(p.RedirectURL, init.MerchantTransactionID) {
		t.Fatalf("redirect url %q does not embed the transaction id", p.RedirectURL)
	}
}

func TestOrderPaidEndToEnd(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)
	h.gw.SetStatus(init.MerchantTransactionID, "PAYMENT_SUCCESS")

	outcome, err := h.callback(t, domain.KindOrder, init.MerchantTransactionID, "PAYMENT_SUCCESS")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if outcome != domain.OutcomeApplied {
		t.Fatalf("expected APPLIED, got %s", outcome)
	}

	o := h.order(t, init.ID)
	if o.Status != domain.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", o.Status)
	}
	if !strings.Contains(string(o.PaymentDetails), "PAYMENT_SUCCESS") {
		t.Fatalf("expected status check body as details, got %s", o.PaymentDetails)
	}

	totals := h.totals(t, domain.KindOrder)
	if len(totals) != 1 || totals[0].Amount != 29900 || totals[0].Count != 1 {
		t.Fatalf("expected total of 29900, got %+v", totals)
	}

	board, err := h.store.Leaderboard(context.Background(), domain.KindOrder, "INR", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].UserID != o.UserID || board[0].Amount != 29900 {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}
}

func TestOrderFailedEndToEnd(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)
	h.gw.SetStatus(init.MerchantTransactionID, "PAYMENT_ERROR")

	outcome, err := h.callback(t, domain.KindOrder, init.MerchantTransactionID, "PAYMENT_ERROR")
	if err != nil || outcome != domain.OutcomeApplied {
		t.Fatalf("expected APPLIED, got %s %v", outcome, err)
	}
	if o := h.order(t, init.ID); o.Status != domain.StatusFailure {
		t.Fatalf("expected FAILURE, got %s", o.Status)
	}
	if totals := h.totals(t, domain.KindOrder); len(totals) != 0 {
		t.Fatalf("failure changed totals: %+v", totals)
	}
}

func TestSuccessForWrongAmountFails(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)
	h.gw.SetStatus(init.MerchantTransactionID, "PAYMENT_SUCCESS")
	h.gw.SetAmount(init.MerchantTransactionID, 100)

	outcome, err := h.callback(t, domain.KindOrder, init.MerchantTransactionID, "PAYMENT_SUCCESS")
	if err != nil || outcome != domain.OutcomeApplied {
		t.Fatalf("expected APPLIED, got %s %v", outcome, err)
	}
	if o := h.order(t, init.ID); o.Status != domain.StatusFailure {
		t.Fatalf("expected FAILURE for mismatched amount, got %s", o.Status)
	}
	if totals := h.totals(t, domain.KindOrder); len(totals) != 0 {
		t.Fatalf("mismatched success changed totals: %+v", totals)
	}
}

func TestRecheckRejectsWrongAmount(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)
	h.gw.SetStatus(init.MerchantTransactionID, "PAYMENT_SUCCESS")
	h.gw.SetAmount(init.MerchantTransactionID, init.Amount+1)

	res, err := h.svc.Recheck(context.Background(), domain.KindOrder, init.MerchantTransactionID)
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if res.Status != domain.StatusFailure || !res.Applied {
		t.Fatalf("expected applied FAILURE, got %+v", res)
	}
	if totals := h.totals(t, domain.KindOrder); len(totals) != 0 {
		t.Fatalf("mismatched success changed totals: %+v", totals)
	}
}

func TestCallbackStatusIsReconfirmed(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)
	// The callback claims success; the gateway's status endpoint disagrees.
	h.gw.SetStatus(init.MerchantTransactionID, "PAYMENT_DECLINED")

	if _, err := h.callback(t, domain.KindOrder, init.MerchantTransactionID, "PAYMENT_SUCCESS"); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if o := h.order(t, init.ID); o.Status != domain.StatusFailure {
		t.Fatalf("expected FAILURE from status check, got %s", o.Status)
	}
	if h.gw.StatusCalls(init.MerchantTransactionID) != 1 {
		t.Fatalf("expected one status check, got %d", h.gw.StatusCalls(init.MerchantTransactionID))
	}
}

func TestDuplicateCallbackAppliesOnce(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)
	h.gw.SetStatus(init.MerchantTransactionID, "PAYMENT_SUCCESS")

	first, err := h.callback(t, domain.KindOrder, init.MerchantTransactionID, "PAYMENT_SUCCESS")
	if err != nil || first != domain.OutcomeApplied {
		t.Fatalf("first delivery: %s %v", first, err)
	}
	second, err := h.callback(t, domain.KindOrder, init.MerchantTransactionID, "PAYMENT_SUCCESS")
	if err != nil || second != domain.OutcomeDuplicate {
		t.Fatalf("second delivery: %s %v", second, err)
	}

	totals := h.totals(t, domain.KindOrder)
	if len(totals) != 1 || totals[0].Amount != 29900 || totals[0].Count != 1 {
		t.Fatalf("expected a single increment, got %+v", totals)
	}
	if h.gw.StatusCalls(init.MerchantTransactionID) != 2 {
		t.Fatalf("each delivery must re-confirm status, got %d calls", h.gw.StatusCalls(init.MerchantTransactionID))
	}
}

func TestConcurrentDonationCallbacksApplyOnce(t *testing.T) {
	h := newHarness(t)
	init, err := h.svc.InitiateDonation(context.Background(), payment.DonationRequest{
		Amount: decimal.NewFromInt(501),
		UserID: "devotee-1",
		Name:   "Ravi",
		Phone:  "9876543210",
	})
	if err != nil {
		t.Fatalf("initiate donation: %v", err)
	}
	h.gw.SetStatus(init.MerchantTransactionID, "PAYMENT_SUCCESS")

	response, header := gatewaytest.Callback(init.MerchantTransactionID, "PAYMENT_SUCCESS", init.Amount)

	var mu sync.Mutex
	outcomes := map[domain.CallbackOutcome]int{}
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			outcome, err := h.svc.HandleCallback(context.Background(), domain.KindDonation,
				payment.Callback{Response: response, Header: header})
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("callback: %v", err)
	}

	if outcomes[domain.OutcomeApplied] != 1 || outcomes[domain.OutcomeDuplicate] != 7 {
		t.Fatalf("expected 1 applied and 7 duplicates, got %v", outcomes)
	}
	totals := h.totals(t, domain.KindDonation)
	if len(totals) != 1 || totals[0].Amount != 50100 || totals[0].Count != 1 {
		t.Fatalf("expected a single 50100 increment, got %+v", totals)
	}
}

func TestUnknownTransactionIsAcknowledged(t *testing.T) {
	h := newHarness(t)

	outcome, err := h.callback(t, domain.KindOrder, "MT-never-issued", "PAYMENT_SUCCESS")
	if err != nil {
		t.Fatalf("expected acknowledgment, got %v", err)
	}
	if outcome != domain.OutcomeUnknownTransaction {
		t.Fatalf("expected UNKNOWN_TRANSACTION, got %s", outcome)
	}
	if _, err := h.store.FindPayment(context.Background(), domain.KindOrder, "MT-never-issued"); !errors.Is(err, apperr.ErrRecordNotFound) {
		t.Fatalf("callback must not create a record, got %v", err)
	}
	if n := h.gw.StatusCalls("MT-never-issued"); n != 0 {
		t.Fatalf("expected no status check, got %d", n)
	}
}

func TestChecksumMismatchRejected(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)
	h.gw.SetStatus(init.MerchantTransactionID, "PAYMENT_SUCCESS")
	response, header := gatewaytest.Callback(init.MerchantTransactionID, "PAYMENT_SUCCESS", 29900)
	hash, _, _ := checksum.SplitHeader(header)
	tampered := []byte(header)
	if tampered[0] == '0' {
		tampered[0] = '1'
	} else {
		tampered[0] = '0'
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "tampered_hash", header: string(tampered)},
		{name: "wrong_salt_index", header: hash + "###2"},
		{name: "wrong_key", header: checksum.Sign(checksum.Salt{Key: "other", Index: 1}, response)},
		{name: "missing", header: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := h.svc.HandleCallback(context.Background(), domain.KindOrder,
				payment.Callback{Response: response, Header: tt.header})
			if !errors.Is(err, apperr.ErrChecksumMismatch) {
				t.Fatalf("expected ErrChecksumMismatch, got %v", err)
			}
			if outcome != domain.OutcomeRejected {
				t.Fatalf("expected REJECTED, got %s", outcome)
			}
		})
	}

	if o := h.order(t, init.ID); o.Status != domain.StatusPending {
		t.Fatalf("rejected callbacks mutated the order: %s", o.Status)
	}
	if n := h.gw.StatusCalls(init.MerchantTransactionID); n != 0 {
		t.Fatalf("rejected callbacks reached the gateway %d times", n)
	}
}

func TestMalformedCallbackRejected(t *testing.T) {
	h := newHarness(t)
	response := "not base64!"
	header := checksum.Sign(gatewaytest.Keys.Salt(), response)

	outcome, err := h.svc.HandleCallback(context.Background(), domain.KindOrder,
		payment.Callback{Response: response, Header: header})
	if !errors.Is(err, apperr.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if outcome != domain.OutcomeMalformed {
		t.Fatalf("expected MALFORMED, got %s", outcome)
	}
}

func TestGatewayDownLeavesPending(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)
	h.gw.SetStatusDown(true)

	outcome, err := h.callback(t, domain.KindOrder, init.MerchantTransactionID, "PAYMENT_SUCCESS")
	if err != nil {
		t.Fatalf("expected acknowledgment, got %v", err)
	}
	if outcome != domain.OutcomeGatewayUnavailable {
		t.Fatalf("expected GATEWAY_UNAVAILABLE, got %s", outcome)
	}
	if o := h.order(t, init.ID); o.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", o.Status)
	}
}

func TestUnrecognizedStatusFailsSafe(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)
	h.gw.SetStatus(init.MerchantTransactionID, "GARBAGE")

	if _, err := h.callback(t, domain.KindOrder, init.MerchantTransactionID, "PAYMENT_SUCCESS"); err != nil {
		t.Fatalf("callback: %v", err)
	}
	o := h.order(t, init.ID)
	if o.Status != domain.StatusFailure {
		t.Fatalf("expected FAILURE, got %s", o.Status)
	}
	if !strings.Contains(string(o.PaymentDetails), "unrecognized") {
		t.Fatalf("expected synthesized reason, got %s", o.PaymentDetails)
	}
}

func TestStatusQueryNotFound(t *testing.T) {
	h := newHarness(t)

	o, err := h.svc.OrderStatus(context.Background(), "no-such-order")
	if err != nil || o != nil {
		t.Fatalf("expected nil, nil; got %v, %v", o, err)
	}
	d, err := h.svc.DonationStatus(context.Background(), "no-such-donation")
	if err != nil || d != nil {
		t.Fatalf("expected nil, nil; got %v, %v", d, err)
	}
}

func TestInitiationRejectedMarksFailure(t *testing.T) {
	h := newHarness(t)
	h.gw.SetNoRedirect(true)

	if _, err := h.svc.InitiateOrder(context.Background(), paperback()); !errors.Is(err, apperr.ErrPaymentInitiation) {
		t.Fatalf("expected ErrPaymentInitiation, got %v", err)
	}

	orders, total, err := h.store.ListOrders(context.Background(), domain.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || orders[0].Status != domain.StatusFailure {
		t.Fatalf("expected one FAILURE order, got %+v", orders)
	}
}

func TestInitiationGatewayDownLeavesPending(t *testing.T) {
	h := newHarness(t)
	h.gw.SetPayDown(true)

	if _, err := h.svc.InitiateOrder(context.Background(), paperback()); !errors.Is(err, apperr.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	orders, _, err := h.store.ListOrders(context.Background(), domain.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != domain.StatusPending {
		t.Fatalf("expected one PENDING order, got %+v", orders)
	}
}

func TestRecheck(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)

	res, err := h.svc.Recheck(context.Background(), domain.KindOrder, init.MerchantTransactionID)
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if res.Applied || res.Status != domain.StatusPending {
		t.Fatalf("pending payment must stay PENDING, got %+v", res)
	}

	h.gw.SetStatus(init.MerchantTransactionID, "PAYMENT_SUCCESS")
	res, err = h.svc.Recheck(context.Background(), domain.KindOrder, init.MerchantTransactionID)
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if !res.Applied || res.Status != domain.StatusSuccess {
		t.Fatalf("expected applied SUCCESS, got %+v", res)
	}
}

func TestCallbacksAreAudited(t *testing.T) {
	h := newHarness(t)
	init := h.placeOrder(t)
	h.gw.SetStatus(init.MerchantTransactionID, "PAYMENT_SUCCESS")

	response, _ := gatewaytest.Callback(init.MerchantTransactionID, "PAYMENT_SUCCESS", 29900)
	h.svc.HandleCallback(context.Background(), domain.KindOrder, payment.Callback{Response: response, Header: "bad"})
	h.callback(t, domain.KindOrder, init.MerchantTransactionID, "PAYMENT_SUCCESS")

	logs, err := h.store.CallbackLogs(context.Background(), init.MerchantTransactionID)
	if err != nil {
		t.Fatalf("callback logs: %v", err)
	}
	// The rejected callback was never decoded, so it carries no transaction id.
	if len(logs) != 1 || logs[0].Outcome != domain.OutcomeApplied || !logs[0].Verified {
		t.Fatalf("unexpected audit log: %+v", logs)
	}
}

type recordingArchiver struct {
	mu   sync.Mutex
	logs []domain.CallbackLog
}

func (a *recordingArchiver) Archive(ctx context.Context, l *domain.CallbackLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, *l)
	return nil
}

func TestCallbacksAreArchived(t *testing.T) {
	h := newHarness(t)
	arch := &recordingArchiver{}
	h.svc.SetArchiver(arch)

	h.callback(t, domain.KindDonation, "MT-unknown", "PAYMENT_SUCCESS")

	if len(arch.logs) != 1 || arch.logs[0].Outcome != domain.OutcomeUnknownTransaction {
		t.Fatalf("unexpected archive: %+v", arch.logs)
	}
}

func TestInitiateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	orders := []struct {
		name   string
		modify func(r *payment.OrderRequest)
	}{
		{name: "unknown_variant", modify: func(r *payment.OrderRequest) { r.Variant = "audiobook" }},
		{name: "short_phone", modify: func(r *payment.OrderRequest) { r.Phone = "12345" }},
		{name: "letters_in_phone", modify: func(r *payment.OrderRequest) { r.Phone = "98765abc10" }},
		{name: "too_many", modify: func(r *payment.OrderRequest) { r.Quantity = 11 }},
		{name: "no_name", modify: func(r *payment.OrderRequest) { r.Name = " " }},
		{name: "no_address", modify: func(r *payment.OrderRequest) { r.Address = domain.Address{} }},
	}
	for _, tt := range orders {
		t.Run(tt.name, func(t *testing.T) {
			req := paperback()
			tt.modify(&req)
			if _, err := h.svc.InitiateOrder(ctx, req); !errors.Is(err, apperr.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}

	donations := []struct {
		name string
		req  payment.DonationRequest
	}{
		{name: "below_minimum", req: payment.DonationRequest{Amount: decimal.RequireFromString("0.50"), Phone: "9876543210"}},
		{name: "sub_paisa", req: payment.DonationRequest{Amount: decimal.RequireFromString("10.005"), Phone: "9876543210"}},
		{name: "unsupported_currency", req: payment.DonationRequest{Amount: decimal.NewFromInt(10), Currency: "JPY", Phone: "9876543210"}},
		{name: "above_maximum", req: payment.DonationRequest{Amount: decimal.RequireFromString("1000000.01"), Phone: "9876543210"}},
		{name: "past_int64", req: payment.DonationRequest{Amount: decimal.RequireFromString("100000000000000000"), Phone: "9876543210"}},
		{name: "long_message", req: payment.DonationRequest{Amount: decimal.NewFromInt(10), Phone: "9876543210", Message: strings.Repeat("a", 501)}},
	}
	for _, tt := range donations {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.InitiateDonation(ctx, tt.req); !errors.Is(err, apperr.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}

	if n := len(h.gw.Pays()); n != 0 {
		t.Fatalf("invalid requests reached the gateway %d times", n)
	}
}

func TestOrderPricedForCountryAndQuantity(t *testing.T) {
	h := newHarness(t)
	req := paperback()
	req.Variant = "Hardcover"
	req.Quantity = 2
	req.Hint = pricing.Hint{Country: "us"}

	init, err := h.svc.InitiateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if init.Amount != 2998 || init.Currency != "USD" {
		t.Fatalf("expected 2998 USD, got %d %s", init.Amount, init.Currency)
	}
}

func TestDonationInExplicitCurrency(t *testing.T) {
	h := newHarness(t)
	init, err := h.svc.InitiateDonation(context.Background(), payment.DonationRequest{
		Amount:   decimal.RequireFromString("10.50"),
		Currency: "usd",
		Phone:    "9876543210",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if init.Amount != 1050 || init.Currency != "USD" {
		t.Fatalf("expected 1050 USD, got %d %s", init.Amount, init.Currency)
	}
}

func TestDonationMessageLimitCountsCharacters(t *testing.T) {
	h := newHarness(t)
	// 500 characters, 1500 bytes.
	msg := strings.Repeat("ॐ", 500)

	init, err := h.svc.InitiateDonation(context.Background(), payment.DonationRequest{
		Amount:  decimal.NewFromInt(1_000_000),
		Phone:   "9876543210",
		Message: msg,
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if init.Amount != 100_000_000 {
		t.Fatalf("expected 100000000 minor units, got %d", init.Amount)
	}
	d, err := h.svc.DonationStatus(context.Background(), init.ID)
	if err != nil || d == nil {
		t.Fatalf("donation status: %v", err)
	}
	if d.Message != msg {
		t.Fatalf("message not stored intact")
	}
}
