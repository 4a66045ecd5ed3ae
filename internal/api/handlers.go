package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/domain"
	"github.com/natureofthedivine/storefront/internal/payment"
	"github.com/natureofthedivine/storefront/internal/pricing"
	"github.com/natureofthedivine/storefront/internal/reconciliation"
	"github.com/natureofthedivine/storefront/internal/shipping"
)

const maxBody = 1 << 20

// Payments is implemented by *payment.Service.
type Payments interface {
	InitiateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Initiation, error)
	InitiateDonation(ctx context.Context, req payment.DonationRequest) (*payment.Initiation, error)
	OrderStatus(ctx context.Context, id string) (*domain.Order, error)
	DonationStatus(ctx context.Context, id string) (*domain.Donation, error)
	HandleCallback(ctx context.Context, kind domain.Kind, cb payment.Callback) (domain.CallbackOutcome, error)
}

// Store is the read side of the record store plus the admin mutations.
type Store interface {
	ListOrders(ctx context.Context, f domain.ListFilter) ([]domain.Order, int, error)
	ListDonations(ctx context.Context, f domain.ListFilter) ([]domain.Donation, int, error)
	UpdateFulfillment(ctx context.Context, id string, to domain.FulfillmentStatus) (*domain.Order, error)
	CountByStatus(ctx context.Context, kind domain.Kind) (domain.StatusCounts, error)
	Totals(ctx context.Context, kind domain.Kind) ([]domain.Total, error)
	Leaderboard(ctx context.Context, kind domain.Kind, currency string, limit int) ([]domain.LeaderboardEntry, error)
	CallbackLogs(ctx context.Context, merchantTxnID string) ([]domain.CallbackLog, error)
	Ping(ctx context.Context) error
}

type Pricer interface {
	Resolve(ctx context.Context, hint pricing.Hint) pricing.Quote
}

// Shipper is implemented by *shipping.Client.
type Shipper interface {
	Rates(ctx context.Context, postcode string, weightKg decimal.Decimal) ([]shipping.Rate, error)
}

// Reconciler is implemented by *reconciliation.Service.
type Reconciler interface {
	Run(ctx context.Context) (*reconciliation.Result, error)
}

// Deps are the services the HTTP surface sits on.
type Deps struct {
	Payments   Payments
	Store      Store
	Pricer     Pricer
	Shipper    Shipper
	Reconciler Reconciler
	AdminToken string
}

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	payments   Payments
	store      Store
	pricer     Pricer
	shipper    Shipper
	reconciler Reconciler
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps err to a status. Client errors carry their message;
// server-side failures are logged and answered with public.
func writeAppError(w http.ResponseWriter, err error, public string) {
	status := apperr.HTTPStatus(err)
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
		writeError(w, status, err.Error())
	default:
		log.Printf("[api] %s: %v", public, err)
		writeError(w, status, public)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(dst); err != nil {
		return errors.Join(apperr.ErrInvalidRequest, err)
	}
	return nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// clientIP reads r.RemoteAddr, which middleware.RealIP has already
// replaced with the forwarded address when there is one.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parseKind(s string) (domain.Kind, bool) {
	if s == "" {
		return domain.KindDonation, true
	}
	k := domain.Kind(strings.ToLower(s))
	return k, k.Valid()
}

// --- orders ---

type orderBody struct {
	payment.OrderRequest
	Country string `json:"country"`
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var body orderBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req := body.OrderRequest
	req.Hint = pricing.Hint{Country: body.Country, IP: clientIP(r)}

	started, err := h.payments.InitiateOrder(r.Context(), req)
	if err != nil {
		writeAppError(w, err, "payment could not be initiated")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"orderId":               started.ID,
		"merchantTransactionId": started.MerchantTransactionID,
		"redirectUrl":           started.RedirectURL,
		"amount":                started.Amount,
		"currency":              started.Currency,
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.payments.OrderStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err, "could not load order")
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// --- donations ---

type donationBody struct {
	payment.DonationRequest
	Country string `json:"country"`
}

func (h *Handlers) CreateDonation(w http.ResponseWriter, r *http.Request) {
	var body donationBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req := body.DonationRequest
	req.Hint = pricing.Hint{Country: body.Country, IP: clientIP(r)}

	started, err := h.payments.InitiateDonation(r.Context(), req)
	if err != nil {
		writeAppError(w, err, "payment could not be initiated")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"donationId":            started.ID,
		"merchantTransactionId": started.MerchantTransactionID,
		"redirectUrl":           started.RedirectURL,
		"amount":                started.Amount,
		"currency":              started.Currency,
	})
}

func (h *Handlers) GetDonation(w http.ResponseWriter, r *http.Request) {
	d, err := h.payments.DonationStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err, "could not load donation")
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// --- gateway callbacks ---

// Callback answers the gateway. 200 means the callback was accepted, not that
// the payment succeeded.
func (h *Handlers) Callback(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Response string `json:"response"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "Malformed payload")
			return
		}

		outcome, err := h.payments.HandleCallback(r.Context(), kind, payment.Callback{
			Response: body.Response,
			Header:   r.Header.Get("X-VERIFY"),
		})
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		case errors.Is(err, apperr.ErrChecksumMismatch):
			writeError(w, http.StatusBadRequest, "Checksum mismatch")
		case errors.Is(err, apperr.ErrMalformedPayload), errors.Is(err, apperr.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, "Malformed payload")
		default:
			log.Printf("[api] %s callback %s: %v", kind, outcome, err)
			writeError(w, http.StatusInternalServerError, "callback processing failed")
		}
	}
}

// --- pricing and shipping ---

func (h *Handlers) GetPricing(w http.ResponseWriter, r *http.Request) {
	quote := h.pricer.Resolve(r.Context(), pricing.Hint{
		Country: r.URL.Query().Get("country"),
		IP:      clientIP(r),
	})
	writeJSON(w, http.StatusOK, quote)
}

func (h *Handlers) GetShippingRates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	weight := decimal.Zero
	if s := q.Get("weight"); s != "" {
		v, err := decimal.NewFromString(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "weight must be a number")
			return
		}
		weight = v
	}

	rates, err := h.shipper.Rates(r.Context(), q.Get("postcode"), weight)
	if err != nil {
		writeAppError(w, err, "shipping rates unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rates": rates})
}

// --- community ---

func (h *Handlers) GetTotal(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(r.URL.Query().Get("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be order or donation")
		return
	}

	totals, err := h.store.Totals(r.Context(), kind)
	if err != nil {
		writeAppError(w, err, "could not load totals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":   kind,
		"totals": totals,
	})
}

func (h *Handlers) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, ok := parseKind(q.Get("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be order or donation")
		return
	}
	cur := strings.ToUpper(q.Get("currency"))
	if cur == "" {
		cur = pricing.DefaultCurrency
	}
	limit := min(parseIntDefault(q.Get("limit"), 10), 100)

	entries, err := h.store.Leaderboard(r.Context(), kind, cur, limit)
	if err != nil {
		writeAppError(w, err, "could not load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":        kind,
		"currency":    cur,
		"leaderboard": entries,
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		log.Printf("[api] health check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
