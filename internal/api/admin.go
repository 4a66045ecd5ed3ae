package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/natureofthedivine/storefront/internal/domain"
)

// adminAuth guards the admin routes with a static bearer token. An empty
// token disables them.
func adminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, http.StatusForbidden, "admin API disabled")
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func listFilter(r *http.Request) (domain.ListFilter, bool) {
	q := r.URL.Query()
	f := domain.ListFilter{
		Status: domain.PaymentStatus(strings.ToUpper(q.Get("status"))),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 50),
	}
	switch f.Status {
	case "", domain.StatusPending, domain.StatusSuccess, domain.StatusFailure:
		return f.Normalize(), true
	default:
		return f, false
	}
}

// --- ListOrders ---

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, ok := listFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be PENDING, SUCCESS or FAILURE")
		return
	}

	orders, total, err := h.store.ListOrders(r.Context(), filter)
	if err != nil {
		writeAppError(w, err, "could not list orders")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  total,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})
}

// --- ListDonations ---

func (h *Handlers) ListDonations(w http.ResponseWriter, r *http.Request) {
	filter, ok := listFilter(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be PENDING, SUCCESS or FAILURE")
		return
	}

	donations, total, err := h.store.ListDonations(r.Context(), filter)
	if err != nil {
		writeAppError(w, err, "could not list donations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"donations": donations,
		"total":     total,
		"page":      filter.Page,
		"limit":     filter.Limit,
	})
}

// --- UpdateFulfillment ---

func (h *Handlers) UpdateFulfillment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status domain.FulfillmentStatus `json:"status"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	o, err := h.store.UpdateFulfillment(r.Context(), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		writeAppError(w, err, "could not update fulfillment")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	type section struct {
		Counts domain.StatusCounts `json:"counts"`
		Total  int                 `json:"total"`
		Totals []domain.Total      `json:"totals"`
	}

	dashboard := make(map[domain.Kind]section, 2)
	for _, kind := range []domain.Kind{domain.KindOrder, domain.KindDonation} {
		counts, err := h.store.CountByStatus(ctx, kind)
		if err != nil {
			writeAppError(w, err, "could not load dashboard")
			return
		}
		totals, err := h.store.Totals(ctx, kind)
		if err != nil {
			writeAppError(w, err, "could not load dashboard")
			return
		}
		dashboard[kind] = section{Counts: counts, Total: counts.Total(), Totals: totals}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orders":    dashboard[domain.KindOrder],
		"donations": dashboard[domain.KindDonation],
	})
}

// --- ListCallbacks ---

func (h *Handlers) ListCallbacks(w http.ResponseWriter, r *http.Request) {
	txn := r.URL.Query().Get("txn")
	if txn == "" {
		writeError(w, http.StatusBadRequest, "txn is required")
		return
	}

	logs, err := h.store.CallbackLogs(r.Context(), txn)
	if err != nil {
		writeAppError(w, err, "could not load callbacks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"merchantTransactionId": txn,
		"callbacks":             logs,
	})
}

// --- Reconcile ---

func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.Run(r.Context())
	if err != nil {
		writeAppError(w, err, "reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
