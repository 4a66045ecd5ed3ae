// Package gatewaytest provides an in-process payment gateway for tests.
package gatewaytest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/natureofthedivine/storefront/internal/checksum"
	"github.com/natureofthedivine/storefront/internal/config"
)

// Keys is the key set the fake expects requests to be signed with.
var Keys = config.GatewayKeys{
	MerchantID: "PGTESTPAYUAT",
	SaltKey:    "test-salt-key",
	SaltIndex:  1,
}

// PayCall is one accepted pay request, decoded.
type PayCall struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	MerchantUserID        string `json:"merchantUserId"`
	Amount                int64  `json:"amount"`
	RedirectURL           string `json:"redirectUrl"`
	CallbackURL           string `json:"callbackUrl"`
	MobileNumber          string `json:"mobileNumber"`
}

type Fake struct {
	*httptest.Server

	mu          sync.Mutex
	pays        []PayCall
	statusCodes map[string]string
	statusCalls map[string]int
	amounts     map[string]int64
	payDown     bool
	statusDown  bool
	noRedirect  bool
}

// New starts a fake gateway and registers cleanup with t.
func New(t testing.TB) *Fake {
	f := &Fake{
		statusCodes: make(map[string]string),
		statusCalls: make(map[string]int),
		amounts:     make(map[string]int64),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /pg/v1/pay", f.pay)
	mux.HandleFunc("GET /pg/v1/status/{merchant}/{txn}", f.status)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// KeysFor returns Keys pointed at the fake's URL.
func (f *Fake) KeysFor() config.GatewayKeys {
	k := Keys
	k.Host = f.URL
	return k
}

// SetStatus sets the code the status endpoint reports for a transaction.
// Unknown transactions report PAYMENT_PENDING.
func (f *Fake) SetStatus(merchantTxnID, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCodes[merchantTxnID] = code
}

// SetAmount overrides the amount the status endpoint reports for a
// transaction. By default it reports the amount of the accepted pay request.
func (f *Fake) SetAmount(merchantTxnID string, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amounts[merchantTxnID] = amount
}

func (f *Fake) SetPayDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payDown = down
}

func (f *Fake) SetStatusDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusDown = down
}

// SetNoRedirect makes pay succeed without a redirect URL.
func (f *Fake) SetNoRedirect(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noRedirect = v
}

func (f *Fake) Pays() []PayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PayCall(nil), f.pays...)
}

func (f *Fake) StatusCalls(merchantTxnID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[merchantTxnID]
}

func (f *Fake) pay(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	down, noRedirect := f.payDown, f.noRedirect
	f.mu.Unlock()
	if down {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Request string `json:"request"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "code": "BAD_REQUEST"})
		return
	}
	if r.Header.Get("X-VERIFY") != checksum.Sign(Keys.Salt(), body.Request, "/pg/v1/pay") {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "code": "KEY_NOT_CONFIGURED"})
		return
	}
	raw, err := base64.StdEncoding.DecodeString(body.Request)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "code": "BAD_REQUEST"})
		return
	}
	var call PayCall
	if err := json.Unmarshal(raw, &call); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "code": "BAD_REQUEST"})
		return
	}

	f.mu.Lock()
	f.pays = append(f.pays, call)
	if _, ok := f.amounts[call.MerchantTransactionID]; !ok {
		f.amounts[call.MerchantTransactionID] = call.Amount
	}
	f.mu.Unlock()

	url := "https://mercury-uat.phonepe.com/transact/pg?token=" + call.MerchantTransactionID
	if noRedirect {
		url = ""
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"code":    "PAYMENT_INITIATED",
		"message": "Payment initiated",
		"data": map[string]any{
			"merchantId":            Keys.MerchantID,
			"merchantTransactionId": call.MerchantTransactionID,
			"instrumentResponse": map[string]any{
				"type":         "PAY_PAGE",
				"redirectInfo": map[string]any{"url": url, "method": "GET"},
			},
		},
	})
}

func (f *Fake) status(w http.ResponseWriter, r *http.Request) {
	merchant, txn := r.PathValue("merchant"), r.PathValue("txn")
	path := "/pg/v1/status/" + merchant + "/" + txn

	f.mu.Lock()
	f.statusCalls[txn]++
	down := f.statusDown
	code, ok := f.statusCodes[txn]
	amount := f.amounts[txn]
	f.mu.Unlock()

	if down {
		http.Error(w, "upstream down", http.StatusBadGateway)
		return
	}
	if r.Header.Get("X-VERIFY") != checksum.Sign(Keys.Salt(), path) || r.Header.Get("X-MERCHANT-ID") != merchant {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "code": "UNAUTHORIZED"})
		return
	}
	if !ok {
		code = "PAYMENT_PENDING"
	}
	if code == "GARBAGE" {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>maintenance</html>"))
		return
	}
	writeJSON(w, http.StatusOK, StatusBody(txn, code, amount))
}

// StatusBody builds a gateway status/callback body.
func StatusBody(merchantTxnID, code string, amount int64) map[string]any {
	state := "FAILED"
	switch code {
	case "PAYMENT_SUCCESS":
		state = "COMPLETED"
	case "PAYMENT_PENDING":
		state = "PENDING"
	}
	return map[string]any{
		"success": code == "PAYMENT_SUCCESS",
		"code":    code,
		"message": strings.ReplaceAll(strings.ToLower(code), "_", " "),
		"data": map[string]any{
			"merchantId":            Keys.MerchantID,
			"merchantTransactionId": merchantTxnID,
			"transactionId":         "T" + merchantTxnID,
			"amount":                amount,
			"state":                 state,
			"responseCode":          code,
		},
	}
}

// Callback returns the base64 response field and its X-VERIFY header, signed
// with Keys, for a callback reporting code.
func Callback(merchantTxnID, code string, amount int64) (response, header string) {
	raw, _ := json.Marshal(StatusBody(merchantTxnID, code, amount))
	response = base64.StdEncoding.EncodeToString(raw)
	return response, checksum.Sign(Keys.Salt(), response)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
