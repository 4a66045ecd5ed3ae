package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/natureofthedivine/storefront/internal/apperr"
)

const (
	CodePaymentSuccess = "PAYMENT_SUCCESS"
	CodePaymentPending = "PAYMENT_PENDING"
)

// Outcome classifies a gateway response body.
type Outcome int

const (
	// OutcomeUnrecognized is any body that does not match a known shape. It
	// is handled as a failure.
	OutcomeUnrecognized Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unrecognized"
	}
}

// StatusResult is the body shared by status-check responses and decoded
// callbacks. Raw keeps the exact bytes received.
type StatusResult struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    StatusData      `json:"data"`
	Raw     json.RawMessage `json:"-"`
	Outcome Outcome         `json:"-"`
}

type StatusData struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Amount                int64  `json:"amount"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
}

// ParseStatus classifies body. It never fails: bodies that are not JSON or
// lack a code come back as OutcomeUnrecognized.
func ParseStatus(body []byte) StatusResult {
	var r StatusResult
	if err := json.Unmarshal(body, &r); err != nil || r.Code == "" {
		return StatusResult{Raw: cloneRaw(body), Outcome: OutcomeUnrecognized}
	}
	r.Raw = cloneRaw(body)
	if r.Success && r.Code == CodePaymentSuccess {
		r.Outcome = OutcomeSuccess
	} else {
		r.Outcome = OutcomeFailure
	}
	return r
}

// DecodeCallback unwraps the base64 "response" field of a callback body.
func DecodeCallback(encoded string) (StatusResult, error) {
	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return StatusResult{}, fmt.Errorf("%w: callback response is not base64: %v", apperr.ErrMalformedPayload, err)
	}
	r := ParseStatus(body)
	if r.Data.MerchantTransactionID == "" {
		return r, fmt.Errorf("%w: callback has no merchantTransactionId", apperr.ErrMalformedPayload)
	}
	return r, nil
}

// Details returns the payload stored on the record after a status check.
// Unrecognized bodies are wrapped so the stored value is always valid JSON.
func (r StatusResult) Details() json.RawMessage {
	if r.Outcome != OutcomeUnrecognized && json.Valid(r.Raw) {
		return r.Raw
	}
	out, _ := json.Marshal(map[string]string{
		"reason": "unrecognized gateway response",
		"body":   string(r.Raw),
	})
	return out
}

func cloneRaw(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}
