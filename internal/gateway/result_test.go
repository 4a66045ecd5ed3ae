package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/gateway/gatewaytest"
)

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want Outcome
	}{
		{name: "success", body: `{"success":true,"code":"PAYMENT_SUCCESS","data":{"merchantTransactionId":"MT1"}}`, want: OutcomeSuccess},
		{name: "success_flag_false", body: `{"success":false,"code":"PAYMENT_SUCCESS"}`, want: OutcomeFailure},
		{name: "declined", body: `{"success":false,"code":"PAYMENT_DECLINED"}`, want: OutcomeFailure},
		{name: "no_code", body: `{"success":true}`, want: OutcomeUnrecognized},
		{name: "array", body: `[1,2,3]`, want: OutcomeUnrecognized},
		{name: "empty", body: ``, want: OutcomeUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := ParseStatus([]byte(tt.body))
			if r.Outcome != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, r.Outcome)
			}
		})
	}
}

func TestDetailsForUnrecognizedBody(t *testing.T) {
	t.Parallel()

	r := ParseStatus([]byte("<html>"))
	var got map[string]string
	if err := json.Unmarshal(r.Details(), &got); err != nil {
		t.Fatalf("details not JSON: %v", err)
	}
	if got["body"] != "<html>" || got["reason"] == "" {
		t.Fatalf("unexpected details: %v", got)
	}
}

func TestDecodeCallback(t *testing.T) {
	t.Parallel()

	response, _ := gatewaytest.Callback("MT99", "PAYMENT_SUCCESS", 29900)
	r, err := DecodeCallback(response)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Data.MerchantTransactionID != "MT99" || r.Data.Amount != 29900 {
		t.Fatalf("unexpected data: %+v", r.Data)
	}

	if _, err := DecodeCallback("%%%not-base64"); !errors.Is(err, apperr.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload, got %v", err)
	}

	noTxn := base64.StdEncoding.EncodeToString([]byte(`{"success":true,"code":"PAYMENT_SUCCESS","data":{}}`))
	if _, err := DecodeCallback(noTxn); !errors.Is(err, apperr.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload, got %v", err)
	}
}
