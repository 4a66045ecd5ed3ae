package shipping

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/config"
)

func newClient(url string, timeout time.Duration) *Client {
	return New(config.ShippingConfig{
		BaseURL:        url,
		Token:          "tok",
		PickupPostcode: "110001",
		Timeout:        timeout,
	})
}

func TestRatesSortedCheapestFirst(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/courier/serviceability/" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":200,"data":{"available_courier_companies":[
			{"courier_name":"Blue Dart","rate":145.5,"estimated_delivery_days":"2","etd":"Mar 03, 2026"},
			{"courier_name":"Delhivery","rate":92,"estimated_delivery_days":4},
			{"courier_name":"Ekart","rate":"110.25","estimated_delivery_days":""}
		]}}`))
	}))
	defer srv.Close()

	rates, err := newClient(srv.URL, time.Second).Rates(context.Background(), "411001", decimal.Zero)
	if err != nil {
		t.Fatalf("rates: %v", err)
	}

	if gotAuth != "Bearer tok" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotQuery != "cod=0&delivery_postcode=411001&pickup_postcode=110001&weight=0.5" {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if len(rates) != 3 {
		t.Fatalf("expected 3 rates, got %d", len(rates))
	}
	if rates[0].Courier != "Delhivery" || rates[0].EstimatedDays != 4 {
		t.Errorf("unexpected cheapest rate: %+v", rates[0])
	}
	if rates[1].Courier != "Ekart" || !rates[1].Rate.Equal(decimal.RequireFromString("110.25")) {
		t.Errorf("unexpected second rate: %+v", rates[1])
	}
	if rates[2].EstimatedDays != 2 || rates[2].ETD == "" {
		t.Errorf("unexpected last rate: %+v", rates[2])
	}
}

func TestRatesValidation(t *testing.T) {
	c := newClient("http://127.0.0.1:1", time.Second)
	tests := []struct {
		name     string
		postcode string
		weight   decimal.Decimal
	}{
		{name: "short_postcode", postcode: "4110", weight: decimal.NewFromInt(1)},
		{name: "letters", postcode: "41100A", weight: decimal.NewFromInt(1)},
		{name: "leading_zero", postcode: "011001", weight: decimal.NewFromInt(1)},
		{name: "negative_weight", postcode: "411001", weight: decimal.NewFromInt(-1)},
		{name: "too_heavy", postcode: "411001", weight: decimal.NewFromInt(51)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Rates(context.Background(), tt.postcode, tt.weight); !errors.Is(err, apperr.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestRatesUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Token has expired"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, time.Second).Rates(context.Background(), "411001", decimal.NewFromInt(1))
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if apperr.HTTPStatus(err) != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", apperr.HTTPStatus(err))
	}

	unconfigured := New(config.ShippingConfig{BaseURL: srv.URL, PickupPostcode: "110001"})
	if _, err := unconfigured.Rates(context.Background(), "411001", decimal.Zero); !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("expected ErrUpstream without token, got %v", err)
	}
}

func TestRatesTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := newClient(srv.URL, 50*time.Millisecond).Rates(context.Background(), "411001", decimal.Zero)
	if apperr.HTTPStatus(err) != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d (%v)", apperr.HTTPStatus(err), err)
	}
}
