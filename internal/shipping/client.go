// Package shipping quotes courier rates from a Shiprocket compatible
// serviceability API.
package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/config"
)

const (
	serviceabilityPath = "/courier/serviceability/"

	maxWeightKg = 50
)

// DefaultWeight is one paperback, packed.
var DefaultWeight = decimal.RequireFromString("0.5")

type Rate struct {
	Courier       string          `json:"courier"`
	Rate          decimal.Decimal `json:"rate"`
	Currency      string          `json:"currency"`
	EstimatedDays int             `json:"estimatedDays"`
	ETD           string          `json:"etd,omitempty"`
}

type Client struct {
	baseURL    string
	token      string
	pickup     string
	httpClient *http.Client
}

func New(cfg config.ShippingConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		pickup:     cfg.PickupPostcode,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type serviceabilityResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Couriers []struct {
			Name          string          `json:"courier_name"`
			Rate          decimal.Decimal `json:"rate"`
			EstimatedDays flexInt         `json:"estimated_delivery_days"`
			ETD           string          `json:"etd"`
		} `json:"available_courier_companies"`
	} `json:"data"`
}

// flexInt accepts both 3 and "3".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("estimated_delivery_days %s: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

// Rates returns the couriers serving postcode for a prepaid parcel of
// weightKg, cheapest first. A postcode no courier serves yields an empty
// slice.
func (c *Client) Rates(ctx context.Context, postcode string, weightKg decimal.Decimal) ([]Rate, error) {
	postcode = strings.TrimSpace(postcode)
	if !validPostcode(postcode) {
		return nil, fmt.Errorf("%w: postcode must be 6 digits", apperr.ErrInvalidRequest)
	}
	if weightKg.IsZero() {
		weightKg = DefaultWeight
	}
	if !weightKg.IsPositive() || weightKg.GreaterThan(decimal.NewFromInt(maxWeightKg)) {
		return nil, fmt.Errorf("%w: weight must be between 0 and %d kg", apperr.ErrInvalidRequest, maxWeightKg)
	}
	if c.token == "" {
		return nil, fmt.Errorf("%w: shipping token not configured", apperr.ErrUpstream)
	}

	q := url.Values{}
	q.Set("pickup_postcode", c.pickup)
	q.Set("delivery_postcode", postcode)
	q.Set("weight", weightKg.String())
	q.Set("cod", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+serviceabilityPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build shipping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: shipping api: %w", apperr.ErrUpstream, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("%w: call shipping api: %v", apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: shipping api error (status %d): %s", apperr.ErrUpstream, resp.StatusCode, string(body))
	}

	var out serviceabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode shipping response: %v", apperr.ErrUpstream, err)
	}

	rates := make([]Rate, 0, len(out.Data.Couriers))
	for _, cc := range out.Data.Couriers {
		rates = append(rates, Rate{
			Courier:       cc.Name,
			Rate:          cc.Rate,
			Currency:      "INR",
			EstimatedDays: int(cc.EstimatedDays),
			ETD:           cc.ETD,
		})
	}
	sort.SliceStable(rates, func(i, j int) bool { return rates[i].Rate.LessThan(rates[j].Rate) })
	return rates, nil
}

func validPostcode(s string) bool {
	if len(s) != 6 || s[0] == '0' {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
