// Package gateway talks to the payment gateway's pay and status endpoints.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/checksum"
	"github.com/natureofthedivine/storefront/internal/config"
)

const (
	payPath    = "/pg/v1/pay"
	statusPath = "/pg/v1/status"

	maxBody = 1 << 20
)

type Client struct {
	keys       config.GatewayKeys
	httpClient *http.Client
}

// New returns a client for the given key set. Every call is bounded by
// timeout.
func New(keys config.GatewayKeys, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	keys.Host = strings.TrimRight(keys.Host, "/")
	return &Client{
		keys:       keys,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PayRequest is one payment attempt. Amount is in minor units.
type PayRequest struct {
	MerchantTransactionID string
	MerchantUserID        string
	Amount                int64
	RedirectURL           string
	CallbackURL           string
	MobileNumber          string
}

type payPayload struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	MobileNumber          string            `json:"mobileNumber,omitempty"`
	PaymentInstrument     paymentInstrument `json:"paymentInstrument"`
}

type paymentInstrument struct {
	Type string `json:"type"`
}

type payResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		InstrumentResponse struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

// Pay registers the attempt with the gateway and returns the URL the payer
// must be sent to.
func (c *Client) Pay(ctx context.Context, pr PayRequest) (string, error) {
	payload, err := json.Marshal(payPayload{
		MerchantID:            c.keys.MerchantID,
		MerchantTransactionID: pr.MerchantTransactionID,
		MerchantUserID:        pr.MerchantUserID,
		Amount:                pr.Amount,
		RedirectURL:           pr.RedirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           pr.CallbackURL,
		MobileNumber:          pr.MobileNumber,
		PaymentInstrument:     paymentInstrument{Type: "PAY_PAGE"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal pay payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(payload)

	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return "", fmt.Errorf("marshal pay body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.keys.Host+payPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build pay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-VERIFY", checksum.Sign(c.keys.Salt(), encoded, payPath))

	status, raw, err := c.do(req)
	if err != nil {
		return "", err
	}

	var out payResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode pay response (status %d): %v", apperr.ErrPaymentInitiation, status, err)
	}
	url := out.Data.InstrumentResponse.RedirectInfo.URL
	if !out.Success || url == "" {
		return "", fmt.Errorf("%w: gateway returned %s (status %d): %s",
			apperr.ErrPaymentInitiation, out.Code, status, out.Message)
	}
	return url, nil
}

// Status performs the synchronous status check for merchantTxnID. A
// transport failure, timeout or 5xx comes back as ErrGatewayUnavailable; any
// other body is classified by ParseStatus.
func (c *Client) Status(ctx context.Context, merchantTxnID string) (StatusResult, error) {
	path := fmt.Sprintf("%s/%s/%s", statusPath, c.keys.MerchantID, merchantTxnID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.keys.Host+path, nil)
	if err != nil {
		return StatusResult{}, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-VERIFY", checksum.Sign(c.keys.Salt(), path))
	req.Header.Set("X-MERCHANT-ID", c.keys.MerchantID)

	_, raw, err := c.do(req)
	if err != nil {
		return StatusResult{}, err
	}

	r := ParseStatus(raw)
	if r.Outcome == OutcomeUnrecognized {
		log.Printf("[gateway] WARNING: unrecognized status response for %s", merchantTxnID)
	}
	return r, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", apperr.ErrGatewayUnavailable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read body: %w", apperr.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, nil, fmt.Errorf("%w: %s %s returned %d",
			apperr.ErrGatewayUnavailable, req.Method, req.URL.Path, resp.StatusCode)
	}
	return resp.StatusCode, raw, nil
}
