package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GeoClient resolves IPs through an ipapi.co compatible endpoint:
// GET {base}/{ip}/json/.
type GeoClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewGeoClient(baseURL string, timeout time.Duration) *GeoClient {
	return &GeoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type geoResponse struct {
	CountryCode string `json:"country_code"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

func (c *GeoClient) Country(ctx context.Context, ip string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/json/", c.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build geo request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call geo api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("geo api error (status %d): %s", resp.StatusCode, string(body))
	}

	var out geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode geo response: %w", err)
	}
	if out.Error || out.CountryCode == "" {
		return "", fmt.Errorf("geo api: no country for %s: %s", ip, out.Reason)
	}
	return out.CountryCode, nil
}
