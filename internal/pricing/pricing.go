// Package pricing maps a coarse location signal to a currency and the book's
// per-variant price table. Resolution never fails: any lookup problem falls
// back to the default INR table so checkout is never blocked.
package pricing

import (
	"context"
	"log"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/natureofthedivine/storefront/internal/currency"
)

const (
	VariantPaperback = "paperback"
	VariantHardcover = "hardcover"
	VariantEbook     = "ebook"

	DefaultCurrency = "INR"
	DefaultCountry  = "IN"
)

var priceTables = map[string]map[string]decimal.Decimal{
	"INR": {
		VariantPaperback: decimal.NewFromInt(299),
		VariantHardcover: decimal.NewFromInt(499),
		VariantEbook:     decimal.NewFromInt(149),
	},
	"USD": {
		VariantPaperback: decimal.RequireFromString("9.99"),
		VariantHardcover: decimal.RequireFromString("14.99"),
		VariantEbook:     decimal.RequireFromString("4.99"),
	},
	"EUR": {
		VariantPaperback: decimal.RequireFromString("9.49"),
		VariantHardcover: decimal.RequireFromString("13.99"),
		VariantEbook:     decimal.RequireFromString("4.49"),
	},
	"GBP": {
		VariantPaperback: decimal.RequireFromString("7.99"),
		VariantHardcover: decimal.RequireFromString("11.99"),
		VariantEbook:     decimal.RequireFromString("3.99"),
	},
}

var countryCurrency = map[string]string{
	"IN": "INR",
	"US": "USD",
	"GB": "GBP",
	"AT": "EUR", "BE": "EUR", "DE": "EUR", "ES": "EUR", "FI": "EUR",
	"FR": "EUR", "GR": "EUR", "IE": "EUR", "IT": "EUR", "NL": "EUR", "PT": "EUR",
}

// Hint is what the caller knows about the buyer's location. Country wins
// over IP when both are set.
type Hint struct {
	Country string
	IP      string
}

type Quote struct {
	Country  string                     `json:"country"`
	Currency string                     `json:"currency"`
	Symbol   string                     `json:"symbol"`
	Prices   map[string]decimal.Decimal `json:"prices"`
	Fallback bool                       `json:"fallback"`
}

// Price returns the major-unit price of variant.
func (q Quote) Price(variant string) (decimal.Decimal, bool) {
	p, ok := q.Prices[variant]
	return p, ok
}

// Locator resolves an IP address to an ISO country code.
type Locator interface {
	Country(ctx context.Context, ip string) (string, error)
}

type Resolver struct {
	locator Locator
	cache   *expirable.LRU[string, string]
	group   singleflight.Group
	timeout time.Duration
}

// NewResolver returns a Resolver caching up to size IP lookups for ttl.
// locator may be nil, in which case only explicit country hints are used.
func NewResolver(locator Locator, size int, ttl, timeout time.Duration) *Resolver {
	if size <= 0 {
		size = 1024
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Resolver{
		locator: locator,
		cache:   expirable.NewLRU[string, string](size, nil, ttl),
		timeout: timeout,
	}
}

func (r *Resolver) Resolve(ctx context.Context, hint Hint) Quote {
	country := strings.ToUpper(strings.TrimSpace(hint.Country))
	if country == "" {
		country = r.lookup(ctx, hint.IP)
	}
	if country == "" {
		return defaultQuote()
	}

	code, ok := countryCurrency[country]
	if !ok {
		q := defaultQuote()
		q.Country = country
		return q
	}
	return quoteFor(country, code, false)
}

func (r *Resolver) lookup(ctx context.Context, ip string) string {
	if r.locator == nil || !routable(ip) {
		return ""
	}
	if c, ok := r.cache.Get(ip); ok {
		return c
	}

	v, err, _ := r.group.Do(ip, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		c, err := r.locator.Country(lctx, ip)
		if err != nil {
			return "", err
		}
		c = strings.ToUpper(c)
		r.cache.Add(ip, c)
		return c, nil
	})
	if err != nil {
		log.Printf("[pricing] WARNING: geo lookup for %s failed, using default table: %v", ip, err)
		return ""
	}
	return v.(string)
}

func routable(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !parsed.IsLoopback() && !parsed.IsPrivate() && !parsed.IsUnspecified()
}

func defaultQuote() Quote {
	return quoteFor(DefaultCountry, DefaultCurrency, true)
}

func quoteFor(country, code string, fallback bool) Quote {
	symbol, err := currency.Symbol(code)
	if err != nil {
		symbol = code
	}
	prices := make(map[string]decimal.Decimal, len(priceTables[code]))
	for variant, p := range priceTables[code] {
		prices[variant] = p
	}
	return Quote{
		Country:  country,
		Currency: code,
		Symbol:   symbol,
		Prices:   prices,
		Fallback: fallback,
	}
}
