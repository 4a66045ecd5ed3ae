package payment

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/natureofthedivine/storefront/internal/apperr"
	"github.com/natureofthedivine/storefront/internal/domain"
	"github.com/natureofthedivine/storefront/internal/pricing"
)

const (
	maxQuantity = 10

	maxMessageLength = 500
)

// maxDonation caps a single donation in major units of any currency.
var maxDonation = decimal.NewFromInt(1_000_000)

type OrderRequest struct {
	Variant  string         `json:"variant"`
	Quantity int            `json:"quantity"`
	UserID   string         `json:"userId"`
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Phone    string         `json:"phone"`
	Address  domain.Address `json:"address"`
	Hint     pricing.Hint   `json:"-"`
}

type DonationRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	UserID   string          `json:"userId"`
	Name     string          `json:"name"`
	Phone    string          `json:"phone"`
	Message  string          `json:"message"`
	Hint     pricing.Hint    `json:"-"`
}

// Initiation is what the buyer needs to continue at the gateway.
type Initiation struct {
	ID                    string `json:"id"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	RedirectURL           string `json:"redirectUrl"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperr.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func (r *OrderRequest) normalize() error {
	r.Variant = strings.ToLower(strings.TrimSpace(r.Variant))
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	if r.Quantity == 0 {
		r.Quantity = 1
	}
	if r.Quantity < 0 || r.Quantity > maxQuantity {
		return invalid("quantity must be between 1 and %d", maxQuantity)
	}
	if r.Name == "" {
		return invalid("name is required")
	}
	phone, err := normalizePhone(r.Phone)
	if err != nil {
		return err
	}
	r.Phone = phone

	a := &r.Address
	a.Line1 = strings.TrimSpace(a.Line1)
	a.City = strings.TrimSpace(a.City)
	a.Postcode = strings.TrimSpace(a.Postcode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	if a.Line1 == "" || a.City == "" || a.Postcode == "" {
		return invalid("address line1, city and postcode are required")
	}
	if a.Country == "" {
		a.Country = pricing.DefaultCountry
	}
	return nil
}

func (r *DonationRequest) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Message = strings.TrimSpace(r.Message)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if utf8.RuneCountInString(r.Message) > maxMessageLength {
		return invalid("message is longer than %d characters", maxMessageLength)
	}
	if r.Amount.LessThan(decimal.NewFromInt(1)) {
		return invalid("amount must be at least 1")
	}
	if r.Amount.GreaterThan(maxDonation) {
		return invalid("amount must be at most %s", maxDonation)
	}
	phone, err := normalizePhone(r.Phone)
	if err != nil {
		return err
	}
	r.Phone = phone
	return nil
}

// normalizePhone strips separators and a leading "+" and checks what is left
// is 10 to 15 digits.
func normalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '+' || r == '(' || r == ')':
		default:
			return "", invalid("phone contains %q", r)
		}
	}
	phone := b.String()
	if len(phone) < 10 || len(phone) > 15 {
		return "", invalid("phone must have 10 to 15 digits")
	}
	return phone, nil
}
