package currency

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

type info struct {
	symbol   string
	exponent int32
}

// currencies lists the checkout currencies with their display symbol and
// number of minor-unit digits.
var currencies = map[string]info{
	"INR": {symbol: "₹", exponent: 2},
	"USD": {symbol: "$", exponent: 2},
	"EUR": {symbol: "€", exponent: 2},
	"GBP": {symbol: "£", exponent: 2},
}

// Supported reports whether code is a checkout currency.
func Supported(code string) bool {
	_, ok := currencies[code]
	return ok
}

// Symbol returns the display symbol for a currency code.
func Symbol(code string) (string, error) {
	c, ok := currencies[code]
	if !ok {
		return "", fmt.Errorf("unsupported currency: %s", code)
	}
	return c.symbol, nil
}

// ToMinor converts a major-unit amount (299.00 INR) to minor units (29900).
// Amounts with more precision than the currency allows, or whose minor units
// do not fit in an int64, are rejected.
func ToMinor(amount decimal.Decimal, code string) (int64, error) {
	c, ok := currencies[code]
	if !ok {
		return 0, fmt.Errorf("unsupported currency: %s", code)
	}
	minor := amount.Shift(c.exponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount, c.exponent)
	}
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, fmt.Errorf("amount %s %s is out of range", amount, code)
	}
	return minor.IntPart(), nil
}

// FromMinor converts minor units back to a major-unit decimal.
func FromMinor(minor int64, code string) (decimal.Decimal, error) {
	c, ok := currencies[code]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported currency: %s", code)
	}
	return decimal.New(minor, -c.exponent), nil
}
