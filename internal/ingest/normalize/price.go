package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var currencyRe = regexp.MustCompile(`[€$£¥₹₽]`)

// ParsePrice converts raw source price text into a two-decimal amount.
// Currency symbols are stripped and a comma decimal separator is accepted.
// Anything unparseable becomes 0.00 rather than an error.
func ParsePrice(value string) decimal.Decimal {
	s := currencyRe.ReplaceAllString(value, "")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d.Round(2)
}

// DeriveDiscount computes a discount percentage from list versus current
// price when the source does not supply one, clamped to [0, 100].
func DeriveDiscount(current, original decimal.Decimal) decimal.Decimal {
	if original.IsZero() || !original.GreaterThan(current) {
		return decimal.Zero
	}
	pct := original.Sub(current).Div(original).Mul(decimal.NewFromInt(100)).Round(2)
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NewFromInt(100)
	}
	if pct.IsNegative() {
		return decimal.Zero
	}
	return pct
}
