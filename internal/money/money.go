// Package money formats integer minor units as decimal currency.
package money

import (
	"github.com/shopspring/decimal"
)

// Pound is the symbol used in notifications.
const Pound = "£"

// Decimal converts minor units (pence) to a two-place decimal value.
func Decimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Format renders minor units as "£12.34", or "-£12.34" for negative values.
func Format(minor int64) string {
	if minor < 0 {
		return "-" + Pound + Decimal(-minor).StringFixed(2)
	}
	return Pound + Decimal(minor).StringFixed(2)
}

// FormatAbs renders the magnitude of minor units, e.g. "£12.34" for -1234.
func FormatAbs(minor int64) string {
	if minor < 0 {
		minor = -minor
	}
	return Format(minor)
}
