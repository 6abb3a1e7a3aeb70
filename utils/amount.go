package utils

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a user-entered quantity. Unlike the legacy journal UI,
// which coerced anything unparseable to 0, an invalid or negative input is a
// typed error the caller can surface.
func ParseAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Tolerate thousand separators from pasted values.
	value = strings.ReplaceAll(value, ",", "")

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if dec.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return dec, nil
}
