// Package money converts between rupee amounts as users type them and the integer
// paise the ledger stores.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooPrecise     = errors.New("amount has more than two decimal places")
)

var hundred = decimal.NewFromInt(100)

// ToPaise converts a rupee amount to paise. Sub-paisa precision is rejected rather
// than rounded.
func ToPaise(rupees decimal.Decimal) (int64, error) {
	if rupees.IsNegative() {
		return 0, ErrNegativeAmount
	}
	paise := rupees.Mul(hundred)
	if !paise.Equal(paise.Truncate(0)) {
		return 0, ErrTooPrecise
	}
	if !paise.IsInteger() || paise.GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, ErrInvalidAmount
	}
	return paise.IntPart(), nil
}

// ParseRupees parses a string such as "1250.50" into paise.
func ParseRupees(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return ToPaise(d)
}

// FromPaise converts stored paise back to rupees.
func FromPaise(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

// Format renders paise as a rupee string with two decimals, e.g. 125050 -> "1250.50".
func Format(paise int64) string {
	return FromPaise(paise).StringFixed(2)
}
