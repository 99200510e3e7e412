// Package core provides money parsing and handling utilities.
//
// Amounts are decimal.Decimal values with at most two fractional digits.
// Sums are exact and rounded half away from zero to two places only when
// they are reported.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of fractional digits an amount may carry.
const AmountPlaces = 2

// MaxAmount is the largest amount every store can hold exactly. It matches
// the NUMERIC(10,2) column of the Postgres schema.
var MaxAmount = decimal.RequireFromString("99999999.99")

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAmountTooLarge = errors.New("amount exceeds the maximum")
)

// ParseAmount parses a decimal string. Both dot (12.34) and comma (12,34)
// separators are accepted. Precision and sign are not checked here; see
// ValidateAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ValidateAmount returns the messages for every amount invariant d breaks.
func ValidateAmount(d decimal.Decimal) []string {
	var msgs []string
	if !d.Equal(d.Truncate(AmountPlaces)) {
		msgs = append(msgs, MsgAmountPrecision)
	}
	if !d.IsPositive() {
		msgs = append(msgs, MsgAmountPositive)
	}
	if d.GreaterThan(MaxAmount) {
		msgs = append(msgs, MsgAmountMax)
	}
	return msgs
}

// RoundAmount rounds d to two decimal places.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}

// SumAmounts adds the amounts of the given expenses and rounds the result.
func SumAmounts(expenses []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return RoundAmount(total)
}

// Cents converts an amount to integer cents, rounding to two places first.
// Amounts outside ±MaxAmount are rejected rather than wrapped.
func Cents(d decimal.Decimal) (int64, error) {
	r := RoundAmount(d)
	if r.Abs().GreaterThan(MaxAmount) {
		return 0, fmt.Errorf("%w: %s", ErrAmountTooLarge, r.String())
	}
	return r.Shift(AmountPlaces).IntPart(), nil
}

// FromCents converts integer cents back to an amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -AmountPlaces)
}
