// Package core provides money parsing and handling utilities.
//
// This file contains the Money type used for budgets and unit values, the
// arithmetic that derives line and list totals, and conversions between
// minor units (cents) and decimal representations.
package core

import (
	"math"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when formatting amounts for display.
const DefaultCurrency = "BRL"

// MaxAmountCents bounds any single monetary input so that line totals and
// sums stay well inside int64.
const MaxAmountCents int64 = 100_000_000_000

// Money is an amount in minor units with two decimal places.
type Money struct {
	Cents int64
}

// Cents builds a Money from minor units.
func Cents(c int64) Money {
	return Money{Cents: c}
}

var (
	maxAmount = decimal.New(MaxAmountCents, -2)
	// bounds of what fits in Money.Cents, in major units
	maxCents = decimal.New(math.MaxInt64, -2)
	minCents = decimal.New(math.MinInt64, -2)
)

// MoneyFromDecimal rounds d half-up to two decimal places.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Round(2).Shift(2).IntPart()}
}

// moneyInRange converts a user supplied amount, which must lie in
// [0, MaxAmountCents].
func moneyInRange(d decimal.Decimal) (Money, error) {
	if d.IsNegative() || d.Round(2).GreaterThan(maxAmount) {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d), nil
}

// moneyRepresentable converts d when its cents fit in an int64. Derived
// amounts such as a negative remaining budget are allowed.
func moneyRepresentable(d decimal.Decimal) (Money, error) {
	r := d.Round(2)
	if r.GreaterThan(maxCents) || r.LessThan(minCents) {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d), nil
}

// ParseMoney converts a decimal string to Money with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Zero is a
// valid amount; negative values and anything that is not a plain decimal are
// rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234 cents
//	ParseMoney("12,34")  -> 1234 cents
//	ParseMoney("12.345") -> 1235 cents (half-up)
//	ParseMoney("0")      -> 0 cents
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return moneyInRange(d)
}

// Validate checks that the amount is non-negative and within bounds.
func (m Money) Validate() error {
	if m.Cents < 0 || m.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(n Money) Money        { return Money{Cents: m.Cents + n.Cents} }
func (m Money) Sub(n Money) Money        { return Money{Cents: m.Cents - n.Cents} }
func (m Money) Mul(quantity int) Money   { return Money{Cents: m.Cents * int64(quantity)} }
func (m Money) IsZero() bool             { return m.Cents == 0 }
func (m Money) GreaterThan(n Money) bool { return m.Cents > n.Cents }

// String formats the amount in the default currency, e.g. "R$1.234,56".
func (m Money) String() string {
	return m.Format(DefaultCurrency)
}

// Format formats the amount using the conventions of the given ISO currency.
func (m Money) Format(currency string) string {
	return gomoney.New(m.Cents, currency).Display()
}

// MarshalJSON encodes the amount as a JSON number in major units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().StringFixed(2)), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string. Amounts
// whose cents overflow int64 are rejected; range checks on inputs belong to
// the Validate methods.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return ErrInvalidAmount
	}
	v, err := moneyRepresentable(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// LineTotal returns quantity × unit value.
func LineTotal(quantity int, unitValue Money) Money {
	return unitValue.Mul(quantity)
}

// ListTotal sums the line totals of items. An empty slice totals zero.
func ListTotal(items []Item) Money {
	var total Money
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// UsageRatio returns total / budget, or zero when the budget is zero.
func UsageRatio(total, budget Money) decimal.Decimal {
	if budget.Cents <= 0 {
		return decimal.Zero
	}
	return total.Decimal().Div(budget.Decimal())
}
