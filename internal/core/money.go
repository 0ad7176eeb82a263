// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and JSON, and for converting between cents and decimal representations.
package core

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used for display when none is configured.
const DefaultCurrency = money.INR

const (
	// MaxAmountCents caps a single amount at one trillion major units, which
	// leaves room for about 92,000 such amounts in an int64 total.
	MaxAmountCents int64 = 100_000_000_000_000

	// maxAmountLen bounds the textual form read from users and files.
	maxAmountLen = 64
)

// ErrAmountTooLarge is returned for amounts above MaxAmountCents.
var ErrAmountTooLarge = fmt.Errorf("%w: above %s", ErrInvalidAmount, Money{Cents: MaxAmountCents})

var maxAmount = decimal.New(MaxAmountCents, -2)

// parseDecimal reads a dot or comma separated decimal of bounded length.
func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxAmountLen {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return d, nil
}

// MoneyFromDecimal rounds d half away from zero to whole cents. Magnitudes
// above MaxAmountCents return ErrAmountTooLarge.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	// The exponent is unbounded, so check the magnitude from the digit
	// count before anything rescales the coefficient.
	mag := int64(d.NumDigits()) + int64(d.Exponent())
	switch {
	case d.IsZero() || mag < -2:
		return Money{}, nil
	case mag > 13:
		return Money{}, ErrAmountTooLarge
	}
	r := d.Round(2)
	if r.Abs().GreaterThan(maxAmount) {
		return Money{}, ErrAmountTooLarge
	}
	return Money{Cents: r.Shift(2).IntPart()}, nil
}

// ParseAmount converts a decimal string to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// to two fractional digits. Returns ErrInvalidAmount for invalid formats,
// negative values, or amounts that round to zero.
//
// Examples:
//   ParseAmount("12.34")     -> 1234 cents
//   ParseAmount("12,345")    -> 1235 cents
//   ParseAmount("50000.005") -> 5000001 cents
func ParseAmount(s string) (Money, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return Money{}, err
	}
	m, err := MoneyFromDecimal(d)
	if err != nil {
		return Money{}, err
	}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	if m.Cents > MaxAmountCents {
		return ErrAmountTooLarge
	}
	return nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Add and Sub saturate at the int64 limits instead of wrapping.
func (m Money) Add(n Money) Money {
	s := m.Cents + n.Cents
	switch {
	case n.Cents > 0 && s < m.Cents:
		return Money{Cents: math.MaxInt64}
	case n.Cents < 0 && s > m.Cents:
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: s}
}

func (m Money) Sub(n Money) Money {
	s := m.Cents - n.Cents
	switch {
	case n.Cents < 0 && s < m.Cents:
		return Money{Cents: math.MaxInt64}
	case n.Cents > 0 && s > m.Cents:
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: s}
}

// String renders the amount with exactly two decimals, e.g. "1234.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string and rounds it to
// cents. The sign is kept as-is for Validate to check; magnitudes above
// MaxAmountCents are rejected here.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*m = Money{}
		return nil
	}
	d, err := parseDecimal(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
