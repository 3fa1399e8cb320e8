/*
Package generic provides the domain-agnostic primitives of the benefit engine.

PURPOSE:
  This package contains the types and algorithms that do not care which card
  or issuer they are applied to: money arithmetic, calendar dates, reset
  periods and the contract of the persistence collaborator. The wallet
  package builds the card-specific rules on top of it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A dollar amount backed by decimal.Decimal
  - CardID / BenefitIndex / PeriodKey: Type-safe identifiers
  - UsageKey: The (card, benefit, period) triple a usage record is keyed by

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, round only for display
  2. Type Safety: distinct ID types so a card ID is never passed as a key
  3. Purity: nothing in this package performs I/O except the store contract

USAGE:
  fee := generic.NewMoney(95)
  split := fee.Div(decimal.NewFromInt(12))
  fmt.Println(split.Display()) // "7.92"

SEE ALSO:
  - period.go: Reset frequencies and period generation
  - time.go: Calendar date handling
  - store.go: Persistence collaborator contract
*/
package generic

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Dollar amount, exact decimal arithmetic
// =============================================================================

// Money is a currency amount in dollars.
type Money struct {
	Value decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{Value: decimal.Zero}

func NewMoney(value float64) Money             { return Money{Value: decimal.NewFromFloat(value)} }
func NewMoneyFromInt(value int64) Money        { return Money{Value: decimal.NewFromInt(value)} }
func MoneyFromDecimal(d decimal.Decimal) Money { return Money{Value: d} }

// ParseMoney parses a decimal string such as "12.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("parse money %q: %w", s, err)
	}
	return Money{Value: d}, nil
}

// MustParseMoney is ParseMoney for constants and tests. Invalid input yields zero.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		return Zero
	}
	return m
}

func (m Money) Add(o Money) Money               { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money               { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money     { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money     { return Money{Value: m.Value.Div(s)} }
func (m Money) IsZero() bool                    { return m.Value.IsZero() }
func (m Money) IsPositive() bool                { return m.Value.IsPositive() }
func (m Money) IsNegative() bool                { return m.Value.IsNegative() }
func (m Money) Equal(o Money) bool              { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool        { return m.Value.GreaterThan(o.Value) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.Value.GreaterThanOrEqual(o.Value) }
func (m Money) LessThan(o Money) bool           { return m.Value.LessThan(o.Value) }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

func (m Money) Float64() float64 {
	f, _ := m.Value.Float64()
	return f
}

// Display formats the amount with two decimals. This is the only place
// amounts are rounded.
func (m Money) Display() string { return m.Value.StringFixed(2) }

func (m Money) String() string { return "$" + m.Display() }

// MarshalJSON encodes the amount as a JSON number at full precision so
// fractional period shares survive a round trip.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Value.String()), nil
}

// UnmarshalJSON accepts JSON numbers, numeric strings and null.
func (m *Money) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Zero
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("invalid money value %s: %w", data, err)
	}
	*m = Money{Value: d}
	return nil
}

// Sum adds all amounts.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CardID string
type UserID string

// BenefitIndex is the position of a benefit in its card's catalog entry.
type BenefitIndex int

func (i BenefitIndex) String() string { return strconv.Itoa(int(i)) }

// UsageKey identifies one usage record.
type UsageKey struct {
	CardID       CardID
	BenefitIndex BenefitIndex
	PeriodKey    PeriodKey
}

func (k UsageKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.CardID, k.BenefitIndex, k.PeriodKey)
}
