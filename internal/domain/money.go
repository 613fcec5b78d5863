package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the number of minor currency units in one major unit (centavos per peso).
const MinorUnitsPerMajor = 100

// Money is an amount expressed in minor currency units. Arithmetic helpers never produce
// negative results; negative inputs are treated as zero.
type Money int64

// Clamp returns the amount floored at zero.
func (m Money) Clamp() Money {
	if m < 0 {
		return 0
	}
	return m
}

// Add returns the sum of the clamped operands.
func (m Money) Add(other Money) Money {
	return m.Clamp() + other.Clamp()
}

// Sub subtracts other from m, flooring the result at zero.
func (m Money) Sub(other Money) Money {
	diff := m.Clamp() - other.Clamp()
	if diff < 0 {
		return 0
	}
	return diff
}

// Min returns the smaller of the two clamped amounts.
func (m Money) Min(other Money) Money {
	a, b := m.Clamp(), other.Clamp()
	if a < b {
		return a
	}
	return b
}

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool {
	return m > 0
}

// Int64 exposes the raw minor unit count.
func (m Money) Int64() int64 {
	return int64(m)
}

// Decimal converts the amount to major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String renders the amount in major units with two decimal places.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// ParseMoney converts a major unit amount such as "1499.50" into Money. Values with more
// than two decimal places are rounded half away from zero; negative amounts are rejected.
func ParseMoney(raw string) (Money, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.ReplaceAll(trimmed, ",", "")
	if trimmed == "" {
		return 0, fmt.Errorf("money: amount is required")
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q: %w", raw, err)
	}
	if value.IsNegative() {
		return 0, fmt.Errorf("money: amount %q must not be negative", raw)
	}
	return MoneyFromDecimal(value), nil
}

// MoneyFromDecimal rounds a major unit decimal to the nearest minor unit.
func MoneyFromDecimal(value decimal.Decimal) Money {
	minor := value.Shift(2).Round(0)
	return Money(minor.IntPart()).Clamp()
}

// MoneyPtr returns a pointer to a copy of the amount.
func MoneyPtr(m Money) *Money {
	return &m
}
