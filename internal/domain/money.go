package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are stored as BIGINT micros (10^-6) to avoid floating point errors.
const microsPerUnit = 1_000_000

// ToDecimal converts int64 micros to a shopspring/decimal value.
func ToDecimal(micros int64) decimal.Decimal {
	return decimal.NewFromInt(micros).Div(decimal.NewFromInt(microsPerUnit))
}

// FromDecimal converts a decimal value to int64 micros, truncating below 10^-6.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(microsPerUnit)).IntPart()
}

// ParseAmount parses a caller-supplied decimal string into micros.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// FormatAmount renders micros as a fixed two-decimal string for notifications.
func FormatAmount(micros int64) string {
	return ToDecimal(micros).StringFixed(2)
}
