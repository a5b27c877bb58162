package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatCurrencyKRW formats an amount as Korean won, e.g. 15000 -> "₩15,000".
// Fractions are rounded to whole won.
func FormatCurrencyKRW(amount decimal.Decimal) string {
	neg := amount.IsNegative()
	integerPart := amount.Abs().Round(0).StringFixed(0)

	// Tambahkan pemisah ribuan
	var parts []string
	for i := len(integerPart); i > 0; i -= 3 {
		start := i - 3
		if start < 0 {
			start = 0
		}
		parts = append([]string{integerPart[start:i]}, parts...)
	}

	out := "₩" + strings.Join(parts, ",")
	if neg {
		return "-" + out
	}
	return out
}
