// Package core provides money parsing and formatting utilities.
//
// Amounts are signed decimals: positive values are income, negative values expense.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a user-supplied amount string to a signed decimal.
//
// It accepts a leading sign, a currency symbol, thousands separators and either a dot
// or a comma as the decimal separator. Results are rounded half-up to two places.
//
// Examples:
//
//	ParseAmount("12.34")     -> 12.34
//	ParseAmount("-45,20")    -> -45.2
//	ParseAmount("$1,234.50") -> 1234.5
//	ParseAmount("(12.00)")   -> -12
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.NewReplacer("$", "", "€", "", "£", "", " ", "").Replace(s)
	switch {
	case strings.HasPrefix(s, "-"):
		negative = !negative
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	s = normalizeSeparators(s)
	if s == "" || strings.ContainsAny(s, "+-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators turns "1.234,56", "1,234.56" and "12,5" into dot-decimal form.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		// A single comma followed by exactly three digits is a thousands separator.
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	}
	return s
}

// FormatAmount renders an amount for notifications and the CLI, e.g. "$12.34" or "-$45.20".
func FormatAmount(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Abs().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}
