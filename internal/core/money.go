// Package core provides money parsing and handling utilities.
//
// Amounts are shopspring decimals rounded to cents.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user supplied decimal string to a currency amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, drops a
// thousands separator when both appear (1.234,56) and rounds half-up to two
// decimal places. Returns ErrInvalidAmount for invalid formats, negative
// values or zero amounts.
//
// Examples:
//
//	ParseAmount("12.34")    -> 12.34
//	ParseAmount("12,34")    -> 12.34
//	ParseAmount("1.234,56") -> 1234.56
//	ParseAmount("12.345")   -> 12.35
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	// pt-BR style: dots group thousands, comma is the decimal mark
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// SplitAmount divides total into n installments truncated to cents. The
// remainder, never negative for a positive total, goes to the first
// installment so the parts always add back up to total.
func SplitAmount(total decimal.Decimal, n int) []decimal.Decimal {
	if n < 1 {
		return nil
	}
	part := total.Div(decimal.NewFromInt(int64(n))).Truncate(2)
	parts := make([]decimal.Decimal, n)
	for i := range parts {
		parts[i] = part
	}
	rest := total.Sub(part.Mul(decimal.NewFromInt(int64(n))))
	parts[0] = parts[0].Add(rest)
	return parts
}

// FormatAmount renders an amount with exactly two decimal places.
func FormatAmount(a decimal.Decimal) string {
	return a.StringFixed(2)
}
