// Package core provides the ledger domain types and amount handling.
//
// Amounts are whole rupees. The assistant may hand back an amount as a JSON
// number or as text such as "50,000", "Rs. 1500" or "2500rs", so parsing is
// lenient about separators and currency markers but strict about the digits.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts assistant- or user-supplied text to whole rupees.
//
// Thousands separators (comma, underscore, space) and an "rs"/"rs."/"pkr"
// marker on either side are ignored. A fractional part is rounded half-up.
// Returns ErrInvalidAmount for empty, negative, zero or non-numeric input.
//
// Examples:
//
//	ParseAmount("50000")     -> 50000, nil
//	ParseAmount("50,000")    -> 50000, nil
//	ParseAmount("Rs. 1500")  -> 1500, nil
//	ParseAmount("2500rs")    -> 2500, nil
//	ParseAmount("99.5")      -> 100, nil
func ParseAmount(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, marker := range []string{"pkr", "rs.", "rs", "₨"} {
		s = strings.TrimPrefix(s, marker)
		s = strings.TrimSuffix(s, marker)
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, ErrInvalidAmount
	}
	s = strings.Map(func(r rune) rune {
		if r == ',' || r == '_' || r == ' ' {
			return -1
		}
		return r
	}, s)

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if len(parts) == 2 && parts[1] != "" {
		frac := parts[1]
		for _, r := range frac {
			if !unicode.IsDigit(r) {
				return 0, ErrInvalidAmount
			}
		}
		if frac[0] >= '5' {
			v++
		}
	}
	if v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatRupees renders an amount the way replies show it, e.g. "50000rs".
func FormatRupees(amount int64) string {
	return strconv.FormatInt(amount, 10) + "rs"
}
