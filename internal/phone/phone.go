// Package phone canonicalizes raw phone strings into the digit-only identity
// key used for conversation lookup. Every conversation read or insert goes
// through Normalize so representation drift cannot split a thread in two.
package phone

import (
	"strings"
)

const brazilCountryCode = "55"

// Normalize strips non-digits and applies Brazilian mobile canonicalization.
// It is pure and total: any input yields a digit string.
//
// Providers report some Brazilian mobiles without the "9" prefix that
// carriers added retroactively (12 digits instead of 13). Those get the "9"
// inserted after country code + area code. An 11-digit string starting with
// "55" is a domestic-format number in area code 55 missing only the country
// code, so "55" is prepended (see DESIGN.md for the sign-off on this branch).
// Everything else, including already-canonical 13-digit numbers and
// non-Brazilian numbers, passes through unchanged.
func Normalize(raw string) string {
	digits := stripNonDigits(raw)

	if len(digits) == 12 && strings.HasPrefix(digits, brazilCountryCode) {
		return digits[:4] + "9" + digits[4:]
	}

	if len(digits) == 11 && strings.HasPrefix(digits, brazilCountryCode) {
		return brazilCountryCode + digits
	}

	return digits
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
