package scheduler

import "strings"

// NormalizeBR converts a free-text phone value into a Brazilian E.164 number.
// Non-digits are stripped; fewer than 10 remaining digits means the value is
// not a reachable number and ok is false. The country code 55 is prepended
// unless the digits already carry it (a leading "55" with at least 12 digits
// total, so a São Paulo landline starting 55 isn't mistaken for one).
func NormalizeBR(raw string) (e164 string, ok bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) < 10 {
		return "", false
	}
	if strings.HasPrefix(digits, "55") && len(digits) >= 12 {
		return "+" + digits, true
	}
	return "+55" + digits, true
}

// DigitsForProvider strips the "+" and any whitespace from an E.164 number.
// Providers expect bare digit strings.
func DigitsForProvider(e164 string) string {
	var b strings.Builder
	for _, r := range e164 {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
