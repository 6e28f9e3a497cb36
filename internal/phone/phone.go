// Package phone normalizes and validates North American and E.164 numbers.
package phone

import (
	"regexp"
	"strings"
)

var e164 = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize turns 10-digit US numbers and 11-digit numbers with a leading 1
// into E.164. Anything else is returned trimmed but otherwise unchanged.
func Normalize(s string) string {
	d := digits(s)
	switch {
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	}
	return strings.TrimSpace(s)
}

func Validate(s string) bool {
	d := digits(s)
	if len(d) == 10 || (len(d) == 11 && d[0] == '1') {
		return true
	}
	return e164.MatchString(d)
}

// Format renders US numbers for display: (415) 555-0100 or +1 (415) 555-0100.
func Format(s string) string {
	d := digits(s)
	switch {
	case len(d) == 10:
		return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
	case len(d) == 11 && d[0] == '1':
		return "+1 (" + d[1:4] + ") " + d[4:7] + "-" + d[7:]
	}
	return s
}
