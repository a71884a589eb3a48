// Package taxid normalizes national tax identifiers (CUIL/CUIT style numbers).
// Every lookup by patient identifier in the service goes through Normalize so
// that "20-12345678-9", "20.12345678.9" and "20123456789" name the same person.
package taxid

import "strings"

// Length is the number of digits in a well-formed identifier.
const Length = 11

// Normalize strips every non-digit character.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Equal reports whether a and b normalize to the same non-empty identifier.
func Equal(a, b string) bool {
	na := Normalize(a)
	return na != "" && na == Normalize(b)
}

// Valid reports whether s normalizes to exactly Length digits.
func Valid(s string) bool {
	return len(Normalize(s)) == Length
}

// Format renders s as XX-XXXXXXXX-X. Identifiers that are not well formed are
// returned normalized but otherwise untouched.
func Format(s string) string {
	n := Normalize(s)
	if len(n) != Length {
		return n
	}
	return n[:2] + "-" + n[2:10] + "-" + n[10:]
}
