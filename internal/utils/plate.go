package utils

import "strings"

// NormalizePlate upper-cases a plate and drops everything that is not A-Z or 0-9,
// so "mh 12-ab 1234" and "MH12AB1234" address the same vehicle.
func NormalizePlate(plate string) string {
	var b strings.Builder
	b.Grow(len(plate))
	for _, r := range strings.ToUpper(plate) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
