package utils

import (
	"regexp"
	"strings"
)

var zipPattern = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)

// ExtractZipCode returns the 5-digit zip code from a free-text US address
// such as "123 Main St, Springfield, IL 62704". The zip is read from the
// last comma-separated segment only; addresses without a comma, or whose
// last segment carries no zip, return "".
func ExtractZipCode(address string) string {
	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return ""
	}
	last := strings.TrimSpace(parts[len(parts)-1])
	m := zipPattern.FindStringSubmatch(last)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsZipCode reports whether s is exactly a 5-digit zip code.
func IsZipCode(s string) bool {
	if len(s) != 5 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// NormalizeZipCodes trims, deduplicates and drops invalid zip codes,
// preserving first-seen order.
func NormalizeZipCodes(zips []string) []string {
	seen := make(map[string]bool, len(zips))
	out := make([]string, 0, len(zips))
	for _, z := range zips {
		z = strings.TrimSpace(z)
		if !IsZipCode(z) || seen[z] {
			continue
		}
		seen[z] = true
		out = append(out, z)
	}
	return out
}
