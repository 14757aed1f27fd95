package h

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var columnNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// SanitizeIdentifier lowercases the input, strips accents and replaces anything
// outside [a-z0-9_] with '_'. A leading digit is prefixed with "c_".
// Returns "" when nothing usable is left.
func SanitizeIdentifier(input string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, input)
	if err != nil {
		folded = input
	}
	folded = strings.ToLower(strings.TrimSpace(folded))

	var sb strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	s := sb.String()
	if strings.Trim(s, "_") == "" {
		return ""
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "c_" + s
	}
	return s
}

// IsValidColumnName reports whether name can be used verbatim as a column.
func IsValidColumnName(name string) bool {
	return columnNamePattern.MatchString(name)
}
