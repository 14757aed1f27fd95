package preview

import (
	"strconv"
	"strings"

	"github.com/soffa-projects/tenantdb-go/log"
)

// Preview renders and formats node for humans. On any failure it degrades
// to the raw concatenation of the node, it never fails.
func Preview(node any) string {
	rendered, err := Render(node)
	if err != nil {
		log.Debug("preview fallback: %v", err)
		return Raw(node)
	}
	return PreviewRaw(rendered)
}

// PreviewRaw formats sql, or returns it unchanged when it cannot be parsed.
func PreviewRaw(sql string) string {
	formatted, err := Format(sql)
	if err != nil {
		log.Debug("preview fallback: %v", err)
		return sql
	}
	return formatted
}

// PreviewQuery inlines args into the '?' and '$n' placeholders of sql, then
// formats the result. Placeholders inside quoted text are left alone.
func PreviewQuery(sql string, args ...any) string {
	return PreviewRaw(Substitute(sql, args...))
}

// Substitute replaces placeholders with rendered literals. Placeholders
// without a matching argument are kept.
func Substitute(sql string, args ...any) string {
	var sb strings.Builder
	runes := []rune(sql)
	next := 0
	var quote rune
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			sb.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		switch {
		case r == '\'' || r == '"':
			quote = r
			sb.WriteRune(r)
		case r == '?':
			if next < len(args) {
				sb.WriteString(literal(args[next]))
				next++
			} else {
				sb.WriteRune(r)
			}
		case r == '$' && i+1 < len(runes) && isDigit(runes[i+1]):
			j := i + 1
			for j < len(runes) && isDigit(runes[j]) {
				j++
			}
			n, _ := strconv.Atoi(string(runes[i+1 : j]))
			if n >= 1 && n <= len(args) {
				sb.WriteString(literal(args[n-1]))
			} else {
				sb.WriteString(string(runes[i:j]))
			}
			i = j - 1
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func literal(arg any) string {
	rendered, err := Render(arg)
	if err != nil {
		return Raw(arg)
	}
	return rendered
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
