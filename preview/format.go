package preview

import (
	"fmt"
	"strings"
	"unicode"
)

var keywords = setOf(
	"ADD", "ALL", "ALTER", "AND", "AS", "ASC", "AUTOINCREMENT", "BETWEEN", "BIGINT", "BOOLEAN", "BY",
	"CASCADE", "CASE", "COLUMN", "CONSTRAINT", "CREATE", "CROSS", "DATE", "DEFAULT", "DELETE", "DESC",
	"DISTINCT", "DOUBLE", "DROP", "ELSE", "END", "EXCEPT", "EXISTS", "FALSE", "FOREIGN", "FROM", "FULL",
	"GROUP", "HAVING", "IF", "ILIKE", "IN", "INDEX", "INNER", "INSERT", "INTEGER", "INTERSECT", "INTO",
	"IS", "JOIN", "JSONB", "KEY", "LEFT", "LIKE", "LIMIT", "NOT", "NULL", "OFFSET", "ON", "OR", "ORDER",
	"OUTER", "PRECISION", "PRIMARY", "REAL", "REFERENCES", "RENAME", "RETURNING", "RIGHT", "SELECT",
	"SERIAL", "SET", "TABLE", "TEXT", "THEN", "TIMESTAMP", "TO", "TRUE", "UNION", "UNIQUE", "UPDATE",
	"UUID", "VALUES", "WHEN", "WHERE", "WITH",
)

var functions = setOf(
	"AVG", "COALESCE", "COUNT", "DATETIME", "GEN_RANDOM_UUID", "LOWER", "MAX", "MIN", "NOW", "SUM", "UPPER",
)

// clauses start a new line when they appear outside parentheses
var clauses = setOf(
	"FROM", "WHERE", "GROUP", "ORDER", "HAVING", "LIMIT", "OFFSET", "RETURNING", "SET", "VALUES",
	"UNION", "EXCEPT", "INTERSECT", "JOIN", "LEFT", "RIGHT", "INNER", "FULL", "CROSS",
)

func setOf(values ...string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokIdent
	tokOpen
	tokClose
	tokComma
	tokSemicolon
	tokDot
	tokOperator
)

type token struct {
	kind  tokenKind
	text  string
	depth int
}

// Format pretty prints sql: keywords are upper-cased and top level clauses
// start on their own line. Unterminated quotes and unbalanced parentheses fail.
func Format(sql string) (string, error) {
	tokens, err := tokenize(sql)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, tok := range tokens {
		text := tok.text
		if tok.kind == tokWord {
			upper := strings.ToUpper(text)
			if keywords[upper] || functions[upper] {
				text = upper
			}
		}
		if i > 0 {
			sb.WriteString(separator(tokens, i))
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func separator(tokens []token, i int) string {
	prev, tok := tokens[i-1], tokens[i]
	if tok.kind == tokWord && tok.depth == 0 {
		upper := strings.ToUpper(tok.text)
		if clauses[upper] && !joinContinuation(tokens, i) {
			return "\n"
		}
		if upper == "AND" || upper == "OR" {
			if whereScope(tokens, i) {
				return "\n  "
			}
		}
	}
	switch {
	case tok.kind == tokClose, tok.kind == tokComma, tok.kind == tokSemicolon, tok.kind == tokDot:
		return ""
	case prev.kind == tokOpen, prev.kind == tokDot, prev.text == "::":
		return ""
	case tok.kind == tokOperator && (tok.text == "::" || strings.HasPrefix(tok.text, "[")):
		return ""
	case tok.kind == tokOpen && prev.kind == tokWord && !keywords[strings.ToUpper(prev.text)]:
		// function call
		return ""
	}
	return " "
}

// joinContinuation reports a JOIN preceded by LEFT/RIGHT/INNER/FULL/CROSS/OUTER,
// or an OUTER following one of those, which stay on the same line.
func joinContinuation(tokens []token, i int) bool {
	upper := strings.ToUpper(tokens[i].text)
	if upper != "JOIN" && upper != "OUTER" {
		return false
	}
	prev := strings.ToUpper(tokens[i-1].text)
	switch prev {
	case "LEFT", "RIGHT", "INNER", "FULL", "CROSS", "OUTER":
		return true
	}
	return false
}

// whereScope is true when the closest preceding top level clause is a
// filtering one.
func whereScope(tokens []token, i int) bool {
	for j := i - 1; j >= 0; j-- {
		if tokens[j].kind != tokWord || tokens[j].depth != 0 {
			continue
		}
		switch strings.ToUpper(tokens[j].text) {
		case "WHERE", "HAVING", "ON":
			return true
		case "SELECT", "FROM", "SET", "VALUES", "RETURNING", "ORDER", "GROUP", "BETWEEN":
			return false
		}
	}
	return false
}

func tokenize(sql string) ([]token, error) {
	var tokens []token
	runes := []rune(sql)
	depth := 0
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			end, err := scanQuoted(runes, i)
			if err != nil {
				return nil, err
			}
			kind := tokString
			if r == '"' {
				kind = tokIdent
			}
			tokens = append(tokens, token{kind: kind, text: string(runes[i:end]), depth: depth})
			i = end
		case r == '(':
			tokens = append(tokens, token{kind: tokOpen, text: "(", depth: depth})
			depth++
			i++
		case r == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parenthesis at offset %d", i)
			}
			tokens = append(tokens, token{kind: tokClose, text: ")", depth: depth})
			i++
		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", depth: depth})
			i++
		case r == ';':
			tokens = append(tokens, token{kind: tokSemicolon, text: ";", depth: depth})
			i++
		case r == '.':
			tokens = append(tokens, token{kind: tokDot, text: ".", depth: depth})
			i++
		case isWordRune(r):
			start := i
			for i < len(runes) && isWordRune(runes[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokWord, text: string(runes[start:i]), depth: depth})
		default:
			start := i
			for i < len(runes) && isOperatorRune(runes[i]) {
				i++
			}
			if i == start {
				i++
			}
			tokens = append(tokens, token{kind: tokOperator, text: string(runes[start:i]), depth: depth})
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parenthesis: %d left open", depth)
	}
	return tokens, nil
}

// scanQuoted returns the offset after the closing quote; doubled quotes escape.
func scanQuoted(runes []rune, start int) (int, error) {
	quote := runes[start]
	for i := start + 1; i < len(runes); i++ {
		if runes[i] != quote {
			continue
		}
		if i+1 < len(runes) && runes[i+1] == quote {
			i++
			continue
		}
		return i + 1, nil
	}
	return 0, fmt.Errorf("unterminated quote at offset %d", start)
}

func isWordRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isOperatorRune(r rune) bool {
	return strings.ContainsRune("<>=!|:+-*/%~^&?@#[]", r)
}
