package preview

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Ident renders as a double quoted identifier.
type Ident string

// Text fragments render verbatim, concatenated.
type Text []string

// Expr is a nested sequence of nodes.
type Expr []any

// Null renders as NULL.
type Null struct{}

// Wrapper nodes render as the value they wrap.
type Wrapper interface {
	Unwrap() any
}

// Render walks node and produces SQL text with literals inlined.
// Unsupported node types fail.
func Render(node any) (string, error) {
	var sb strings.Builder
	if err := render(&sb, node); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func render(sb *strings.Builder, node any) error {
	switch v := node.(type) {
	case nil, Null:
		sb.WriteString("NULL")
	case string:
		sb.WriteString(quoteString(v))
	case Ident:
		sb.WriteString(quoteIdent(string(v)))
	case bun.Ident:
		sb.WriteString(quoteIdent(string(v)))
	case bun.Safe:
		sb.WriteString(string(v))
	case Text:
		for _, s := range v {
			sb.WriteString(s)
		}
	case Expr:
		for _, child := range v {
			if err := render(sb, child); err != nil {
				return err
			}
		}
	case bool:
		if v {
			sb.WriteString("TRUE")
		} else {
			sb.WriteString("FALSE")
		}
	case int:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int8:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int16:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int32:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		sb.WriteString(strconv.FormatInt(v, 10))
	case uint:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint8:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint16:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint32:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint64:
		sb.WriteString(strconv.FormatUint(v, 10))
	case float32:
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	case float64:
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case time.Time:
		sb.WriteString(quoteString(v.UTC().Format(time.RFC3339Nano)))
	case []byte:
		sb.WriteString(`'\x` + hex.EncodeToString(v) + "'")
	case Wrapper:
		return render(sb, v.Unwrap())
	case fmt.Stringer:
		sb.WriteString(quoteString(v.String()))
	default:
		return fmt.Errorf("unsupported node type %T", node)
	}
	return nil
}

// Raw concatenates the node leaves without quoting. It never fails.
func Raw(node any) string {
	var sb strings.Builder
	raw(&sb, node)
	return sb.String()
}

func raw(sb *strings.Builder, node any) {
	switch v := node.(type) {
	case nil:
	case Text:
		for _, s := range v {
			sb.WriteString(s)
		}
	case Expr:
		for _, child := range v {
			raw(sb, child)
		}
	case Wrapper:
		raw(sb, v.Unwrap())
	default:
		fmt.Fprint(sb, v)
	}
}

func quoteString(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
