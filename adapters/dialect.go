package adapters

import (
	"strings"

	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/h"
	"github.com/soffa-projects/tenantdb-go/log"
)

const (
	DialectPostgres = "postgres"
	DialectSqlite   = "sqlite"
)

// NewDialect selects the dialect from the connection string scheme.
// Unrecognized strings fall back to Postgres.
func NewDialect(connectionString string) f.Dialect {
	if IsSqlite(connectionString) {
		return NewSqliteDialect()
	}
	lower := strings.ToLower(connectionString)
	if !strings.HasPrefix(lower, "postgres://") && !strings.HasPrefix(lower, "postgresql://") {
		log.Debug("no dialect matches %s, using postgres", h.RedactUrl(connectionString))
	}
	return NewPostgresDialect()
}

func IsSqlite(connectionString string) bool {
	lower := strings.ToLower(strings.TrimSpace(connectionString))
	if strings.HasPrefix(lower, "sqlite://") || strings.HasPrefix(lower, "file:") {
		return true
	}
	path := h.StripQuery(lower)
	return strings.HasSuffix(path, ".db") || strings.HasSuffix(path, ".sqlite") || strings.HasSuffix(path, ".sqlite3")
}

// ------------------------------------------------------------------------------------------------------------------
// SHARED HELPERS
// ------------------------------------------------------------------------------------------------------------------

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func quoteColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

// type families shared by both dialects when comparing column types
const (
	familyText      = "text"
	familyInteger   = "integer"
	familyNumber    = "number"
	familyBoolean   = "boolean"
	familyTimestamp = "timestamp"
	familyDate      = "date"
	familyUUID      = "uuid"
	familyJSON      = "json"
	familyArray     = "array"
)

// accepts lists the column families a value of each logical type can be stored in.
var accepts = map[string][]string{
	f.TypeText:      {familyText, familyTimestamp, familyDate, familyUUID, familyJSON},
	f.TypeInteger:   {familyInteger, familyNumber},
	f.TypeBigint:    {familyInteger, familyNumber},
	f.TypeNumber:    {familyNumber},
	f.TypeBoolean:   {familyBoolean},
	f.TypeTimestamp: {familyTimestamp, familyText},
	f.TypeDate:      {familyDate, familyTimestamp, familyText},
	f.TypeUUID:      {familyUUID, familyText},
	f.TypeJSON:      {familyJSON, familyText},
}

func compatible(family string, logicalType string) bool {
	if _, ok := f.ArrayElement(logicalType); ok {
		return family == familyArray
	}
	normalized := f.NormalizeType(logicalType)
	if normalized == "" {
		return false
	}
	return h.ContainsString(accepts[normalized], family)
}
