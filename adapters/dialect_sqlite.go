package adapters

import (
	"encoding/json"
	"fmt"
	"strings"

	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// SqliteDialect stores booleans as INTEGER, and timestamps, uuids, json and
// arrays as TEXT.
type SqliteDialect struct {
	bun schema.Dialect
}

func NewSqliteDialect() *SqliteDialect {
	return &SqliteDialect{bun: sqlitedialect.New()}
}

func (d *SqliteDialect) Name() string {
	return DialectSqlite
}

func (d *SqliteDialect) Bun() schema.Dialect {
	return d.bun
}

func (d *SqliteDialect) QuoteIdent(name string) string {
	return quoteIdent(name)
}

func (d *SqliteDialect) TableExists(table string) f.Query {
	return f.Query{
		SQL:  "SELECT COUNT(*) AS count FROM sqlite_master WHERE type = 'table' AND name = ?",
		Args: []any{table},
	}
}

func (d *SqliteDialect) CreateTable(table string, idType f.IdType) (string, error) {
	idCol, err := d.MapIdColumn(idType)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s, created_at TEXT DEFAULT (datetime('now')), updated_at TEXT DEFAULT (datetime('now')))",
		quoteIdent(table), idCol,
	), nil
}

func (d *SqliteDialect) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + quoteIdent(table)
}

// AddColumn adds a zero default to NOT NULL columns, sqlite rejects them otherwise.
func (d *SqliteDialect) AddColumn(table, column, logicalType string, nullable bool) (string, error) {
	if elem, ok := f.ArrayElement(logicalType); ok {
		return d.AddArrayColumn(table, column, elem, nil)
	}
	sqlType, err := d.MapType(logicalType)
	if err != nil {
		return "", err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(column), sqlType)
	if !nullable {
		stmt += " NOT NULL DEFAULT " + sqliteZero(sqlType)
	}
	return stmt, nil
}

func (d *SqliteDialect) AddArrayColumn(table, column, elementType string, defaultValue *string) (string, error) {
	if _, err := d.MapType(elementType); err != nil {
		return "", err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quoteIdent(table), quoteIdent(column))
	if defaultValue != nil {
		stmt += " DEFAULT " + quoteLiteral(arrayLiteralToJSON(*defaultValue))
	}
	return stmt, nil
}

func (d *SqliteDialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdent(table), quoteIdent(column))
}

func (d *SqliteDialect) RenameColumn(table, oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", quoteIdent(table), quoteIdent(oldName), quoteIdent(newName))
}

func (d *SqliteDialect) ListColumns(table string) f.Query {
	return f.Query{
		SQL: "SELECT name AS column_name, type AS data_type, " +
			"CASE WHEN \"notnull\" = 1 THEN 'NO' ELSE 'YES' END AS is_nullable " +
			"FROM pragma_table_info(?) ORDER BY cid",
		Args: []any{table},
	}
}

func (d *SqliteDialect) ListIndexes(table string) f.Query {
	return f.Query{
		SQL:  "SELECT name AS index_name, COALESCE(sql, '') AS index_def FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name NOT LIKE 'sqlite_autoindex_%' ORDER BY name",
		Args: []any{table},
	}
}

func (d *SqliteDialect) CreateIndex(table, name string, columns []string, unique bool) string {
	uniqueStr := ""
	if unique {
		uniqueStr = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)", uniqueStr, quoteIdent(name), quoteIdent(table), quoteColumns(columns))
}

func (d *SqliteDialect) DropIndex(name string) string {
	return "DROP INDEX IF EXISTS " + quoteIdent(name)
}

func (d *SqliteDialect) MapType(logicalType string) (string, error) {
	switch f.NormalizeType(logicalType) {
	case f.TypeInteger, f.TypeBigint, f.TypeBoolean:
		return "INTEGER", nil
	case f.TypeNumber:
		return "REAL", nil
	case f.TypeText, f.TypeTimestamp, f.TypeDate, f.TypeUUID, f.TypeJSON:
		return "TEXT", nil
	}
	return "", errors.UnsupportedFeature("type %s is not supported by sqlite", logicalType)
}

func (d *SqliteDialect) MapIdColumn(idType f.IdType) (string, error) {
	switch idType {
	case f.IdSerial:
		return `"id" INTEGER PRIMARY KEY AUTOINCREMENT`, nil
	case f.IdUUID, f.IdText, f.IdTypeID:
		return `"id" TEXT PRIMARY KEY`, nil
	}
	return "", errors.UnsupportedFeature("id type %s is not supported by sqlite", idType)
}

func (d *SqliteDialect) Now() string {
	return "datetime('now')"
}

// Compatible follows sqlite type affinity: TEXT columns hold every textual
// logical type and arrays, INTEGER columns hold booleans.
func (d *SqliteDialect) Compatible(nativeType, logicalType string) bool {
	t := strings.ToUpper(strings.TrimSpace(nativeType))
	var families []string
	switch {
	case strings.Contains(t, "INT"):
		families = []string{familyInteger, familyBoolean}
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		families = []string{familyText, familyTimestamp, familyDate, familyUUID, familyJSON, familyArray}
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"), strings.Contains(t, "NUMERIC"):
		families = []string{familyNumber}
	case t == "":
		// no declared type, any value goes
		return true
	}
	for _, family := range families {
		if compatible(family, logicalType) {
			return true
		}
	}
	return false
}

func sqliteZero(sqlType string) string {
	switch sqlType {
	case "INTEGER", "REAL":
		return "0"
	}
	return "''"
}

// arrayLiteralToJSON turns a postgres array literal such as {"user","admin"}
// into the JSON text stored by sqlite.
func arrayLiteralToJSON(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "[") {
		return trimmed
	}
	trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "{"), "}")
	items := []string{}
	if trimmed != "" {
		for _, item := range strings.Split(trimmed, ",") {
			items = append(items, strings.Trim(strings.TrimSpace(item), `"`))
		}
	}
	out, _ := json.Marshal(items)
	return string(out)
}
