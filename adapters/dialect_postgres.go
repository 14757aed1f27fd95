package adapters

import (
	"fmt"
	"strings"

	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/schema"
)

type PostgresDialect struct {
	bun schema.Dialect
}

func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{bun: pgdialect.New()}
}

func (d *PostgresDialect) Name() string {
	return DialectPostgres
}

func (d *PostgresDialect) Bun() schema.Dialect {
	return d.bun
}

func (d *PostgresDialect) QuoteIdent(name string) string {
	return quoteIdent(name)
}

func (d *PostgresDialect) TableExists(table string) f.Query {
	return f.Query{
		SQL:  "SELECT COUNT(*) AS count FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?",
		Args: []any{table},
	}
}

func (d *PostgresDialect) CreateTable(table string, idType f.IdType) (string, error) {
	idCol, err := d.MapIdColumn(idType)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s, created_at TIMESTAMP DEFAULT NOW(), updated_at TIMESTAMP DEFAULT NOW())",
		quoteIdent(table), idCol,
	), nil
}

func (d *PostgresDialect) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + quoteIdent(table)
}

func (d *PostgresDialect) AddColumn(table, column, logicalType string, nullable bool) (string, error) {
	if elem, ok := f.ArrayElement(logicalType); ok {
		return d.AddArrayColumn(table, column, elem, nil)
	}
	sqlType, err := d.MapType(logicalType)
	if err != nil {
		return "", err
	}
	nullableStr := "NULL"
	if !nullable {
		nullableStr = "NOT NULL"
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s %s", quoteIdent(table), quoteIdent(column), sqlType, nullableStr), nil
}

func (d *PostgresDialect) AddArrayColumn(table, column, elementType string, defaultValue *string) (string, error) {
	sqlType, err := d.MapType(elementType)
	if err != nil {
		return "", err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s[]", quoteIdent(table), quoteIdent(column), sqlType)
	if defaultValue != nil {
		stmt += " DEFAULT " + quoteLiteral(*defaultValue)
	}
	return stmt, nil
}

func (d *PostgresDialect) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdent(table), quoteIdent(column))
}

func (d *PostgresDialect) RenameColumn(table, oldName, newName string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", quoteIdent(table), quoteIdent(oldName), quoteIdent(newName))
}

// ListColumns reports arrays as "<element>[]" instead of the generic ARRAY.
func (d *PostgresDialect) ListColumns(table string) f.Query {
	return f.Query{
		SQL: "SELECT column_name, " +
			"CASE WHEN data_type = 'ARRAY' THEN substr(udt_name, 2) || '[]' ELSE data_type END AS data_type, " +
			"is_nullable FROM information_schema.columns " +
			"WHERE table_schema = current_schema() AND table_name = ? ORDER BY ordinal_position",
		Args: []any{table},
	}
}

func (d *PostgresDialect) ListIndexes(table string) f.Query {
	return f.Query{
		SQL:  "SELECT indexname AS index_name, indexdef AS index_def FROM pg_indexes WHERE schemaname = current_schema() AND tablename = ? ORDER BY indexname",
		Args: []any{table},
	}
}

func (d *PostgresDialect) CreateIndex(table, name string, columns []string, unique bool) string {
	uniqueStr := ""
	if unique {
		uniqueStr = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)", uniqueStr, quoteIdent(name), quoteIdent(table), quoteColumns(columns))
}

func (d *PostgresDialect) DropIndex(name string) string {
	return "DROP INDEX IF EXISTS " + quoteIdent(name)
}

func (d *PostgresDialect) MapType(logicalType string) (string, error) {
	switch f.NormalizeType(logicalType) {
	case f.TypeText:
		return "TEXT", nil
	case f.TypeInteger:
		return "INTEGER", nil
	case f.TypeBigint:
		return "BIGINT", nil
	case f.TypeNumber:
		return "DOUBLE PRECISION", nil
	case f.TypeBoolean:
		return "BOOLEAN", nil
	case f.TypeTimestamp:
		return "TIMESTAMP", nil
	case f.TypeDate:
		return "DATE", nil
	case f.TypeUUID:
		return "UUID", nil
	case f.TypeJSON:
		return "JSONB", nil
	}
	return "", errors.UnsupportedFeature("type %s is not supported by postgres", logicalType)
}

func (d *PostgresDialect) MapIdColumn(idType f.IdType) (string, error) {
	switch idType {
	case f.IdSerial:
		return `"id" SERIAL PRIMARY KEY`, nil
	case f.IdUUID:
		return `"id" UUID PRIMARY KEY DEFAULT gen_random_uuid()`, nil
	case f.IdText, f.IdTypeID:
		return `"id" TEXT PRIMARY KEY`, nil
	}
	return "", errors.UnsupportedFeature("id type %s is not supported by postgres", idType)
}

func (d *PostgresDialect) Now() string {
	return "NOW()"
}

// Compatible compares array columns element-wise, so an array value only
// fits an array column whose element type accepts its elements.
func (d *PostgresDialect) Compatible(nativeType, logicalType string) bool {
	t := strings.ToLower(strings.TrimSpace(nativeType))
	columnElem, isArrayColumn := f.ArrayElement(t)
	if isArrayColumn || t == "array" {
		valueElem, isArrayValue := f.ArrayElement(logicalType)
		if !isArrayValue {
			return false
		}
		if !isArrayColumn {
			// element type unknown
			return true
		}
		return compatible(postgresFamily(columnElem), valueElem)
	}
	return compatible(postgresFamily(t), logicalType)
}

// postgresFamily accepts both information_schema names and udt names (int4, float8...).
func postgresFamily(nativeType string) string {
	t := strings.ToLower(strings.TrimSpace(nativeType))
	switch {
	case t == "text", strings.HasPrefix(t, "character"), strings.HasPrefix(t, "varchar"), t == "bpchar", t == "citext":
		return familyText
	case t == "integer", t == "bigint", t == "smallint", t == "int2", t == "int4", t == "int8":
		return familyInteger
	case t == "double precision", t == "real", strings.HasPrefix(t, "numeric"), t == "float4", t == "float8":
		return familyNumber
	case t == "boolean", t == "bool":
		return familyBoolean
	case strings.HasPrefix(t, "timestamp"):
		return familyTimestamp
	case t == "date":
		return familyDate
	case t == "uuid":
		return familyUUID
	case t == "json", t == "jsonb":
		return familyJSON
	}
	return t
}
