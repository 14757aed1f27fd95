package f

import (
	"strings"

	"github.com/uptrace/bun/schema"
)

type IdType string

const (
	IdSerial IdType = "serial"
	IdUUID   IdType = "uuid"
	IdText   IdType = "text"
	IdTypeID IdType = "typeid"
)

func ParseIdType(value string) (IdType, bool) {
	switch IdType(strings.ToLower(strings.TrimSpace(value))) {
	case IdSerial:
		return IdSerial, true
	case IdUUID:
		return IdUUID, true
	case IdText:
		return IdText, true
	case IdTypeID:
		return IdTypeID, true
	}
	return "", false
}

// Logical column types.
const (
	TypeText      = "text"
	TypeInteger   = "integer"
	TypeBigint    = "bigint"
	TypeNumber    = "number"
	TypeBoolean   = "boolean"
	TypeTimestamp = "timestamp"
	TypeDate      = "date"
	TypeUUID      = "uuid"
	TypeJSON      = "json"
)

var typeAliases = map[string]string{
	"text":      TypeText,
	"string":    TypeText,
	"varchar":   TypeText,
	"integer":   TypeInteger,
	"int":       TypeInteger,
	"bigint":    TypeBigint,
	"long":      TypeBigint,
	"number":    TypeNumber,
	"float":     TypeNumber,
	"double":    TypeNumber,
	"real":      TypeNumber,
	"boolean":   TypeBoolean,
	"bool":      TypeBoolean,
	"timestamp": TypeTimestamp,
	"datetime":  TypeTimestamp,
	"date":      TypeDate,
	"uuid":      TypeUUID,
	"json":      TypeJSON,
	"jsonb":     TypeJSON,
}

// NormalizeType folds a logical type alias to its canonical name.
// Unknown types return "".
func NormalizeType(logicalType string) string {
	return typeAliases[strings.ToLower(strings.TrimSpace(logicalType))]
}

// ArrayElement extracts the element type from "array:<elem>" or "<elem>[]".
func ArrayElement(logicalType string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(logicalType))
	if strings.HasPrefix(t, "array:") {
		return strings.TrimPrefix(t, "array:"), true
	}
	if strings.HasSuffix(t, "[]") {
		return strings.TrimSuffix(t, "[]"), true
	}
	return "", false
}

// Query is a statement with bun style '?' placeholders.
type Query struct {
	SQL  string
	Args []any
}

type ColumnInfo struct {
	Name       string `bun:"column_name" json:"name"`
	DataType   string `bun:"data_type" json:"type"`
	IsNullable string `bun:"is_nullable" json:"-"`
}

func (c ColumnInfo) Nullable() bool {
	return strings.EqualFold(c.IsNullable, "YES")
}

type IndexInfo struct {
	Name       string `bun:"index_name" json:"name"`
	Definition string `bun:"index_def" json:"definition"`
}

// Dialect produces the DDL and introspection statements of one database engine.
// Implementations perform no I/O.
type Dialect interface {
	Name() string
	QuoteIdent(name string) string

	TableExists(table string) Query
	CreateTable(table string, idType IdType) (string, error)
	DropTable(table string) string

	AddColumn(table, column, logicalType string, nullable bool) (string, error)
	AddArrayColumn(table, column, elementType string, defaultValue *string) (string, error)
	DropColumn(table, column string) string
	RenameColumn(table, oldName, newName string) string

	ListColumns(table string) Query
	ListIndexes(table string) Query

	CreateIndex(table, name string, columns []string, unique bool) string
	DropIndex(name string) string

	MapType(logicalType string) (string, error)
	MapIdColumn(idType IdType) (string, error)
	Now() string

	// Compatible reports whether a column of the given native type accepts
	// values of logicalType as is.
	Compatible(nativeType, logicalType string) bool

	Bun() schema.Dialect
}
