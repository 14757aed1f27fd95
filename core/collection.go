package f

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type CollectionType string

const (
	CollectionBase CollectionType = "base"
	CollectionAuth CollectionType = "auth"
)

type Collection struct {
	bun.BaseModel `bun:"table:collections" json:"-"`
	ID            string         `bun:"id,pk" json:"id"`
	DatabaseID    string         `bun:"database_id,notnull" json:"database_id"`
	Name          string         `bun:"name,notnull" json:"name"`
	PhysicalName  string         `bun:"physical_name,notnull" json:"physical_name"`
	Type          CollectionType `bun:"type,notnull" json:"type"`
	IdType        IdType         `bun:"id_type,notnull" json:"id_type"`
	CreatedAt     time.Time      `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time      `bun:"updated_at,notnull" json:"updated_at"`
}

// CollectionStore keeps the logical to physical name claims.
type CollectionStore interface {
	// Claim records c unless the same logical name is already claimed, in which
	// case the existing claim is returned. A physical name held by another
	// logical name fails with a conflict.
	Claim(ctx context.Context, c Collection) (*Collection, error)
	Get(ctx context.Context, databaseID, name string) (*Collection, error)
	List(ctx context.Context, databaseID string) ([]Collection, error)
	Delete(ctx context.Context, databaseID, name string) error
}

type SchemaOpts struct {
	DryRun bool
}

// SchemaChange describes the DDL an operation ran, or would run on a dry run.
type SchemaChange struct {
	Statements []string `json:"statements"`
	Preview    string   `json:"preview"`
	DryRun     bool     `json:"dry_run"`
}

type FieldDef struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
}

type IndexDef struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

type CollectionSchema struct {
	Collection
	Fields  []ColumnInfo `json:"fields"`
	Indexes []IndexInfo  `json:"indexes"`
}

type CollectionRegistry interface {
	PhysicalName(ctx context.Context, databaseID, collection string) (string, error)
	EnsureTable(ctx context.Context, databaseID, collection string, idType IdType) (*Collection, error)
	EnsureColumn(ctx context.Context, databaseID, collection, column, logicalType string, nullable bool) error
	Columns(ctx context.Context, databaseID, collection string) (map[string]ColumnInfo, error)
	// Forget drops the cached columns of a physical table.
	Forget(databaseID, table string)

	Declare(ctx context.Context, databaseID, name string, kind CollectionType, idType IdType, opts SchemaOpts) (*SchemaChange, error)
	Describe(ctx context.Context, databaseID, name string) (*CollectionSchema, error)
	List(ctx context.Context, databaseID string) ([]Collection, error)
	Drop(ctx context.Context, databaseID, name string, opts SchemaOpts) (*SchemaChange, error)

	AddField(ctx context.Context, databaseID, collection string, field FieldDef, opts SchemaOpts) (*SchemaChange, error)
	AddArrayField(ctx context.Context, databaseID, collection string, field FieldDef, opts SchemaOpts) (*SchemaChange, error)
	RemoveField(ctx context.Context, databaseID, collection, field string, opts SchemaOpts) (*SchemaChange, error)
	RenameField(ctx context.Context, databaseID, collection, oldName, newName string, opts SchemaOpts) (*SchemaChange, error)
	CreateIndex(ctx context.Context, databaseID, collection string, index IndexDef, opts SchemaOpts) (*SchemaChange, error)
	RemoveIndex(ctx context.Context, databaseID, collection, name string, opts SchemaOpts) (*SchemaChange, error)
	AddAuthFields(ctx context.Context, databaseID, collection string, opts SchemaOpts) (*SchemaChange, error)
}
