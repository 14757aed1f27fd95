package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/h"
	"github.com/soffa-projects/tenantdb-go/log"
	"github.com/soffa-projects/tenantdb-go/preview"
)

// CollectionRegistry maps logical collections to physical tables and evolves
// their columns. DDL is idempotent at statement level, concurrent writers are
// not serialized here.
type CollectionRegistry struct {
	manager       f.ConnectionManager
	store         f.CollectionStore
	columns       h.Cache
	strict        bool
	defaultIdType f.IdType
	events        f.SchemaEvents
	origin        string
}

var _ f.CollectionRegistry = (*CollectionRegistry)(nil)

type RegistryOption func(*CollectionRegistry)

func WithStrictSchema(strict bool) RegistryOption {
	return func(r *CollectionRegistry) {
		r.strict = strict
	}
}

func WithDefaultIdType(idType f.IdType) RegistryOption {
	return func(r *CollectionRegistry) {
		if idType != "" {
			r.defaultIdType = idType
		}
	}
}

// WithSchemaEvents shares table changes with the registries of other processes.
func WithSchemaEvents(events f.SchemaEvents) RegistryOption {
	return func(r *CollectionRegistry) {
		r.events = events
	}
}

func WithColumnCacheTTL(ttl time.Duration) RegistryOption {
	return func(r *CollectionRegistry) {
		r.columns = h.MustNewCache(ttl)
	}
}

func NewCollectionRegistry(manager f.ConnectionManager, store f.CollectionStore, opts ...RegistryOption) *CollectionRegistry {
	f.Check(manager, "connection manager is required")
	f.Check(store, "collection store is required")
	r := &CollectionRegistry{
		manager:       manager,
		store:         store,
		defaultIdType: f.IdSerial,
		origin:        h.NewUUID(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.columns == nil {
		r.columns = h.MustNewCache(10 * time.Minute)
	}
	if r.events != nil {
		r.events.Subscribe(context.Background(), func(change f.TableChange) {
			if change.Origin == r.origin {
				return
			}
			r.invalidate(change.DatabaseID, change.Table)
		})
	}
	return r
}

func (r *CollectionRegistry) Strict() bool {
	return r.strict
}

// ------------------------------------------------------------------------------------------------------------------
// NAMING
// ------------------------------------------------------------------------------------------------------------------

func physicalName(cnx *f.Connection, collection string) (string, error) {
	name := h.SanitizeIdentifier(collection)
	if name == "" {
		return "", errors.BadRequest("invalid collection name %q", collection)
	}
	return cnx.Prefix + name, nil
}

func (r *CollectionRegistry) PhysicalName(ctx context.Context, databaseID, collection string) (string, error) {
	cnx, err := r.manager.Resolve(ctx, databaseID)
	if err != nil {
		return "", err
	}
	return r.physicalName(ctx, cnx, databaseID, collection)
}

// physicalName returns the claimed name, or the computed one after checking
// no other collection holds it.
func (r *CollectionRegistry) physicalName(ctx context.Context, cnx *f.Connection, databaseID, collection string) (string, error) {
	existing, err := r.store.Get(ctx, databaseID, collection)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.PhysicalName, nil
	}
	name, err := physicalName(cnx, collection)
	if err != nil {
		return "", err
	}
	claimed, err := r.store.List(ctx, databaseID)
	if err != nil {
		return "", err
	}
	for _, c := range claimed {
		if c.PhysicalName == name {
			return "", errors.Conflict("collection %s maps to %s, already used by %s", collection, name, c.Name)
		}
	}
	return name, nil
}

func (r *CollectionRegistry) claim(ctx context.Context, cnx *f.Connection, databaseID, collection string, kind f.CollectionType, idType f.IdType) (*f.Collection, error) {
	if existing, err := r.store.Get(ctx, databaseID, collection); err != nil || existing != nil {
		return existing, err
	}
	name, err := physicalName(cnx, collection)
	if err != nil {
		return nil, err
	}
	if idType == "" {
		idType = r.defaultIdType
	}
	if kind == "" {
		kind = f.CollectionBase
	}
	return r.store.Claim(ctx, f.Collection{
		DatabaseID:   databaseID,
		Name:         collection,
		PhysicalName: name,
		Type:         kind,
		IdType:       idType,
	})
}

func indexName(cnx *f.Connection, table, name string) string {
	return fmt.Sprintf("%sidx_%s_%s", cnx.Prefix, table, name)
}

// ------------------------------------------------------------------------------------------------------------------
// INTROSPECTION
// ------------------------------------------------------------------------------------------------------------------

func tableExists(ctx context.Context, cnx *f.Connection, table string) (bool, error) {
	q := cnx.Dialect.TableExists(table)
	var count int
	if err := cnx.DB.NewRaw(q.SQL, q.Args...).Scan(ctx, &count); err != nil {
		return false, errors.Wrap(err, "failed to check table %s", table)
	}
	return count > 0, nil
}

func listColumns(ctx context.Context, cnx *f.Connection, table string) ([]f.ColumnInfo, error) {
	q := cnx.Dialect.ListColumns(table)
	columns := []f.ColumnInfo{}
	if err := cnx.DB.NewRaw(q.SQL, q.Args...).Scan(ctx, &columns); err != nil {
		return nil, errors.Wrap(err, "failed to list columns of %s", table)
	}
	return columns, nil
}

func listIndexes(ctx context.Context, cnx *f.Connection, table string) ([]f.IndexInfo, error) {
	q := cnx.Dialect.ListIndexes(table)
	indexes := []f.IndexInfo{}
	if err := cnx.DB.NewRaw(q.SQL, q.Args...).Scan(ctx, &indexes); err != nil {
		return nil, errors.Wrap(err, "failed to list indexes of %s", table)
	}
	return indexes, nil
}

func (r *CollectionRegistry) cacheKey(databaseID, table string) string {
	return databaseID + "|" + table
}

// tableColumns is cached per table; empty results are not cached so a table
// created elsewhere is seen on the next call.
func (r *CollectionRegistry) tableColumns(ctx context.Context, cnx *f.Connection, databaseID, table string) (map[string]f.ColumnInfo, error) {
	key := r.cacheKey(databaseID, table)
	if cached, ok := r.columns.Get(key); ok {
		return cached.(map[string]f.ColumnInfo), nil
	}
	list, err := listColumns(ctx, cnx, table)
	if err != nil {
		return nil, err
	}
	columns := make(map[string]f.ColumnInfo, len(list))
	for _, c := range list {
		columns[c.Name] = c
	}
	if len(columns) > 0 {
		r.columns.Set(key, columns)
	}
	return columns, nil
}

func (r *CollectionRegistry) invalidate(databaseID, table string) {
	r.columns.Del(r.cacheKey(databaseID, table))
}

func (r *CollectionRegistry) Forget(databaseID, table string) {
	r.invalidate(databaseID, table)
}

// changed drops the local metadata of table and tells the other processes.
func (r *CollectionRegistry) changed(ctx context.Context, databaseID, table string) {
	r.invalidate(databaseID, table)
	r.publish(ctx, databaseID, table)
}

func (r *CollectionRegistry) publish(ctx context.Context, databaseID, table string) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, f.TableChange{DatabaseID: databaseID, Table: table, Origin: r.origin}); err != nil {
		log.Warn("failed to publish change of %s: %v", table, err)
	}
}

// Columns returns the physical columns of collection, empty when the table
// does not exist yet.
func (r *CollectionRegistry) Columns(ctx context.Context, databaseID, collection string) (map[string]f.ColumnInfo, error) {
	cnx, err := r.manager.Resolve(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	table, err := r.physicalName(ctx, cnx, databaseID, collection)
	if err != nil {
		return nil, err
	}
	return r.tableColumns(ctx, cnx, databaseID, table)
}

// ------------------------------------------------------------------------------------------------------------------
// SCHEMA ON WRITE
// ------------------------------------------------------------------------------------------------------------------

// EnsureTable claims the collection and creates its table when missing.
func (r *CollectionRegistry) EnsureTable(ctx context.Context, databaseID, collection string, idType f.IdType) (*f.Collection, error) {
	cnx, err := r.manager.Resolve(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	c, err := r.claim(ctx, cnx, databaseID, collection, f.CollectionBase, idType)
	if err != nil {
		return nil, err
	}
	if err := r.ensureTable(ctx, cnx, databaseID, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CollectionRegistry) ensureTable(ctx context.Context, cnx *f.Connection, databaseID string, c *f.Collection) error {
	exists, err := tableExists(ctx, cnx, c.PhysicalName)
	if err != nil || exists {
		return err
	}
	stmt, err := cnx.Dialect.CreateTable(c.PhysicalName, c.IdType)
	if err != nil {
		return err
	}
	if _, err := cnx.DB.ExecContext(ctx, stmt); err != nil {
		if !isDuplicateTable(err) {
			// a racing creator may win without the error saying so
			if exists, _ := tableExists(ctx, cnx, c.PhysicalName); !exists {
				return errors.Wrap(err, "failed to create table %s", c.PhysicalName)
			}
		}
		r.invalidate(databaseID, c.PhysicalName)
		return nil
	}
	r.changed(ctx, databaseID, c.PhysicalName)
	log.Fields(map[string]any{"source": databaseID, "table": c.PhysicalName}).Info("table created for collection %s", c.Name)
	return nil
}

// EnsureColumn adds column when missing. An existing column must accept
// logicalType, TypeConflict otherwise.
func (r *CollectionRegistry) EnsureColumn(ctx context.Context, databaseID, collection, column, logicalType string, nullable bool) error {
	if !h.IsValidColumnName(column) {
		return errors.BadRequest("invalid column name %q", column)
	}
	cnx, err := r.manager.Resolve(ctx, databaseID)
	if err != nil {
		return err
	}
	table, err := r.physicalName(ctx, cnx, databaseID, collection)
	if err != nil {
		return err
	}
	columns, err := r.tableColumns(ctx, cnx, databaseID, table)
	if err != nil {
		return err
	}
	if existing, ok := columns[column]; ok {
		return checkCompatible(cnx, table, existing, logicalType)
	}
	if r.strict {
		return errors.BadRequest("UNKNOWN_FIELD: %s", column)
	}

	stmt, err := cnx.Dialect.AddColumn(table, column, logicalType, nullable)
	if err != nil {
		return err
	}
	_, execErr := cnx.DB.ExecContext(ctx, stmt)
	r.invalidate(databaseID, table)
	if execErr == nil {
		r.publish(ctx, databaseID, table)
		log.Fields(map[string]any{"source": databaseID, "table": table}).Info("column %s %s added", column, logicalType)
		// warm the cache so repeating the call runs no statement
		if _, err := r.tableColumns(ctx, cnx, databaseID, table); err != nil {
			log.Debug("failed to reload columns of %s: %v", table, err)
		}
		return nil
	}
	if !isDuplicateColumn(execErr) {
		return classifyDBError(execErr, "failed to add column %s to %s", column, table)
	}
	// another writer added it first
	columns, err = r.tableColumns(ctx, cnx, databaseID, table)
	if err != nil {
		return err
	}
	if existing, ok := columns[column]; ok {
		return checkCompatible(cnx, table, existing, logicalType)
	}
	return errors.Wrap(execErr, "failed to add column %s to %s", column, table)
}

func checkCompatible(cnx *f.Connection, table string, existing f.ColumnInfo, logicalType string) error {
	if cnx.Dialect.Compatible(existing.DataType, logicalType) {
		return nil
	}
	return errors.TypeConflict("column %s.%s is %s, cannot store %s", table, existing.Name, existing.DataType, logicalType)
}

// ------------------------------------------------------------------------------------------------------------------
// COLLECTION ADMIN
// ------------------------------------------------------------------------------------------------------------------

func dryRun(statements ...string) *f.SchemaChange {
	previews := make([]string, len(statements))
	for i, stmt := range statements {
		previews[i] = preview.PreviewRaw(stmt)
	}
	change := &f.SchemaChange{
		Statements: statements,
		DryRun:     true,
	}
	if len(previews) > 0 {
		change.Preview = strings.Join(previews, ";\n") + ";"
	}
	return change
}

func applied(statements ...string) *f.SchemaChange {
	change := dryRun(statements...)
	change.DryRun = false
	return change
}

// Declare creates a collection explicitly. Auth collections get the
// email/password/name/roles fields.
func (r *CollectionRegistry) Declare(ctx context.Context, databaseID, name string, kind f.CollectionType, idType f.IdType, opts f.SchemaOpts) (*f.SchemaChange, error) {
	if kind == "" {
		kind = f.CollectionBase
	}
	if kind != f.CollectionBase && kind != f.CollectionAuth {
		return nil, errors.BadRequest("invalid collection type %q", kind)
	}
	if idType == "" {
		idType = r.defaultIdType
	}
	cnx, err := r.manager.Resolve(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if existing, err := r.store.Get(ctx, databaseID, name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, errors.Conflict("collection %s already exists", name)
	}
	table, err := r.physicalName(ctx, cnx, databaseID, name)
	if err != nil {
		return nil, err
	}
	create, err := cnx.Dialect.CreateTable(table, idType)
	if err != nil {
		return nil, err
	}
	statements := []string{create}
	if kind == f.CollectionAuth {
		auth, err := authStatements(cnx, table)
		if err != nil {
			return nil, err
		}
		statements = append(statements, auth...)
	}
	if opts.DryRun {
		return dryRun(statements...), nil
	}

	c, err := r.claim(ctx, cnx, databaseID, name, kind, idType)
	if err != nil {
		return nil, err
	}
	if err := r.ensureTable(ctx, cnx, databaseID, c); err != nil {
		return nil, err
	}
	if kind == f.CollectionAuth {
		if _, err := r.AddAuthFields(ctx, databaseID, name, f.SchemaOpts{}); err != nil {
			return nil, err
		}
	}
	return applied(statements...), nil
}

func (r *CollectionRegistry) List(ctx context.Context, databaseID string) ([]f.Collection, error) {
	if _, err := r.manager.Resolve(ctx, databaseID); err != nil {
		return nil, err
	}
	return r.store.List(ctx, databaseID)
}

// Describe returns the collection with its physical fields and indexes.
func (r *CollectionRegistry) Describe(ctx context.Context, databaseID, name string) (*f.CollectionSchema, error) {
	cnx, err := r.manager.Resolve(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	c, err := r.store.Get(ctx, databaseID, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		table, err := physicalName(cnx, name)
		if err != nil {
			return nil, err
		}
		c = &f.Collection{DatabaseID: databaseID, Name: name, PhysicalName: table, Type: f.CollectionBase}
	}
	exists, err := tableExists(ctx, cnx, c.PhysicalName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.NotFound("collection %s not found", name)
	}
	fields, err := listColumns(ctx, cnx, c.PhysicalName)
	if err != nil {
		return nil, err
	}
	indexes, err := listIndexes(ctx, cnx, c.PhysicalName)
	if err != nil {
		return nil, err
	}
	return &f.CollectionSchema{Collection: *c, Fields: fields, Indexes: indexes}, nil
}

// Drop removes the table and the collection claim.
func (r *CollectionRegistry) Drop(ctx context.Context, databaseID, name string, opts f.SchemaOpts) (*f.SchemaChange, error) {
	cnx, table, err := r.existing(ctx, databaseID, name)
	if err != nil {
		return nil, err
	}
	stmt := cnx.Dialect.DropTable(table)
	if opts.DryRun {
		return dryRun(stmt), nil
	}
	if _, err := cnx.DB.ExecContext(ctx, stmt); err != nil {
		return nil, errors.Wrap(err, "failed to drop %s", table)
	}
	r.changed(ctx, databaseID, table)
	if err := r.store.Delete(ctx, databaseID, name); err != nil {
		return nil, err
	}
	log.Fields(map[string]any{"source": databaseID, "table": table}).Info("collection %s dropped", name)
	return applied(stmt), nil
}

// existing resolves a collection whose table must already exist.
func (r *CollectionRegistry) existing(ctx context.Context, databaseID, name string) (*f.Connection, string, error) {
	cnx, err := r.manager.Resolve(ctx, databaseID)
	if err != nil {
		return nil, "", err
	}
	table, err := r.physicalName(ctx, cnx, databaseID, name)
	if err != nil {
		return nil, "", err
	}
	exists, err := tableExists(ctx, cnx, table)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, "", errors.NotFound("collection %s not found", name)
	}
	return cnx, table, nil
}

func (r *CollectionRegistry) execDDL(ctx context.Context, cnx *f.Connection, databaseID, table string, opts f.SchemaOpts, statements ...string) (*f.SchemaChange, error) {
	if opts.DryRun {
		return dryRun(statements...), nil
	}
	defer r.invalidate(databaseID, table)
	for _, stmt := range statements {
		if _, err := cnx.DB.ExecContext(ctx, stmt); err != nil {
			return nil, classifyDBError(err, "failed to alter %s", table)
		}
	}
	r.publish(ctx, databaseID, table)
	return applied(statements...), nil
}

// AddField adds a typed column. Unlike schema on write it is allowed in
// strict mode.
func (r *CollectionRegistry) AddField(ctx context.Context, databaseID, collection string, field f.FieldDef, opts f.SchemaOpts) (*f.SchemaChange, error) {
	if !h.IsValidColumnName(field.Name) {
		return nil, errors.BadRequest("invalid field name %q", field.Name)
	}
	cnx, table, err := r.existing(ctx, databaseID, collection)
	if err != nil {
		return nil, err
	}
	if err := r.requireAbsent(ctx, cnx, databaseID, table, field.Name); err != nil {
		return nil, err
	}
	stmt, err := cnx.Dialect.AddColumn(table, field.Name, field.Type, field.Nullable)
	if err != nil {
		return nil, err
	}
	return r.execDDL(ctx, cnx, databaseID, table, opts, stmt)
}

// AddArrayField adds an array column of field.Type elements, with
// field.Default as a postgres array literal.
func (r *CollectionRegistry) AddArrayField(ctx context.Context, databaseID, collection string, field f.FieldDef, opts f.SchemaOpts) (*f.SchemaChange, error) {
	if !h.IsValidColumnName(field.Name) {
		return nil, errors.BadRequest("invalid field name %q", field.Name)
	}
	cnx, table, err := r.existing(ctx, databaseID, collection)
	if err != nil {
		return nil, err
	}
	if err := r.requireAbsent(ctx, cnx, databaseID, table, field.Name); err != nil {
		return nil, err
	}
	elem := field.Type
	if e, ok := f.ArrayElement(field.Type); ok {
		elem = e
	}
	stmt, err := cnx.Dialect.AddArrayColumn(table, field.Name, elem, field.Default)
	if err != nil {
		return nil, err
	}
	return r.execDDL(ctx, cnx, databaseID, table, opts, stmt)
}

func (r *CollectionRegistry) RemoveField(ctx context.Context, databaseID, collection, field string, opts f.SchemaOpts) (*f.SchemaChange, error) {
	cnx, table, err := r.existing(ctx, databaseID, collection)
	if err != nil {
		return nil, err
	}
	if err := r.requirePresent(ctx, cnx, databaseID, table, field); err != nil {
		return nil, err
	}
	return r.execDDL(ctx, cnx, databaseID, table, opts, cnx.Dialect.DropColumn(table, field))
}

func (r *CollectionRegistry) RenameField(ctx context.Context, databaseID, collection, oldName, newName string, opts f.SchemaOpts) (*f.SchemaChange, error) {
	if !h.IsValidColumnName(newName) {
		return nil, errors.BadRequest("invalid field name %q", newName)
	}
	cnx, table, err := r.existing(ctx, databaseID, collection)
	if err != nil {
		return nil, err
	}
	if err := r.requirePresent(ctx, cnx, databaseID, table, oldName); err != nil {
		return nil, err
	}
	if err := r.requireAbsent(ctx, cnx, databaseID, table, newName); err != nil {
		return nil, err
	}
	return r.execDDL(ctx, cnx, databaseID, table, opts, cnx.Dialect.RenameColumn(table, oldName, newName))
}

func (r *CollectionRegistry) CreateIndex(ctx context.Context, databaseID, collection string, index f.IndexDef, opts f.SchemaOpts) (*f.SchemaChange, error) {
	if !h.IsValidColumnName(index.Name) {
		return nil, errors.BadRequest("invalid index name %q", index.Name)
	}
	if len(index.Columns) == 0 {
		return nil, errors.BadRequest("index %s has no columns", index.Name)
	}
	cnx, table, err := r.existing(ctx, databaseID, collection)
	if err != nil {
		return nil, err
	}
	for _, column := range index.Columns {
		if err := r.requirePresent(ctx, cnx, databaseID, table, column); err != nil {
			return nil, err
		}
	}
	stmt := cnx.Dialect.CreateIndex(table, indexName(cnx, table, index.Name), index.Columns, index.Unique)
	return r.execDDL(ctx, cnx, databaseID, table, opts, stmt)
}

func (r *CollectionRegistry) RemoveIndex(ctx context.Context, databaseID, collection, name string, opts f.SchemaOpts) (*f.SchemaChange, error) {
	cnx, table, err := r.existing(ctx, databaseID, collection)
	if err != nil {
		return nil, err
	}
	return r.execDDL(ctx, cnx, databaseID, table, opts, cnx.Dialect.DropIndex(indexName(cnx, table, name)))
}

// AddAuthFields adds the fields an auth collection needs. Fields already
// present are skipped.
func (r *CollectionRegistry) AddAuthFields(ctx context.Context, databaseID, collection string, opts f.SchemaOpts) (*f.SchemaChange, error) {
	cnx, table, err := r.existing(ctx, databaseID, collection)
	if err != nil {
		return nil, err
	}
	statements, err := authStatements(cnx, table)
	if err != nil {
		return nil, err
	}
	if !opts.DryRun {
		columns, err := r.tableColumns(ctx, cnx, databaseID, table)
		if err != nil {
			return nil, err
		}
		statements = filterAuthStatements(statements, columns)
	}
	return r.execDDL(ctx, cnx, databaseID, table, opts, statements...)
}

var authFields = []string{"email", "password", "name"}

func authStatements(cnx *f.Connection, table string) ([]string, error) {
	statements := []string{}
	for _, field := range authFields {
		stmt, err := cnx.Dialect.AddColumn(table, field, f.TypeText, false)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	roles := `{"user"}`
	stmt, err := cnx.Dialect.AddArrayColumn(table, "roles", f.TypeText, &roles)
	if err != nil {
		return nil, err
	}
	statements = append(statements, stmt)
	statements = append(statements, cnx.Dialect.CreateIndex(table, table+"_email_idx", []string{"email"}, true))
	return statements, nil
}

// filterAuthStatements drops the ADD COLUMN statements of existing columns,
// authStatements emits them in authFields order followed by roles.
func filterAuthStatements(statements []string, columns map[string]f.ColumnInfo) []string {
	names := append(append([]string{}, authFields...), "roles")
	out := []string{}
	for i, stmt := range statements {
		if i < len(names) {
			if _, ok := columns[names[i]]; ok {
				continue
			}
		}
		out = append(out, stmt)
	}
	return out
}

func (r *CollectionRegistry) requirePresent(ctx context.Context, cnx *f.Connection, databaseID, table, column string) error {
	columns, err := r.tableColumns(ctx, cnx, databaseID, table)
	if err != nil {
		return err
	}
	if _, ok := columns[column]; !ok {
		return errors.NotFound("field %s not found in %s", column, table)
	}
	return nil
}

func (r *CollectionRegistry) requireAbsent(ctx context.Context, cnx *f.Connection, databaseID, table, column string) error {
	columns, err := r.tableColumns(ctx, cnx, databaseID, table)
	if err != nil {
		return err
	}
	if _, ok := columns[column]; ok {
		return errors.Conflict("field %s already exists in %s", column, table)
	}
	return nil
}
