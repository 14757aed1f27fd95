package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/h"
	"github.com/soffa-projects/tenantdb-go/log"
	"github.com/soffa-projects/tenantdb-go/preview"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const (
	idColumn        = "id"
	updatedAtColumn = "updated_at"
)

// RecordEngine runs generic CRUD against the table backing a collection,
// growing the table on write.
type RecordEngine struct {
	manager  f.ConnectionManager
	registry f.CollectionRegistry
}

var _ f.RecordEngine = (*RecordEngine)(nil)

func NewRecordEngine(manager f.ConnectionManager, registry f.CollectionRegistry) *RecordEngine {
	f.Check(manager, "connection manager is required")
	f.Check(registry, "collection registry is required")
	return &RecordEngine{manager: manager, registry: registry}
}

// ------------------------------------------------------------------------------------------------------------------
// WRITES
// ------------------------------------------------------------------------------------------------------------------

func (e *RecordEngine) Create(ctx context.Context, databaseID, collection string, fields f.Record) (f.Record, error) {
	c, err := e.registry.EnsureTable(ctx, databaseID, collection, "")
	if err != nil {
		return nil, err
	}
	cnx, err := e.manager.Resolve(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	if err := e.evolve(ctx, databaseID, collection, fields); err != nil {
		return nil, err
	}

	names := h.SortedKeys(fields)
	if _, ok := fields[idColumn]; !ok && c.IdType != f.IdSerial {
		names = append([]string{idColumn}, names...)
	}
	var (
		sql  string
		args []any
	)
	table := cnx.Dialect.QuoteIdent(c.PhysicalName)
	if len(names) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", table)
	} else {
		columns := make([]string, len(names))
		placeholders := make([]string, len(names))
		for i, name := range names {
			columns[i] = cnx.Dialect.QuoteIdent(name)
			placeholders[i] = "?"
			if value, ok := fields[name]; ok {
				args = append(args, dbValue(cnx.Dialect, value))
			} else {
				args = append(args, newRecordID(c))
			}
		}
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	}

	rows, err := e.query(ctx, cnx, sql, args...)
	if err != nil {
		return nil, classifyDBError(err, "failed to insert into %s", c.PhysicalName)
	}
	if len(rows) == 0 {
		return nil, errors.Technical("insert into %s returned no row", c.PhysicalName)
	}
	return rows[0], nil
}

// Update applies fields to the record matching id and predicate.
func (e *RecordEngine) Update(ctx context.Context, databaseID, collection string, id any, fields f.Record, predicate f.Predicate) (f.Record, error) {
	cnx, table, found, err := e.table(ctx, databaseID, collection)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NotFound("record %v not found in %s", id, collection)
	}
	if err := e.evolve(ctx, databaseID, collection, fields); err != nil {
		return nil, err
	}

	sets := []string{}
	args := []any{}
	for _, name := range h.SortedKeys(fields) {
		// updated_at is always set by the database clock
		if name == idColumn || name == updatedAtColumn {
			continue
		}
		sets = append(sets, cnx.Dialect.QuoteIdent(name)+" = ?")
		args = append(args, dbValue(cnx.Dialect, fields[name]))
	}
	sets = append(sets, cnx.Dialect.QuoteIdent(updatedAtColumn)+" = "+cnx.Dialect.Now())

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		cnx.Dialect.QuoteIdent(table), strings.Join(sets, ", "), cnx.Dialect.QuoteIdent(idColumn))
	args = append(args, id)
	sql, args = withPredicate(sql, args, predicate)
	sql += " RETURNING *"

	rows, err := e.query(ctx, cnx, sql, args...)
	if e.vanished(databaseID, table, err) {
		return nil, errors.NotFound("record %v not found in %s", id, collection)
	}
	if err != nil {
		return nil, classifyDBError(err, "failed to update %s", table)
	}
	if len(rows) == 0 {
		return nil, errors.NotFound("record %v not found in %s", id, collection)
	}
	return rows[0], nil
}

func (e *RecordEngine) Delete(ctx context.Context, databaseID, collection string, id any, predicate f.Predicate) error {
	cnx, table, found, err := e.table(ctx, databaseID, collection)
	if err != nil {
		return err
	}
	if !found {
		return errors.NotFound("record %v not found in %s", id, collection)
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", cnx.Dialect.QuoteIdent(table), cnx.Dialect.QuoteIdent(idColumn))
	sql, args := withPredicate(sql, []any{id}, predicate)
	e.trace(sql, args)
	res, err := cnx.DB.NewRaw(sql, args...).Exec(ctx)
	if e.vanished(databaseID, table, err) {
		return errors.NotFound("record %v not found in %s", id, collection)
	}
	if err != nil {
		return classifyDBError(err, "failed to delete from %s", table)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("record %v not found in %s", id, collection)
	}
	return nil
}

// evolve ensures a column exists for every field, typed after its value.
// A null value never conflicts with an existing column.
func (e *RecordEngine) evolve(ctx context.Context, databaseID, collection string, fields f.Record) error {
	columns, err := e.registry.Columns(ctx, databaseID, collection)
	if err != nil {
		return err
	}
	for _, name := range h.SortedKeys(fields) {
		if name == idColumn {
			continue
		}
		if _, exists := columns[name]; exists && fields[name] == nil {
			continue
		}
		if err := e.registry.EnsureColumn(ctx, databaseID, collection, name, InferType(fields[name]), true); err != nil {
			return err
		}
	}
	return nil
}

// vanished reports a table dropped behind the cached metadata, which is
// then forgotten so the next write recreates the table.
func (e *RecordEngine) vanished(databaseID, table string, err error) bool {
	if !isMissingTable(err) {
		return false
	}
	e.registry.Forget(databaseID, table)
	log.Fields(map[string]any{"source": databaseID, "table": table}).Warn("table %s no longer exists", table)
	return true
}

// ------------------------------------------------------------------------------------------------------------------
// READS
// ------------------------------------------------------------------------------------------------------------------

// FindAll lists the records matching predicate. A collection without table
// yields an empty list.
func (e *RecordEngine) FindAll(ctx context.Context, databaseID, collection string, predicate f.Predicate, opts ...f.QueryOpts) ([]f.Record, error) {
	cnx, table, found, err := e.table(ctx, databaseID, collection)
	if err != nil {
		return nil, err
	}
	if !found {
		return []f.Record{}, nil
	}
	var opt f.QueryOpts
	if len(opts) > 0 {
		opt = opts[0]
	}

	sql := "SELECT * FROM " + cnx.Dialect.QuoteIdent(table)
	args := []any{}
	if !predicate.IsZero() {
		sql += " WHERE (?)"
		args = append(args, bun.Safe(predicate.SQL()))
	}
	if opt.OrderBy != "" {
		order, err := e.orderBy(ctx, cnx, databaseID, collection, opt.OrderBy)
		if err != nil {
			return nil, err
		}
		sql += " ORDER BY " + order
	}
	if opt.Limit > 0 {
		sql += " LIMIT ?"
		args = append(args, opt.Limit)
	} else if opt.Offset > 0 && cnx.Dialect.Name() == DialectSqlite {
		sql += " LIMIT -1"
	}
	if opt.Offset > 0 {
		sql += " OFFSET ?"
		args = append(args, opt.Offset)
	}

	rows, err := e.query(ctx, cnx, sql, args...)
	if e.vanished(databaseID, table, err) {
		return []f.Record{}, nil
	}
	if err != nil {
		return nil, classifyDBError(err, "failed to query %s", table)
	}
	return rows, nil
}

func (e *RecordEngine) Get(ctx context.Context, databaseID, collection string, id any, predicate f.Predicate) (f.Record, error) {
	cnx, table, found, err := e.table(ctx, databaseID, collection)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NotFound("record %v not found in %s", id, collection)
	}
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", cnx.Dialect.QuoteIdent(table), cnx.Dialect.QuoteIdent(idColumn))
	sql, args := withPredicate(sql, []any{id}, predicate)
	sql += " LIMIT 1"
	rows, err := e.query(ctx, cnx, sql, args...)
	if e.vanished(databaseID, table, err) {
		return nil, errors.NotFound("record %v not found in %s", id, collection)
	}
	if err != nil {
		return nil, classifyDBError(err, "failed to query %s", table)
	}
	if len(rows) == 0 {
		return nil, errors.NotFound("record %v not found in %s", id, collection)
	}
	return rows[0], nil
}

func (e *RecordEngine) orderBy(ctx context.Context, cnx *f.Connection, databaseID, collection, orderBy string) (string, error) {
	direction := "ASC"
	column := strings.TrimSpace(orderBy)
	if strings.HasPrefix(column, "-") {
		direction = "DESC"
		column = strings.TrimPrefix(column, "-")
	}
	columns, err := e.registry.Columns(ctx, databaseID, collection)
	if err != nil {
		return "", err
	}
	if _, ok := columns[column]; !ok {
		return "", errors.BadRequest("cannot order by unknown field %q", column)
	}
	return cnx.Dialect.QuoteIdent(column) + " " + direction, nil
}

// ------------------------------------------------------------------------------------------------------------------
// DISPATCH
// ------------------------------------------------------------------------------------------------------------------

func (e *RecordEngine) Execute(ctx context.Context, req f.Request) (*f.Result, error) {
	switch req.Operation {
	case f.OpCreate:
		record, err := e.Create(ctx, req.DatabaseID, req.Collection, req.Payload)
		if err != nil {
			return nil, err
		}
		return &f.Result{Record: record}, nil
	case f.OpFindAll:
		records, err := e.FindAll(ctx, req.DatabaseID, req.Collection, req.Predicate, req.Opts)
		if err != nil {
			return nil, err
		}
		return &f.Result{Records: records}, nil
	case f.OpGet:
		record, err := e.Get(ctx, req.DatabaseID, req.Collection, req.ID, req.Predicate)
		if err != nil {
			return nil, err
		}
		return &f.Result{Record: record}, nil
	case f.OpUpdate:
		record, err := e.Update(ctx, req.DatabaseID, req.Collection, req.ID, req.Payload, req.Predicate)
		if err != nil {
			return nil, err
		}
		return &f.Result{Record: record}, nil
	case f.OpDelete:
		if err := e.Delete(ctx, req.DatabaseID, req.Collection, req.ID, req.Predicate); err != nil {
			return nil, err
		}
		return &f.Result{}, nil
	}
	return nil, errors.BadRequest("unsupported operation %q", req.Operation)
}

// ------------------------------------------------------------------------------------------------------------------
// HELPERS
// ------------------------------------------------------------------------------------------------------------------

// table resolves the physical table; found is false when it was never created.
func (e *RecordEngine) table(ctx context.Context, databaseID, collection string) (*f.Connection, string, bool, error) {
	cnx, err := e.manager.Resolve(ctx, databaseID)
	if err != nil {
		return nil, "", false, err
	}
	table, err := e.registry.PhysicalName(ctx, databaseID, collection)
	if err != nil {
		return nil, "", false, err
	}
	columns, err := e.registry.Columns(ctx, databaseID, collection)
	if err != nil {
		return nil, "", false, err
	}
	return cnx, table, len(columns) > 0, nil
}

func (e *RecordEngine) query(ctx context.Context, cnx *f.Connection, sql string, args ...any) ([]f.Record, error) {
	e.trace(sql, args)
	rows := []map[string]any{}
	if err := cnx.DB.NewRaw(sql, args...).Scan(ctx, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		normalizeRow(row)
	}
	return rows, nil
}

func (e *RecordEngine) trace(sql string, args []any) {
	if log.IsDebug() {
		log.Debug("sql: %s", preview.PreviewQuery(sql, args...))
	}
}

func withPredicate(sql string, args []any, predicate f.Predicate) (string, []any) {
	if predicate.IsZero() {
		return sql, args
	}
	return sql + " AND (?)", append(args, bun.Safe(predicate.SQL()))
}

func newRecordID(c *f.Collection) string {
	switch c.IdType {
	case f.IdUUID:
		return h.NewUUID()
	case f.IdTypeID:
		return h.NewId(h.SanitizeIdentifier(c.Name))
	}
	return h.NewId("")
}

func normalizeRow(row map[string]any) {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
}

// InferType picks the logical column type for a Go value.
func InferType(value any) string {
	switch v := value.(type) {
	case nil, string, []byte:
		return f.TypeText
	case bool:
		return f.TypeBoolean
	case int, int8, int16, int32, uint8, uint16:
		return f.TypeInteger
	case int64, uint, uint32, uint64:
		return f.TypeBigint
	case float32, float64:
		return f.TypeNumber
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return f.TypeBigint
		}
		return f.TypeNumber
	case time.Time:
		return f.TypeTimestamp
	case uuid.UUID:
		return f.TypeUUID
	case map[string]any:
		return f.TypeJSON
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map, reflect.Struct:
		return f.TypeJSON
	case reflect.Slice, reflect.Array:
		elem := f.TypeText
		if rv.Len() > 0 {
			elem = InferType(rv.Index(0).Interface())
		} else if k := rv.Type().Elem().Kind(); k >= reflect.Int && k <= reflect.Float64 {
			elem = InferType(reflect.Zero(rv.Type().Elem()).Interface())
		}
		if elem == f.TypeJSON {
			return f.TypeJSON
		}
		return "array:" + elem
	case reflect.Ptr:
		if rv.IsNil() {
			return f.TypeText
		}
		return InferType(rv.Elem().Interface())
	}
	return f.TypeText
}

// dbValue adapts a Go value to what the dialect stores: arrays become
// postgres arrays or JSON text, maps and structs become JSON text.
func dbValue(dialect f.Dialect, value any) any {
	switch v := value.(type) {
	case nil, string, bool, time.Time, []byte:
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if fl, err := v.Float64(); err == nil {
			return fl
		}
		return v.String()
	case uuid.UUID:
		return v.String()
	}
	logical := InferType(value)
	if strings.HasPrefix(logical, "array:") {
		if dialect.Name() == DialectPostgres {
			return pgdialect.Array(value)
		}
		return jsonText(value)
	}
	if logical == f.TypeJSON {
		return jsonText(value)
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		return dbValue(dialect, rv.Elem().Interface())
	}
	return value
}

func jsonText(value any) string {
	out, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(out)
}
