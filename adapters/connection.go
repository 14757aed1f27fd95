package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/h"
	"github.com/soffa-projects/tenantdb-go/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type PoolOptions struct {
	MaxOpenConns int
	// DefaultPrefix applies to data sources without a table prefix.
	DefaultPrefix string
}

// Connector builds the pool of a data source. The connection manager calls it
// at most once per source at a time.
type Connector func(ctx context.Context, ds f.DataSource, opts PoolOptions) (*f.Connection, error)

// Connect opens and pings the pool of ds.
func Connect(ctx context.Context, ds f.DataSource, opts PoolOptions) (*f.Connection, error) {
	db, dialect, err := OpenDB(ds.ConnectionString, opts)
	if err != nil {
		return nil, errors.ConnectionFailure(err, "failed to open data source %s", ds.ID)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.ConnectionFailure(err, "failed to connect to data source %s", ds.ID)
	}
	log.Fields(map[string]any{"source": ds.ID, "dialect": dialect.Name()}).
		Info("pool opened for %s", h.RedactUrl(ds.ConnectionString))
	return &f.Connection{
		SourceID: ds.ID,
		Prefix:   h.FirstNonEmpty(ds.TablePrefix, opts.DefaultPrefix, f.DefaultTablePrefix),
		Dialect:  dialect,
		DB:       db,
	}, nil
}

// OpenDB creates the bun handle matching the connection string. No round trip
// to the server happens here.
func OpenDB(connectionString string, opts PoolOptions) (*bun.DB, f.Dialect, error) {
	dialect := NewDialect(connectionString)
	var (
		sqldb *sql.DB
		err   error
	)
	switch dialect.Name() {
	case DialectSqlite:
		sqldb, err = openSqlite(connectionString)
	default:
		sqldb, err = openPostgres(connectionString)
	}
	if err != nil {
		return nil, nil, err
	}
	if dialect.Name() == DialectSqlite {
		// a single connection keeps in-memory databases alive and avoids SQLITE_BUSY
		sqldb.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(opts.MaxOpenConns)
	}
	return bun.NewDB(sqldb, dialect.Bun()), dialect, nil
}

func openPostgres(connectionString string) (sqldb *sql.DB, err error) {
	u, err := h.ParseUrl(connectionString)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("unsupported connection string scheme %q", u.Scheme)
	}
	dsn := connectionString
	schema := u.Query("schema")
	if schema != "" {
		if dsn, err = h.RemoveParamFromUrl(dsn, "schema"); err != nil {
			return nil, err
		}
	}
	// pgdriver panics on malformed options
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid postgres dsn: %v", r)
		}
	}()
	options := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if schema != "" {
		options = append(options, pgdriver.WithConnParams(map[string]any{"search_path": schema}))
	}
	return sql.OpenDB(pgdriver.NewConnector(options...)), nil
}

func openSqlite(connectionString string) (*sql.DB, error) {
	dsn := strings.TrimPrefix(connectionString, "sqlite://")
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := sqldb.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return sqldb, nil
}
