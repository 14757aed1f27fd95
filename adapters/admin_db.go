package adapters

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/h"
	"github.com/soffa-projects/tenantdb-go/log"
	"github.com/uptrace/bun"
)

const changeLogTable = "tenantdb_changelog"

// goose keeps its settings in package globals
var migrateMu sync.Mutex

// OpenAdminDB opens the control plane database and applies the migrations
// found under path.
func OpenAdminDB(ctx context.Context, databaseUrl string, migrations fs.FS, path string) (*bun.DB, error) {
	db, dialect, err := OpenDB(databaseUrl, PoolOptions{})
	if err != nil {
		return nil, errors.ConnectionFailure(err, "failed to open admin database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.ConnectionFailure(err, "failed to connect to admin database")
	}
	if err := Migrate(ctx, db, dialect, migrations, path); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("admin database ready: %s", h.RedactUrl(databaseUrl))
	return db, nil
}

func Migrate(ctx context.Context, db *bun.DB, dialect f.Dialect, dir fs.FS, path string) error {
	if dir == nil {
		return nil
	}
	entries, err := fs.ReadDir(dir, path)
	if err != nil {
		return nil
	}
	hasSQL := false
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			hasSQL = true
			break
		}
	}
	if !hasSQL {
		return nil
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(dir)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(gooseDialect(dialect)); err != nil {
		return errors.Wrap(err, "failed to set migration dialect")
	}
	goose.SetTableName(changeLogTable)

	if err := goose.UpContext(ctx, db.DB, path, goose.WithAllowMissing()); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	return nil
}

func gooseDialect(dialect f.Dialect) string {
	if dialect.Name() == DialectSqlite {
		return "sqlite3"
	}
	return "postgres"
}

// MigrationStatus lists the applied version of the admin schema.
func MigrationStatus(ctx context.Context, db *bun.DB, dialect f.Dialect) (int64, error) {
	migrateMu.Lock()
	defer migrateMu.Unlock()
	if err := goose.SetDialect(gooseDialect(dialect)); err != nil {
		return 0, err
	}
	goose.SetTableName(changeLogTable)
	version, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
