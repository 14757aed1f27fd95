package adapters

import (
	"context"
	"database/sql"

	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/uptrace/bun"
)

// ------------------------------------------------------------------------------------------------------------------
// DB PROVIDER IMPL
// ------------------------------------------------------------------------------------------------------------------

// DBDataSourceProvider reads the data_sources table of the admin database.
type DBDataSourceProvider struct {
	db bun.IDB
}

func NewDBDataSourceProvider(db bun.IDB) *DBDataSourceProvider {
	return &DBDataSourceProvider{db: db}
}

func (p *DBDataSourceProvider) Find(ctx context.Context, idOrName string) (*f.DataSource, error) {
	var ds f.DataSource
	err := p.db.NewSelect().Model(&ds).
		Where("id = ? OR name = ?", idOrName, idOrName).
		OrderExpr("CASE WHEN id = ? THEN 0 ELSE 1 END", idOrName).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find data source %s", idOrName)
	}
	return &ds, nil
}

func (p *DBDataSourceProvider) List(ctx context.Context) ([]f.DataSource, error) {
	list := []f.DataSource{}
	if err := p.db.NewSelect().Model(&list).Order("id").Scan(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to list data sources")
	}
	return list, nil
}

func (p *DBDataSourceProvider) Create(ctx context.Context, ds f.DataSource) error {
	if err := ValidateDataSource(ds); err != nil {
		return err
	}
	if _, err := p.db.NewInsert().Model(&ds).Exec(ctx); err != nil {
		return classifyDBError(err, "failed to create data source %s", ds.ID)
	}
	return nil
}

func (p *DBDataSourceProvider) Delete(ctx context.Context, id string) error {
	res, err := p.db.NewDelete().Model((*f.DataSource)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to delete data source %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.SourceNotFound(id)
	}
	return nil
}
