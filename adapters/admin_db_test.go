package adapters

import (
	"context"
	"testing"

	"github.com/go-faker/faker/v4"
	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/resources"
	"github.com/soffa-projects/tenantdb-go/test"
	"github.com/uptrace/bun"
)

func openTestAdminDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := OpenAdminDB(context.Background(), test.SqliteURL(t), resources.Migrations, resources.SharedMigrationsPath)
	if err != nil {
		t.Fatalf("failed to open admin db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestOpenAdminDB_Migrations(t *testing.T) {
	assert := test.NewAssertions(t)
	ctx := context.Background()
	db := openTestAdminDB(t)

	version, err := MigrationStatus(ctx, db, NewSqliteDialect())
	assert.Nil(err)
	assert.Equals(version, int64(2))

	// applying twice is a no-op
	assert.Nil(Migrate(ctx, db, NewSqliteDialect(), resources.Migrations, resources.SharedMigrationsPath))
	assert.Nil(Migrate(ctx, db, NewSqliteDialect(), resources.Migrations, "db/migrations/missing"))
}

func TestOpenAdminDB_Unreachable(t *testing.T) {
	assert := test.NewAssertions(t)

	_, err := OpenAdminDB(context.Background(), "mysql://localhost/admin", resources.Migrations, resources.SharedMigrationsPath)
	assert.ErrorIs(err, errors.ErrConnectionFailure)
}

func TestDBDataSourceProvider(t *testing.T) {
	assert := test.NewAssertions(t)
	ctx := context.Background()
	db := openTestAdminDB(t)

	p, err := NewDataSourceProvider("db", db)
	assert.Nil(err)
	admin := p.(f.DataSourceAdmin)

	ds := f.DataSource{ID: "t1", Name: faker.Username(), ConnectionString: test.SqliteURL(t)}
	assert.Nil(admin.Create(ctx, ds))
	assert.ErrorIs(admin.Create(ctx, ds), errors.ErrConflict)
	assert.ErrorIs(admin.Create(ctx, f.DataSource{ID: "t2"}), errors.ErrBadRequest)

	found, err := p.Find(ctx, ds.Name)
	assert.Nil(err)
	assert.Equals(found.ID, "t1")
	found, err = p.Find(ctx, "t1")
	assert.Nil(err)
	assert.Equals(found.ConnectionString, ds.ConnectionString)

	list, err := p.List(ctx)
	assert.Nil(err)
	assert.Len(list, 1)

	// the manager resolves sources stored in the admin database
	manager := NewConnectionManager(p)
	defer manager.Close()
	cnx, err := manager.Resolve(ctx, ds.Name)
	assert.Nil(err)
	assert.Equals(cnx.SourceID, "t1")

	assert.Nil(admin.Delete(ctx, "t1"))
	assert.ErrorIs(admin.Delete(ctx, "t1"), errors.ErrSourceNotFound)
	found, err = p.Find(ctx, "t1")
	assert.Nil(err)
	assert.True(found == nil)
}

func TestCollectionStores(t *testing.T) {
	db := openTestAdminDB(t)
	stores := map[string]f.CollectionStore{
		"memory": NewMemoryCollectionStore(),
		"db":     NewDBCollectionStore(db),
	}
	for kind, store := range stores {
		t.Run(kind, func(t *testing.T) {
			assert := test.NewAssertions(t)
			ctx := context.Background()

			c, err := store.Claim(ctx, f.Collection{DatabaseID: "t1", Name: "posts", PhysicalName: "santoki_posts", Type: f.CollectionBase, IdType: f.IdSerial})
			assert.Nil(err)
			assert.NotEmpty(c.ID)

			again, err := store.Claim(ctx, f.Collection{DatabaseID: "t1", Name: "posts", PhysicalName: "santoki_posts", Type: f.CollectionAuth, IdType: f.IdUUID})
			assert.Nil(err)
			assert.Equals(again.ID, c.ID)
			assert.Equals(again.Type, f.CollectionBase)

			_, err = store.Claim(ctx, f.Collection{DatabaseID: "t1", Name: "Posts", PhysicalName: "santoki_posts", Type: f.CollectionBase, IdType: f.IdSerial})
			assert.ErrorIs(err, errors.ErrConflict)

			// physical names are scoped per data source
			_, err = store.Claim(ctx, f.Collection{DatabaseID: "t2", Name: "posts", PhysicalName: "santoki_posts", Type: f.CollectionBase, IdType: f.IdSerial})
			assert.Nil(err)

			got, err := store.Get(ctx, "t1", "posts")
			assert.Nil(err)
			assert.Equals(got.PhysicalName, "santoki_posts")
			missing, err := store.Get(ctx, "t1", "nope")
			assert.Nil(err)
			assert.True(missing == nil)

			list, err := store.List(ctx, "t1")
			assert.Nil(err)
			assert.Len(list, 1)

			assert.Nil(store.Delete(ctx, "t1", "posts"))
			list, err = store.List(ctx, "t1")
			assert.Nil(err)
			assert.Len(list, 0)
		})
	}
}

func TestNewCollectionStore(t *testing.T) {
	assert := test.NewAssertions(t)

	store, err := NewCollectionStore("memory", nil)
	assert.Nil(err)
	assert.NotNil(store)
	_, err = NewCollectionStore("db", nil)
	assert.ErrorIs(err, errors.ErrBadRequest)
	_, err = NewCollectionStore("etcd", nil)
	assert.ErrorIs(err, errors.ErrUnsupportedFeature)
}

func TestCollectionRegistry_WithDBStore(t *testing.T) {
	assert := test.NewAssertions(t)
	ctx := context.Background()
	db := openTestAdminDB(t)

	manager := NewConnectionManager(newTestProvider(t, "db1"))
	defer manager.Close()
	registry := NewCollectionRegistry(manager, NewDBCollectionStore(db))
	engine := NewRecordEngine(manager, registry)

	_, err := engine.Create(ctx, "db1", "Invoices", f.Record{"amount": 12.5})
	assert.Nil(err)

	collections, err := registry.List(ctx, "db1")
	assert.Nil(err)
	assert.Len(collections, 1)
	assert.Equals(collections[0].PhysicalName, "santoki_invoices")

	_, err = engine.Create(ctx, "db1", "invoices", f.Record{"amount": 3.0})
	assert.ErrorIs(err, errors.ErrConflict)
}
