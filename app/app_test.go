package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/go-faker/faker/v4"
	"github.com/soffa-projects/tenantdb-go/adapters"
	"github.com/soffa-projects/tenantdb-go/config"
	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/test"
)

func base64Sources(t *testing.T) string {
	payload := fmt.Sprintf(`{"data_sources": [{"id": "t1", "name": "tenant-one", "connection_string": %q}]}`, test.SqliteURL(t))
	return "base64:" + base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestNew_RequiresProvider(t *testing.T) {
	assert := test.NewAssertions(t)

	_, err := New(config.Defaults())
	assert.ErrorIs(err, errors.ErrBadRequest)
}

func TestNew_InvalidIdType(t *testing.T) {
	assert := test.NewAssertions(t)
	settings := config.Defaults()
	settings.DataSourceProvider = base64Sources(t)
	settings.DefaultIdType = "snowflake"

	_, err := New(settings)
	assert.ErrorIs(err, errors.ErrBadRequest)
}

func TestNew_Base64Provider(t *testing.T) {
	assert := test.NewAssertions(t)
	ctx := context.Background()
	settings := config.Defaults()
	settings.DataSourceProvider = base64Sources(t)
	settings.DefaultPrefix = "app_"
	settings.DefaultIdType = "uuid"

	app, err := New(settings)
	assert.Nil(err)
	defer app.Shutdown(ctx)

	record, err := app.Engine.Create(ctx, "tenant-one", "contacts", f.Record{"email": faker.Email()})
	assert.Nil(err)
	assert.Len(record["id"], 36)

	name, err := app.Registry.PhysicalName(ctx, "t1", "contacts")
	assert.Nil(err)
	assert.Equals(name, "app_contacts")

	health := app.Health(ctx)
	assert.Equals(health.Status, f.StatusUp)
	assert.Equals(health.Components["source:t1"].Status, f.StatusUp)
}

func TestNew_AdminDatabase(t *testing.T) {
	assert := test.NewAssertions(t)
	ctx := context.Background()
	settings := config.Defaults()
	settings.DatabaseUrl = test.SqliteURL(t)
	settings.CollectionStore = "db"

	app, err := New(settings)
	assert.Nil(err)
	defer app.Shutdown(ctx)

	admin, ok := app.Provider.(f.DataSourceAdmin)
	assert.True(ok)
	assert.Nil(admin.Create(ctx, f.DataSource{ID: "t1", Name: "tenant-one", ConnectionString: test.SqliteURL(t)}))

	_, err = app.Engine.Create(ctx, "t1", "notes", f.Record{"body": faker.Sentence()})
	assert.Nil(err)
	collections, err := app.Store.List(ctx, "t1")
	assert.Nil(err)
	assert.Len(collections, 1)

	health := app.Health(ctx)
	assert.Equals(health.Components["admin"].Status, f.StatusUp)
}

func TestNew_CustomConnector(t *testing.T) {
	assert := test.NewAssertions(t)
	ctx := context.Background()
	provider, err := adapters.NewStaticDataSourceProvider(f.DataSource{ID: "t1", Name: "t1", ConnectionString: test.SqliteURL(t)})
	assert.Nil(err)

	calls := 0
	connector := func(ctx context.Context, ds f.DataSource, opts adapters.PoolOptions) (*f.Connection, error) {
		calls++
		return adapters.Connect(ctx, ds, opts)
	}
	app, err := New(config.Defaults(), WithDataSourceProvider(provider), WithConnector(connector))
	assert.Nil(err)
	defer app.Shutdown(ctx)

	_, err = app.Engine.FindAll(ctx, "t1", "anything", f.Predicate{})
	assert.Nil(err)
	assert.Equals(calls, 1)
	assert.Equals(app.Manager.Sources(), []string{"t1"})
}
