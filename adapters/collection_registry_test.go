package adapters

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/h"
	"github.com/soffa-projects/tenantdb-go/test"
	"github.com/uptrace/bun"
)

// statementCounter counts every statement sent through a bun.DB.
type statementCounter struct {
	count atomic.Int32
}

func (c *statementCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	c.count.Add(1)
	return ctx
}

func (c *statementCounter) AfterQuery(context.Context, *bun.QueryEvent) {}

func TestCollectionRegistry_PhysicalName(t *testing.T) {
	assert := test.NewAssertions(t)
	s := newTestStack(t)

	name, err := s.registry.PhysicalName(s.ctx, testSource, "Blog Posts")
	assert.Nil(err)
	assert.Equals(name, "santoki_blog_posts")

	name, err = s.registry.PhysicalName(s.ctx, testSource, "Événements")
	assert.Nil(err)
	assert.Equals(name, "santoki_evenements")

	_, err = s.registry.PhysicalName(s.ctx, testSource, "???")
	assert.ErrorIs(err, errors.ErrBadRequest)
}

func TestCollectionRegistry_PhysicalNameCollision(t *testing.T) {
	assert := test.NewAssertions(t)
	s := newTestStack(t)

	_, err := s.registry.EnsureTable(s.ctx, testSource, "blog-posts", "")
	assert.Nil(err)

	_, err = s.registry.PhysicalName(s.ctx, testSource, "blog_posts")
	assert.ErrorIs(err, errors.ErrConflict)
	_, err = s.registry.EnsureTable(s.ctx, testSource, "Blog Posts", "")
	assert.ErrorIs(err, errors.ErrConflict)

	// the owner keeps resolving to its table
	name, err := s.registry.PhysicalName(s.ctx, testSource, "blog-posts")
	assert.Nil(err)
	assert.Equals(name, "santoki_blog_posts")
}

func TestCollectionRegistry_EnsureTableConcurrently(t *testing.T) {
	assert := test.NewAssertions(t)
	s := newTestStack(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.registry.EnsureTable(s.ctx, testSource, "orders", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.Nil(err)
	}
	collections, err := s.registry.List(s.ctx, testSource)
	assert.Nil(err)
	assert.Len(collections, 1)

	columns, err := s.registry.Columns(s.ctx, testSource, "orders")
	assert.Nil(err)
	assert.Len(columns, 3)
	assert.Equals(columns["id"].DataType, "INTEGER")
}

func TestCollectionRegistry_EnsureColumn(t *testing.T) {
	assert := test.NewAssertions(t)
	s := newTestStack(t)

	_, err := s.registry.EnsureTable(s.ctx, testSource, "orders", "")
	assert.Nil(err)

	assert.Nil(s.registry.EnsureColumn(s.ctx, testSource, "orders", "total", f.TypeNumber, true))
	// idempotent, integers fit a number column
	assert.Nil(s.registry.EnsureColumn(s.ctx, testSource, "orders", "total", f.TypeNumber, true))
	assert.Nil(s.registry.EnsureColumn(s.ctx, testSource, "orders", "total", f.TypeInteger, true))

	err = s.registry.EnsureColumn(s.ctx, testSource, "orders", "total", f.TypeBoolean, true)
	assert.ErrorIs(err, errors.ErrTypeConflict)

	err = s.registry.EnsureColumn(s.ctx, testSource, "orders", "bad name", f.TypeText, true)
	assert.ErrorIs(err, errors.ErrBadRequest)

	err = s.registry.EnsureColumn(s.ctx, testSource, "orders", "blob", "geometry", true)
	assert.ErrorIs(err, errors.ErrUnsupportedFeature)
}

func TestCollectionRegistry_EnsureColumnRepeatRunsNoStatement(t *testing.T) {
	stacks := map[string]*testStack{
		"plain":  newTestStack(t),
		"events": newTestStack(t, WithSchemaEvents(NewLocalSchemaEvents())),
	}
	for name, s := range stacks {
		t.Run(name, func(t *testing.T) {
			assert := test.NewAssertions(t)
			_, err := s.registry.EnsureTable(s.ctx, testSource, "invoices", "")
			assert.Nil(err)

			counter := &statementCounter{}
			s.connection(t).DB.AddQueryHook(counter)

			assert.Nil(s.registry.EnsureColumn(s.ctx, testSource, "invoices", "amount", f.TypeNumber, true))
			assert.True(counter.count.Load() > 0)

			counter.count.Store(0)
			assert.Nil(s.registry.EnsureColumn(s.ctx, testSource, "invoices", "amount", f.TypeNumber, true))
			assert.Equals(counter.count.Load(), int32(0))
		})
	}
}

func TestCollectionRegistry_EnsureTableRaceOnPostgres(t *testing.T) {
	pgUrl := os.Getenv("POSTGRES_URL")
	if pgUrl == "" {
		t.Skip("POSTGRES_URL not set")
	}
	assert := test.NewAssertions(t)
	ctx := context.Background()

	provider, err := NewStaticDataSourceProvider(f.DataSource{
		ID:               "pg",
		Name:             "pg",
		ConnectionString: pgUrl,
		TablePrefix:      h.NewId("it") + "_",
	})
	assert.Nil(err)
	manager := NewConnectionManager(provider)
	defer manager.Close()

	// separate registries so every writer reaches CREATE TABLE
	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		registry := NewCollectionRegistry(manager, NewMemoryCollectionStore())
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = registry.EnsureTable(ctx, "pg", "races", "")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.Nil(err)
	}

	registry := NewCollectionRegistry(manager, NewMemoryCollectionStore())
	_, err = registry.EnsureTable(ctx, "pg", "races", "")
	assert.Nil(err)
	_, err = registry.Drop(ctx, "pg", "races", f.SchemaOpts{})
	assert.Nil(err)
}

func TestCollectionRegistry_DeclareAuth(t *testing.T) {
	assert := test.NewAssertions(t)
	s := newTestStack(t)

	change, err := s.registry.Declare(s.ctx, testSource, "members", f.CollectionAuth, "", f.SchemaOpts{DryRun: true})
	assert.Nil(err)
	assert.True(change.DryRun)
	assert.Len(change.Statements, 6)
	assert.Contains(change.Preview, "CREATE TABLE IF NOT EXISTS")

	// dry runs touch nothing
	collections, err := s.registry.List(s.ctx, testSource)
	assert.Nil(err)
	assert.Len(collections, 0)

	change, err = s.registry.Declare(s.ctx, testSource, "members", f.CollectionAuth, "", f.SchemaOpts{})
	assert.Nil(err)
	assert.False(change.DryRun)

	schema, err := s.registry.Describe(s.ctx, testSource, "members")
	assert.Nil(err)
	assert.Equals(schema.Type, f.CollectionAuth)
	names := []string{}
	for _, field := range schema.Fields {
		names = append(names, field.Name)
	}
	assert.Contains(names, "email")
	assert.Contains(names, "roles")
	assert.Len(schema.Indexes, 1)
	assert.Equals(schema.Indexes[0].Name, "santoki_members_email_idx")

	_, err = s.registry.Declare(s.ctx, testSource, "members", f.CollectionBase, "", f.SchemaOpts{})
	assert.ErrorIs(err, errors.ErrConflict)

	// re-applying auth fields is a no-op
	_, err = s.registry.AddAuthFields(s.ctx, testSource, "members", f.SchemaOpts{})
	assert.Nil(err)

	rows, err := s.engine.FindAll(s.ctx, testSource, "members", f.Predicate{})
	assert.Nil(err)
	assert.Len(rows, 0)
}

func TestCollectionRegistry_DeclareInvalidType(t *testing.T) {
	assert := test.NewAssertions(t)
	s := newTestStack(t)

	_, err := s.registry.Declare(s.ctx, testSource, "things", "view", "", f.SchemaOpts{})
	assert.ErrorIs(err, errors.ErrBadRequest)
}

func TestCollectionRegistry_FieldLifecycle(t *testing.T) {
	assert := test.NewAssertions(t)
	s := newTestStack(t)

	_, err := s.registry.AddField(s.ctx, testSource, "books", f.FieldDef{Name: "title", Type: "text"}, f.SchemaOpts{})
	assert.ErrorIs(err, errors.ErrNotFound)

	_, err = s.registry.Declare(s.ctx, testSource, "books", f.CollectionBase, f.IdText, f.SchemaOpts{})
	assert.Nil(err)

	change, err := s.registry.AddField(s.ctx, testSource, "books", f.FieldDef{Name: "title", Type: "string", Nullable: true}, f.SchemaOpts{DryRun: true})
	assert.Nil(err)
	assert.Equals(change.Preview, `ALTER TABLE "santoki_books" ADD COLUMN "title" TEXT;`)

	_, err = s.registry.AddField(s.ctx, testSource, "books", f.FieldDef{Name: "title", Type: "string", Nullable: true}, f.SchemaOpts{})
	assert.Nil(err)
	_, err = s.registry.AddField(s.ctx, testSource, "books", f.FieldDef{Name: "title", Type: "text"}, f.SchemaOpts{})
	assert.ErrorIs(err, errors.ErrConflict)

	tags := `{"fiction"}`
	_, err = s.registry.AddArrayField(s.ctx, testSource, "books", f.FieldDef{Name: "tags", Type: "text", Default: &tags}, f.SchemaOpts{})
	assert.Nil(err)

	_, err = s.registry.RenameField(s.ctx, testSource, "books", "title", "name", f.SchemaOpts{})
	assert.Nil(err)
	_, err = s.registry.RenameField(s.ctx, testSource, "books", "title", "other", f.SchemaOpts{})
	assert.ErrorIs(err, errors.ErrNotFound)

	_, err = s.registry.CreateIndex(s.ctx, testSource, "books", f.IndexDef{Name: "name", Columns: []string{"name"}}, f.SchemaOpts{})
	assert.Nil(err)
	_, err = s.registry.CreateIndex(s.ctx, testSource, "books", f.IndexDef{Name: "nope", Columns: []string{"missing"}}, f.SchemaOpts{})
	assert.ErrorIs(err, errors.ErrNotFound)

	schema, err := s.registry.Describe(s.ctx, testSource, "books")
	assert.Nil(err)
	assert.Len(schema.Indexes, 1)
	assert.Equals(schema.IdType, f.IdText)

	_, err = s.registry.RemoveIndex(s.ctx, testSource, "books", "name", f.SchemaOpts{})
	assert.Nil(err)
	_, err = s.registry.RemoveField(s.ctx, testSource, "books", "name", f.SchemaOpts{})
	assert.Nil(err)

	columns, err := s.registry.Columns(s.ctx, testSource, "books")
	assert.Nil(err)
	_, hasName := columns["name"]
	assert.False(hasName)
	assert.Equals(columns["tags"].DataType, "TEXT")

	created, err := s.engine.Create(s.ctx, testSource, "books", f.Record{})
	assert.Nil(err)
	assert.Equals(created["tags"], `["fiction"]`)
	assert.True(len(created["id"].(string)) > 0)
}

func TestCollectionRegistry_Drop(t *testing.T) {
	assert := test.NewAssertions(t)
	s := newTestStack(t)

	_, err := s.engine.Create(s.ctx, testSource, "logs", f.Record{"line": "boot"})
	assert.Nil(err)

	change, err := s.registry.Drop(s.ctx, testSource, "logs", f.SchemaOpts{DryRun: true})
	assert.Nil(err)
	assert.Equals(change.Preview, `DROP TABLE IF EXISTS "santoki_logs";`)

	_, err = s.registry.Drop(s.ctx, testSource, "logs", f.SchemaOpts{})
	assert.Nil(err)
	_, err = s.registry.Describe(s.ctx, testSource, "logs")
	assert.ErrorIs(err, errors.ErrNotFound)
	_, err = s.registry.Drop(s.ctx, testSource, "logs", f.SchemaOpts{})
	assert.ErrorIs(err, errors.ErrNotFound)

	// the name is free again
	_, err = s.engine.Create(s.ctx, testSource, "logs", f.Record{"line": "again"})
	assert.Nil(err)
}
