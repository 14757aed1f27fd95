package app

import (
	"context"
	"io"
	"io/fs"
	"time"

	"github.com/soffa-projects/tenantdb-go/adapters"
	"github.com/soffa-projects/tenantdb-go/config"
	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/h"
	"github.com/soffa-projects/tenantdb-go/log"
	"github.com/soffa-projects/tenantdb-go/resources"
	"github.com/uptrace/bun"
)

type builderConfig struct {
	provider       f.DataSourceProvider
	connector      adapters.Connector
	migrations     fs.FS
	migrationsPath string
	instanceId     int
}

type Option func(*builderConfig)

// WithDataSourceProvider bypasses DATASOURCE_PROVIDER.
func WithDataSourceProvider(provider f.DataSourceProvider) Option {
	return func(c *builderConfig) {
		c.provider = provider
	}
}

func WithConnector(connector adapters.Connector) Option {
	return func(c *builderConfig) {
		c.connector = connector
	}
}

// WithMigrations replaces the embedded admin database migrations.
func WithMigrations(dir fs.FS, path string) Option {
	return func(c *builderConfig) {
		c.migrations = dir
		c.migrationsPath = path
	}
}

func WithInstanceId(id int) Option {
	return func(c *builderConfig) {
		c.instanceId = id
	}
}

// App holds the components of one process lifetime. Nothing here is a
// package global, tests build as many apps as they need.
type App struct {
	Settings config.Settings
	Admin    *bun.DB
	Provider f.DataSourceProvider
	Manager  *adapters.ConnectionManager
	Store    f.CollectionStore
	Events   f.SchemaEvents
	Registry *adapters.CollectionRegistry
	Engine   *adapters.RecordEngine
}

func New(settings config.Settings, opts ...Option) (*App, error) {
	cfg := builderConfig{
		migrations:     resources.Migrations,
		migrationsPath: resources.SharedMigrationsPath,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if h.IsNotEmpty(settings.LogLevel) {
		log.SetLevel(settings.LogLevel)
	}
	h.InitIdGenerator(cfg.instanceId)

	idType := f.IdSerial
	if h.IsNotEmpty(settings.DefaultIdType) {
		parsed, ok := f.ParseIdType(settings.DefaultIdType)
		if !ok {
			return nil, errors.BadRequest("invalid default id type %q", settings.DefaultIdType)
		}
		idType = parsed
	}

	app := &App{Settings: settings}
	if h.IsNotEmpty(settings.DatabaseUrl) {
		ctx, cancel := context.WithTimeout(context.Background(), timeoutOf(settings))
		admin, err := adapters.OpenAdminDB(ctx, settings.DatabaseUrl, cfg.migrations, cfg.migrationsPath)
		cancel()
		if err != nil {
			return nil, err
		}
		app.Admin = admin
	}

	provider, err := newProvider(settings, cfg, app.Admin)
	if err != nil {
		app.closeAdmin()
		return nil, err
	}
	app.Provider = provider

	managerOpts := []adapters.ManagerOption{
		adapters.WithConnectTimeout(settings.ConnectTimeout),
		adapters.WithPoolOptions(adapters.PoolOptions{
			MaxOpenConns:  settings.MaxOpenConns,
			DefaultPrefix: settings.DefaultPrefix,
		}),
	}
	if cfg.connector != nil {
		managerOpts = append(managerOpts, adapters.WithConnector(cfg.connector))
	}
	app.Manager = adapters.NewConnectionManager(provider, managerOpts...)

	store, err := adapters.NewCollectionStore(settings.CollectionStore, app.Admin)
	if err != nil {
		app.closeAdmin()
		return nil, err
	}
	app.Store = store

	registryOpts := []adapters.RegistryOption{
		adapters.WithStrictSchema(settings.StrictSchema),
		adapters.WithDefaultIdType(idType),
	}
	if settings.ColumnCacheTTL > 0 {
		registryOpts = append(registryOpts, adapters.WithColumnCacheTTL(settings.ColumnCacheTTL))
	}
	if h.IsNotEmpty(settings.SchemaEvents) {
		events, err := adapters.NewSchemaEvents(settings.SchemaEvents)
		if err != nil {
			app.closeAdmin()
			return nil, err
		}
		app.Events = events
		registryOpts = append(registryOpts, adapters.WithSchemaEvents(events))
	}
	app.Registry = adapters.NewCollectionRegistry(app.Manager, store, registryOpts...)
	app.Engine = adapters.NewRecordEngine(app.Manager, app.Registry)

	log.Fields(map[string]any{
		"store":  settings.CollectionStore,
		"strict": settings.StrictSchema,
		"id":     idType,
	}).Info("tenantdb ready")
	return app, nil
}

func newProvider(settings config.Settings, cfg builderConfig, admin *bun.DB) (f.DataSourceProvider, error) {
	if cfg.provider != nil {
		return cfg.provider, nil
	}
	if h.IsNotEmpty(settings.DataSourceProvider) {
		return adapters.NewDataSourceProvider(settings.DataSourceProvider, admin)
	}
	if admin != nil {
		return adapters.NewDataSourceProvider("db", admin)
	}
	return nil, errors.BadRequest("DATASOURCE_PROVIDER or DATABASE_URL is required")
}

func timeoutOf(settings config.Settings) time.Duration {
	if settings.ConnectTimeout > 0 {
		return settings.ConnectTimeout
	}
	return adapters.DefaultConnectTimeout
}

// Health reports the admin database and every live tenant pool.
func (app *App) Health(ctx context.Context) f.HealthCheckResponse {
	hc := f.NewHealthCheck("tenantdb")
	if app.Admin != nil {
		hc.AddPing(ctx, "admin", app.Admin.PingContext)
	}
	if app.Events != nil {
		hc.AddPing(ctx, "schema-events", app.Events.Ping)
	}
	hc.Merge("source:", app.Manager.Health(ctx))
	return hc.Build()
}

func (app *App) Shutdown(ctx context.Context) {
	if err := app.Manager.Close(); err != nil {
		log.Error("error closing data source pools: %v", err)
	}
	if closer, ok := app.Provider.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Error("error closing data source provider: %v", err)
		}
	}
	if app.Events != nil {
		if err := app.Events.Close(); err != nil {
			log.Error("error closing schema events: %v", err)
		}
	}
	app.closeAdmin()
	log.Info("shutdown complete")
}

func (app *App) closeAdmin() {
	if app.Admin == nil {
		return
	}
	if err := app.Admin.Close(); err != nil {
		log.Error("error closing admin database: %v", err)
	}
}
