package f

import (
	"context"

	"github.com/uptrace/bun"
)

// Connection is the live pool of one data source.
type Connection struct {
	SourceID string
	Prefix   string
	Dialect  Dialect
	DB       *bun.DB
}

func (c *Connection) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Connection) Close() error {
	return c.DB.Close()
}

type ConnectionManager interface {
	Resolve(ctx context.Context, sourceID string) (*Connection, error)
	Release(sourceID string) error
	Close() error
	Health(ctx context.Context) HealthCheckResponse
	Sources() []string
}
