package f

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

const DefaultTablePrefix = "santoki_"

// DataSource is a tenant database that collections live in.
type DataSource struct {
	bun.BaseModel    `bun:"table:data_sources" json:"-" yaml:"-" toml:"-"`
	ID               string     `bun:"id,pk" json:"id" yaml:"id" toml:"id" validate:"required"`
	Name             string     `bun:"name,notnull,unique" json:"name" yaml:"name" toml:"name" validate:"required"`
	ConnectionString string     `bun:"connection_string,notnull" json:"connection_string" yaml:"connection_string" toml:"connection_string" validate:"required"`
	TablePrefix      string     `bun:"table_prefix" json:"table_prefix,omitempty" yaml:"table_prefix,omitempty" toml:"table_prefix,omitempty" validate:"omitempty,max=32"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty" yaml:"-" toml:"-"`
}

func (d DataSource) Prefix() string {
	if d.TablePrefix == "" {
		return DefaultTablePrefix
	}
	return d.TablePrefix
}

type DataSourceList struct {
	DataSources []DataSource `json:"data_sources" yaml:"data_sources" toml:"data_sources"`
}

// DataSourceProvider looks data sources up by id or name.
// Find returns nil, nil when nothing matches.
type DataSourceProvider interface {
	Find(ctx context.Context, idOrName string) (*DataSource, error)
	List(ctx context.Context) ([]DataSource, error)
}

type DataSourceAdmin interface {
	DataSourceProvider
	Create(ctx context.Context, ds DataSource) error
	Delete(ctx context.Context, id string) error
}
