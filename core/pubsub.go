package f

import "context"

const SchemaEventsTopic = "tenantdb:schema"

// TableChange is broadcast after DDL touched a table.
type TableChange struct {
	DatabaseID string `json:"database_id"`
	Table      string `json:"table"`
	// Origin identifies the publishing registry.
	Origin string `json:"origin,omitempty"`
}

// SchemaEvents lets registries of other processes drop stale column metadata.
type SchemaEvents interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, change TableChange) error
	Subscribe(ctx context.Context, handler func(change TableChange))
	Close() error
}
