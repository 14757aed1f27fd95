package adapters

import (
	"context"
	"testing"

	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/test"
)

const testSource = "tenant1"

type testStack struct {
	ctx      context.Context
	manager  *ConnectionManager
	store    *MemoryCollectionStore
	registry *CollectionRegistry
	engine   *RecordEngine
}

// newTestStack wires a manager, registry and engine over one in-memory
// sqlite data source named tenant1.
func newTestStack(t *testing.T, opts ...RegistryOption) *testStack {
	t.Helper()
	provider, err := NewStaticDataSourceProvider(f.DataSource{
		ID:               testSource,
		Name:             "tenant-one",
		ConnectionString: test.SqliteURL(t),
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	manager := NewConnectionManager(provider)
	t.Cleanup(func() {
		_ = manager.Close()
	})
	store := NewMemoryCollectionStore()
	registry := NewCollectionRegistry(manager, store, opts...)
	return &testStack{
		ctx:      context.Background(),
		manager:  manager,
		store:    store,
		registry: registry,
		engine:   NewRecordEngine(manager, registry),
	}
}

func (s *testStack) connection(t *testing.T) *f.Connection {
	t.Helper()
	cnx, err := s.manager.Resolve(s.ctx, testSource)
	if err != nil {
		t.Fatalf("failed to resolve %s: %v", testSource, err)
	}
	return cnx
}
