package adapters

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/h"
	"github.com/uptrace/bun"
)

func NewCollectionStore(kind string, admin *bun.DB) (f.CollectionStore, error) {
	switch kind {
	case "", "memory":
		return NewMemoryCollectionStore(), nil
	case "db":
		if admin == nil {
			return nil, errors.BadRequest("db collection store requires DATABASE_URL")
		}
		return NewDBCollectionStore(admin), nil
	}
	return nil, errors.UnsupportedFeature("unsupported collection store: %s", kind)
}

func newCollectionID() string {
	return h.NewId("col")
}

// ------------------------------------------------------------------------------------------------------------------
// MEMORY STORE IMPL
// ------------------------------------------------------------------------------------------------------------------

type MemoryCollectionStore struct {
	mu    sync.RWMutex
	items map[string]map[string]f.Collection
}

func NewMemoryCollectionStore() *MemoryCollectionStore {
	return &MemoryCollectionStore{items: make(map[string]map[string]f.Collection)}
}

func (s *MemoryCollectionStore) Claim(_ context.Context, c f.Collection) (*f.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.items[c.DatabaseID]
	if db == nil {
		db = make(map[string]f.Collection)
		s.items[c.DatabaseID] = db
	}
	if existing, ok := db[c.Name]; ok {
		return &existing, nil
	}
	for _, other := range db {
		if other.PhysicalName == c.PhysicalName {
			return nil, errors.Conflict("collection %s maps to %s, already used by %s", c.Name, c.PhysicalName, other.Name)
		}
	}
	if c.ID == "" {
		c.ID = newCollectionID()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	db[c.Name] = c
	return &c, nil
}

func (s *MemoryCollectionStore) Get(_ context.Context, databaseID, name string) (*f.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.items[databaseID][name]; ok {
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryCollectionStore) List(_ context.Context, databaseID string) ([]f.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []f.Collection{}
	for _, c := range s.items[databaseID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryCollectionStore) Delete(_ context.Context, databaseID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items[databaseID], name)
	return nil
}

// ------------------------------------------------------------------------------------------------------------------
// DB STORE IMPL
// ------------------------------------------------------------------------------------------------------------------

// DBCollectionStore persists claims in the admin collections table; its unique
// constraints arbitrate concurrent claims across processes.
type DBCollectionStore struct {
	db bun.IDB
}

func NewDBCollectionStore(db bun.IDB) *DBCollectionStore {
	return &DBCollectionStore{db: db}
}

func (s *DBCollectionStore) Claim(ctx context.Context, c f.Collection) (*f.Collection, error) {
	if existing, err := s.Get(ctx, c.DatabaseID, c.Name); err != nil || existing != nil {
		return existing, err
	}
	if c.ID == "" {
		c.ID = newCollectionID()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if _, err := s.db.NewInsert().Model(&c).Exec(ctx); err != nil {
		if errors.GetKind(classifyDBError(err, "")) != errors.KindConflict {
			return nil, errors.Wrap(err, "failed to claim collection %s", c.Name)
		}
		// lost a race: same name is fine, same physical name is not
		if existing, err := s.Get(ctx, c.DatabaseID, c.Name); err != nil || existing != nil {
			return existing, err
		}
		return nil, errors.Conflict("collection %s maps to %s, already in use", c.Name, c.PhysicalName)
	}
	return &c, nil
}

func (s *DBCollectionStore) Get(ctx context.Context, databaseID, name string) (*f.Collection, error) {
	var c f.Collection
	err := s.db.NewSelect().Model(&c).
		Where("database_id = ?", databaseID).
		Where("name = ?", name).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load collection %s", name)
	}
	return &c, nil
}

func (s *DBCollectionStore) List(ctx context.Context, databaseID string) ([]f.Collection, error) {
	out := []f.Collection{}
	err := s.db.NewSelect().Model(&out).Where("database_id = ?", databaseID).Order("name").Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list collections")
	}
	return out, nil
}

func (s *DBCollectionStore) Delete(ctx context.Context, databaseID, name string) error {
	_, err := s.db.NewDelete().Model((*f.Collection)(nil)).
		Where("database_id = ?", databaseID).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to delete collection %s", name)
	}
	return nil
}
