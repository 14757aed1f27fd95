package adapters

import (
	"context"
	"sort"
	"sync"
	"time"

	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/log"
	"golang.org/x/sync/singleflight"
)

const DefaultConnectTimeout = 10 * time.Second

// ConnectionManager keeps one pool per data source. Pools are created on first
// use and live until Release or Close.
type ConnectionManager struct {
	provider  f.DataSourceProvider
	connector Connector
	timeout   time.Duration
	pool      PoolOptions

	mu      sync.RWMutex
	pools   map[string]*f.Connection
	aliases map[string]string
	closed  bool
	lookups singleflight.Group
	group   singleflight.Group
}

type ManagerOption func(*ConnectionManager)

func WithConnector(connector Connector) ManagerOption {
	return func(m *ConnectionManager) {
		m.connector = connector
	}
}

func WithConnectTimeout(timeout time.Duration) ManagerOption {
	return func(m *ConnectionManager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

func WithPoolOptions(opts PoolOptions) ManagerOption {
	return func(m *ConnectionManager) {
		m.pool = opts
	}
}

func NewConnectionManager(provider f.DataSourceProvider, opts ...ManagerOption) *ConnectionManager {
	f.Check(provider, "data source provider is required")
	m := &ConnectionManager{
		provider:  provider,
		connector: Connect,
		timeout:   DefaultConnectTimeout,
		pools:     make(map[string]*f.Connection),
		aliases:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve returns the pool of sourceID, an id or a name, creating it when
// needed. The source is looked up first and construction is shared per
// canonical id, so concurrent first calls by id and by name build a single
// pool. Cancelling ctx stops the wait, not the construction, which is bounded
// by the connect timeout.
func (m *ConnectionManager) Resolve(ctx context.Context, sourceID string) (*f.Connection, error) {
	if sourceID == "" {
		return nil, errors.SourceNotFound("<empty>")
	}
	if cnx, err := m.cached(sourceID); cnx != nil || err != nil {
		return cnx, err
	}
	flightCtx := context.WithoutCancel(ctx)
	deadline := time.Now().Add(m.timeout)

	ds, err := await[*f.DataSource](ctx, sourceID, m.lookups.DoChan(sourceID, func() (any, error) {
		return m.lookup(flightCtx, deadline, sourceID)
	}))
	if err != nil {
		return nil, err
	}
	cnx, err := await[*f.Connection](ctx, sourceID, m.group.DoChan(ds.ID, func() (any, error) {
		return m.create(flightCtx, deadline, *ds)
	}))
	if err != nil {
		return nil, err
	}
	if sourceID != ds.ID {
		m.alias(sourceID, ds.ID)
	}
	return cnx, nil
}

func await[T any](ctx context.Context, sourceID string, ch <-chan singleflight.Result) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, errors.ConnectionFailure(ctx.Err(), "resolve of data source %s interrupted", sourceID)
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (m *ConnectionManager) cached(key string) (*f.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.ConnectionFailure(nil, "connection manager closed")
	}
	if cnx, ok := m.pools[key]; ok {
		return cnx, nil
	}
	if id, ok := m.aliases[key]; ok {
		return m.pools[id], nil
	}
	return nil, nil
}

func (m *ConnectionManager) lookup(parent context.Context, deadline time.Time, key string) (*f.DataSource, error) {
	ctx, cancel := context.WithDeadline(parent, deadline)
	defer cancel()
	ds, err := m.provider.Find(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up data source %s", key)
	}
	if ds == nil {
		return nil, errors.SourceNotFound(key)
	}
	return ds, nil
}

func (m *ConnectionManager) create(parent context.Context, deadline time.Time, ds f.DataSource) (*f.Connection, error) {
	if cnx, err := m.cached(ds.ID); cnx != nil || err != nil {
		return cnx, err
	}
	ctx, cancel := context.WithDeadline(parent, deadline)
	defer cancel()

	cnx, err := m.connector(ctx, ds, m.pool)
	if err != nil {
		if log.IsDebug() {
			log.Debug("connect %s failed: %s", ds.ID, f.SprintTrace(f.Trace(err)))
		}
		if errors.GetKind(err) == errors.KindConnectionFailure {
			return nil, err
		}
		return nil, errors.ConnectionFailure(err, "failed to connect to data source %s", ds.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = cnx.Close()
		return nil, errors.ConnectionFailure(nil, "connection manager closed")
	}
	if existing, ok := m.pools[ds.ID]; ok {
		_ = cnx.Close()
		return existing, nil
	}
	m.pools[ds.ID] = cnx
	log.Info("data source %s registered (%d live pools)", ds.ID, len(m.pools))
	return cnx, nil
}

func (m *ConnectionManager) alias(key, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[id]; ok {
		m.aliases[key] = id
	}
}

// Release closes the pool of sourceID. Releasing an unknown source is a no-op.
func (m *ConnectionManager) Release(sourceID string) error {
	m.mu.Lock()
	id := sourceID
	if canonical, ok := m.aliases[sourceID]; ok {
		id = canonical
	}
	cnx, ok := m.pools[id]
	if ok {
		delete(m.pools, id)
		for alias, target := range m.aliases {
			if target == id {
				delete(m.aliases, alias)
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	log.Info("releasing data source %s", id)
	if err := cnx.Close(); err != nil {
		return errors.Wrap(err, "failed to close data source %s", id)
	}
	return nil
}

// Close releases every pool. Resolve fails afterwards.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*f.Connection)
	m.aliases = make(map[string]string)
	m.closed = true
	m.mu.Unlock()

	var firstErr error
	for id, cnx := range pools {
		if err := cnx.Close(); err != nil {
			log.Warn("failed to close data source %s: %v", id, err)
			if firstErr == nil {
				firstErr = errors.Wrap(err, "failed to close data source %s", id)
			}
		}
	}
	return firstErr
}

func (m *ConnectionManager) Health(ctx context.Context) f.HealthCheckResponse {
	m.mu.RLock()
	pools := make(map[string]*f.Connection, len(m.pools))
	for id, cnx := range m.pools {
		pools[id] = cnx
	}
	m.mu.RUnlock()

	hc := f.NewHealthCheck("connection-manager")
	for id, cnx := range pools {
		hc.AddPing(ctx, id, cnx.Ping)
	}
	return hc.Build()
}

func (m *ConnectionManager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.pools))
	for id := range m.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
