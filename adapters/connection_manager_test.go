package adapters

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/test"
)

func newTestProvider(t *testing.T, ids ...string) *StaticDataSourceProvider {
	t.Helper()
	sources := []f.DataSource{}
	for _, id := range ids {
		sources = append(sources, f.DataSource{
			ID:               id,
			Name:             "name-" + id,
			ConnectionString: test.SqliteURL(t),
		})
	}
	provider, err := NewStaticDataSourceProvider(sources...)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return provider
}

// countingConnector wraps Connect and counts constructions.
func countingConnector(count *int32, delay time.Duration) Connector {
	return func(ctx context.Context, ds f.DataSource, opts PoolOptions) (*f.Connection, error) {
		atomic.AddInt32(count, 1)
		time.Sleep(delay)
		return Connect(ctx, ds, opts)
	}
}

func TestConnectionManager_SingleFlight(t *testing.T) {
	assert := test.NewAssertions(t)
	var count int32
	manager := NewConnectionManager(newTestProvider(t, "db1"), WithConnector(countingConnector(&count, 50*time.Millisecond)))
	defer manager.Close()

	var wg sync.WaitGroup
	results := make(chan *f.Connection, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cnx, err := manager.Resolve(context.Background(), "db1")
			assert.Nil(err)
			results <- cnx
		}()
	}
	wg.Wait()
	close(results)

	assert.Equals(atomic.LoadInt32(&count), int32(1))
	var first *f.Connection
	for cnx := range results {
		if first == nil {
			first = cnx
		}
		assert.True(cnx == first, "every caller gets the same pool")
	}
	assert.Equals(manager.Sources(), []string{"db1"})
}

func TestConnectionManager_ResolveByName(t *testing.T) {
	assert := test.NewAssertions(t)
	var count int32
	manager := NewConnectionManager(newTestProvider(t, "db1"), WithConnector(countingConnector(&count, 0)))
	defer manager.Close()

	byID, err := manager.Resolve(context.Background(), "db1")
	assert.Nil(err)
	byName, err := manager.Resolve(context.Background(), "name-db1")
	assert.Nil(err)
	assert.True(byID == byName)
	assert.Equals(atomic.LoadInt32(&count), int32(1))
	assert.Equals(byName.Prefix, f.DefaultTablePrefix)
	assert.Equals(byName.Dialect.Name(), DialectSqlite)
}

func TestConnectionManager_SingleFlightAcrossIdAndName(t *testing.T) {
	assert := test.NewAssertions(t)
	var count int32
	manager := NewConnectionManager(newTestProvider(t, "db1"), WithConnector(countingConnector(&count, 50*time.Millisecond)))
	defer manager.Close()

	var wg sync.WaitGroup
	pools := make([]*f.Connection, 20)
	for i := 0; i < 20; i++ {
		key := "db1"
		if i%2 == 1 {
			key = "name-db1"
		}
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			cnx, err := manager.Resolve(context.Background(), key)
			assert.Nil(err)
			pools[i] = cnx
		}(i, key)
	}
	wg.Wait()

	assert.Equals(atomic.LoadInt32(&count), int32(1))
	for _, cnx := range pools {
		assert.True(cnx == pools[0])
	}
	assert.Equals(manager.Sources(), []string{"db1"})
}

func TestConnectionManager_SourceNotFound(t *testing.T) {
	assert := test.NewAssertions(t)
	manager := NewConnectionManager(newTestProvider(t, "db1"))
	defer manager.Close()

	_, err := manager.Resolve(context.Background(), "unknown")
	assert.ErrorIs(err, errors.ErrSourceNotFound)
	_, err = manager.Resolve(context.Background(), "")
	assert.ErrorIs(err, errors.ErrSourceNotFound)
	assert.Len(manager.Sources(), 0)
}

func TestConnectionManager_FailureRegistersNothing(t *testing.T) {
	assert := test.NewAssertions(t)
	var count int32
	failing := func(ctx context.Context, ds f.DataSource, opts PoolOptions) (*f.Connection, error) {
		if atomic.AddInt32(&count, 1) == 1 {
			return nil, fmt.Errorf("connection refused")
		}
		return Connect(ctx, ds, opts)
	}
	manager := NewConnectionManager(newTestProvider(t, "db1"), WithConnector(failing))
	defer manager.Close()

	_, err := manager.Resolve(context.Background(), "db1")
	assert.ErrorIs(err, errors.ErrConnectionFailure)
	assert.Len(manager.Sources(), 0)

	// the next call retries
	_, err = manager.Resolve(context.Background(), "db1")
	assert.Nil(err)
	assert.Equals(atomic.LoadInt32(&count), int32(2))
}

func TestConnectionManager_BadConnectionString(t *testing.T) {
	assert := test.NewAssertions(t)
	provider, err := NewStaticDataSourceProvider(f.DataSource{ID: "db1", Name: "db1", ConnectionString: "mysql://localhost/app"})
	assert.Nil(err)
	manager := NewConnectionManager(provider)
	defer manager.Close()

	_, err = manager.Resolve(context.Background(), "db1")
	assert.ErrorIs(err, errors.ErrConnectionFailure)
}

func TestConnectionManager_CallerCancellation(t *testing.T) {
	assert := test.NewAssertions(t)
	var count int32
	gate := make(chan struct{})
	blocking := func(ctx context.Context, ds f.DataSource, opts PoolOptions) (*f.Connection, error) {
		atomic.AddInt32(&count, 1)
		<-gate
		return Connect(ctx, ds, opts)
	}
	manager := NewConnectionManager(newTestProvider(t, "db1"), WithConnector(blocking))
	defer manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := manager.Resolve(ctx, "db1")
	assert.ErrorIs(err, errors.ErrConnectionFailure)

	close(gate)
	cnx, err := manager.Resolve(context.Background(), "db1")
	assert.Nil(err)
	assert.NotNil(cnx)
	assert.Equals(atomic.LoadInt32(&count), int32(1))
}

func TestConnectionManager_ConnectTimeout(t *testing.T) {
	assert := test.NewAssertions(t)
	slow := func(ctx context.Context, ds f.DataSource, opts PoolOptions) (*f.Connection, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	manager := NewConnectionManager(newTestProvider(t, "db1"), WithConnector(slow), WithConnectTimeout(10*time.Millisecond))
	defer manager.Close()

	_, err := manager.Resolve(context.Background(), "db1")
	assert.ErrorIs(err, errors.ErrConnectionFailure)
}

func TestConnectionManager_Release(t *testing.T) {
	assert := test.NewAssertions(t)
	var count int32
	manager := NewConnectionManager(newTestProvider(t, "db1", "db2"), WithConnector(countingConnector(&count, 0)))
	defer manager.Close()

	_, err := manager.Resolve(context.Background(), "name-db1")
	assert.Nil(err)
	_, err = manager.Resolve(context.Background(), "db2")
	assert.Nil(err)
	assert.Equals(manager.Sources(), []string{"db1", "db2"})

	assert.Nil(manager.Release("name-db1"))
	assert.Equals(manager.Sources(), []string{"db2"})
	assert.Nil(manager.Release("db1"))
	assert.Nil(manager.Release("never-seen"))

	_, err = manager.Resolve(context.Background(), "db1")
	assert.Nil(err)
	assert.Equals(atomic.LoadInt32(&count), int32(3))
}

func TestConnectionManager_Close(t *testing.T) {
	assert := test.NewAssertions(t)
	manager := NewConnectionManager(newTestProvider(t, "db1"))

	cnx, err := manager.Resolve(context.Background(), "db1")
	assert.Nil(err)
	assert.Nil(manager.Close())
	assert.Error(cnx.Ping(context.Background()))

	_, err = manager.Resolve(context.Background(), "db1")
	assert.ErrorIs(err, errors.ErrConnectionFailure)
}

func TestConnectionManager_Health(t *testing.T) {
	assert := test.NewAssertions(t)
	manager := NewConnectionManager(newTestProvider(t, "db1", "db2"))
	defer manager.Close()

	_, err := manager.Resolve(context.Background(), "db1")
	assert.Nil(err)
	_, err = manager.Resolve(context.Background(), "db2")
	assert.Nil(err)

	report := manager.Health(context.Background())
	assert.Equals(report.Status, f.StatusUp)
	assert.Len(report.Components, 2)
	assert.Equals(report.Components["db1"].Status, f.StatusUp)
}
