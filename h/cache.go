package h

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/soffa-projects/tenantdb-go/log"
)

var (
	defaultCache     Cache
	defaultCacheOnce sync.Once
)

func DefaultCache() Cache {
	defaultCacheOnce.Do(func() {
		defaultCache = MustNewCache(time.Hour)
	})
	return defaultCache
}

type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Del(key string)
	GetOrSet(key string, function func() (any, error)) (any, error)
}

type cacheImpl struct {
	internal *ristretto.Cache[string, any]
	ttl      time.Duration
}

func NewCache(ttl time.Duration) (Cache, error) {
	internal, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters:        100000,
		MaxCost:            1 << 16,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &cacheImpl{
		internal: internal,
		ttl:      ttl,
	}, nil
}

func MustNewCache(ttl time.Duration) Cache {
	c, err := NewCache(ttl)
	if err != nil {
		log.Fatal("failed to create cache: %v", err)
	}
	return c
}

func (c *cacheImpl) Get(key string) (any, bool) {
	return c.internal.Get(key)
}

func (c *cacheImpl) GetOrSet(key string, function func() (any, error)) (any, error) {
	if val, ok := c.internal.Get(key); ok {
		return val, nil
	}
	value, err := function()
	if err != nil {
		return nil, err
	}
	c.Set(key, value)
	return value, nil
}

// Set blocks until the write buffer is applied so a following Get observes it.
func (c *cacheImpl) Set(key string, value any) {
	if c.ttl > 0 {
		c.internal.SetWithTTL(key, value, 1, c.ttl)
	} else {
		c.internal.Set(key, value, 1)
	}
	c.internal.Wait()
}

func (c *cacheImpl) Del(key string) {
	c.internal.Del(key)
	c.internal.Wait()
}
