package adapters

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
)

// ------------------------------------------------------------------------------------------------------------------
// REDIS PROVIDER IMPL
// ------------------------------------------------------------------------------------------------------------------

const (
	redisKeyPrefix = "datasources:"
	redisNamesKey  = "datasources:names"
)

// RedisDataSourceProvider stores each data source as JSON under
// datasources:<id> and indexes names in the datasources:names hash.
type RedisDataSourceProvider struct {
	client *redis.Client
}

func NewRedisDataSourceProvider(uri string) (*RedisDataSourceProvider, error) {
	client, err := NewRedisClient(uri)
	if err != nil {
		return nil, err
	}
	return &RedisDataSourceProvider{client: client}, nil
}

func NewRedisDataSourceProviderWithClient(client *redis.Client) *RedisDataSourceProvider {
	return &RedisDataSourceProvider{client: client}
}

func (p *RedisDataSourceProvider) Find(ctx context.Context, idOrName string) (*f.DataSource, error) {
	ds, err := p.get(ctx, idOrName)
	if err != nil || ds != nil {
		return ds, err
	}
	id, err := p.client.HGet(ctx, redisNamesKey, idOrName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ConnectionFailure(err, "failed to read data source names")
	}
	return p.get(ctx, id)
}

func (p *RedisDataSourceProvider) get(ctx context.Context, id string) (*f.DataSource, error) {
	value, err := p.client.Get(ctx, redisKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ConnectionFailure(err, "failed to read data source %s", id)
	}
	var ds f.DataSource
	if err := json.Unmarshal([]byte(value), &ds); err != nil {
		return nil, errors.BadRequest("corrupted data source %s: %v", id, err)
	}
	return &ds, nil
}

func (p *RedisDataSourceProvider) List(ctx context.Context) ([]f.DataSource, error) {
	names, err := p.client.HGetAll(ctx, redisNamesKey).Result()
	if err != nil {
		return nil, errors.ConnectionFailure(err, "failed to list data sources")
	}
	out := []f.DataSource{}
	for _, id := range names {
		ds, err := p.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ds != nil {
			out = append(out, *ds)
		}
	}
	return sortDataSources(out), nil
}

func (p *RedisDataSourceProvider) Create(ctx context.Context, ds f.DataSource) error {
	if err := ValidateDataSource(ds); err != nil {
		return err
	}
	if existing, err := p.Find(ctx, ds.Name); err != nil {
		return err
	} else if existing != nil {
		return errors.Conflict("data source name %s already taken", ds.Name)
	}
	payload, err := json.Marshal(ds)
	if err != nil {
		return errors.Wrap(err, "failed to encode data source %s", ds.ID)
	}
	created, err := p.client.SetNX(ctx, redisKeyPrefix+ds.ID, payload, 0).Result()
	if err != nil {
		return errors.ConnectionFailure(err, "failed to store data source %s", ds.ID)
	}
	if !created {
		return errors.Conflict("data source %s already exists", ds.ID)
	}
	if err := p.client.HSet(ctx, redisNamesKey, ds.Name, ds.ID).Err(); err != nil {
		return errors.ConnectionFailure(err, "failed to index data source %s", ds.ID)
	}
	return nil
}

func (p *RedisDataSourceProvider) Delete(ctx context.Context, id string) error {
	ds, err := p.get(ctx, id)
	if err != nil {
		return err
	}
	if ds == nil {
		return errors.SourceNotFound(id)
	}
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKeyPrefix+id)
		pipe.HDel(ctx, redisNamesKey, ds.Name)
		return nil
	})
	if err != nil {
		return errors.ConnectionFailure(err, "failed to delete data source %s", id)
	}
	return nil
}

func (p *RedisDataSourceProvider) Close() error {
	return p.client.Close()
}
