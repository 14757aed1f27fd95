package adapters

import (
	"github.com/go-redis/redis/v8"
	"github.com/soffa-projects/tenantdb-go/errors"
)

// NewRedisClient builds a client from a redis:// or rediss:// url.
// The connection is established lazily on the first command.
func NewRedisClient(uri string) (*redis.Client, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, errors.BadRequest("invalid redis url: %v", err)
	}
	return redis.NewClient(opts), nil
}
