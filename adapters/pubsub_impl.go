package adapters

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	f "github.com/soffa-projects/tenantdb-go/core"
	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/soffa-projects/tenantdb-go/h"
	"github.com/soffa-projects/tenantdb-go/log"
)

// NewSchemaEvents picks the broadcaster from provider: "local" for a single
// process, redis:// or rediss:// to reach every instance.
func NewSchemaEvents(provider string) (f.SchemaEvents, error) {
	if provider == "local" || provider == "memory" {
		log.Info("using local schema events")
		return NewLocalSchemaEvents(), nil
	}
	res, err := h.ParseUrl(provider)
	if err != nil {
		return nil, errors.BadRequest("failed to parse schema events provider: %v", err)
	}
	switch res.Scheme {
	case "redis", "rediss":
		log.Info("using redis schema events: %s", h.RedactUrl(provider))
		return asEvents(NewRedisSchemaEvents(provider))
	}
	return nil, errors.UnsupportedFeature("unsupported schema events provider: %s", res.Scheme)
}

func asEvents[T f.SchemaEvents](e T, err error) (f.SchemaEvents, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ------------------------------------------------------------------------------------------------------------------
// REDIS SCHEMA EVENTS IMPL
// ------------------------------------------------------------------------------------------------------------------

type RedisSchemaEvents struct {
	client *redis.Client
	mu     sync.Mutex
	subs   []*redis.PubSub
}

func NewRedisSchemaEvents(uri string) (*RedisSchemaEvents, error) {
	client, err := NewRedisClient(uri)
	if err != nil {
		return nil, err
	}
	return &RedisSchemaEvents{client: client}, nil
}

func (p *RedisSchemaEvents) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisSchemaEvents) Publish(ctx context.Context, change f.TableChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return errors.Wrap(err, "failed to encode table change")
	}
	if err := p.client.Publish(ctx, f.SchemaEventsTopic, payload).Err(); err != nil {
		return errors.ConnectionFailure(err, "failed to publish table change")
	}
	log.Debug("[redis] table change published: %s", payload)
	return nil
}

func (p *RedisSchemaEvents) Subscribe(ctx context.Context, handler func(change f.TableChange)) {
	sub := p.client.Subscribe(ctx, f.SchemaEventsTopic)
	p.mu.Lock()
	p.subs = append(p.subs, sub)
	p.mu.Unlock()

	go func() {
		for msg := range sub.Channel() {
			var change f.TableChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.Warn("[redis] invalid table change %q: %v", msg.Payload, err)
				continue
			}
			log.Debug("[redis] table change received: %s", msg.Payload)
			handler(change)
		}
	}()
}

func (p *RedisSchemaEvents) Close() error {
	p.mu.Lock()
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
	return p.client.Close()
}

// ------------------------------------------------------------------------------------------------------------------
// LOCAL SCHEMA EVENTS IMPL
// ------------------------------------------------------------------------------------------------------------------

// LocalSchemaEvents delivers changes synchronously to the handlers of this
// process.
type LocalSchemaEvents struct {
	mu       sync.RWMutex
	handlers []func(change f.TableChange)
	sent     int
}

func NewLocalSchemaEvents() *LocalSchemaEvents {
	return &LocalSchemaEvents{}
}

func (p *LocalSchemaEvents) Ping(_ context.Context) error {
	return nil
}

func (p *LocalSchemaEvents) Publish(_ context.Context, change f.TableChange) error {
	p.mu.Lock()
	p.sent++
	handlers := append([]func(f.TableChange){}, p.handlers...)
	p.mu.Unlock()
	for _, handler := range handlers {
		handler(change)
	}
	return nil
}

func (p *LocalSchemaEvents) Subscribe(_ context.Context, handler func(change f.TableChange)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
}

func (p *LocalSchemaEvents) Sent() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sent
}

func (p *LocalSchemaEvents) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = nil
	return nil
}
