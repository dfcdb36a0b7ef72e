package redisad

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"hostaway_sync/internal/adapters/observability"
)

// Cache is a JSON-over-Redis read-through cache. Keys are namespaced by
// prefix so several deployments can share one Redis database.
type Cache struct {
	c      *redis.Client
	prefix string
}

func New(addr, pass string, db int) *Cache {
	return NewFromClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}))
}

func NewFromClient(c *redis.Client) *Cache {
	return &Cache{c: c, prefix: "hostaway:"}
}

// Client exposes the underlying connection so the lock can share it.
func (r *Cache) Client() *redis.Client { return r.c }

func (r *Cache) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

func (r *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	v, err := r.c.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCache("redis", "miss")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	observability.ObserveCache("redis", "hit")
	return true, json.Unmarshal(v, dst)
}

func (r *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	observability.ObserveCache("redis", "set")
	return r.c.Set(ctx, r.prefix+key, b, time.Duration(ttlSec)*time.Second).Err()
}

func (r *Cache) Del(ctx context.Context, key string) error {
	observability.ObserveCache("redis", "del")
	return r.c.Del(ctx, r.prefix+key).Err()
}
