package cache

import (
	"context"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type redisCache struct{ c *rdb.Client }

// NewRedis crea un cache respaldado por redis.
func NewRedis(addr string, db int) Cache {
	return &redisCache{c: rdb.NewClient(&rdb.Options{Addr: addr, DB: db})}
}

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.c.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	return r.c.Del(ctx, key).Err()
}

func (r *redisCache) Close() error { return r.c.Close() }
