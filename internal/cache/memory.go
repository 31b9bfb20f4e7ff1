package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type memory struct{ c *gocache.Cache }

// NewMemory crea un cache en memoria (go-cache) con limpieza cada minuto.
func NewMemory() Cache {
	return &memory{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *memory) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

func (m *memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, value, ttl)
	return nil
}

func (m *memory) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *memory) Close() error { return nil }
