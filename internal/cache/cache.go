// Package cache provee el storage efímero de authd (refresh tokens, reset
// tokens) con backends memory y redis.
package cache

import (
	"context"
	"time"
)

// Cache es un KV chico con TTL. Los valores son []byte; el caller decide el
// encoding.
type Cache interface {
	// Get retorna el valor y true si la key existe y no expiró.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set guarda value con ttl. ttl 0 = sin expiración.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete borra la key. Borrar una key inexistente no es error.
	Delete(ctx context.Context, key string) error

	// Close libera recursos del backend.
	Close() error
}

// Config para el factory New.
type Config struct {
	Kind      string // "memory" | "redis"
	RedisAddr string
	RedisDB   int
}

// New crea el cache según configuración. Kind desconocido cae a memory.
func New(cfg Config) Cache {
	if cfg.Kind == "redis" {
		return NewRedis(cfg.RedisAddr, cfg.RedisDB)
	}
	return NewMemory()
}
