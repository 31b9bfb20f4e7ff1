// Package store define la persistencia de authd: cuentas y documentos.
// Hay dos drivers: memory (default, sin dependencias) y postgres.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: already exists")
)

// Account es una cuenta del emulador. PasswordHash es nil para cuentas
// creadas vía identity provider federado.
type Account struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash *string
	Provider     string // "password" | "google"
	CreatedAt    time.Time
}

// AccountStore persiste cuentas. El email es único (case-insensitive, el
// caller normaliza antes).
type AccountStore interface {
	// Create inserta una cuenta nueva. ErrConflict si el email ya existe.
	Create(ctx context.Context, a Account) (Account, error)

	// GetByEmail busca por email normalizado. ErrNotFound si no existe.
	GetByEmail(ctx context.Context, email string) (Account, error)

	// GetByID busca por ID. ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (Account, error)

	// UpsertFederated retorna la cuenta existente para el email o crea una
	// nueva con los datos dados. Idempotente frente a carreras: dos llamadas
	// concurrentes con el mismo email resuelven a la misma cuenta.
	UpsertFederated(ctx context.Context, a Account) (Account, error)

	// UpdatePassword reemplaza el hash de password. ErrNotFound si no existe.
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// DocumentStore persiste documentos JSON por (collection, id).
type DocumentStore interface {
	// Get retorna el documento. ErrNotFound si no existe.
	Get(ctx context.Context, collection, id string) (map[string]any, error)

	// Create inserta solo si no existe. ErrConflict si ya hay documento:
	// es la primitiva con la que el fetch-or-create de profiles queda
	// race-safe sin riesgo de pisar una edición concurrente.
	Create(ctx context.Context, collection, id string, data map[string]any) error

	// Set reemplaza (o crea) el documento completo.
	Set(ctx context.Context, collection, id string, data map[string]any) error

	// Patch mergea los campos dados sobre el documento existente y retorna
	// el resultado. ErrNotFound si el documento no existe.
	Patch(ctx context.Context, collection, id string, partial map[string]any) (map[string]any, error)
}

// Store agrupa ambos repos más el cierre del backend.
type Store interface {
	Accounts() AccountStore
	Documents() DocumentStore
	Close()
}
