// Package pg implementa store.Store sobre postgres (pgx). Los documentos van
// a una tabla jsonb; las cuentas a una tabla propia con email único.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/emulator/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL DEFAULT '',
	password_hash TEXT,
	provider      TEXT NOT NULL DEFAULT 'password',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);`

type Store struct {
	pool     *pgxpool.Pool
	accounts accountStore
	docs     documentStore
}

// Open conecta al DSN, aplica el schema y retorna el store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ensure schema: %w", err)
	}
	s := &Store{pool: pool}
	s.accounts = accountStore{pool}
	s.docs = documentStore{pool}
	return s, nil
}

func (s *Store) Accounts() store.AccountStore   { return &s.accounts }
func (s *Store) Documents() store.DocumentStore { return &s.docs }
func (s *Store) Close()                         { s.pool.Close() }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type accountStore struct{ pool *pgxpool.Pool }

func (r *accountStore) Create(ctx context.Context, a store.Account) (store.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, display_name, password_hash, provider, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.Email, a.DisplayName, a.PasswordHash, a.Provider, a.CreatedAt)
	if isUniqueViolation(err) {
		return store.Account{}, store.ErrConflict
	}
	if err != nil {
		return store.Account{}, err
	}
	return a, nil
}

func (r *accountStore) GetByEmail(ctx context.Context, email string) (store.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, provider, created_at
		FROM accounts WHERE email = $1`, email))
}

func (r *accountStore) GetByID(ctx context.Context, id string) (store.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, provider, created_at
		FROM accounts WHERE id = $1`, id))
}

func (r *accountStore) UpsertFederated(ctx context.Context, a store.Account) (store.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	// ON CONFLICT DO NOTHING + re-select: dos primeras-veces concurrentes
	// terminan en la misma fila.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, display_name, password_hash, provider)
		VALUES ($1,$2,$3,NULL,$4)
		ON CONFLICT (email) DO NOTHING`,
		a.ID, a.Email, a.DisplayName, a.Provider)
	if err != nil {
		return store.Account{}, err
	}
	return r.GetByEmail(ctx, a.Email)
}

func (r *accountStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *accountStore) scanOne(row pgx.Row) (store.Account, error) {
	var a store.Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.Provider, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Account{}, store.ErrNotFound
	}
	if err != nil {
		return store.Account{}, err
	}
	return a, nil
}

type documentStore struct{ pool *pgxpool.Pool }

func (r *documentStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	var data map[string]any
	err := r.pool.QueryRow(ctx, `
		SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *documentStore) Create(ctx context.Context, collection, id string, data map[string]any) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1,$2,$3)
		ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

func (r *documentStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1,$2,$3)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		collection, id, data)
	return err
}

func (r *documentStore) Patch(ctx context.Context, collection, id string, partial map[string]any) (map[string]any, error) {
	var merged map[string]any
	err := r.pool.QueryRow(ctx, `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2
		RETURNING data`,
		collection, id, partial).Scan(&merged)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return merged, nil
}
