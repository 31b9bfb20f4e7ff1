// Package memory implementa store.Store en memoria. Es el driver por defecto
// del emulador y el que usan los tests.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/dropDatabas3/littlejohn/internal/emulator/store"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	byID     map[string]store.Account
	byEmail  map[string]string // email -> id
	docs     map[string]map[string]any
	accounts accountStore
	docsRepo documentStore
}

func New() *Store {
	s := &Store{
		byID:    make(map[string]store.Account),
		byEmail: make(map[string]string),
		docs:    make(map[string]map[string]any),
	}
	s.accounts = accountStore{s}
	s.docsRepo = documentStore{s}
	return s
}

func (s *Store) Accounts() store.AccountStore   { return &s.accounts }
func (s *Store) Documents() store.DocumentStore { return &s.docsRepo }
func (s *Store) Close()                         {}

func docKey(collection, id string) string { return collection + "/" + id }

type accountStore struct{ s *Store }

func (r *accountStore) Create(_ context.Context, a store.Account) (store.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.byEmail[a.Email]; taken {
		return store.Account{}, store.ErrConflict
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	r.s.byID[a.ID] = a
	r.s.byEmail[a.Email] = a.ID
	return a, nil
}

func (r *accountStore) GetByEmail(_ context.Context, email string) (store.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byEmail[email]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return r.s.byID[id], nil
}

func (r *accountStore) GetByID(_ context.Context, id string) (store.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.byID[id]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (r *accountStore) UpsertFederated(_ context.Context, a store.Account) (store.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.byEmail[a.Email]; ok {
		return r.s.byID[id], nil
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	r.s.byID[a.ID] = a
	r.s.byEmail[a.Email] = a.ID
	return a, nil
}

func (r *accountStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	a.PasswordHash = &passwordHash
	r.s.byID[id] = a
	return nil
}

type documentStore struct{ s *Store }

func (r *documentStore) Get(_ context.Context, collection, id string) (map[string]any, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.docs[docKey(collection, id)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return maps.Clone(d), nil
}

func (r *documentStore) Create(_ context.Context, collection, id string, data map[string]any) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := docKey(collection, id)
	if _, ok := r.s.docs[k]; ok {
		return store.ErrConflict
	}
	r.s.docs[k] = maps.Clone(data)
	return nil
}

func (r *documentStore) Set(_ context.Context, collection, id string, data map[string]any) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.docs[docKey(collection, id)] = maps.Clone(data)
	return nil
}

func (r *documentStore) Patch(_ context.Context, collection, id string, partial map[string]any) (map[string]any, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := docKey(collection, id)
	d, ok := r.s.docs[k]
	if !ok {
		return nil, store.ErrNotFound
	}
	merged := maps.Clone(d)
	maps.Copy(merged, partial)
	r.s.docs[k] = merged
	return maps.Clone(merged), nil
}
