// Package memory is an in-process AccountRepository used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/oksasatya/account-service/internal/domain/entity"
	"github.com/oksasatya/account-service/internal/domain/repository"
)

type AccountRepository struct {
	mu         sync.RWMutex
	byID       map[string]*entity.Account
	byUsername map[string]string // username key -> id
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:       make(map[string]*entity.Account),
		byUsername: make(map[string]string),
	}
}

var _ repository.AccountRepository = (*AccountRepository)(nil)

func (r *AccountRepository) FindByID(_ context.Context, id string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AccountRepository) FindByUsername(_ context.Context, username string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[entity.UsernameKey(username)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

// Insert assigns a fresh UUID and stores a copy of a.
func (r *AccountRepository) Insert(_ context.Context, a *entity.Account) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entity.UsernameKey(a.Username)
	if _, taken := r.byUsername[key]; taken {
		return "", repository.ErrDuplicateUsername
	}
	cp := *a
	cp.ID = uuid.NewString()
	r.byID[cp.ID] = &cp
	r.byUsername[key] = cp.ID
	return cp.ID, nil
}

func (r *AccountRepository) Update(_ context.Context, a *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	oldKey, newKey := entity.UsernameKey(cur.Username), entity.UsernameKey(a.Username)
	if oldKey != newKey {
		if _, taken := r.byUsername[newKey]; taken {
			return repository.ErrDuplicateUsername
		}
		delete(r.byUsername, oldKey)
		r.byUsername[newKey] = a.ID
	}
	cp := *a
	cp.CreatedAt = cur.CreatedAt
	r.byID[a.ID] = &cp
	return nil
}

func (r *AccountRepository) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.byUsername, entity.UsernameKey(a.Username))
	delete(r.byID, id)
	return nil
}

// FindAll returns accounts ordered by creation time, then id.
func (r *AccountRepository) FindAll(_ context.Context) ([]*entity.Account, error) {
	r.mu.RLock()
	out := make([]*entity.Account, 0, len(r.byID))
	for _, a := range r.byID {
		cp := *a
		out = append(out, &cp)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
