package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/JR-coderli/EFsafari/internal/models"
)

// UserLoader supplies the full user list.
type UserLoader interface {
	LoadUsers(ctx context.Context) ([]models.User, error)
}

// Directory holds users loaded from Postgres, indexed by id and username.
// Reload swaps the whole snapshot, so readers never see a partial load.
type Directory struct {
	loader UserLoader

	mu         sync.RWMutex
	byID       map[string]models.User
	byUsername map[string]models.User
}

// NewDirectory loads the initial snapshot from loader.
func NewDirectory(ctx context.Context, loader UserLoader) (*Directory, error) {
	d := &Directory{loader: loader}
	if err := d.Reload(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// StaticDirectory returns a Directory over a fixed user list. Reload is a
// no-op for it.
func StaticDirectory(users ...models.User) *Directory {
	d := &Directory{}
	d.index(users)
	return d
}

// Reload replaces the snapshot with the loader's current users.
func (d *Directory) Reload(ctx context.Context) error {
	if d.loader == nil {
		return nil
	}
	users, err := d.loader.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	d.index(users)
	return nil
}

func (d *Directory) index(users []models.User) {
	byID := make(map[string]models.User, len(users))
	byUsername := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
		byUsername[u.Username] = u
	}
	d.mu.Lock()
	d.byID, d.byUsername = byID, byUsername
	d.mu.Unlock()
}

// FindByID returns the active user with the given id.
func (d *Directory) FindByID(id string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	return u, ok && u.Active
}

// FindByUsername returns the active user with the given username.
func (d *Directory) FindByUsername(name string) (models.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byUsername[name]
	return u, ok && u.Active
}

// Users returns a copy of every loaded user.
func (d *Directory) Users() []models.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.User, 0, len(d.byID))
	for _, u := range d.byID {
		out = append(out, u)
	}
	return out
}
