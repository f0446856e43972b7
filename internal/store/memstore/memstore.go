// Package memstore is an in-memory store.Store. Documents are copied on the
// way in and out, so callers never share memory with the store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/store"
)

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	users     map[primitive.ObjectID]*store.User
	shortcuts map[primitive.ObjectID]*store.Shortcut
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:     make(map[primitive.ObjectID]*store.User),
		shortcuts: make(map[primitive.ObjectID]*store.Shortcut),
		now:       time.Now,
	}
}

func copyUser(u *store.User) *store.User {
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	c.Favorites = append([]primitive.ObjectID(nil), u.Favorites...)
	return &c
}

func copyShortcut(s *store.Shortcut) *store.Shortcut {
	c := *s
	return &c
}

func (m *Store) InsertUser(_ context.Context, u *store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Created.IsZero() {
		u.Created = m.now().UTC()
	}
	if _, exists := m.users[u.ID]; exists {
		return errors.NewStoreError("insert user", errors.ErrDuplicateKey).
			WithCollection(store.UsersCollection).WithDocument(u.ID.Hex())
	}
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return errors.NewStoreError("insert user", errors.ErrDuplicateKey).
				WithCollection(store.UsersCollection).WithDocument(u.Username)
		}
	}
	m.users[u.ID] = copyUser(u)
	return nil
}

func (m *Store) SaveUser(_ context.Context, u *store.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return errors.NewNotFoundError("user", u.ID.Hex())
	}
	m.users[u.ID] = copyUser(u)
	return nil
}

func (m *Store) FindUserByID(_ context.Context, id primitive.ObjectID) (*store.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, errors.NewNotFoundError("user", id.Hex())
	}
	return copyUser(u), nil
}

func (m *Store) FindUserByUsername(_ context.Context, username string) (*store.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, errors.NewNotFoundError("user", username)
}

func (m *Store) FindUsersWithFavorites(_ context.Context) ([]*store.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*store.User
	for _, u := range m.users {
		if len(u.Favorites) > 0 {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (m *Store) RemoveUsers(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.users))
	m.users = make(map[primitive.ObjectID]*store.User)
	return n, nil
}

func (m *Store) InsertShortcut(_ context.Context, s *store.Shortcut) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	if s.Created.IsZero() {
		s.Created = m.now().UTC()
	}
	if _, exists := m.shortcuts[s.ID]; exists {
		return errors.NewStoreError("insert shortcut", errors.ErrDuplicateKey).
			WithCollection(store.ShortcutsCollection).WithDocument(s.ID.Hex())
	}
	m.shortcuts[s.ID] = copyShortcut(s)
	return nil
}

func (m *Store) SaveShortcut(_ context.Context, s *store.Shortcut) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shortcuts[s.ID]; !ok {
		return errors.NewNotFoundError("shortcut", s.ID.Hex())
	}
	m.shortcuts[s.ID] = copyShortcut(s)
	return nil
}

func (m *Store) FindShortcutsByIDs(_ context.Context, ids []primitive.ObjectID) ([]*store.Shortcut, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*store.Shortcut
	seen := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if s, ok := m.shortcuts[id]; ok {
			out = append(out, copyShortcut(s))
		}
	}
	return out, nil
}

func (m *Store) FindShortcutByKey(_ context.Context, key store.Key) (*store.Shortcut, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.shortcuts {
		if s.Key() == key {
			return copyShortcut(s), nil
		}
	}
	return nil, errors.NewNotFoundError("shortcut", key.Application+"/"+key.OperatingSystem+"/"+key.KeyCombination)
}

func (m *Store) IncrementFavoritesCount(_ context.Context, id primitive.ObjectID, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shortcuts[id]
	if !ok {
		return errors.NewNotFoundError("shortcut", id.Hex())
	}
	s.FavoritesCount += delta
	return nil
}

func (m *Store) SetFavoritesCount(_ context.Context, id primitive.ObjectID, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shortcuts[id]
	if !ok {
		return errors.NewNotFoundError("shortcut", id.Hex())
	}
	s.FavoritesCount = count
	return nil
}

func (m *Store) ResetFavoritesCounts(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.shortcuts {
		if s.FavoritesCount != 0 {
			s.FavoritesCount = 0
			n++
		}
	}
	return n, nil
}

func (m *Store) RemoveShortcuts(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.shortcuts))
	m.shortcuts = make(map[primitive.ObjectID]*store.Shortcut)
	return n, nil
}

// Close is a no-op.
func (m *Store) Close(context.Context) error { return nil }
