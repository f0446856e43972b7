package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Users is the user half of a Store.
type Users interface {
	// InsertUser assigns an id (when unset) and a creation time, then inserts u.
	InsertUser(ctx context.Context, u *User) error
	// SaveUser replaces the stored document with u.
	SaveUser(ctx context.Context, u *User) error
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	// FindUsersWithFavorites returns every user whose favorites list is non-empty.
	FindUsersWithFavorites(ctx context.Context) ([]*User, error)
	// RemoveUsers deletes every user and returns how many were removed.
	RemoveUsers(ctx context.Context) (int64, error)
}

// Shortcuts is the shortcut half of a Store.
type Shortcuts interface {
	// InsertShortcut assigns an id (when unset) and a creation time, then inserts s.
	InsertShortcut(ctx context.Context, s *Shortcut) error
	// SaveShortcut replaces the stored document with s.
	SaveShortcut(ctx context.Context, s *Shortcut) error
	// FindShortcutsByIDs returns the shortcuts that exist among ids, in no
	// particular order. Unknown ids are ignored.
	FindShortcutsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*Shortcut, error)
	// FindShortcutByKey returns the shortcut with the given key, or an error
	// matching errors.ErrDocumentNotFound.
	FindShortcutByKey(ctx context.Context, key Key) (*Shortcut, error)
	// IncrementFavoritesCount atomically adds delta to a shortcut's counter.
	IncrementFavoritesCount(ctx context.Context, id primitive.ObjectID, delta int) error
	// SetFavoritesCount overwrites a shortcut's counter.
	SetFavoritesCount(ctx context.Context, id primitive.ObjectID, count int) error
	// ResetFavoritesCounts sets every shortcut's counter to zero.
	ResetFavoritesCounts(ctx context.Context) (int64, error)
	// RemoveShortcuts deletes every shortcut and returns how many were removed.
	RemoveShortcuts(ctx context.Context) (int64, error)
}

// Store is the full persistence interface.
type Store interface {
	Users
	Shortcuts
	Close(ctx context.Context) error
}
