// Package store defines the shortkeys document model and the persistence
// interface the tasks and the HTTP server use. Implementations live in
// mongostore (MongoDB) and memstore (in-memory).
package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/Iron-Ham/shortkeys/internal/errors"
)

// Collection names
const (
	UsersCollection     = "users"
	ShortcutsCollection = "shortcuts"
)

// User is an account. Favorites references Shortcut documents by id.
type User struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	FirstName   string               `bson:"firstName" json:"firstName"`
	LastName    string               `bson:"lastName" json:"lastName"`
	DisplayName string               `bson:"displayName" json:"displayName"`
	Email       string               `bson:"email" json:"email"`
	Username    string               `bson:"username" json:"username"`
	Password    string               `bson:"password" json:"-"`
	Provider    string               `bson:"provider" json:"provider"`
	Roles       []string             `bson:"roles" json:"roles"`
	Favorites   []primitive.ObjectID `bson:"favorites" json:"favorites"`
	Created     time.Time            `bson:"created" json:"created"`
}

// SetPassword stores a bcrypt hash of plain.
func (u *User) SetPassword(plain string) error {
	if plain == "" {
		return errors.NewValidationError("password cannot be empty").WithField("password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

// Authenticate reports whether plain matches the stored password hash.
func (u *User) Authenticate(plain string) bool {
	if u.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plain)) == nil
}

// HasFavorite reports whether id is in u's favorites.
func (u *User) HasFavorite(id primitive.ObjectID) bool {
	for _, f := range u.Favorites {
		if f == id {
			return true
		}
	}
	return false
}

// Shortcut is one keyboard shortcut for an application on an operating
// system. FavoritesCount is denormalized: it should equal the number of
// users whose favorites contain the shortcut, but nothing enforces that.
type Shortcut struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	KeyCombination  string             `bson:"keyCombination" json:"keyCombination"`
	Application     string             `bson:"application" json:"application"`
	Description     string             `bson:"description" json:"description"`
	OperatingSystem string             `bson:"operatingSystem" json:"operatingSystem"`
	Category        string             `bson:"category" json:"category"`
	Created         time.Time          `bson:"created" json:"created"`
	User            primitive.ObjectID `bson:"user,omitempty" json:"user,omitempty"`
	FavoritesCount  int                `bson:"favoritesCount" json:"favoritesCount"`
}

// Key identifies a shortcut for de-duplication.
type Key struct {
	Application     string
	OperatingSystem string
	KeyCombination  string
}

// Key returns the de-duplication key of s.
func (s *Shortcut) Key() Key {
	return Key{Application: s.Application, OperatingSystem: s.OperatingSystem, KeyCombination: s.KeyCombination}
}

// Validate checks the fields every shortcut needs.
func (s *Shortcut) Validate() error {
	switch {
	case s.KeyCombination == "":
		return errors.NewValidationError("shortcut needs a key combination").WithField("keyCombination")
	case s.Application == "":
		return errors.NewValidationError("shortcut needs an application").WithField("application")
	case s.OperatingSystem == "":
		return errors.NewValidationError("shortcut needs an operating system").WithField("operatingSystem")
	}
	return nil
}
