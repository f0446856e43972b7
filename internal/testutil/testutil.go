// Package testutil provides testing utilities for shortkeys tests.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Iron-Ham/shortkeys/internal/store"
)

// Fixture credentials for the account SeedAccount creates.
const (
	Username = "username"
	Password = "password"
)

// SetupProject creates a temporary project tree containing files, keyed by
// slash-separated relative path. The tree is removed when the test completes.
func SetupProject(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for path, content := range files {
		WriteFile(t, dir, path, content)
	}
	return dir
}

// WriteFile creates or replaces dir/path, creating parent directories.
func WriteFile(t *testing.T, dir, path, content string) string {
	t.Helper()

	fullPath := filepath.Join(dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return fullPath
}

// SeedAccount inserts a local user with the fixture credentials and one
// shortcut owned by that user, listed in the user's favorites. The shortcut's
// favorites count is left at zero.
func SeedAccount(t *testing.T, s store.Store) (*store.User, *store.Shortcut) {
	t.Helper()
	ctx := context.Background()

	user := &store.User{
		FirstName:   "Full",
		LastName:    "Name",
		DisplayName: "Full Name",
		Email:       "test@test.com",
		Roles:       []string{"user"},
		Username:    Username,
		Provider:    "local",
	}
	if err := user.SetPassword(Password); err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if err := s.InsertUser(ctx, user); err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}

	shortcut := &store.Shortcut{
		KeyCombination:  "keyCombination",
		Application:     "application",
		Description:     "description",
		OperatingSystem: "operatingSystem",
		Category:        "category",
		User:            user.ID,
	}
	if err := s.InsertShortcut(ctx, shortcut); err != nil {
		t.Fatalf("failed to insert shortcut: %v", err)
	}

	user.Favorites = []primitive.ObjectID{shortcut.ID}
	if err := s.SaveUser(ctx, user); err != nil {
		t.Fatalf("failed to save favorites: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.RemoveUsers(context.Background())
		_, _ = s.RemoveShortcuts(context.Background())
	})
	return user, shortcut
}

// SkipIfNoTool skips the test if name is not on PATH.
func SkipIfNoTool(t *testing.T, name string) {
	t.Helper()

	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not found in PATH, skipping test", name)
	}
}
