package upload

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/shortkeys/internal/store"
	"github.com/Iron-Ham/shortkeys/internal/store/memstore"
	"github.com/Iron-Ham/shortkeys/internal/testutil"
)

const xcode = `application: Xcode
operatingSystem: macos
category: General
shortcuts:
  - keyCombination: Cmd+S
    description: Save
  - keyCombination: Cmd+B
    description: Build
    category: Building
`

const vim = `{"application": "vim", "operatingSystem": "linux",
 "shortcuts": [{"keyCombination": ":w", "description": "Write"}]}`

func TestUploadDir(t *testing.T) {
	dir := testutil.SetupProject(t, map[string]string{
		"xcode.yaml":       xcode,
		"editors/vim.json": vim,
		"README.md":        "not a definition",
	})

	db := memstore.New()
	u := New(db, nil)
	ctx := context.Background()

	sum, err := u.UploadDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, &Summary{Files: 2, Inserted: 3}, sum)

	build, err := db.FindShortcutByKey(ctx, store.Key{Application: "Xcode", OperatingSystem: "macos", KeyCombination: "Cmd+B"})
	require.NoError(t, err)
	assert.Equal(t, "Building", build.Category)
	assert.Equal(t, "Build", build.Description)

	save, err := db.FindShortcutByKey(ctx, store.Key{Application: "Xcode", OperatingSystem: "macos", KeyCombination: "Cmd+S"})
	require.NoError(t, err)
	assert.Equal(t, "General", save.Category)

	again, err := u.UploadDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, &Summary{Files: 2, Skipped: 3}, again)
}

func TestUploadDir_AggregatesFailures(t *testing.T) {
	dir := testutil.SetupProject(t, map[string]string{
		"a-broken.yaml":    "application: [unterminated",
		"b-missing-os.yml": "application: x\nshortcuts:\n  - keyCombination: k\n",
		"c-good.yaml":      xcode,
	})

	sum, err := New(memstore.New(), nil).UploadDir(context.Background(), dir)
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
	assert.Equal(t, 3, sum.Files)
	assert.Equal(t, 2, sum.Inserted, "good files are still uploaded")
}

func TestUploadDir_MissingDir(t *testing.T) {
	_, err := New(memstore.New(), nil).UploadDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestIsDefinitionFile(t *testing.T) {
	for path, want := range map[string]bool{
		"a.yaml": true,
		"a.YML":  true,
		"a.json": true,
		"a.md":   false,
		"yaml":   false,
	} {
		assert.Equal(t, want, IsDefinitionFile(path), path)
	}
}
