// Package upload loads shortcut definition files into the store.
//
// A definition file is YAML (or JSON, which yaml.v3 also reads):
//
//	application: Xcode
//	operatingSystem: macos
//	category: Editing
//	shortcuts:
//	  - keyCombination: Cmd+S
//	    description: Save
package upload

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/logging"
	"github.com/Iron-Ham/shortkeys/internal/store"
)

// File is the on-disk shape of one definition file.
type File struct {
	Application     string  `yaml:"application"`
	OperatingSystem string  `yaml:"operatingSystem"`
	Category        string  `yaml:"category"`
	Shortcuts       []Entry `yaml:"shortcuts"`
}

// Entry is one shortcut in a File. Category overrides the file's category.
type Entry struct {
	KeyCombination string `yaml:"keyCombination"`
	Description    string `yaml:"description"`
	Category       string `yaml:"category"`
}

// Summary counts what an upload did.
type Summary struct {
	Files    int
	Inserted int
	Skipped  int
}

// Uploader inserts shortcuts that are not yet in the store.
type Uploader struct {
	store  store.Shortcuts
	logger *logging.Logger
}

// New creates an Uploader. A nil logger discards output.
func New(s store.Shortcuts, logger *logging.Logger) *Uploader {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Uploader{store: s, logger: logger}
}

// IsDefinitionFile reports whether path has a supported extension.
func IsDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// UploadDir uploads every definition file under dir, in lexical order.
// A bad file does not stop the others; all failures are returned together
// after the walk.
func (u *Uploader) UploadDir(ctx context.Context, dir string) (*Summary, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsDefinitionFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan %s", dir)
	}
	sort.Strings(paths)

	sum := &Summary{}
	var result *multierror.Error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}
		inserted, skipped, err := u.UploadFile(ctx, path)
		sum.Files++
		sum.Inserted += inserted
		sum.Skipped += skipped
		if err != nil {
			u.logger.Error("failed to upload file", "file", path, "error", err)
			result = multierror.Append(result, err)
		}
	}

	u.logger.Info("bulk upload finished",
		"dir", dir, "files", sum.Files, "inserted", sum.Inserted, "skipped", sum.Skipped)
	return sum, result.ErrorOrNil()
}

// UploadFile uploads one definition file and returns how many shortcuts were
// inserted and skipped.
func (u *Uploader) UploadFile(ctx context.Context, path string) (inserted, skipped int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, 0, errors.NewValidationError("invalid definition file").WithField(path).WithCause(err)
	}

	for i, e := range f.Shortcuts {
		sc := &store.Shortcut{
			KeyCombination:  e.KeyCombination,
			Application:     f.Application,
			OperatingSystem: f.OperatingSystem,
			Description:     e.Description,
			Category:        e.Category,
		}
		if sc.Category == "" {
			sc.Category = f.Category
		}
		if err := sc.Validate(); err != nil {
			return inserted, skipped, errors.Wrapf(err, "%s: shortcut %d", path, i)
		}

		_, err := u.store.FindShortcutByKey(ctx, sc.Key())
		switch {
		case err == nil:
			skipped++
			continue
		case !errors.Is(err, errors.ErrDocumentNotFound):
			return inserted, skipped, errors.Wrapf(err, "%s: shortcut %d", path, i)
		}

		if err := u.store.InsertShortcut(ctx, sc); err != nil {
			return inserted, skipped, errors.Wrapf(err, "%s: shortcut %d", path, i)
		}
		inserted++
		u.logger.Debug("inserted shortcut",
			"application", sc.Application, "os", sc.OperatingSystem, "keys", sc.KeyCombination)
	}
	return inserted, skipped, nil
}
