package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/testutil"
)

// executeCommand runs the root command with args and returns captured output
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	runFlags.dryRun, runFlags.progress, runFlags.testFiles, runFlags.db = false, false, nil, ""
	serveFlags.debug, serveFlags.addr, serveFlags.db = false, "", ""
	configInitPath = ""
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// setupTestEnvironment runs the test from an empty project directory with an
// isolated user config directory.
func setupTestEnvironment(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("NODE_ENV", "")
	t.Setenv("SHORTKEYS_TASKS_STATE_DIR", filepath.Join(dir, "state"))
	return dir
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "shortkeys" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "shortkeys")
	}

	expected := []string{"run", "tasks", "status", "serve", "config"}
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestTasksCommand(t *testing.T) {
	setupTestEnvironment(t)

	out, err := executeCommand(t, "tasks")
	if err != nil {
		t.Fatalf("tasks error = %v", err)
	}
	for _, want := range []string{"lint", "build", "migrate-favorites", "bulk-upload", "styles:less -> styles:sass -> [lint:css, lint:js]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "debug:enable") {
		t.Errorf("hidden task listed:\n%s", out)
	}
}

func TestRunCommand_DryRun(t *testing.T) {
	dir := setupTestEnvironment(t)

	out, err := executeCommand(t, "run", "--dry-run", "build")
	if err != nil {
		t.Fatalf("run --dry-run error = %v", err)
	}
	for _, want := range []string{
		"1. env:dev, lint:css, lint:js, minify:css, minify:js, styles:less, styles:sass",
		"2. lint",
		"3. build",
		"build = env:dev -> lint -> [minify:js, minify:css]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "state", "last-run.json")); !os.IsNotExist(err) {
		t.Error("a dry run must not save a report")
	}
}

func TestRunCommand_UnknownTask(t *testing.T) {
	setupTestEnvironment(t)

	_, err := executeCommand(t, "run", "--db", "memory", "deploy")
	if !errors.Is(err, errors.ErrUnknownTask) {
		t.Errorf("run error = %v, want ErrUnknownTask", err)
	}
}

func TestRunThenStatus(t *testing.T) {
	setupTestEnvironment(t)

	out, err := executeCommand(t, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "No runs recorded") {
		t.Errorf("status before any run = %q", out)
	}

	if _, err := executeCommand(t, "run", "--db", "memory", "migrate-favorites"); err != nil {
		t.Fatalf("run migrate-favorites error = %v", err)
	}

	out, err = executeCommand(t, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{"Tasks: migrate-favorites", "Profile: development", "Result: succeeded", "db", "migrate-favorites"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
}

func TestNodeEnvSelectsProfile(t *testing.T) {
	setupTestEnvironment(t)
	t.Setenv("NODE_ENV", "production")

	if _, err := executeCommand(t, "status"); err != nil {
		t.Errorf("status error = %v, production should load without serving", err)
	}

	_, err := executeCommand(t, "serve", "--db", "memory", "--addr", "127.0.0.1:0")
	if err == nil || !strings.Contains(err.Error(), "server.session_secret") {
		t.Errorf("serve error = %v, want the production secret check to fire", err)
	}

	t.Setenv("NODE_ENV", "staging")
	_, err = executeCommand(t, "status")
	if err == nil || !strings.Contains(err.Error(), "env") {
		t.Errorf("status error = %v, want an invalid profile error", err)
	}
}

const sublimeShortcuts = `application: Sublime Text
operatingSystem: linux
category: Editing
shortcuts:
  - keyCombination: Ctrl+D
    description: Select next occurrence
`

func TestRunCommand_EnvTaskLoadsProfileOverlay(t *testing.T) {
	dir := setupTestEnvironment(t)

	testutil.WriteFile(t, dir, "config.yaml", `database:
  driver: mongo
  uri: mongodb://127.0.0.1:1
  connect_timeout_seconds: 1
assets:
  shortcuts_dir: missing
`)
	testutil.WriteFile(t, dir, "config.production.yaml", `database:
  driver: memory
assets:
  shortcuts_dir: data
`)
	testutil.WriteFile(t, dir, "data/sublime.yaml", sublimeShortcuts)

	if _, err := executeCommand(t, "run", "bulk-upload"); err != nil {
		t.Fatalf("run bulk-upload error = %v, want the production overlay's store and shortcuts dir", err)
	}

	out, err := executeCommand(t, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	for _, want := range []string{"Tasks: bulk-upload", "Profile: production", "Result: succeeded"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
}

func TestRunCommand_EnvTaskOverlayStoreFails(t *testing.T) {
	dir := setupTestEnvironment(t)

	testutil.WriteFile(t, dir, "config.yaml", "database:\n  driver: memory\nassets:\n  shortcuts_dir: data\n")
	testutil.WriteFile(t, dir, "config.production.yaml", `database:
  driver: mongo
  uri: mongodb://127.0.0.1:1
  connect_timeout_seconds: 1
`)
	testutil.WriteFile(t, dir, "data/sublime.yaml", sublimeShortcuts)

	_, err := executeCommand(t, "run", "bulk-upload")
	if err == nil || !strings.Contains(err.Error(), "failed to open store") {
		t.Errorf("run bulk-upload error = %v, want the overlay's mongo store to be dialed", err)
	}
}

func TestRunCommand_EnvTaskKeepsDBOverride(t *testing.T) {
	dir := setupTestEnvironment(t)

	testutil.WriteFile(t, dir, "config.production.yaml", `database:
  driver: mongo
  uri: mongodb://127.0.0.1:1
  connect_timeout_seconds: 1
assets:
  shortcuts_dir: data
`)
	testutil.WriteFile(t, dir, "data/sublime.yaml", sublimeShortcuts)

	if _, err := executeCommand(t, "run", "--db", "memory", "bulk-upload"); err != nil {
		t.Errorf("run --db memory bulk-upload error = %v, want --db to survive the profile switch", err)
	}
}

func TestConfigShow_ProfileOverlay(t *testing.T) {
	dir := setupTestEnvironment(t)
	t.Setenv("NODE_ENV", "test")

	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("config.yaml", "migration:\n  workers: 3\n  mode: increment\n")
	write("config.test.yaml", "migration:\n  mode: recompute\n")

	out, err := executeCommand(t, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	for _, want := range []string{"# Profile: test", "mode: recompute", "workers: 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestConfigInit(t *testing.T) {
	dir := setupTestEnvironment(t)
	path := filepath.Join(dir, "conf", "config.yaml")

	out, err := executeCommand(t, "config", "init", "--path", path)
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output = %q, want the created path", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "migration:") {
		t.Errorf("config file missing migration section:\n%s", data)
	}

	if _, err := executeCommand(t, "config", "init", "--path", path); err == nil {
		t.Error("second config init should fail")
	}

	if _, err := executeCommand(t, "--config", path, "status"); err != nil {
		t.Errorf("the generated config should load: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	setupTestEnvironment(t)

	out, err := executeCommand(t, "config", "path")
	if err != nil {
		t.Fatalf("config path error = %v", err)
	}
	if !strings.Contains(out, "Default path:") || !strings.Contains(out, "NODE_ENV") {
		t.Errorf("config path output:\n%s", out)
	}
}
