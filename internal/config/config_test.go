package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Env != ProfileDevelopment {
		t.Errorf("Env = %q, want %q", cfg.Env, ProfileDevelopment)
	}
	if cfg.Database.Driver != DriverMongo {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverMongo)
	}
	if cfg.Server.Addr != ":3000" {
		t.Errorf("Server.Addr = %q, want :3000", cfg.Server.Addr)
	}
	if cfg.Migration.Mode != MigrationIncrement {
		t.Errorf("Migration.Mode = %q, want %q", cfg.Migration.Mode, MigrationIncrement)
	}
	if _, ok := cfg.Tasks.Tool("jshint"); !ok {
		t.Error("default tools should include jshint")
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default() should validate, got %v", ValidationErrors(errs))
	}
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		profile string
		name    string
		want    string
	}{
		{ProfileDevelopment, "", "shortkeys-dev"},
		{ProfileTest, "", "shortkeys-test"},
		{ProfileProduction, "", "shortkeys"},
		{ProfileTest, "custom", "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.profile+"/"+tt.name, func(t *testing.T) {
			d := DatabaseConfig{Name: tt.name}
			if got := d.DatabaseName(tt.profile); got != tt.want {
				t.Errorf("DatabaseName(%q) = %q, want %q", tt.profile, got, tt.want)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()
	if got := cfg.Database.ConnectTimeout(); got != 10*time.Second {
		t.Errorf("ConnectTimeout() = %v", got)
	}
	if got := cfg.Server.SessionTTL(); got != 24*time.Hour {
		t.Errorf("SessionTTL() = %v", got)
	}
	if got := cfg.Assets.Debounce(); got != 200*time.Millisecond {
		t.Errorf("Debounce() = %v", got)
	}
}

func TestNormalizeProfile(t *testing.T) {
	tests := map[string]string{
		"":             ProfileDevelopment,
		"  Production": ProfileProduction,
		"TEST":         ProfileTest,
		"staging":      "staging",
	}
	for in, want := range tests {
		if got := NormalizeProfile(in); got != want {
			t.Errorf("NormalizeProfile(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProfileFile(t *testing.T) {
	tests := []struct {
		base, profile, want string
	}{
		{"/etc/shortkeys/config.yaml", "production", "/etc/shortkeys/config.production.yaml"},
		{"config.yml", "test", "config.test.yml"},
		{"config", "development", "config.development.yaml"},
	}
	for _, tt := range tests {
		if got := ProfileFile(tt.base, tt.profile); got != tt.want {
			t.Errorf("ProfileFile(%q, %q) = %q, want %q", tt.base, tt.profile, got, tt.want)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Env != ProfileDevelopment {
		t.Errorf("Env = %q", cfg.Env)
	}
	tool, ok := cfg.Tasks.Tool("servertest")
	if !ok {
		t.Fatal("servertest tool missing after Load")
	}
	if len(tool.Targets) != 1 || tool.Targets[0] != "./..." {
		t.Errorf("servertest targets = %v", tool.Targets)
	}
	if len(cfg.Assets.Watch) != 4 {
		t.Errorf("len(Assets.Watch) = %d, want 4", len(cfg.Assets.Watch))
	}
}

func TestLoad_ProfileFromNodeEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	if err := viper.BindEnv("env", EnvVar); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvVar, "test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Env != ProfileTest {
		t.Errorf("Env = %q, want %q", cfg.Env, ProfileTest)
	}
}

func TestLoad_InvalidProfile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("env", "staging")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should reject an unknown profile")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok || len(verrs) != 1 || verrs[0].Field != "env" {
		t.Errorf("Load() error = %v", err)
	}
}

func TestMergeProfileOverlay(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	dir := t.TempDir()
	base := filepath.Join(dir, "config.yaml")
	writeFile(t, base, "server:\n  addr: \":8080\"\ntasks:\n  max_parallel: 2\n")
	writeFile(t, filepath.Join(dir, "config.production.yaml"), "server:\n  addr: \":80\"\n  secure_cookies: true\n")

	viper.SetConfigFile(base)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	path, err := MergeProfileOverlay(ProfileProduction)
	if err != nil {
		t.Fatalf("MergeProfileOverlay() error = %v", err)
	}
	if path != filepath.Join(dir, "config.production.yaml") {
		t.Errorf("overlay path = %q", path)
	}
	if got := viper.GetString("server.addr"); got != ":80" {
		t.Errorf("server.addr = %q, want :80", got)
	}
	if !viper.GetBool("server.secure_cookies") {
		t.Error("server.secure_cookies should come from the overlay")
	}
	if got := viper.GetInt("tasks.max_parallel"); got != 2 {
		t.Errorf("tasks.max_parallel = %d, want base value 2", got)
	}

	path, err = MergeProfileOverlay(ProfileTest)
	if err != nil || path != "" {
		t.Errorf("missing overlay: path=%q err=%v", path, err)
	}
}

func TestLoadProfile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	dir := t.TempDir()
	base := filepath.Join(dir, "config.yaml")
	writeFile(t, base, "database:\n  driver: mongo\n  uri: mongodb://db:27017\nmigration:\n  workers: 2\n")
	writeFile(t, filepath.Join(dir, "config.production.yaml"), "database:\n  driver: memory\nassets:\n  shortcuts_dir: prod-shortcuts\n")
	t.Setenv("SHORTKEYS_MIGRATION_WORKERS", "6")
	t.Setenv(EnvVar, ProfileTest)

	viper.SetConfigFile(base)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := LoadProfile(ProfileProduction, map[string]any{"logging.level": "debug"})
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if cfg.Env != ProfileProduction {
		t.Errorf("Env = %q, want production over NODE_ENV", cfg.Env)
	}
	if cfg.Database.Driver != DriverMemory || cfg.Assets.ShortcutsDir != "prod-shortcuts" {
		t.Errorf("overlay not applied: driver=%q shortcuts_dir=%q", cfg.Database.Driver, cfg.Assets.ShortcutsDir)
	}
	if cfg.Migration.Workers != 6 {
		t.Errorf("Migration.Workers = %d, want 6 from the environment", cfg.Migration.Workers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want the override", cfg.Logging.Level)
	}

	cfg, err = LoadProfile(ProfileTest, nil)
	if err != nil {
		t.Fatalf("LoadProfile(test) error = %v", err)
	}
	if cfg.Database.Driver != DriverMongo || cfg.Database.URI != "mongodb://db:27017" {
		t.Errorf("test profile should keep the base database: %+v", cfg.Database)
	}
	if viper.GetString("database.driver") != DriverMongo {
		t.Error("LoadProfile must not modify the global configuration")
	}

	writeFile(t, filepath.Join(dir, "config.development.yaml"), "database:\n  driver: postgres\n")
	if _, err := LoadProfile(ProfileDevelopment, nil); err == nil {
		t.Error("LoadProfile() should reject an invalid overlay")
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := ConfigDir(); got != "/custom/config/shortkeys" {
		t.Errorf("ConfigDir() = %q", got)
	}
	if got := ConfigFile(); got != "/custom/config/shortkeys/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
