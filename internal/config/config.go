package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration profiles, selected by NODE_ENV.
const (
	ProfileDevelopment = "development"
	ProfileTest        = "test"
	ProfileProduction  = "production"
)

// Store drivers
const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Migration modes
const (
	MigrationIncrement = "increment"
	MigrationRecompute = "recompute"
)

// EnvVar is the environment variable that selects the configuration profile.
const EnvVar = "NODE_ENV"

// EnvPrefix prefixes environment variables that override config keys.
const EnvPrefix = "SHORTKEYS"

// Config represents the complete shortkeys configuration
type Config struct {
	// Env is the active profile: development, test or production.
	Env       string          `mapstructure:"env"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tasks     TasksConfig     `mapstructure:"tasks"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Migration MigrationConfig `mapstructure:"migration"`
}

// DatabaseConfig controls the document store connection
type DatabaseConfig struct {
	// Driver is "mongo" or "memory" (default: "mongo")
	Driver string `mapstructure:"driver"`
	// URI is the MongoDB connection string
	URI string `mapstructure:"uri"`
	// Name overrides the per-profile database name when set
	Name string `mapstructure:"name"`
	// ConnectTimeoutSeconds bounds connect + ping (default: 10)
	ConnectTimeoutSeconds int `mapstructure:"connect_timeout_seconds"`
}

// DatabaseName returns the database to use for profile.
func (d *DatabaseConfig) DatabaseName(profile string) string {
	if d.Name != "" {
		return d.Name
	}
	switch profile {
	case ProfileTest:
		return "shortkeys-test"
	case ProfileProduction:
		return "shortkeys"
	default:
		return "shortkeys-dev"
	}
}

// ConnectTimeout returns the connect timeout as a time.Duration
func (d *DatabaseConfig) ConnectTimeout() time.Duration {
	return time.Duration(d.ConnectTimeoutSeconds) * time.Second
}

// ServerConfig controls the HTTP server
type ServerConfig struct {
	// Addr is the listen address (default: ":3000")
	Addr string `mapstructure:"addr"`
	// SessionSecret signs session cookies. Must be changed in production.
	SessionSecret string `mapstructure:"session_secret"`
	// SessionEncryptionKey optionally encrypts session cookies (16, 24 or 32 bytes)
	SessionEncryptionKey string `mapstructure:"session_encryption_key"`
	// SessionTTLHours is the session cookie lifetime (default: 24)
	SessionTTLHours int `mapstructure:"session_ttl_hours"`
	// SecureCookies sets the Secure flag on session cookies
	SecureCookies bool `mapstructure:"secure_cookies"`
	// AllowedOrigins lists CORS origins; empty disables CORS handling
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// ShutdownTimeoutSeconds bounds graceful shutdown (default: 10)
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// SessionTTL returns the session lifetime as a time.Duration
func (s *ServerConfig) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLHours) * time.Hour
}

// ShutdownTimeout returns the graceful shutdown bound as a time.Duration
func (s *ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error" (default: "info")
	Level string `mapstructure:"level"`
	// Format is "text" or "json" (default: "text")
	Format string `mapstructure:"format"`
	// File redirects logs from stderr to a rotating file
	File string `mapstructure:"file"`
	// MaxSizeMB is the log file size that triggers rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// TasksConfig controls the task runner
type TasksConfig struct {
	// MaxParallel bounds concurrently running tasks within a step, 0 = unbounded
	MaxParallel int `mapstructure:"max_parallel"`
	// StateDir holds the last run report (default: ".shortkeys")
	StateDir string `mapstructure:"state_dir"`
	// Tools maps tool names to the external commands tasks invoke
	Tools map[string]ToolConfig `mapstructure:"tools"`
}

// ToolConfig describes one external command
type ToolConfig struct {
	// Command is split with shell quoting rules. Empty skips the tool.
	Command string `mapstructure:"command"`
	// Targets are appended to the command line
	Targets []string `mapstructure:"targets"`
	// Dir is the working directory, relative to the project root
	Dir string `mapstructure:"dir"`
	// PTY runs the command under a pseudo-terminal
	PTY bool `mapstructure:"pty"`
}

// Tool returns the named tool configuration.
func (t *TasksConfig) Tool(name string) (ToolConfig, bool) {
	tc, ok := t.Tools[name]
	return tc, ok
}

// AssetsConfig controls asset locations and file watching
type AssetsConfig struct {
	// ShortcutsDir holds shortcut definition files for bulk-upload (default: "shortcuts")
	ShortcutsDir string `mapstructure:"shortcuts_dir"`
	// WatchRoots are the directories the watch task observes
	WatchRoots []string `mapstructure:"watch_roots"`
	// Watch maps changed-file patterns to the tasks they re-run
	Watch []WatchRule `mapstructure:"watch"`
	// DebounceMs coalesces bursts of file events (default: 200)
	DebounceMs int `mapstructure:"debounce_ms"`
}

// WatchRule maps glob patterns to task names
type WatchRule struct {
	Patterns []string `mapstructure:"patterns"`
	Tasks    []string `mapstructure:"tasks"`
}

// Debounce returns the debounce interval as a time.Duration
func (a *AssetsConfig) Debounce() time.Duration {
	return time.Duration(a.DebounceMs) * time.Millisecond
}

// MigrationConfig controls the favorites-count migration
type MigrationConfig struct {
	// Mode is "increment" (default) or "recompute"
	Mode string `mapstructure:"mode"`
	// Workers bounds concurrent counter writes (default: 8)
	Workers int `mapstructure:"workers"`
}

const defaultSessionSecret = "shortkeys-development-session-secret"

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Env: ProfileDevelopment,
		Database: DatabaseConfig{
			Driver:                DriverMongo,
			URI:                   "mongodb://localhost:27017",
			ConnectTimeoutSeconds: 10,
		},
		Server: ServerConfig{
			Addr:                   ":3000",
			SessionSecret:          defaultSessionSecret,
			SessionTTLHours:        24,
			AllowedOrigins:         []string{},
			ShutdownTimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Tasks: TasksConfig{
			MaxParallel: 0,
			StateDir:    ".shortkeys",
			Tools:       DefaultTools(),
		},
		Assets: AssetsConfig{
			ShortcutsDir: "shortcuts",
			WatchRoots:   []string{"public"},
			Watch: []WatchRule{
				{Patterns: []string{"public/**/*.js"}, Tasks: []string{"lint:js"}},
				{Patterns: []string{"public/**/*.css"}, Tasks: []string{"lint:css"}},
				{Patterns: []string{"public/**/*.scss"}, Tasks: []string{"styles:sass"}},
				{Patterns: []string{"public/**/*.less"}, Tasks: []string{"styles:less"}},
			},
			DebounceMs: 200,
		},
		Migration: MigrationConfig{
			Mode:    MigrationIncrement,
			Workers: 8,
		},
	}
}

// DefaultTools returns the external commands used by the project tasks.
func DefaultTools() map[string]ToolConfig {
	return map[string]ToolConfig{
		"less":       {Command: "npx lessc", Targets: []string{"public/less/main.less", "public/dist/main.less.css"}},
		"sass":       {Command: "npx sass --no-source-map", Targets: []string{"public/scss:public/dist"}},
		"csslint":    {Command: "npx csslint --quiet", Targets: []string{"public/css"}},
		"jshint":     {Command: "npx jshint", Targets: []string{"public/js"}},
		"uglify":     {Command: "npx esbuild --bundle --minify --outfile=public/dist/application.min.js", Targets: []string{"public/js/application.js"}},
		"cssmin":     {Command: "npx esbuild --bundle --minify --outfile=public/dist/application.min.css", Targets: []string{"public/css/application.css"}},
		"karma":      {Command: "npx karma start karma.conf.js --single-run", PTY: true},
		"servertest": {Command: "go test -count=1", Targets: []string{"./..."}},
		"protractor": {Command: "npx protractor", Targets: []string{"protractor.conf.js"}},
		"webdriver":  {Command: "npx webdriver-manager update"},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("env", d.Env)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.uri", d.Database.URI)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.connect_timeout_seconds", d.Database.ConnectTimeoutSeconds)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.session_secret", d.Server.SessionSecret)
	v.SetDefault("server.session_encryption_key", d.Server.SessionEncryptionKey)
	v.SetDefault("server.session_ttl_hours", d.Server.SessionTTLHours)
	v.SetDefault("server.secure_cookies", d.Server.SecureCookies)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.shutdown_timeout_seconds", d.Server.ShutdownTimeoutSeconds)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)

	v.SetDefault("tasks.max_parallel", d.Tasks.MaxParallel)
	v.SetDefault("tasks.state_dir", d.Tasks.StateDir)
	for name, tool := range d.Tasks.Tools {
		prefix := "tasks.tools." + name + "."
		v.SetDefault(prefix+"command", tool.Command)
		v.SetDefault(prefix+"targets", tool.Targets)
		v.SetDefault(prefix+"dir", tool.Dir)
		v.SetDefault(prefix+"pty", tool.PTY)
	}

	v.SetDefault("assets.shortcuts_dir", d.Assets.ShortcutsDir)
	v.SetDefault("assets.watch_roots", d.Assets.WatchRoots)
	v.SetDefault("assets.watch", d.Assets.Watch)
	v.SetDefault("assets.debounce_ms", d.Assets.DebounceMs)

	v.SetDefault("migration.mode", d.Migration.Mode)
	v.SetDefault("migration.workers", d.Migration.Workers)
}

// BindEnv makes v read SHORTKEYS_* variables, e.g. SHORTKEYS_DATABASE_URI for
// database.uri, and takes the profile from SHORTKEYS_ENV or NODE_ENV.
func BindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("env", EnvPrefix+"_ENV", EnvVar)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return load(viper.GetViper())
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Env = NormalizeProfile(cfg.Env)

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// LoadProfile resolves the configuration for profile from scratch: defaults,
// the config file viper loaded, that file's overlay for profile, the
// environment, then overrides keyed by config key. The result is validated.
func LoadProfile(profile string, overrides map[string]any) (*Config, error) {
	profile = NormalizeProfile(profile)
	v := viper.New()
	setDefaults(v)

	base := viper.ConfigFileUsed()
	if base != "" {
		v.SetConfigFile(base)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", base, err)
		}
	}
	if _, err := mergeOverlay(v, base, profile); err != nil {
		return nil, err
	}

	BindEnv(v)
	for key, val := range overrides {
		v.Set(key, val)
	}
	v.Set("env", profile)
	return load(v)
}

// NormalizeProfile lowercases a profile name and maps the empty string to
// development.
func NormalizeProfile(profile string) string {
	p := strings.ToLower(strings.TrimSpace(profile))
	if p == "" {
		return ProfileDevelopment
	}
	return p
}

// ValidProfiles returns the supported profile names.
func ValidProfiles() []string {
	return []string{ProfileDevelopment, ProfileTest, ProfileProduction}
}

// IsValidProfile reports whether profile is supported.
func IsValidProfile(profile string) bool {
	for _, p := range ValidProfiles() {
		if p == profile {
			return true
		}
	}
	return false
}

// ProfileFile returns the overlay file for profile next to base,
// e.g. config.production.yaml for config.yaml.
func ProfileFile(base, profile string) string {
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".yaml"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + "." + profile + ext
}

// MergeProfileOverlay merges the overlay for profile on top of the loaded
// configuration. It returns the overlay path, or "" when none exists.
func MergeProfileOverlay(profile string) (string, error) {
	return mergeOverlay(viper.GetViper(), viper.ConfigFileUsed(), profile)
}

func mergeOverlay(v *viper.Viper, base, profile string) (string, error) {
	if base == "" {
		base = filepath.Join(".", "config.yaml")
	}
	path := ProfileFile(base, profile)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to merge %s: %w", path, err)
	}
	return path, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shortkeys")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shortkeys"
	}
	return filepath.Join(home, ".config", "shortkeys")
}

// ConfigFile returns the path to the user config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ToolNames returns the configured tool names, sorted.
func (c *Config) ToolNames() []string {
	names := make([]string, 0, len(c.Tasks.Tools))
	for name := range c.Tasks.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
