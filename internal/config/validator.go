package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "server.addr")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"text", "json"}
}

// ValidDrivers returns the list of valid store drivers
func ValidDrivers() []string {
	return []string{DriverMongo, DriverMemory}
}

// ValidMigrationModes returns the list of valid migration modes
func ValidMigrationModes() []string {
	return []string{MigrationIncrement, MigrationRecompute}
}

const (
	maxLogSizeMB     = 1000
	minSecretLength  = 32
	maxMaxParallel   = 256
	maxMigrateWorker = 256
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if !IsValidProfile(c.Env) {
		errs = append(errs, ValidationError{
			Field:   "env",
			Value:   c.Env,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidProfiles(), ", ")),
		})
	}

	errs = append(errs, c.validateDatabase()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateTasks()...)
	errs = append(errs, c.validateAssets()...)
	errs = append(errs, c.validateMigration()...)

	return errs
}

func (c *Config) validateDatabase() []ValidationError {
	var errs []ValidationError

	if !slices.Contains(ValidDrivers(), c.Database.Driver) {
		errs = append(errs, ValidationError{
			Field:   "database.driver",
			Value:   c.Database.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidDrivers(), ", ")),
		})
	}
	if c.Database.Driver == DriverMongo && c.Database.URI == "" {
		errs = append(errs, ValidationError{
			Field:   "database.uri",
			Value:   c.Database.URI,
			Message: "cannot be empty when driver is mongo",
		})
	}
	if c.Database.ConnectTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "database.connect_timeout_seconds",
			Value:   c.Database.ConnectTimeoutSeconds,
			Message: "must be positive",
		})
	}

	return errs
}

// ValidateServe checks the settings that only matter once the HTTP server
// starts. Callers run it after Validate, against the profile being served.
func (c *Config) ValidateServe() []ValidationError {
	var errs []ValidationError
	if c.Env == ProfileProduction && c.Server.SessionSecret == defaultSessionSecret {
		errs = append(errs, ValidationError{
			Field:   "server.session_secret",
			Value:   "<default>",
			Message: "must be changed for the production profile",
		})
	}
	return errs
}

func (c *Config) validateServer() []ValidationError {
	var errs []ValidationError

	if c.Server.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "server.addr",
			Value:   c.Server.Addr,
			Message: "cannot be empty",
		})
	}
	if len(c.Server.SessionSecret) < minSecretLength {
		errs = append(errs, ValidationError{
			Field:   "server.session_secret",
			Value:   fmt.Sprintf("<%d bytes>", len(c.Server.SessionSecret)),
			Message: fmt.Sprintf("must be at least %d bytes", minSecretLength),
		})
	}
	if k := len(c.Server.SessionEncryptionKey); k != 0 && k != 16 && k != 24 && k != 32 {
		errs = append(errs, ValidationError{
			Field:   "server.session_encryption_key",
			Value:   fmt.Sprintf("<%d bytes>", k),
			Message: "must be 16, 24 or 32 bytes",
		})
	}
	if c.Server.SessionTTLHours <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.session_ttl_hours",
			Value:   c.Server.SessionTTLHours,
			Message: "must be positive",
		})
	}
	if c.Server.ShutdownTimeoutSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.shutdown_timeout_seconds",
			Value:   c.Server.ShutdownTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.Format != "" && !slices.Contains(ValidLogFormats(), strings.ToLower(c.Logging.Format)) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	} else if c.Logging.MaxSizeMB > maxLogSizeMB {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}
	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errs
}

func (c *Config) validateTasks() []ValidationError {
	var errs []ValidationError

	if c.Tasks.MaxParallel < 0 || c.Tasks.MaxParallel > maxMaxParallel {
		errs = append(errs, ValidationError{
			Field:   "tasks.max_parallel",
			Value:   c.Tasks.MaxParallel,
			Message: fmt.Sprintf("must be between 0 and %d (0 = unbounded)", maxMaxParallel),
		})
	}
	if c.Tasks.StateDir == "" {
		errs = append(errs, ValidationError{
			Field:   "tasks.state_dir",
			Value:   c.Tasks.StateDir,
			Message: "cannot be empty",
		})
	}
	for _, name := range c.ToolNames() {
		if strings.ContainsRune(c.Tasks.Tools[name].Command, 0) {
			errs = append(errs, ValidationError{
				Field:   "tasks.tools." + name + ".command",
				Value:   c.Tasks.Tools[name].Command,
				Message: "contains invalid null character",
			})
		}
	}

	return errs
}

func (c *Config) validateAssets() []ValidationError {
	var errs []ValidationError

	for i, rule := range c.Assets.Watch {
		field := fmt.Sprintf("assets.watch[%d]", i)
		if len(rule.Patterns) == 0 {
			errs = append(errs, ValidationError{Field: field + ".patterns", Value: rule.Patterns, Message: "at least one pattern is required"})
		}
		if len(rule.Tasks) == 0 {
			errs = append(errs, ValidationError{Field: field + ".tasks", Value: rule.Tasks, Message: "at least one task is required"})
		}
	}
	if c.Assets.DebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "assets.debounce_ms",
			Value:   c.Assets.DebounceMs,
			Message: "must be non-negative",
		})
	}

	return errs
}

func (c *Config) validateMigration() []ValidationError {
	var errs []ValidationError

	if !slices.Contains(ValidMigrationModes(), c.Migration.Mode) {
		errs = append(errs, ValidationError{
			Field:   "migration.mode",
			Value:   c.Migration.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidMigrationModes(), ", ")),
		})
	}
	if c.Migration.Workers < 1 || c.Migration.Workers > maxMigrateWorker {
		errs = append(errs, ValidationError{
			Field:   "migration.workers",
			Value:   c.Migration.Workers,
			Message: fmt.Sprintf("must be between 1 and %d", maxMigrateWorker),
		})
	}

	return errs
}
