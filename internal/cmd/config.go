package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/shortkeys/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify shortkeys configuration",
	Long: `View or modify shortkeys configuration.

Without arguments, displays the effective configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file in use (or the user
config file when none is loaded). The result is validated before it is
written.

Keys use dot notation, e.g.:
  shortkeys config set database.uri mongodb://db:27017
  shortkeys config set migration.mode recompute
  shortkeys config set tasks.max_parallel 4`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a commented config file at $XDG_CONFIG_HOME/shortkeys/config.yaml, or at --path.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configInitPath string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().StringVar(&configInitPath, "path", "", "write the config file here instead")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}
	fmt.Fprintf(out, "# Profile: %s\n", config.NormalizeProfile(viper.GetString("env")))

	settings := viper.AllSettings()
	delete(settings, "config")
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if !slices.Contains(viper.AllKeys(), key) {
		return fmt.Errorf("unknown configuration key: %s\nRun 'shortkeys config show' to see valid keys", key)
	}

	viper.Set(key, value)
	if _, err := config.Load(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\nConfig saved to %s\n", key, value, configFile)
	return nil
}

const configTemplate = `# shortkeys configuration
#
# Values here are overridden by config.<profile>.yaml next to this file,
# then by SHORTKEYS_* environment variables (e.g. SHORTKEYS_DATABASE_URI),
# then by flags. NODE_ENV selects the profile.

env: development

database:
  # mongo or memory
  driver: mongo
  uri: mongodb://localhost:27017
  # Empty picks shortkeys-dev, shortkeys-test or shortkeys by profile
  name: ""
  connect_timeout_seconds: 10

server:
  addr: ":3000"
  # At least 32 bytes; must be changed for production
  session_secret: shortkeys-development-session-secret
  # Optional 16, 24 or 32 byte key to encrypt the session cookie
  session_encryption_key: ""
  session_ttl_hours: 24
  secure_cookies: false
  allowed_origins: []
  shutdown_timeout_seconds: 10

logging:
  # debug, info, warn, error
  level: info
  # text or json
  format: text
  # Log to a size-rotated file instead of stderr
  file: ""
  max_size_mb: 10
  max_backups: 3

tasks:
  # Concurrent tasks per group, 0 = unbounded
  max_parallel: 0
  state_dir: .shortkeys
  # External tools; an empty command skips the task
  tools:
    jshint:
      command: npx jshint
      targets: [public/js]
    servertest:
      command: go test -count=1
      targets: [./...]

assets:
  shortcuts_dir: shortcuts
  watch_roots: [public]
  debounce_ms: 200
  watch:
    - patterns: ["public/**/*.js"]
      tasks: ["lint:js"]
    - patterns: ["public/**/*.css"]
      tasks: ["lint:css"]

migration:
  # increment (adds to existing counts) or recompute (resets, then counts)
  mode: increment
  workers: 8
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := configInitPath
	if configFile == "" {
		configFile = config.ConfigFile()
	}

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'shortkeys config set' to modify values", configFile)
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintln(out, "  1. ./config.yaml (current directory)")
	fmt.Fprintf(out, "  2. %s\n", config.ConfigFile())
	fmt.Fprintln(out, "\nProfile overlays: config.<profile>.yaml next to the active config")
	fmt.Fprintln(out, "Environment variables: SHORTKEYS_* (e.g., SHORTKEYS_DATABASE_URI), NODE_ENV")
	return nil
}
