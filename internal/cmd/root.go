package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "shortkeys",
	Short: "Build, test, serve and maintain the shortkeys web application",
	Long: `shortkeys runs the project's task graph (asset compilation, linting,
tests, the development server and watcher) and its data maintenance tasks.

The configuration profile comes from NODE_ENV (development, test or
production) unless --env is given.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./config.yaml or $XDG_CONFIG_HOME/shortkeys/config.yaml)")
	rootCmd.PersistentFlags().StringP("env", "e", "", "configuration profile: development, test or production (default $NODE_ENV)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text or json")
}

// bindFlags binds the global flags to their config keys. It runs from
// initConfig so the bindings survive a viper.Reset.
func bindFlags() {
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("env", flags.Lookup("env"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()
	bindFlags()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(config.ConfigDir())
	}

	config.BindEnv(viper.GetViper())

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()

	// Profile overlay, e.g. config.production.yaml, on top of the base file
	if _, err := config.MergeProfileOverlay(config.NormalizeProfile(viper.GetString("env"))); err != nil {
		fmt.Fprintf(os.Stderr, "warning: ignoring profile overlay: %v\n", err)
	}
}

// newLogger builds the process logger from cfg. When quiet is set and no log
// file is configured, output is discarded so it cannot corrupt the progress
// display.
func newLogger(cfg *config.Config, quiet bool) (*logging.Logger, error) {
	var w io.Writer = os.Stderr
	if quiet && cfg.Logging.File == "" {
		w = io.Discard
	}
	return logging.New(w, logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Rotation: logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		},
	})
}

// loadConfig loads and validates the configuration, applying a --db override.
func loadConfig(dbDriver string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbDriver != "" {
		cfg.Database.Driver = dbDriver
		if errs := cfg.Validate(); len(errs) > 0 {
			return nil, config.ValidationErrors(errs)
		}
	}
	return cfg, nil
}

// profileResolver returns a function that reloads the configuration for a
// profile, keeping the global flags and the --db override that loadConfig
// applied.
func profileResolver(dbDriver string) func(string) (*config.Config, error) {
	overrides := make(map[string]any)
	flags := rootCmd.PersistentFlags()
	for flag, key := range map[string]string{"log-level": "logging.level", "log-format": "logging.format"} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}
	if dbDriver != "" {
		overrides["database.driver"] = dbDriver
	}
	return func(profile string) (*config.Config, error) {
		return config.LoadProfile(profile, overrides)
	}
}
