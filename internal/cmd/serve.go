package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/pipeline"
	"github.com/Iron-Ham/shortkeys/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the HTTP server alone, without linting or watching. The store is
selected by the active profile; --db memory serves from an empty in-memory
store.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveFlags struct {
	debug bool
	addr  string
	db    string
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveFlags.debug, "debug", false, "mount the profiler under /debug")
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().StringVar(&serveFlags.db, "db", "", "store driver override: mongo or memory")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(serveFlags.db)
	if err != nil {
		return err
	}
	if serveFlags.addr != "" {
		cfg.Server.Addr = serveFlags.addr
	}
	if errs := cfg.ValidateServe(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}

	logger, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := cmd.Context()
	st, err := pipeline.OpenStore(ctx, cfg.Database, cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close(context.Background()) }()

	srv := server.New(cfg.Server, st, server.WithDebug(serveFlags.debug), server.WithLogger(logger))
	return srv.ListenAndServe(ctx)
}
