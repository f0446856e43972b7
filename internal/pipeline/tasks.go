package pipeline

import (
	"context"
	"os"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/migrate"
	"github.com/Iron-Ham/shortkeys/internal/server"
	"github.com/Iron-Ham/shortkeys/internal/store"
	"github.com/Iron-Ham/shortkeys/internal/store/memstore"
	"github.com/Iron-Ham/shortkeys/internal/store/mongostore"
	"github.com/Iron-Ham/shortkeys/internal/taskgraph"
	"github.com/Iron-Ham/shortkeys/internal/toolexec"
	"github.com/Iron-Ham/shortkeys/internal/upload"
	"github.com/Iron-Ham/shortkeys/internal/watch"
)

// StoreKey is the Context resource key of the store handle.
const StoreKey = "store"

// OpenStore opens the store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, profile string) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memstore.New(), nil
	case config.DriverMongo:
		return mongostore.Connect(ctx, cfg, profile)
	default:
		return nil, errors.NewValidationError("unknown database driver").WithField("database.driver").WithValue(cfg.Driver)
	}
}

// StoreFrom returns the store attached by the db task.
func StoreFrom(tc *taskgraph.Context) (store.Store, error) {
	v, ok := tc.Resource(StoreKey)
	if !ok {
		return nil, errors.ErrNoStore
	}
	s, ok := v.(store.Store)
	if !ok {
		return nil, errors.ErrNoStore
	}
	return s, nil
}

func (p *Project) connect(ctx context.Context, tc *taskgraph.Context) error {
	if _, ok := tc.Resource(StoreKey); ok {
		return nil
	}
	cfg := tc.Config().Database
	profile := tc.Profile()
	s, err := p.openStore(ctx, cfg, profile)
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	if _, stored := tc.Provide(StoreKey, s, s.Close); !stored {
		return s.Close(ctx)
	}
	tc.Logger.Info("connected to store",
		"driver", cfg.Driver, "database", cfg.DatabaseName(profile), "profile", profile)
	return nil
}

func (p *Project) defaultTool(ctx context.Context, tc *taskgraph.Context, name string, targets []string) error {
	tool, ok := tc.Config().Tasks.Tool(name)
	if !ok {
		tc.Logger.Warn("tool not configured, skipping", "tool", name)
		return nil
	}
	r := &toolexec.Runner{
		Env:    []string{config.EnvVar + "=" + tc.Profile()},
		Logger: tc.Logger,
		DryRun: tc.Args.DryRun,
	}
	return r.Run(ctx, name, tool, targets)
}

func (p *Project) defaultServe(ctx context.Context, tc *taskgraph.Context) error {
	cfg := tc.Config()
	if errs := cfg.ValidateServe(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}
	s, err := StoreFrom(tc)
	if err != nil {
		return err
	}
	if tc.Args.DryRun {
		tc.Logger.Info("would serve", "addr", cfg.Server.Addr)
		return nil
	}
	srv := server.New(cfg.Server, s,
		server.WithDebug(tc.Debug()),
		server.WithLogger(tc.Logger),
	)
	return srv.ListenAndServe(ctx)
}

func (p *Project) defaultWatch(ctx context.Context, tc *taskgraph.Context) error {
	assets := tc.Config().Assets
	var roots []string
	for _, root := range assets.WatchRoots {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			roots = append(roots, root)
		} else {
			tc.Logger.Warn("watch root missing, skipping", "root", root)
		}
	}
	if len(roots) == 0 || tc.Args.DryRun {
		tc.Logger.Info("nothing to watch")
		return nil
	}

	w, err := watch.New(assets.Watch, "", assets.Debounce(), tc.Logger)
	if err != nil {
		return err
	}
	return w.Run(ctx, roots, func(ctx context.Context, tasks []string) {
		p.rerun(ctx, tc, tasks)
	})
}

// rerun runs tasks as a fresh invocation sharing tc. Failures are logged;
// the watcher keeps going.
func (p *Project) rerun(ctx context.Context, tc *taskgraph.Context, tasks []string) {
	r := taskgraph.NewRunner(p.reg,
		taskgraph.WithBus(p.bus),
		taskgraph.WithLogger(tc.Logger),
		taskgraph.WithMaxParallel(tc.Config().Tasks.MaxParallel),
	)
	if _, err := r.Run(ctx, tc, tasks...); err != nil && ctx.Err() == nil {
		tc.Logger.Error("watch re-run failed", "tasks", tasks, "error", err)
	}
}

func (p *Project) bulkUpload(ctx context.Context, tc *taskgraph.Context) error {
	s, err := StoreFrom(tc)
	if err != nil {
		return err
	}
	dir := tc.Config().Assets.ShortcutsDir
	if tc.Args.DryRun {
		tc.Logger.Info("would upload shortcuts", "dir", dir)
		return nil
	}
	_, err = upload.New(s, tc.Logger).UploadDir(ctx, dir)
	return err
}

func (p *Project) migrateFavorites(ctx context.Context, tc *taskgraph.Context) error {
	s, err := StoreFrom(tc)
	if err != nil {
		return err
	}
	opts := tc.Config().Migration
	if tc.Args.DryRun {
		tc.Logger.Info("would migrate favorite counts", "mode", opts.Mode)
		return nil
	}
	res, err := migrate.FavoritesCount(ctx, s, migrate.Options{
		Mode:    opts.Mode,
		Workers: opts.Workers,
		Bus:     p.bus,
		Logger:  tc.Logger,
	})
	if err != nil {
		return err
	}
	tc.Logger.Info("favorite counts migrated",
		"users", res.Users, "pairs", res.Pairs, "written", res.Written,
		"failed", res.Failed, "dangling", res.Dangling)
	return nil
}
