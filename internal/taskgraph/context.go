package taskgraph

import (
	"context"
	"sync"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/logging"
)

// Args carries command-line inputs to task bodies.
type Args struct {
	// TestFiles overrides the server test targets.
	TestFiles []string
	// DryRun asks tool-running tasks to log their command instead of running it.
	DryRun bool
}

// Context is the state shared by every task body of a run: the active
// profile, the configuration resolved for it, and resources such as the
// store connection that one task opens and later tasks use. It outlives a
// single Runner.Run so the watch task can re-run tasks against the same
// resources; call Close once the process is done with it. Safe for
// concurrent use.
type Context struct {
	Logger *logging.Logger
	Args   Args
	// Resolve loads the configuration for a profile. SetProfile calls it when
	// the profile changes. When nil, only the profile name changes.
	Resolve func(profile string) (*config.Config, error)

	mu        sync.Mutex
	cfg       *config.Config
	profile   string
	debug     bool
	resources map[string]any
	closers   []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// NewContext creates a Context with the profile taken from cfg.Env.
func NewContext(cfg *config.Config, logger *logging.Logger) *Context {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Context{
		cfg:       cfg,
		Logger:    logger,
		profile:   config.NormalizeProfile(cfg.Env),
		resources: make(map[string]any),
	}
}

// Profile returns the active configuration profile.
func (c *Context) Profile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// Config returns the configuration of the active profile.
func (c *Context) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetProfile switches the active profile and, when Resolve is set, the
// configuration with it. Invalid names are rejected. Resources already open
// keep the settings they were opened with.
func (c *Context) SetProfile(profile string) error {
	if !config.IsValidProfile(profile) {
		return errors.NewValidationError("unknown profile").WithField("env").WithValue(profile)
	}
	if c.Profile() == profile {
		return nil
	}

	var cfg *config.Config
	if c.Resolve != nil {
		var err error
		if cfg, err = c.Resolve(profile); err != nil {
			return errors.Wrapf(err, "failed to load %s configuration", profile)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg == nil {
		copied := *c.cfg
		cfg = &copied
	}
	cfg.Env = profile
	if len(c.resources) > 0 {
		c.Logger.Warn("profile changed with resources open", "profile", profile, "from", c.profile)
	}
	c.cfg = cfg
	c.profile = profile
	return nil
}

// Debug reports whether debug mode was enabled for this run.
func (c *Context) Debug() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debug
}

// SetDebug enables or disables debug mode.
func (c *Context) SetDebug(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debug = on
}

// Resource returns the resource stored under key.
func (c *Context) Resource(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.resources[key]
	return v, ok
}

// Provide stores a resource under key unless one is already there, and
// returns whichever value is stored. When v is stored and closeFn is non-nil,
// closeFn runs on Close.
func (c *Context) Provide(key string, v any, closeFn func(context.Context) error) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.resources[key]; ok {
		return existing, false
	}
	c.resources[key] = v
	if closeFn != nil {
		c.closers = append(c.closers, closer{name: key, fn: closeFn})
	}
	return v, true
}

// Close releases resources in reverse order of registration and clears them.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.resources = make(map[string]any)
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(ctx); err != nil {
			errs = append(errs, errors.Wrapf(err, "close %s", closers[i].name))
		}
	}
	return errors.Join(errs...)
}
