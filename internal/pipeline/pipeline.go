package pipeline

import (
	"context"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/event"
	"github.com/Iron-Ham/shortkeys/internal/store"
	"github.com/Iron-Ham/shortkeys/internal/taskgraph"
)

// ToolFunc runs the external tool configured under name. targets replace the
// configured targets when non-empty.
type ToolFunc func(ctx context.Context, tc *taskgraph.Context, name string, targets []string) error

// StoreOpener opens the store for profile.
type StoreOpener func(ctx context.Context, cfg config.DatabaseConfig, profile string) (store.Store, error)

// Project holds the collaborators the project tasks call into.
type Project struct {
	reg       *taskgraph.Registry
	bus       *event.Bus
	runTool   ToolFunc
	openStore StoreOpener
	serve     taskgraph.Func
	watch     taskgraph.Func
}

// Option configures a Project.
type Option func(*Project)

// WithBus publishes events from tasks and watch re-runs on bus.
func WithBus(bus *event.Bus) Option {
	return func(p *Project) { p.bus = bus }
}

// WithToolFunc replaces the external tool runner.
func WithToolFunc(fn ToolFunc) Option {
	return func(p *Project) { p.runTool = fn }
}

// WithStoreOpener replaces how the db task opens the store.
func WithStoreOpener(fn StoreOpener) Option {
	return func(p *Project) { p.openStore = fn }
}

// WithServe replaces the body of the serve task.
func WithServe(fn taskgraph.Func) Option {
	return func(p *Project) { p.serve = fn }
}

// WithWatch replaces the body of the watch task.
func WithWatch(fn taskgraph.Func) Option {
	return func(p *Project) { p.watch = fn }
}

// Register adds the project tasks to reg and validates the graph.
func Register(reg *taskgraph.Registry, opts ...Option) (*Project, error) {
	p := &Project{reg: reg}
	p.runTool = p.defaultTool
	p.openStore = OpenStore
	p.serve = p.defaultServe
	p.watch = p.defaultWatch
	for _, opt := range opts {
		opt(p)
	}

	for _, t := range p.tasks() {
		if err := reg.Add(t); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewRegistry returns a registry holding the project tasks.
func NewRegistry(opts ...Option) (*taskgraph.Registry, *Project, error) {
	reg := taskgraph.NewRegistry()
	p, err := Register(reg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return reg, p, nil
}

func seq(names ...string) []taskgraph.Step {
	steps := make([]taskgraph.Step, len(names))
	for i, n := range names {
		steps[i] = taskgraph.Step{n}
	}
	return steps
}

func group(names ...string) taskgraph.Step {
	return taskgraph.Step(names)
}

func (p *Project) tasks() []taskgraph.Task {
	tool := func(name, desc, toolName string, steps ...taskgraph.Step) taskgraph.Task {
		return taskgraph.Task{
			Name:        name,
			Description: desc,
			Steps:       steps,
			Run: func(ctx context.Context, tc *taskgraph.Context) error {
				return p.runTool(ctx, tc, toolName, nil)
			},
		}
	}

	return []taskgraph.Task{
		p.envTask("env:dev", config.ProfileDevelopment),
		p.envTask("env:test", config.ProfileTest),
		p.envTask("env:prod", config.ProfileProduction),
		{Name: "db", Description: "Connect to the document store", Run: p.connect},
		{Name: "debug:enable", Hidden: true, Run: enableDebug},

		tool("styles:less", "Compile LESS stylesheets", "less"),
		tool("styles:sass", "Compile SASS stylesheets", "sass"),
		tool("lint:css", "Lint CSS", "csslint"),
		tool("lint:js", "Lint client JavaScript", "jshint"),
		tool("minify:js", "Bundle and minify client JavaScript", "uglify"),
		tool("minify:css", "Bundle and minify CSS", "cssmin"),
		tool("test:client", "Run client tests", "karma", taskgraph.Step{"env:test"}),
		{
			Name:        "test:server",
			Description: "Run server tests",
			Steps:       seq("env:test", "db"),
			Run: func(ctx context.Context, tc *taskgraph.Context) error {
				return p.runTool(ctx, tc, "servertest", tc.Args.TestFiles)
			},
		},
		tool("test:e2e", "Run end-to-end tests", "protractor"),
		tool("webdriver-update", "Update the webdriver binaries", "webdriver"),

		{Name: "serve", Description: "Run the HTTP server", Steps: seq("db"), Run: p.serve},
		{Name: "watch", Description: "Re-run tasks when assets change", Run: p.watch},

		{
			Name:        "lint",
			Description: "Compile styles, then lint CSS and JavaScript",
			Steps:       append(seq("styles:less", "styles:sass"), group("lint:css", "lint:js")),
		},
		{
			Name:        "build",
			Description: "Lint and minify assets for development",
			Steps:       append(seq("env:dev", "lint"), group("minify:js", "minify:css")),
		},
		{
			Name:        "test",
			Description: "Run client and server tests",
			Steps:       seq("test:client", "test:server"),
		},
		{
			Name:        "default",
			Description: "Lint, then serve and watch in development",
			Steps:       append(seq("env:dev", "lint"), group("serve", "watch")),
		},
		{
			Name:        "debug",
			Description: "Like default, with the profiler and debug logging",
			Steps:       append(seq("env:dev", "debug:enable", "lint"), group("serve", "watch")),
		},
		{
			Name:        "prod",
			Description: "Build, then serve and watch",
			Steps:       append(seq("build", "lint"), group("serve", "watch")),
		},
		{
			Name:        "bulk-upload",
			Description: "Upload shortcut definitions to the production store",
			Steps:       seq("env:prod", "db"),
			Run:         p.bulkUpload,
		},
		{
			Name:        "migrate-favorites",
			Description: "Repair shortcut favorite counts",
			Steps:       seq("db"),
			Run:         p.migrateFavorites,
		},
	}
}

func (p *Project) envTask(name, profile string) taskgraph.Task {
	return taskgraph.Task{
		Name:        name,
		Description: "Use the " + profile + " profile",
		Run: func(_ context.Context, tc *taskgraph.Context) error {
			if err := tc.SetProfile(profile); err != nil {
				return err
			}
			tc.Logger.Debug("profile selected", "profile", profile)
			return nil
		},
	}
}

func enableDebug(_ context.Context, tc *taskgraph.Context) error {
	tc.SetDebug(true)
	return nil
}
