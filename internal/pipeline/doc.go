// Package pipeline defines the shortkeys project tasks: asset compilation,
// linting, minification, tests, the development server and watcher, and the
// data maintenance tasks that run against the document store.
//
// # Task graph
//
//	lint    = styles:less, styles:sass, [lint:css, lint:js]
//	build   = env:dev, lint, [minify:js, minify:css]
//	test    = test:client, test:server
//	default = env:dev, lint, [serve, watch]
//	debug   = env:dev, debug:enable, lint, [serve, watch]
//	prod    = build, lint, [serve, watch]
//
// Bracketed groups run concurrently. Every task runs at most once per run,
// so prod lints once even though build also depends on lint.
//
// # Store handle
//
// The db task opens the store for the profile active at that moment and
// attaches it to the run's [taskgraph.Context] under [StoreKey]. Tasks that
// need it list db as a prerequisite and fetch it with [StoreFrom].
package pipeline
