// Package internal contains the implementation packages of elm-factory.
//
// # Package Organization
//
//   - build: the two-stage pipeline. Elm compilation, asset path rewriting,
//     content hashing, manifests and atomic output writes
//   - config: viper-backed configuration with defaults and validation
//   - errors: typed errors carrying the failing stage and compiler output
//   - livereload: WebSocket server that tells browsers to reload or swap CSS
//   - logging: structured logging on slog
//   - middleware: HTTP middleware for the dev server
//   - reactor: supervises the elm reactor child process
//   - resolver: finds the local modules an Elm entry point imports
//   - scaffolding: project templates written by init
//   - server: the dev proxy, HTML shell and script injection
//   - services: the init, dev and build workflows behind the CLI
//   - version: build information
//   - watcher: rebuilds an entry point when its source files change
//
// # Data Flow
//
// In dev mode a watcher per entry point resolves the entry's dependency
// set, rebuilds through the build orchestrator into a scratch directory and
// notifies the livereload server. The proxy serves the scratch assets and
// forwards everything else to the reactor. The build command runs the same
// orchestrator once into the output directory.
package internal
