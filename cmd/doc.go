// Package cmd provides the command-line interface for elm-factory.
//
// # Available Commands
//
//   - init: scaffold a new project
//   - dev: run the live-reloading dev server in front of the reactor
//   - build: compile hashed production assets and their manifests
//   - config: show or validate the effective configuration
//   - version: print build information
//
// # Command Examples
//
//	// Scaffold a project
//	elm-factory init my-app
//
//	// Serve on another port with a custom shell
//	elm-factory dev --port 3000 --template index.html
//
//	// Build minified assets served from a CDN path
//	elm-factory build --public-path /static/ --minify
//
// # Configuration Integration
//
// Commands read configuration from multiple sources in order of precedence:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables (FACTORY_*, e.g. FACTORY_DEV_PORT)
//  3. Configuration file (--config, FACTORY_CONFIG_FILE or .factory.yml)
//  4. Default values (lowest priority)
//
// # Error Handling
//
// Failures print the pipeline stage that failed and the compiler's
// diagnostics verbatim, and exit non-zero. The dev server reports rebuild
// failures in the console and the browser and keeps running.
package cmd
