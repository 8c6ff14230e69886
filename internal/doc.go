// Package internal contains the core implementation packages for mammoth.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality of the mammoth host. The one public surface
// is the top-level module package, which plugin authors compile against.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - config: TOML configuration loading, decode hooks, and validation
//   - errors: Module error taxonomy, severity vocabulary, event collector
//   - loader: Dynamic library loading, symbol resolution, version checks
//   - registry: Name-keyed ownership of loaded module instances
//   - hosts: Per-host effective module sets and hostname resolution
//   - server: Per-port HTTP listeners and request dispatch into modules
//   - logging: Structured logging with console and file sinks
//   - watcher: File system monitoring for restart-required notices
//   - version: Binary build information
//
// # Startup Ordering
//
// The packages hand off to each other in a fixed sequence:
//
//   - Config parses and validates the declared modules and hosts
//   - Loader runs the load pipeline once, sequentially, per declared module
//   - Registry takes ownership of every module that survived loading
//   - Hosts binds each declared host to its effective module list
//   - Server opens one listener per port and dispatches into bound hosts
//
// Everything after that point is read-only: the registry, the bound hosts,
// and the resolver tables are never written once the first listener
// accepts traffic, which is why request dispatch takes no locks.
//
// For detailed documentation, see the individual package documentation.
package internal
