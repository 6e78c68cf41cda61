// Package sqlite provides the SQLite-backed graph registry.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database holds:
//
//   - graphs: one row per knowledge graph with its title, query and latest status
//   - graph_status_history: every accepted status change, oldest first
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// Applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.kgraph/data/graphs.db
//
// # Thread Safety
//
// All operations are thread-safe. Status changes run in a transaction so the
// monotonic check and the write cannot interleave with another writer.
package sqlite
