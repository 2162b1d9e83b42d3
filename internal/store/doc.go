// Package store persists the controller's debuggees and breakpoints.
//
// # Architecture
//
// Store is the interface the controller depends on. Two implementations
// exist:
//
//   - SQLiteStore: modernc.org/sqlite, WAL mode, schema created on open
//   - MemoryStore: in-memory maps, used by tests and by the controller's
//     --memory flag
//
// # Data Models
//
//   - Debuggee: one registered application, unique by (project, uniquifier)
//   - breakpoint.Breakpoint: stored per debuggee as a JSON document, with
//     its id, final flag and creation time kept in columns for querying
//
// # Errors
//
// Lookups of missing rows return ErrNotFound. Creating a breakpoint whose
// ID already exists returns ErrDuplicateBreakpoint.
package store
