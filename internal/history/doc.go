// Package history persists comparison runs and their divergence intervals in
// SQLite so past results can be listed, inspected and pruned.
//
// Store opens the database in WAL mode with a busy timeout and retries writes
// that still hit SQLITE_BUSY with a short exponential backoff. The schema is
// versioned; a database created by an incompatible version is rejected with
// ErrSchemaMismatch rather than migrated in place.
package history
