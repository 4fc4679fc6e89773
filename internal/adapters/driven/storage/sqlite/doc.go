// Package sqlite is the single-file persistence adapter. One database holds
// documents, chunks and their embeddings, conversations, feedback, the
// off-topic log, rate-limit events and scheduler state.
//
// It uses modernc.org/sqlite, a pure Go SQLite build, so the binary needs no
// CGO. Keyword search uses an FTS5 table that triggers keep in step with the
// chunks table. Vector search is a brute-force cosine scan over the stored
// embeddings, which is adequate for a municipal site of a few thousand chunks;
// larger deployments point the vector index at Qdrant instead.
//
// # Schema
//
// Versioned migrations live in migrations/ as .up.sql/.down.sql pairs. Each
// applied version is recorded in schema_migrations.
//
// # Data Location
//
// By default the database is stored at ~/.townhall/data/townhall.db.
//
// # Concurrency
//
// The store is safe for concurrent use. SQLite runs in WAL mode with a busy
// timeout, and every multi-statement write runs in a transaction.
package sqlite
