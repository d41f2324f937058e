// Package store persists BankRecords in a relational database.
//
// The bank table is append-only: Insert always adds a row with a fresh,
// strictly increasing id and never deduplicates by content. Deduplication
// is opt-in through InsertOnce, which claims a document fingerprint in the
// ingested_documents table in the same transaction as the insert.
//
// Two backends implement Store:
//   - SQLite (modernc.org/sqlite, pure Go), the default
//   - PostgreSQL (pgx connection pool)
//
// Both serialize writes inside the process so ids are handed out in call
// order and concurrent callers never interleave a dedup claim with its insert.
package store
