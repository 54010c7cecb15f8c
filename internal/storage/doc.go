// Package storage persists users, messages, jobs, the activity ledger and
// the delivery dedup ledger.
//
// One SQL implementation serves both supported drivers:
//   - "sqlite": pure-Go SQLite file (modernc.org/sqlite), the default
//   - "postgres": PostgreSQL through pgx's database/sql adapter
//
// Queries are built with squirrel and scanned with sqlx. Timestamps are
// stored as unix milliseconds so the same statements run on both dialects.
package storage
