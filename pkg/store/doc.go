// Package store provides the durable record store for jobs, tokens, and
// the rotation cursor.
//
// This package includes:
//   - Store interface consumed by the scheduler, engine, poller, and sweep
//   - GormStore, a GORM-backed implementation (SQLite or PostgreSQL)
//   - connection pool tuning helpers
package store
