// Package storage is gatebot's persistence layer.
//
// DB wraps database/sql with bound-parameter helpers for SQLite (modernc,
// default) and PostgreSQL (pgx). Queries are written with "?" placeholders
// and rebound per dialect. On top of DB sit three small stores: identities
// (users), offers and the append-only event log.
package storage
