// Package store provides SQLite-backed persistence for sessions, comments,
// and processing jobs. All writes go through the single daemon process; the
// database runs in WAL mode with foreign keys enforced.
package store
