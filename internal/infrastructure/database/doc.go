// Package database owns the SQLite file: connection pragmas, a single-writer
// pool, versioned migrations and transaction helpers.
//
// Migration files live in MigrationsFS as pairs named
// YYYYMMDD_HHMMSS_description.up.sql and .down.sql. Each applies in its own
// transaction and is recorded in schema_migrations.
package database
