// Package dbtest opens throwaway databases with the full schema applied.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gymdesk/internal/infrastructure/database"
	_ "github.com/nerrad567/gymdesk/migrations" // registers the embedded schema
)

// Open creates a migrated SQLite database in the test's temp directory.
// It is closed automatically when the test finishes.
func Open(tb testing.TB) *database.DB {
	tb.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(tb.TempDir(), "gymdesk-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		tb.Fatalf("opening test database: %v", err)
	}
	tb.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		tb.Fatalf("migrating test database: %v", err)
	}
	return db
}
