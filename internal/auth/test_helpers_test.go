package auth

import (
	"database/sql"
	"testing"
	"time"

	"github.com/nerrad567/gymdesk/internal/infrastructure/database/dbtest"
)

// testDB creates a temporary SQLite database with the full schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbtest.Open(t).DB
}

// testHasher returns a hasher with minimal cost so tests stay fast.
func testHasher() *PasswordHasher {
	return NewPasswordHasher(HashParams{Time: 1, Memory: 1024, Threads: 1})
}

// seedTestUser inserts a user with password "test-password" and returns it.
func seedTestUser(t *testing.T, db *sql.DB, email string, role Role) *User {
	t.Helper()

	hash, err := testHasher().Hash("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Name:         email,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
	}
	if err := NewUserRepository(db).Create(t.Context(), user); err != nil {
		t.Fatalf("creating test user %s: %v", email, err)
	}
	return user
}

// seedTestRoutines inserts bare routine rows for assignment tests.
func seedTestRoutines(t *testing.T, db *sql.DB, ids ...string) {
	t.Helper()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range ids {
		if _, err := db.Exec(
			"INSERT INTO routines (id, name, created_at) VALUES (?, ?, ?)", id, id, now,
		); err != nil {
			t.Fatalf("seeding routine %s: %v", id, err)
		}
	}
}
