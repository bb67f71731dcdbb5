package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// freePort asks the kernel for an unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// writeConfig writes a minimal config for run() and points GYM_CONFIG at it.
func writeConfig(t *testing.T, dbPath string, port int) {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	configContent := fmt.Sprintf(`
site:
  name: Test Gym
  timezone: UTC

database:
  path: %q
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

influxdb:
  enabled: false

redis:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: %d
  timeouts:
    read: 30
    write: 60
    idle: 120

security:
  jwt:
    secret: "test-secret-key-at-least-32-characters-long"
    algorithm: HS256
    access_token_ttl: 60
  password:
    time: 1
    memory: 1024
    threads: 1
  bootstrap:
    admin_email: owner@example.com
    admin_password: initial-pass
`, dbPath, port)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GYM_CONFIG", configPath)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GYM_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies config validation stops startup.
func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, "", freePort(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_StartupSeedsAdminAndShutsDown runs the server until the context
// expires and checks the bootstrap admin was created exactly once.
func TestRun_StartupSeedsAdminAndShutsDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	writeConfig(t, dbPath, freePort(t))

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		err := run(ctx)
		cancel()
		if err != nil {
			t.Fatalf("run() #%d error: %v", i+1, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM users WHERE email = ? AND role = 'admin'", "owner@example.com",
	).Scan(&count); err != nil {
		t.Fatalf("count admins: %v", err)
	}
	if count != 1 {
		t.Errorf("admins = %d, want 1", count)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GYM_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GYM_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestLoadDotEnv_Missing verifies a missing .env is not an error.
func TestLoadDotEnv_Missing(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := loadDotEnv(); err != nil {
		t.Errorf("loadDotEnv() error = %v, want nil", err)
	}
}

// TestLoadDotEnv_DoesNotOverride verifies the environment wins over .env.
func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GYM_SITE_NAME=FromFile\nGYM_TEST_ONLY=set\n"), 0600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("GYM_SITE_NAME", "FromEnv")
	t.Setenv("GYM_TEST_ONLY", "")
	os.Unsetenv("GYM_TEST_ONLY")

	if err := loadDotEnv(); err != nil {
		t.Fatalf("loadDotEnv() error: %v", err)
	}
	if got := os.Getenv("GYM_SITE_NAME"); got != "FromEnv" {
		t.Errorf("GYM_SITE_NAME = %q, want FromEnv", got)
	}
	if got := os.Getenv("GYM_TEST_ONLY"); got != "set" {
		t.Errorf("GYM_TEST_ONLY = %q, want set", got)
	}
}
