package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum and is not the development fallback.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  name: "Iron Temple"
  timezone: "Europe/London"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
    access_token_ttl: 60
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.Name != "Iron Temple" {
		t.Errorf("Site.Name = %q, want %q", cfg.Site.Name, "Iron Temple")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if got := cfg.AccessTokenTTL(); got != time.Hour {
		t.Errorf("AccessTokenTTL() = %v, want 1h", got)
	}
	// Unset keys keep their defaults.
	if cfg.Security.JWT.Algorithm != "HS256" {
		t.Errorf("Security.JWT.Algorithm = %q, want HS256", cfg.Security.JWT.Algorithm)
	}
	if cfg.Location().String() != "Europe/London" {
		t.Errorf("Location() = %v, want Europe/London", cfg.Location())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: ""
api:
  port: 8080
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty database.path, got nil")
	}
}

func TestLoad_ProductionRefusesDevelopmentDefaults(t *testing.T) {
	configPath := writeConfig(t, `
environment: production
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for production with development secrets, got nil")
	}
	for _, want := range []string{"security.jwt.secret", "security.bootstrap.admin_password"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoad_ProductionWithEnvSecrets(t *testing.T) {
	configPath := writeConfig(t, `
environment: production
`)
	t.Setenv("GYM_JWT_SECRET", validJWTSecret)
	t.Setenv("GYM_ADMIN_PASSWORD", "a-real-admin-password")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
	if flagged := cfg.DevelopmentDefaults(); len(flagged) != 0 {
		t.Errorf("DevelopmentDefaults() = %v, want none", flagged)
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: true},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
		{name: "unsupported algorithm", mutate: func(c *Config) { c.Security.JWT.Algorithm = "RS256" }, wantErr: true},
		{name: "alg none", mutate: func(c *Config) { c.Security.JWT.Algorithm = "none" }, wantErr: true},
		{name: "HS512 accepted", mutate: func(c *Config) { c.Security.JWT.Algorithm = "HS512" }},
		{name: "zero TTL", mutate: func(c *Config) { c.Security.JWT.AccessTokenTTL = 0 }, wantErr: true},
		{name: "missing admin email", mutate: func(c *Config) { c.Security.Bootstrap.AdminEmail = "" }, wantErr: true},
		{name: "unknown environment", mutate: func(c *Config) { c.Environment = "staging" }, wantErr: true},
		{name: "unknown timezone", mutate: func(c *Config) { c.Site.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{name: "redis enabled without addr", mutate: func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, wantErr: true},
		{name: "snowflake node out of range", mutate: func(c *Config) { c.Payments.NodeID = 1024 }, wantErr: true},
		{name: "dev defaults allowed in development", mutate: func(c *Config) { c.Security.JWT.Secret = DevJWTSecret }},
		{
			name: "dev secret refused in production",
			mutate: func(c *Config) {
				c.Environment = EnvProduction
				c.Security.Bootstrap.AdminPassword = "not-the-default"
				c.Security.JWT.Secret = DevJWTSecret
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.API.Port = 0
	cfg.Database.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "api.port") || !strings.Contains(err.Error(), "database.path") {
		t.Errorf("Validate() = %q, want both api.port and database.path reported", err)
	}
}

func TestAPIConfig_Durations(t *testing.T) {
	api := APIConfig{Host: "127.0.0.1", Port: 9090, Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60}}

	if got := api.ReadTimeout(); got != 30*time.Second {
		t.Errorf("ReadTimeout() = %v, want 30s", got)
	}
	if got := api.WriteTimeout(); got != 45*time.Second {
		t.Errorf("WriteTimeout() = %v, want 45s", got)
	}
	if got := api.IdleTimeout(); got != time.Minute {
		t.Errorf("IdleTimeout() = %v, want 1m", got)
	}
	if got := api.Addr(); got != "127.0.0.1:9090" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	configPath := writeConfig(t, `
databse:
  path: "/tmp/typo.db"
`)

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "databse") {
		t.Errorf("Load() error = %v, want the unknown key named", err)
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 8080 || cfg.Database.Path == "" {
		t.Errorf("defaults not applied: port=%d path=%q", cfg.API.Port, cfg.Database.Path)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GYM_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GYM_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GYM_MQTT_USERNAME", "testuser")
	t.Setenv("GYM_MQTT_ENABLED", "true")
	t.Setenv("GYM_API_PORT", "9090")
	t.Setenv("GYM_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GYM_JWT_SECRET", "jwt-secret")
	t.Setenv("GYM_JWT_ALGORITHM", "HS384")
	t.Setenv("GYM_ACCESS_TOKEN_TTL", "45")
	t.Setenv("GYM_ADMIN_EMAIL", "owner@gym.test")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
	if cfg.Security.JWT.Algorithm != "HS384" {
		t.Errorf("Security.JWT.Algorithm = %q, want HS384", cfg.Security.JWT.Algorithm)
	}
	if cfg.Security.JWT.AccessTokenTTL != 45 {
		t.Errorf("Security.JWT.AccessTokenTTL = %d, want 45", cfg.Security.JWT.AccessTokenTTL)
	}
	if cfg.Security.Bootstrap.AdminEmail != "owner@gym.test" {
		t.Errorf("Security.Bootstrap.AdminEmail = %q, want owner@gym.test", cfg.Security.Bootstrap.AdminEmail)
	}
	// Keys without a variable keep their values.
	if cfg.Site.Name != "Gym Desk" {
		t.Errorf("Site.Name = %q, want default", cfg.Site.Name)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Security.JWT.AccessTokenTTL != 300 {
		t.Errorf("defaultConfig AccessTokenTTL = %d, want 300", cfg.Security.JWT.AccessTokenTTL)
	}
	if cfg.IsProduction() {
		t.Error("defaultConfig should target development")
	}
	if got := cfg.DevelopmentDefaults(); len(got) != 2 {
		t.Errorf("DevelopmentDefaults() = %v, want both fallbacks flagged", got)
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	// Isolate from any GYM_* variables in the developer's shell.
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "GYM_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}

	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(configs/config.yaml) error = %v", err)
	}
	if cfg.IsProduction() {
		t.Error("shipped config should target development")
	}
	if cfg.Security.JWT.Secret != DevJWTSecret {
		t.Error("shipped config should rely on the development secret fallback")
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled || cfg.Redis.Enabled {
		t.Error("optional integrations should be off by default")
	}
}
