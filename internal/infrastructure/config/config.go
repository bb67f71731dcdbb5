package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Environment names accepted in the top-level "environment" key.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Development fallbacks. They let a fresh checkout start without any secrets,
// are flagged at startup, and are refused outright when environment=production.
const (
	DevJWTSecret     = "gymdesk-development-secret-change-me-now"
	DevAdminPassword = "admin123"
)

// Config is the root configuration structure for Gym Desk.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Environment string          `yaml:"environment" env:"GYM_ENV"`
	Site        SiteConfig      `yaml:"site"`
	Database    DatabaseConfig  `yaml:"database"`
	API         APIConfig       `yaml:"api"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
	MQTT        MQTTConfig      `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig  `yaml:"influxdb"`
	Redis       RedisConfig     `yaml:"redis"`
	Logging     LoggingConfig   `yaml:"logging"`
	Security    SecurityConfig  `yaml:"security"`
	Payments    PaymentsConfig  `yaml:"payments"`
}

// SiteConfig contains gym-specific information.
type SiteConfig struct {
	Name     string `yaml:"name" env:"GYM_SITE_NAME"`
	Timezone string `yaml:"timezone" env:"GYM_SITE_TIMEZONE"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" env:"GYM_DATABASE_PATH"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host" env:"GYM_API_HOST"`
	Port     int              `yaml:"port" env:"GYM_API_PORT"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

func (a APIConfig) ReadTimeout() time.Duration  { return seconds(a.Timeouts.Read) }
func (a APIConfig) WriteTimeout() time.Duration { return seconds(a.Timeouts.Write) }
func (a APIConfig) IdleTimeout() time.Duration  { return seconds(a.Timeouts.Idle) }

// Addr is the listen address.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the live event feed.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// When enabled, domain events are published under TopicPrefix.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" env:"GYM_MQTT_ENABLED"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"GYM_MQTT_HOST"`
	Port     int    `yaml:"port" env:"GYM_MQTT_PORT"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"GYM_MQTT_USERNAME"`
	Password string `yaml:"password" env:"GYM_MQTT_PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"GYM_INFLUXDB_ENABLED"`
	URL           string `yaml:"url" env:"GYM_INFLUXDB_URL"`
	Token         string `yaml:"token" env:"GYM_INFLUXDB_TOKEN"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RedisConfig contains settings for the session revocation list.
// Without Redis, logout only discards the cookie on the client.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled" env:"GYM_REDIS_ENABLED"`
	Addr      string `yaml:"addr" env:"GYM_REDIS_ADDR"`
	Password  string `yaml:"password" env:"GYM_REDIS_PASSWORD"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level" env:"GYM_LOG_LEVEL"`
	Format string            `yaml:"format" env:"GYM_LOG_FORMAT"`
	Output string            `yaml:"output" env:"GYM_LOG_OUTPUT"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating log file settings.
type FileLoggingConfig struct {
	Path         string `yaml:"path" env:"GYM_LOG_FILE"`
	MaxAge       int    `yaml:"max_age"`       // days
	RotationTime int    `yaml:"rotation_time"` // hours
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	Cookie    CookieConfig    `yaml:"cookie"`
	Password  PasswordConfig  `yaml:"password"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// JWTConfig contains session token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret" env:"GYM_JWT_SECRET"`
	Algorithm      string `yaml:"algorithm" env:"GYM_JWT_ALGORITHM"`
	AccessTokenTTL int    `yaml:"access_token_ttl" env:"GYM_ACCESS_TOKEN_TTL"` // minutes
}

// CookieConfig contains session cookie settings.
type CookieConfig struct {
	Secure bool `yaml:"secure" env:"GYM_COOKIE_SECURE"`
}

// PasswordConfig contains Argon2id cost parameters for new digests.
type PasswordConfig struct {
	Time    uint32 `yaml:"time"`
	Memory  uint32 `yaml:"memory"` // KiB
	Threads uint8  `yaml:"threads"`
}

// BootstrapConfig describes the administrator account created on first start.
type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email" env:"GYM_ADMIN_EMAIL"`
	AdminPassword string `yaml:"admin_password" env:"GYM_ADMIN_PASSWORD"`
	AdminName     string `yaml:"admin_name" env:"GYM_ADMIN_NAME"`
	AdminQRCode   string `yaml:"admin_qr_code" env:"GYM_ADMIN_QR"`
}

// PaymentsConfig contains checkout settings.
type PaymentsConfig struct {
	Method string `yaml:"method"`
	NodeID int64  `yaml:"node_id" env:"GYM_PAYMENTS_NODE_ID"`
}

// Load builds the configuration in three layers: built-in defaults, then
// the YAML file at path, then GYM_* environment variables. Unknown YAML keys
// are rejected so a typo does not silently fall back to a default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides reads the GYM_* variables named in env tags. Unset
// variables keep the file values.
func applyEnvOverrides(cfg *Config) error {
	return cleanenv.ReadEnv(cfg)
}

func defaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Site:        SiteConfig{Name: "Gym Desk", Timezone: "UTC"},
		Database:    DatabaseConfig{Path: "./data/gymdesk.db", WALMode: true, BusyTimeout: 5},
		API: APIConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			Timeouts: APITimeoutConfig{Read: 30, Write: 30, Idle: 60},
		},
		WebSocket: WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		MQTT: MQTTConfig{
			Broker:      MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "gymdesk"},
			QoS:         1,
			TopicPrefix: "gymdesk",
			Reconnect:   MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60},
		},
		InfluxDB: InfluxDBConfig{Org: "gymdesk", Bucket: "gym", BatchSize: 100, FlushInterval: 10},
		Redis:    RedisConfig{Addr: "localhost:6379", KeyPrefix: "gymdesk:revoked:"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File:   FileLoggingConfig{Path: "./logs/gymdesk.log", MaxAge: 14, RotationTime: 24},
		},
		Security: SecurityConfig{
			JWT:      JWTConfig{Secret: DevJWTSecret, Algorithm: "HS256", AccessTokenTTL: 300},
			Password: PasswordConfig{Time: 3, Memory: 64 * 1024, Threads: 1},
			Bootstrap: BootstrapConfig{
				AdminEmail:    "admin@gym.com",
				AdminPassword: DevAdminPassword,
				AdminName:     "Administrator",
				AdminQRCode:   "admin-qr",
			},
		},
		Payments: PaymentsConfig{Method: "mock_stripe", NodeID: 1},
	}
}

// IsProduction reports whether the configuration targets a live deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// DevelopmentDefaults names the settings still on a development fallback.
func (c *Config) DevelopmentDefaults() []string {
	var flagged []string
	if c.Security.JWT.Secret == DevJWTSecret {
		flagged = append(flagged, "security.jwt.secret")
	}
	if c.Security.Bootstrap.AdminPassword == DevAdminPassword {
		flagged = append(flagged, "security.bootstrap.admin_password")
	}
	return flagged
}

// minJWTSecretLength is the shortest accepted signing key. A forged token
// grants admin access, so a weak key is a startup error.
const minJWTSecretLength = 32

// rule reports one configuration problem, or "" when the check passes.
type rule func(c *Config) string

var rules = []rule{
	func(c *Config) string {
		switch strings.ToLower(c.Environment) {
		case EnvDevelopment, EnvProduction:
			return ""
		}
		return "environment must be development or production"
	},
	func(c *Config) string {
		if tz := c.Site.Timezone; tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Sprintf("site.timezone %q is not a known zone", tz)
			}
		}
		return ""
	},
	func(c *Config) string {
		return unless(c.Database.Path != "", "database.path is required")
	},
	func(c *Config) string {
		return unless(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")
	},
	func(c *Config) string {
		return unless(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	},
	func(c *Config) string {
		return unless(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")
	},
	func(c *Config) string {
		return unless(!c.Redis.Enabled || c.Redis.Addr != "", "redis.addr is required when redis is enabled")
	},
	func(c *Config) string {
		switch secret := c.Security.JWT.Secret; {
		case secret == "":
			return "security.jwt.secret is required (set GYM_JWT_SECRET)"
		case len(secret) < minJWTSecretLength:
			return fmt.Sprintf("security.jwt.secret must be at least %d characters", minJWTSecretLength)
		case c.IsProduction() && secret == DevJWTSecret:
			return "security.jwt.secret is the development fallback; set GYM_JWT_SECRET"
		}
		return ""
	},
	func(c *Config) string {
		switch alg := c.Security.JWT.Algorithm; alg {
		case "HS256", "HS384", "HS512":
			return ""
		default:
			return fmt.Sprintf("security.jwt.algorithm %q is not supported (HS256, HS384, HS512)", alg)
		}
	},
	func(c *Config) string {
		return unless(c.Security.JWT.AccessTokenTTL > 0, "security.jwt.access_token_ttl must be positive")
	},
	func(c *Config) string {
		return unless(c.Security.Bootstrap.AdminEmail != "", "security.bootstrap.admin_email is required (set GYM_ADMIN_EMAIL)")
	},
	func(c *Config) string {
		return unless(!c.IsProduction() || c.Security.Bootstrap.AdminPassword != DevAdminPassword,
			"security.bootstrap.admin_password is the development default; set GYM_ADMIN_PASSWORD")
	},
	func(c *Config) string {
		return unless(c.Payments.NodeID >= 0 && c.Payments.NodeID <= 1023, "payments.node_id must be between 0 and 1023")
	},
}

func unless(ok bool, problem string) string {
	if ok {
		return ""
	}
	return problem
}

// Validate runs every rule and reports all failures together.
func (c *Config) Validate() error {
	var problems []string
	for _, r := range rules {
		if p := r(c); p != "" {
			problems = append(problems, p)
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AccessTokenTTL returns the session lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}

// Location returns the site timezone, or UTC when unset or unknown.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Site.Timezone); err == nil && c.Site.Timezone != "" {
		return loc
	}
	return time.UTC
}
