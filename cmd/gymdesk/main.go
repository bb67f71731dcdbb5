// Command gymdesk serves the gym back-office, the member portal, the
// check-in kiosk and the JSON API from one SQLite-backed process.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	_ "github.com/nerrad567/gymdesk/migrations"

	"github.com/nerrad567/gymdesk/internal/api"
	"github.com/nerrad567/gymdesk/internal/attendance"
	"github.com/nerrad567/gymdesk/internal/audit"
	"github.com/nerrad567/gymdesk/internal/auth"
	"github.com/nerrad567/gymdesk/internal/dashboard"
	"github.com/nerrad567/gymdesk/internal/events"
	"github.com/nerrad567/gymdesk/internal/infrastructure/cache"
	"github.com/nerrad567/gymdesk/internal/infrastructure/config"
	"github.com/nerrad567/gymdesk/internal/infrastructure/database"
	"github.com/nerrad567/gymdesk/internal/infrastructure/influxdb"
	"github.com/nerrad567/gymdesk/internal/infrastructure/logging"
	"github.com/nerrad567/gymdesk/internal/infrastructure/mqtt"
	"github.com/nerrad567/gymdesk/internal/membership"
	"github.com/nerrad567/gymdesk/internal/routine"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cleanup runs registered shutdown steps in reverse order.
type cleanup struct {
	log   *logging.Logger
	steps []func()
}

func (c *cleanup) add(name string, close func() error) {
	c.steps = append(c.steps, func() {
		c.log.Info("closing " + name)
		if err := close(); err != nil {
			c.log.Error("error closing "+name, "error", err)
		}
	})
}

func (c *cleanup) run() {
	for i := len(c.steps) - 1; i >= 0; i-- {
		c.steps[i]()
	}
}

// integrations holds the optional outbound connections. Disabled ones are nil.
type integrations struct {
	redis  *redis.Client
	mqtt   *mqtt.Client
	influx *influxdb.Client
}

// run wires the process together and blocks until ctx is cancelled. It
// returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gym Desk", "version", version, "commit", commit, "build_date", date)

	if err := loadDotEnv(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "environment", cfg.Environment, "level", cfg.Logging.Level)
	if !cfg.IsProduction() {
		for _, setting := range cfg.DevelopmentDefaults() {
			log.Warn("development default in use", "setting", setting)
		}
	}

	closers := &cleanup{log: log}
	defer closers.run()

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	closers.add("database", db.Close)
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	bus := events.NewBus(events.DefaultBufferSize, log.With("component", "events").Logger)
	ext, err := connectIntegrations(ctx, cfg, log, bus, closers)
	if err != nil {
		return err
	}

	deps, err := buildDeps(ctx, cfg, log, db, bus, ext)
	if err != nil {
		return err
	}
	hub := deps.ExternalHub
	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Workers stop with workCtx; the bus drains what it already holds.
	workCtx, stopWorkers := context.WithCancel(ctx)
	go hub.Run(workCtx)
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		bus.Run(workCtx)
	}()
	closers.add("event bus", func() error {
		stopWorkers()
		<-busDone
		return nil
	})

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	closers.add("API server", srv.Close)

	if err := healthCheck(ctx, db, srv, ext); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("ready, waiting for shutdown signal", "address", cfg.API.Addr())

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// connectIntegrations dials Redis, MQTT and InfluxDB when enabled and
// registers the brokers as event sinks.
func connectIntegrations(ctx context.Context, cfg *config.Config, log *logging.Logger, bus *events.Bus, closers *cleanup) (integrations, error) {
	var ext integrations
	var err error

	if cfg.Redis.Enabled {
		if ext.redis, err = cache.Connect(ctx, cfg.Redis); err != nil {
			return ext, fmt.Errorf("connecting to Redis: %w", err)
		}
		closers.add("Redis", ext.redis.Close)
		log.Info("Redis connected, logout revokes tokens", "addr", cfg.Redis.Addr)
	} else {
		log.Info("Redis disabled, logout only clears the cookie")
	}

	if cfg.MQTT.Enabled {
		if ext.mqtt, err = mqtt.Connect(cfg.MQTT); err != nil {
			return ext, fmt.Errorf("connecting to MQTT: %w", err)
		}
		closers.add("MQTT", ext.mqtt.Close)
		ext.mqtt.SetLogger(log.With("component", "mqtt"))
		bus.AddSink("mqtt", events.NewMQTTSink(ext.mqtt))
		log.Info("MQTT connected", "host", cfg.MQTT.Broker.Host, "port", cfg.MQTT.Broker.Port)
	}

	if cfg.InfluxDB.Enabled {
		if ext.influx, err = influxdb.Connect(ctx, cfg.InfluxDB); err != nil {
			return ext, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		closers.add("InfluxDB", ext.influx.Close)
		ext.influx.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
		bus.AddSink("influxdb", events.NewInfluxSink(ext.influx))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}
	return ext, nil
}

// buildDeps creates the repositories and services and seeds the bootstrap
// admin.
func buildDeps(ctx context.Context, cfg *config.Config, log *logging.Logger, db *database.DB, bus *events.Bus, ext integrations) (api.Deps, error) {
	loc := cfg.Location()
	users := auth.NewUserRepository(db.DB)

	hasher := auth.NewPasswordHasher(auth.HashParams{
		Time:    cfg.Security.Password.Time,
		Memory:  cfg.Security.Password.Memory,
		Threads: cfg.Security.Password.Threads,
	})
	tokens, err := auth.NewTokenService(cfg.Security.JWT.Secret, cfg.Security.JWT.Algorithm, cfg.AccessTokenTTL())
	if err != nil {
		return api.Deps{}, fmt.Errorf("creating token service: %w", err)
	}
	checkout, err := membership.NewCheckout(db.DB, cfg.Payments.NodeID, cfg.Payments.Method, bus)
	if err != nil {
		return api.Deps{}, fmt.Errorf("creating checkout: %w", err)
	}

	var revoked auth.RevocationList
	if ext.redis != nil {
		revoked = auth.NewRedisRevocationList(ext.redis, cfg.Redis.KeyPrefix)
	}

	boot := cfg.Security.Bootstrap
	if _, err := auth.SeedAdmin(ctx, users, hasher, auth.AdminSeed{
		Name:     boot.AdminName,
		Email:    boot.AdminEmail,
		Password: boot.AdminPassword,
		QRCode:   boot.AdminQRCode,
	}, log.With("component", "bootstrap").Logger); err != nil {
		return api.Deps{}, fmt.Errorf("seeding admin: %w", err)
	}

	// The hub is an event sink as well as the live feed, so it exists
	// before the server does.
	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	bus.AddSink("websocket", hub)

	return api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Security:      cfg.Security,
		Logger:        log,
		DB:            db,
		Users:         users,
		Access:        auth.NewRoutineAccessRepository(db.DB),
		Hasher:        hasher,
		Tokens:        tokens,
		Resolver:      auth.NewResolver(tokens, users, revoked, log.With("component", "auth").Logger),
		Routines:      routine.NewRepository(db.DB),
		Plans:         membership.NewPlanRepository(db.DB),
		Subscriptions: membership.NewSubscriptionRepository(db.DB),
		Checkout:      checkout,
		Attendance:    attendance.NewService(db.DB, users, bus, loc),
		Dashboard:     dashboard.NewService(db.Sqlx(), loc),
		Audit:         audit.NewSQLiteRepository(db.DB),
		Events:        bus,
		MQTT:          ext.mqtt,
		ExternalHub:   hub,
		Location:      loc,
		Version:       version,
	}, nil
}

// getConfigPath honours GYM_CONFIG, falling back to defaultConfigPath.
func getConfigPath() string {
	if path := os.Getenv("GYM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadDotEnv loads .env from the working directory if there is one.
// Variables already set in the environment win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

type probe struct {
	name  string
	check func(context.Context) error
}

// healthCheck probes every live connection and returns the first failure.
func healthCheck(ctx context.Context, db *database.DB, srv *api.Server, ext integrations) error {
	probes := []probe{{"database", db.HealthCheck}, {"api", srv.HealthCheck}}
	if ext.redis != nil {
		probes = append(probes, probe{"redis", func(ctx context.Context) error { return cache.HealthCheck(ctx, ext.redis) }})
	}
	if ext.mqtt != nil {
		probes = append(probes, probe{"mqtt", ext.mqtt.HealthCheck})
	}
	if ext.influx != nil {
		probes = append(probes, probe{"influxdb", ext.influx.HealthCheck})
	}

	for _, p := range probes {
		if err := p.check(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return nil
}
