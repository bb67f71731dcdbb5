package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gymdesk/internal/attendance"
	"github.com/nerrad567/gymdesk/internal/audit"
	"github.com/nerrad567/gymdesk/internal/auth"
	"github.com/nerrad567/gymdesk/internal/dashboard"
	"github.com/nerrad567/gymdesk/internal/events"
	"github.com/nerrad567/gymdesk/internal/infrastructure/config"
	"github.com/nerrad567/gymdesk/internal/infrastructure/database"
	"github.com/nerrad567/gymdesk/internal/infrastructure/logging"
	"github.com/nerrad567/gymdesk/internal/infrastructure/mqtt"
	"github.com/nerrad567/gymdesk/internal/membership"
	"github.com/nerrad567/gymdesk/internal/routine"
	"github.com/nerrad567/gymdesk/internal/web"
)

const gracefulShutdownTimeout = 10 * time.Second

// dummyPassword is hashed once at construction so a login for an unknown
// email costs the same as one with a wrong password.
const dummyPassword = "gymdesk-timing-equaliser"

// Deps is everything New needs. Fields marked optional may be nil.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	DB       *database.DB // optional: health and pool metrics
	Users    auth.UserRepository
	Access   auth.RoutineAccessRepository
	Hasher   *auth.PasswordHasher
	Tokens   *auth.TokenService
	Resolver *auth.Resolver

	Routines      routine.Repository
	Plans         membership.PlanRepository
	Subscriptions *membership.SubscriptionRepository
	Checkout      *membership.Checkout
	Attendance    *attendance.Service
	Dashboard     *dashboard.Service
	Audit         audit.Repository // optional
	Events        events.Publisher // optional
	MQTT          *mqtt.Client     // optional: reported in metrics
	ExternalHub   *Hub             // optional: run by the caller, who also registers it as a sink
	Renderer      *web.Renderer    // optional: parsed from the embedded templates when nil
	StaticDir     string           // optional: serve /static from disk
	Location      *time.Location   // site timezone
	Version       string
}

// Server serves the HTML pages, the JSON API and the live feed.
type Server struct {
	cfg    config.APIConfig
	wsCfg  config.WebSocketConfig
	secCfg config.SecurityConfig
	logger *logging.Logger

	db            *database.DB
	users         auth.UserRepository
	access        auth.RoutineAccessRepository
	hasher        *auth.PasswordHasher
	tokens        *auth.TokenService
	resolver      *auth.Resolver
	gate          *auth.Gate
	routines      routine.Repository
	plans         membership.PlanRepository
	subscriptions *membership.SubscriptionRepository
	checkout      *membership.Checkout
	attendance    *attendance.Service
	dashboard     *dashboard.Service
	auditRepo     audit.Repository
	recorder      *audit.Recorder
	events        events.Publisher
	mqtt          *mqtt.Client
	pages         *web.Renderer
	staticDir     string
	loc           *time.Location
	dummyHash     string
	version       string
	startTime     time.Time
	now           func() time.Time

	server      *http.Server
	serveErr    atomic.Pointer[error]
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New validates deps and builds an unstarted server.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	switch {
	case deps.Users == nil:
		return nil, errors.New("user repository is required")
	case deps.Access == nil:
		return nil, errors.New("routine access repository is required")
	case deps.Hasher == nil:
		return nil, errors.New("password hasher is required")
	case deps.Tokens == nil:
		return nil, errors.New("token service is required")
	case deps.Resolver == nil:
		return nil, errors.New("session resolver is required")
	case deps.Routines == nil, deps.Plans == nil, deps.Subscriptions == nil, deps.Checkout == nil:
		return nil, errors.New("routine and membership stores are required")
	case deps.Attendance == nil, deps.Dashboard == nil:
		return nil, errors.New("attendance and dashboard services are required")
	}

	pages := deps.Renderer
	if pages == nil {
		var err error
		if pages, err = web.NewRenderer(); err != nil {
			return nil, fmt.Errorf("loading page templates: %w", err)
		}
	}

	dummyHash, err := deps.Hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("preparing login hasher: %w", err)
	}

	publisher := deps.Events
	if publisher == nil {
		publisher = events.Discard
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		secCfg:        deps.Security,
		logger:        deps.Logger,
		db:            deps.DB,
		users:         deps.Users,
		access:        deps.Access,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		resolver:      deps.Resolver,
		gate:          auth.NewGate(deps.Access),
		routines:      deps.Routines,
		plans:         deps.Plans,
		subscriptions: deps.Subscriptions,
		checkout:      deps.Checkout,
		attendance:    deps.Attendance,
		dashboard:     deps.Dashboard,
		auditRepo:     deps.Audit,
		events:        publisher,
		mqtt:          deps.MQTT,
		pages:         pages,
		staticDir:     deps.StaticDir,
		loc:           loc,
		dummyHash:     dummyHash,
		version:       deps.Version,
		startTime:     time.Now(),
		now:           time.Now,
	}

	if deps.Audit != nil {
		s.recorder = audit.NewRecorder(deps.Audit, deps.Logger.With("component", "audit").Logger)
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the live feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler without binding a port.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in the background. A port that
// cannot be bound is reported here rather than logged later. Background
// workers owned by the server stop on Close or when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.cfg.Addr(), err)
	}

	var workCtx context.Context
	workCtx, s.cancel = context.WithCancel(ctx)
	if !s.externalHub {
		go s.hub.Run(workCtx)
	}
	if s.recorder != nil {
		go s.recorder.Run(workCtx)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	tls := s.cfg.TLS
	s.logger.Info("API server listening", "address", ln.Addr().String(), "tls", tls.Enabled)
	go func() {
		var err error
		if tls.Enabled {
			err = s.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = s.server.Serve(ln)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			s.serveErr.Store(&err)
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

// Close stops background workers, then waits up to
// gracefulShutdownTimeout for in-flight requests before dropping them.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck fails before Start and after the listener has died.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	if err := s.serveErr.Load(); err != nil {
		return fmt.Errorf("api server stopped: %w", *err)
	}
	return nil
}
