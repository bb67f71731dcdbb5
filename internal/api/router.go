package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gymdesk/internal/auth"
	"github.com/nerrad567/gymdesk/internal/web"
)

// healthCheckTimeout bounds the database ping behind /healthz.
const healthCheckTimeout = 2 * time.Second

var (
	requireSignedIn     = auth.Requirement{}
	requireAdmin        = auth.Requirement{Admin: true}
	requirePendingAllow = auth.Requirement{AllowPendingPasswordChange: true}
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.resolveUser)

	r.Handle("/static/*", http.StripPrefix("/static", web.StaticHandler(s.staticDir)))
	r.Get("/healthz", s.handleHealth)

	// Public pages
	r.Get("/auth/login", s.handleLoginPage)
	r.Post("/auth/login", s.handleLogin)
	r.Get("/scan", s.handleScanPage)
	r.Post("/attendance/checkin", s.handleCheckIn)
	r.Get("/auth/logout", s.handleLogout)
	r.Post("/auth/logout", s.handleLogout)

	// Reachable while a password change is pending
	r.Group(func(r chi.Router) {
		r.Use(s.require(requirePendingAllow))
		r.Get("/auth/change-password", s.handleChangePasswordPage)
		r.Post("/auth/change-password", s.handleChangePassword)
	})

	// Any signed-in user
	r.Group(func(r chi.Router) {
		r.Use(s.require(requireSignedIn))
		r.Get("/", s.handleHome)
		r.Get("/plans", s.handleListPlans)
		r.Get("/routines", s.handleListRoutines)
		// Ownership is checked in the handler once the id is known.
		r.Get("/routines/{id}", s.handleGetRoutine)
	})

	// Admin back-office
	r.Group(func(r chi.Router) {
		r.Use(s.require(requireAdmin))

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Get("/new", s.handleNewUserPage)
			r.Post("/new", s.handleCreateUser)
			r.Get("/{id}", s.handleUserDetail)
		})

		r.Get("/plans/new", s.handleNewPlanPage)
		r.Post("/plans/new", s.handleCreatePlan)
		r.Post("/plans/delete/{id}", s.handleDeletePlan)

		r.Post("/routines/new", s.handleCreateRoutine)
		r.Post("/routines/assign", s.handleAssignRoutine)
		r.Post("/routines/unassign", s.handleUnassignRoutine)
		r.Get("/routines/user/{userID}", s.handleUserRoutines)
		r.Post("/routines/{id}/add-exercise", s.handleAddExercise)
		r.Post("/routines/delete/{id}", s.handleDeleteRoutine)

		r.Get("/payments/select-plan/{userID}", s.handleSelectPlan)
		r.Post("/payments/process", s.handleProcessPayment)
	})

	// JSON API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.require(requireSignedIn))
			r.Get("/me", s.handleMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.require(requireAdmin))
			r.Get("/dashboard/stats", s.handleDashboardStats)
			r.Get("/audit", s.handleListAuditLogs)
			r.Get("/metrics", s.handleMetrics)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
	})
}
