package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/gymdesk/internal/attendance"
	"github.com/nerrad567/gymdesk/internal/auth"
	"github.com/nerrad567/gymdesk/internal/membership"
	"github.com/nerrad567/gymdesk/internal/routine"
)

type clientHome struct {
	Subscription *membership.Subscription
	DaysLeft     int
	Routines     []routine.Routine
	CheckIns     []attendance.Record
}

// handleHome renders the statistics dashboard for admins and staff, and a
// personal overview for clients.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	if user.Role == auth.RoleAdmin || user.Role == auth.RoleStaff {
		stats, err := s.dashboard.Stats(r.Context(), s.now())
		if err != nil {
			s.logger.Error("computing dashboard failed", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		s.render(w, r, http.StatusOK, "dashboard_admin", "Dashboard", "", stats)
		return
	}

	ctx := r.Context()
	now := s.now()
	home := clientHome{}

	sub, err := s.subscriptions.Active(ctx, user.ID, now)
	switch {
	case err == nil:
		home.Subscription = sub
		home.DaysLeft = sub.DaysLeft(now)
	case !errors.Is(err, membership.ErrNoSubscription):
		s.logger.Warn("loading subscription failed", "user_id", user.ID, "error", err)
	}
	if home.Routines, err = s.assignedRoutines(r, user.ID); err != nil {
		s.logger.Warn("loading routines failed", "user_id", user.ID, "error", err)
	}
	if home.CheckIns, err = s.attendance.ListByUser(ctx, user.ID, recentCheckIns); err != nil {
		s.logger.Warn("loading check-ins failed", "user_id", user.ID, "error", err)
	}

	s.render(w, r, http.StatusOK, "dashboard_client", "Welcome, "+user.Name, "", home)
}

// handleDashboardStats returns the statistics dashboard as JSON.
func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.dashboard.Stats(r.Context(), s.now())
	if err != nil {
		s.logger.Error("computing dashboard failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute dashboard")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
