package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gymdesk/internal/attendance"
	"github.com/nerrad567/gymdesk/internal/audit"
	"github.com/nerrad567/gymdesk/internal/auth"
	"github.com/nerrad567/gymdesk/internal/events"
	"github.com/nerrad567/gymdesk/internal/membership"
	"github.com/nerrad567/gymdesk/internal/routine"
)

// recentCheckIns is how many check-ins the member pages show.
const recentCheckIns = 10

type userForm struct {
	Name  string
	Email string
	Role  string
}

type userDetail struct {
	Member       *auth.User
	Subscription *membership.Subscription
	Payments     []membership.Payment
	Routines     []routine.Routine
	CheckIns     []attendance.Record
}

// handleListUsers renders every account.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("listing users failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, http.StatusOK, "users", "Members", "", users)
}

// handleNewUserPage renders the new-member form.
func (s *Server) handleNewUserPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "user_new", "New member", "", userForm{Role: string(auth.RoleClient)})
}

// handleCreateUser creates an account with a temporary password. The new
// user must pick their own password at first sign-in.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	admin := currentUser(r.Context())

	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "user_new", "New member", "Invalid form", userForm{})
		return
	}
	form := userForm{
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Email: strings.TrimSpace(r.PostFormValue("email")),
		Role:  r.PostFormValue("role"),
	}
	if form.Role == "" {
		form.Role = string(auth.RoleClient)
	}
	password := r.PostFormValue("password")

	var problem string
	switch {
	case form.Name == "":
		problem = "Name is required"
	case !auth.IsValidEmail(form.Email):
		problem = "A valid email is required"
	case !auth.IsValidRole(auth.Role(form.Role)):
		problem = "Unknown role"
	case len(password) < auth.MinPasswordLength:
		problem = "Temporary password must be at least 8 characters"
	}
	if problem != "" {
		s.render(w, r, http.StatusBadRequest, "user_new", "New member", problem, form)
		return
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("hashing temporary password failed", "error", err)
		s.render(w, r, http.StatusInternalServerError, "user_new", "New member", "Could not create the member", form)
		return
	}

	user := &auth.User{
		Name:               form.Name,
		Email:              form.Email,
		Role:               auth.Role(form.Role),
		PasswordHash:       digest,
		MustChangePassword: true,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			s.render(w, r, http.StatusConflict, "user_new", "New member", "Email already exists", form)
			return
		}
		s.logger.Error("creating user failed", "error", err)
		s.render(w, r, http.StatusInternalServerError, "user_new", "New member", "Could not create the member", form)
		return
	}

	s.events.Publish(events.Event{
		Type:   events.TypeUserCreated,
		UserID: user.ID,
		Data:   map[string]any{"role": string(user.Role)},
	})
	s.auditLog(audit.ActionCreate, "user", user.ID, admin.ID, map[string]any{"role": string(user.Role)})
	redirect(w, r, "/users")
}

// handleUserDetail renders one member with their membership, payments,
// routines and recent check-ins.
func (s *Server) handleUserDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	member, err := s.users.GetByID(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, auth.ErrUserNotFound) {
		redirect(w, r, "/users")
		return
	}
	if err != nil {
		s.logger.Error("loading user failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	detail := userDetail{Member: member}
	if detail.Subscription, err = s.subscriptions.Active(ctx, member.ID, s.now()); err != nil && !errors.Is(err, membership.ErrNoSubscription) {
		s.logger.Warn("loading subscription failed", "user_id", member.ID, "error", err)
	}
	if detail.Payments, err = s.subscriptions.ListPayments(ctx, member.ID); err != nil {
		s.logger.Warn("loading payments failed", "user_id", member.ID, "error", err)
	}
	if detail.Routines, err = s.assignedRoutines(r, member.ID); err != nil {
		s.logger.Warn("loading routines failed", "user_id", member.ID, "error", err)
	}
	if detail.CheckIns, err = s.attendance.ListByUser(ctx, member.ID, recentCheckIns); err != nil {
		s.logger.Warn("loading check-ins failed", "user_id", member.ID, "error", err)
	}

	s.render(w, r, http.StatusOK, "user_detail", member.Name, "", detail)
}

// assignedRoutines returns the routines a user may view.
func (s *Server) assignedRoutines(r *http.Request, userID string) ([]routine.Routine, error) {
	ids, err := s.access.ListRoutineIDs(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	return s.routines.ListByIDs(r.Context(), ids)
}
