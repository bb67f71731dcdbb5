package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gymdesk/internal/audit"
	"github.com/nerrad567/gymdesk/internal/auth"
	"github.com/nerrad567/gymdesk/internal/routine"
)

type userRoutines struct {
	Member   *auth.User
	Assigned []routine.Routine
	All      []routine.Routine
}

// handleListRoutines renders every routine for an admin and only the
// assigned ones for anyone else.
func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	s.renderRoutines(w, r, http.StatusOK, "")
}

func (s *Server) renderRoutines(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	user := currentUser(r.Context())

	var (
		list []routine.Routine
		err  error
	)
	if user.IsAdmin() {
		list, err = s.routines.List(r.Context())
	} else {
		list, err = s.assignedRoutines(r, user.ID)
	}
	if err != nil {
		s.logger.Error("listing routines failed", "user_id", user.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, status, "routines", "Routines", errMsg, list)
}

// handleGetRoutine shows one routine. Non-admins need an assignment;
// without one the answer is 403 whether or not the routine exists.
func (s *Server) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.authorize(w, r, auth.Requirement{RoutineID: id}) {
		return
	}

	rt, err := s.routines.GetByID(r.Context(), id)
	if errors.Is(err, routine.ErrRoutineNotFound) {
		redirect(w, r, "/routines")
		return
	}
	if err != nil {
		s.logger.Error("loading routine failed", "routine_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, http.StatusOK, "routine_detail", rt.Name, "", rt)
}

// handleCreateRoutine creates a routine from the form fields name,
// description and frequency.
func (s *Server) handleCreateRoutine(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderRoutines(w, r, http.StatusBadRequest, "Invalid form")
		return
	}

	rt := &routine.Routine{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Frequency:   strings.TrimSpace(r.PostFormValue("frequency")),
	}
	if err := s.routines.Create(r.Context(), rt); err != nil {
		if errors.Is(err, routine.ErrInvalidRoutine) {
			s.renderRoutines(w, r, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("creating routine failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	s.auditLog(audit.ActionCreate, "routine", rt.ID, currentUser(r.Context()).ID, map[string]any{"name": rt.Name})
	redirect(w, r, "/routines/"+rt.ID)
}

// handleAddExercise appends an exercise to a routine.
func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		redirect(w, r, "/routines/"+id)
		return
	}

	sets, _ := strconv.Atoi(strings.TrimSpace(r.PostFormValue("sets"))) //nolint:errcheck // zero fails validation
	ex := &routine.Exercise{
		RoutineID: id,
		Name:      strings.TrimSpace(r.PostFormValue("name")),
		Sets:      sets,
		Reps:      strings.TrimSpace(r.PostFormValue("reps")),
		Weight:    strings.TrimSpace(r.PostFormValue("weight")),
		Notes:     strings.TrimSpace(r.PostFormValue("notes")),
	}

	switch err := s.routines.AddExercise(r.Context(), ex); {
	case err == nil:
		s.auditLog(audit.ActionCreate, "exercise", ex.ID, currentUser(r.Context()).ID, map[string]any{"routine_id": id})
		redirect(w, r, "/routines/"+id)
	case errors.Is(err, routine.ErrRoutineNotFound):
		redirect(w, r, "/routines")
	case errors.Is(err, routine.ErrInvalidExercise):
		rt, getErr := s.routines.GetByID(r.Context(), id)
		if getErr != nil {
			redirect(w, r, "/routines")
			return
		}
		s.render(w, r, http.StatusBadRequest, "routine_detail", rt.Name, err.Error(), rt)
	default:
		s.logger.Error("adding exercise failed", "routine_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// handleDeleteRoutine removes a routine with its exercises and assignments.
func (s *Server) handleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.routines.Delete(r.Context(), id)
	if err != nil && !errors.Is(err, routine.ErrRoutineNotFound) {
		s.logger.Error("deleting routine failed", "routine_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err == nil {
		s.auditLog(audit.ActionDelete, "routine", id, currentUser(r.Context()).ID, nil)
	}
	redirect(w, r, "/routines")
}

// handleAssignRoutine gives a user read access to a routine.
func (s *Server) handleAssignRoutine(w http.ResponseWriter, r *http.Request) {
	admin := currentUser(r.Context())
	userID, routineID := r.PostFormValue("user_id"), r.PostFormValue("routine_id")

	err := s.access.Assign(r.Context(), userID, routineID, admin.ID)
	switch {
	case errors.Is(err, auth.ErrAssignmentTarget):
		redirect(w, r, "/users")
		return
	case err != nil:
		s.logger.Error("assigning routine failed", "user_id", userID, "routine_id", routineID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	s.auditLog(audit.ActionAssign, "routine", routineID, admin.ID, map[string]any{"member_id": userID})
	redirect(w, r, "/routines/user/"+userID)
}

// handleUnassignRoutine removes a user's access to a routine.
func (s *Server) handleUnassignRoutine(w http.ResponseWriter, r *http.Request) {
	admin := currentUser(r.Context())
	userID, routineID := r.PostFormValue("user_id"), r.PostFormValue("routine_id")

	err := s.access.Unassign(r.Context(), userID, routineID)
	if err != nil && !errors.Is(err, auth.ErrNotAssigned) {
		s.logger.Error("unassigning routine failed", "user_id", userID, "routine_id", routineID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if err == nil {
		s.auditLog(audit.ActionUnassign, "routine", routineID, admin.ID, map[string]any{"member_id": userID})
	}
	redirect(w, r, "/routines/user/"+userID)
}

// handleUserRoutines renders a member's assignments with the controls to
// change them.
func (s *Server) handleUserRoutines(w http.ResponseWriter, r *http.Request) {
	member, err := s.users.GetByID(r.Context(), chi.URLParam(r, "userID"))
	if errors.Is(err, auth.ErrUserNotFound) {
		redirect(w, r, "/users")
		return
	}
	if err != nil {
		s.logger.Error("loading user failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	data := userRoutines{Member: member}
	if data.Assigned, err = s.assignedRoutines(r, member.ID); err == nil {
		data.All, err = s.routines.List(r.Context())
	}
	if err != nil {
		s.logger.Error("loading routines failed", "user_id", member.ID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, http.StatusOK, "routines_user", "Member routines", "", data)
}
