package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gymdesk/internal/audit"
	"github.com/nerrad567/gymdesk/internal/membership"
)

// handleListPlans renders the plan catalogue. Admins also see the
// create and delete controls.
func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	s.renderPlans(w, r, http.StatusOK, "")
}

func (s *Server) renderPlans(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	plans, err := s.plans.List(r.Context())
	if err != nil {
		s.logger.Error("listing plans failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, status, "plans", "Plans", errMsg, plans)
}

// handleNewPlanPage renders the new-plan form.
func (s *Server) handleNewPlanPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "plan_new", "New plan", "", nil)
}

// handleCreatePlan creates a plan from the form fields name, price,
// duration_days and description.
func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "plan_new", "New plan", "Invalid form", nil)
		return
	}

	price, err := membership.ParseAmount(r.PostFormValue("price"))
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "plan_new", "New plan", "Price must be a non-negative amount", nil)
		return
	}
	days, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("duration_days")))
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "plan_new", "New plan", "Duration must be a whole number of days", nil)
		return
	}

	plan := &membership.Plan{
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		PriceCents:   price,
		DurationDays: days,
		Description:  strings.TrimSpace(r.PostFormValue("description")),
	}
	if err := s.plans.Create(r.Context(), plan); err != nil {
		if errors.Is(err, membership.ErrInvalidPlan) {
			s.render(w, r, http.StatusBadRequest, "plan_new", "New plan", err.Error(), nil)
			return
		}
		s.logger.Error("creating plan failed", "error", err)
		s.render(w, r, http.StatusInternalServerError, "plan_new", "New plan", "Could not create the plan", nil)
		return
	}

	s.auditLog(audit.ActionCreate, "plan", plan.ID, currentUser(r.Context()).ID, map[string]any{"name": plan.Name})
	redirect(w, r, "/plans")
}

// handleDeletePlan removes a plan nobody has bought.
func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	switch err := s.plans.Delete(r.Context(), id); {
	case err == nil:
		s.auditLog(audit.ActionDelete, "plan", id, currentUser(r.Context()).ID, nil)
		redirect(w, r, "/plans")
	case errors.Is(err, membership.ErrPlanNotFound):
		redirect(w, r, "/plans")
	case errors.Is(err, membership.ErrPlanInUse):
		s.renderPlans(w, r, http.StatusConflict, "This plan has subscriptions and cannot be deleted")
	default:
		s.logger.Error("deleting plan failed", "plan_id", id, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
