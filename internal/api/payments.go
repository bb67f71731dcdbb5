package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gymdesk/internal/audit"
	"github.com/nerrad567/gymdesk/internal/auth"
	"github.com/nerrad567/gymdesk/internal/membership"
)

type selectPlan struct {
	Member *auth.User
	Plans  []membership.Plan
}

// handleSelectPlan renders the checkout form for one member.
func (s *Server) handleSelectPlan(w http.ResponseWriter, r *http.Request) {
	s.renderSelectPlan(w, r, chi.URLParam(r, "userID"), http.StatusOK, "")
}

func (s *Server) renderSelectPlan(w http.ResponseWriter, r *http.Request, userID string, status int, errMsg string) {
	member, err := s.users.GetByID(r.Context(), userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		redirect(w, r, "/users")
		return
	}
	if err != nil {
		s.logger.Error("loading user failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	plans, err := s.plans.List(r.Context())
	if err != nil {
		s.logger.Error("listing plans failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, r, status, "select_plan", "Record payment", errMsg, selectPlan{Member: member, Plans: plans})
}

// handleProcessPayment runs the mock checkout for the form fields user_id,
// plan_id and amount. A blank amount charges the plan price.
func (s *Server) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	admin := currentUser(r.Context())
	userID := r.PostFormValue("user_id")
	planID := r.PostFormValue("plan_id")

	var amount int64
	if raw := r.PostFormValue("amount"); raw != "" {
		parsed, err := membership.ParseAmount(raw)
		if err != nil {
			s.renderSelectPlan(w, r, userID, http.StatusBadRequest, "Amount must be a non-negative number")
			return
		}
		amount = parsed
	}

	receipt, err := s.checkout.Process(r.Context(), userID, planID, amount)
	switch {
	case errors.Is(err, membership.ErrMemberNotFound):
		redirect(w, r, "/users")
		return
	case errors.Is(err, membership.ErrPlanNotFound):
		s.renderSelectPlan(w, r, userID, http.StatusBadRequest, "Choose a plan")
		return
	case err != nil:
		s.logger.Error("checkout failed", "user_id", userID, "plan_id", planID, "error", err)
		s.renderSelectPlan(w, r, userID, http.StatusInternalServerError, "Payment could not be recorded")
		return
	}

	s.auditLog(audit.ActionPayment, "payment", receipt.Payment.ID, admin.ID, map[string]any{
		"member_id":  userID,
		"plan_id":    planID,
		"receipt_no": receipt.Payment.ReceiptNo,
		"amount":     receipt.Payment.Amount(),
	})
	redirect(w, r, "/users")
}
