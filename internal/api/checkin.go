package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/gymdesk/internal/attendance"
	"github.com/nerrad567/gymdesk/internal/audit"
)

// handleScanPage renders the front-desk kiosk.
func (s *Server) handleScanPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "scan", "Check in", "", nil)
}

// handleCheckIn records attendance for the scanned qr_code. The kiosk is
// unauthenticated; the code itself identifies the member.
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, kioskResponse{Status: "error", Message: "invalid form"})
		return
	}
	code := strings.TrimSpace(r.PostFormValue("qr_code"))

	res, err := s.attendance.CheckIn(r.Context(), code)
	if errors.Is(err, attendance.ErrUnknownCode) {
		writeJSON(w, http.StatusNotFound, kioskResponse{Status: "error", Message: "member not found"})
		return
	}
	if err != nil {
		s.logger.Error("check-in failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, kioskResponse{Status: "error", Message: "check-in failed"})
		return
	}

	s.auditLog(audit.ActionCheckIn, "attendance", res.UserID, res.UserID, nil)
	writeJSON(w, http.StatusOK, kioskResponse{
		Status:  "success",
		Message: "Welcome, " + res.Name + "!",
		Time:    res.LocalTime,
	})
}
