package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/nerrad567/gymdesk/internal/audit"
)

// auditSource tags every entry written by the web application.
const auditSource = "web"

// auditLog queues an entry on the recorder. Writes are best-effort.
func (s *Server) auditLog(action, entityType, entityID, userID string, details map[string]any) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(&audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     auditSource,
		Details:    details,
	})
}

// queryInt returns the integer query parameter key, or 0 when absent or
// malformed.
func queryInt(q url.Values, key string) int {
	n, err := strconv.Atoi(q.Get(key))
	if err != nil {
		return 0
	}
	return n
}

// handleListAuditLogs serves GET /api/v1/audit. Filters: action,
// entity_type, entity_id, user_id; paging: limit, offset.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusNotFound, "audit trail is not enabled")
		return
	}

	q := r.URL.Query()
	result, err := s.auditRepo.List(r.Context(), audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
		Limit:      queryInt(q, "limit"),
		Offset:     queryInt(q, "offset"),
	})
	if err != nil {
		s.logger.Error("listing audit logs failed", "error", err, "request_id", requestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "failed to list audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
