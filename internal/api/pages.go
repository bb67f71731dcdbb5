package api

import (
	"bytes"
	"net/http"

	"github.com/nerrad567/gymdesk/internal/web"
)

// render writes an HTML page. A template failure becomes a bare 500 since
// nothing has been written yet.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title, errMsg string, data any) {
	page := web.Page{
		Title: title,
		Error: errMsg,
		Data:  data,
	}
	if user := currentUser(r.Context()); user != nil {
		page.User = user
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	var buf bytes.Buffer
	if err := s.pages.Render(&buf, name, page); err != nil {
		s.logger.Error("page render failed",
			"page", name,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	buf.WriteTo(w)
}

// redirect answers a form post or page request with 303 See Other.
func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}
