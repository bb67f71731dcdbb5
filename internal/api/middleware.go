package api

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/segmentio/ksuid"

	"github.com/nerrad567/gymdesk/internal/auth"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyUser      contextKey = "user"   // *auth.User
	ctxKeyClaims    contextKey = "claims" // *auth.CustomClaims
)

// sessionCookieName is the cookie carrying the signed session token.
const sessionCookieName = "access_token"

// maxRequestBodySize caps form and JSON bodies at 1 MB.
const maxRequestBodySize = 1 << 20

const (
	defaultCORSMethods = "GET, POST, OPTIONS"
	defaultCORSHeaders = "Content-Type, X-Request-ID"
)

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string) //nolint:errcheck // absent outside a request
	return id
}

// requestIDMiddleware keeps a caller-supplied X-Request-ID or mints a KSUID.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = ksuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

// accessLogMiddleware logs one line per request once the handler returns.
// It also turns a handler panic into a 500.
func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic in HTTP handler",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestID(r.Context()),
				)
				if ww.Status() == 0 {
					writeError(ww, http.StatusInternalServerError, "internal server error")
				}
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestID(r.Context()),
			)
		}()

		if r.Body != nil {
			r.Body = http.MaxBytesReader(ww, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(ww, r)
	})
}

// corsMiddleware answers preflights and echoes allowed origins. An empty
// allow-list admits any origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	cors := s.cfg.CORS
	methods := defaultCORSMethods
	if len(cors.AllowedMethods) > 0 {
		methods = strings.Join(cors.AllowedMethods, ", ")
	}
	headers := defaultCORSHeaders
	if len(cors.AllowedHeaders) > 0 {
		headers = strings.Join(cors.AllowedHeaders, ", ")
	}
	allowed := func(origin string) bool {
		return len(cors.AllowedOrigins) == 0 ||
			slices.Contains(cors.AllowedOrigins, "*") ||
			slices.Contains(cors.AllowedOrigins, origin)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && allowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolveUser attaches the session's user, if any, to the request context.
// It never rejects a request; require does.
func (s *Server) resolveUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err == nil && cookie.Value != "" {
			if user, claims := s.resolver.ResolveClaims(r.Context(), cookie.Value); user != nil {
				ctx := context.WithValue(r.Context(), ctxKeyUser, user)
				r = r.WithContext(context.WithValue(ctx, ctxKeyClaims, claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// currentUser returns the signed-in user, or nil for an anonymous request.
func currentUser(ctx context.Context) *auth.User {
	user, _ := ctx.Value(ctxKeyUser).(*auth.User) //nolint:errcheck // absent means anonymous
	return user
}

func currentClaims(ctx context.Context) *auth.CustomClaims {
	claims, _ := ctx.Value(ctxKeyClaims).(*auth.CustomClaims) //nolint:errcheck // absent means anonymous
	return claims
}

// require gates every route in a group behind req.
func (s *Server) require(req auth.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.authorize(w, r, req) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// authorize runs the gate and, unless it allows, writes the response for
// the decision: JSON under /api/, a redirect or page otherwise.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, req auth.Requirement) bool {
	user := currentUser(r.Context())

	decision, err := s.gate.Authorize(r.Context(), user, req)
	if err != nil {
		s.logger.Error("authorisation check failed",
			"path", r.URL.Path,
			"request_id", requestID(r.Context()),
			"error", err,
		)
	}
	if decision == auth.DecisionAllow {
		return true
	}

	api := strings.HasPrefix(r.URL.Path, "/api/")
	switch decision {
	case auth.DecisionLogin:
		if api {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return false
		}
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
	case auth.DecisionChangePassword:
		if api {
			writeErrorCode(w, http.StatusForbidden, ErrCodePasswordChangeRequired, "password change required")
			return false
		}
		http.Redirect(w, r, "/auth/change-password", http.StatusSeeOther)
	default:
		if user != nil {
			s.logger.Debug("access denied", "path", r.URL.Path, "user_id", user.ID, "decision", decision.String())
		}
		if api {
			writeError(w, http.StatusForbidden, "forbidden")
			return false
		}
		s.render(w, r, http.StatusForbidden, "forbidden", "Forbidden", "", nil)
	}
	return false
}
