package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/gymdesk/internal/audit"
	"github.com/nerrad567/gymdesk/internal/auth"
)

// invalidCredentials is the only message a failed login ever shows, so
// the form does not reveal which emails exist.
const invalidCredentials = "Invalid credentials"

type loginForm struct {
	Email string
}

// handleLoginPage renders the sign-in form. A signed-in visitor goes home.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if currentUser(r.Context()) != nil {
		redirect(w, r, "/")
		return
	}
	s.render(w, r, http.StatusOK, "login", "Sign in", "", loginForm{})
}

// handleLogin checks the submitted credentials and, on success, sets the
// session cookie. Every failure re-renders the form with the same message.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login", "Sign in", invalidCredentials, loginForm{})
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	user, err := s.authenticate(r, email, password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Error("login lookup failed", "error", err)
		}
		s.auditLog(audit.ActionLoginFailed, "user", "", "", map[string]any{"email": email})
		s.render(w, r, http.StatusOK, "login", "Sign in", invalidCredentials, loginForm{Email: email})
		return
	}

	if err := s.startSession(w, user); err != nil {
		s.logger.Error("issuing session token failed", "user_id", user.ID, "error", err)
		s.render(w, r, http.StatusInternalServerError, "login", "Sign in", "Sign-in is unavailable, try again", loginForm{Email: email})
		return
	}
	s.auditLog(audit.ActionLogin, "user", user.ID, user.ID, nil)

	if user.MustChangePassword {
		redirect(w, r, "/auth/change-password")
		return
	}
	redirect(w, r, "/")
}

// authenticate returns the user for a valid email and password pair, or
// an error wrapping auth.ErrInvalidCredentials.
func (s *Server) authenticate(r *http.Request, email, password string) (*auth.User, error) {
	if email == "" || password == "" {
		return nil, auth.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(r.Context(), email)
	if errors.Is(err, auth.ErrUserNotFound) || (err == nil && !user.CanLogin()) {
		// Same cost as a real verify.
		s.hasher.Verify(password, s.dummyHash)
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, auth.ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		if digest, hashErr := s.hasher.Hash(password); hashErr == nil {
			if err := s.users.UpdatePassword(r.Context(), user.ID, digest, user.MustChangePassword); err != nil {
				s.logger.Warn("password rehash not saved", "user_id", user.ID, "error", err)
			} else {
				user.PasswordHash = digest
			}
		}
	}

	return user, nil
}

// startSession issues a token for user and sets it as the session cookie.
func (s *Server) startSession(w http.ResponseWriter, user *auth.User) error {
	token, err := s.tokens.Issue(user.ID, user.Role, 0)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.tokens.TTL() / time.Second),
		HttpOnly: true,
		Secure:   s.secCfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// clearSession deletes the session cookie on the client.
func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secCfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleChangePasswordPage renders the change-password form.
func (s *Server) handleChangePasswordPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "change_password", "Change password", "", nil)
}

// handleChangePassword stores a new password, clears the pending-change
// flag, and replaces the session so the new state takes effect at once.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "change_password", "Change password", "Invalid form", nil)
		return
	}
	newPassword := r.PostFormValue("new_password")
	confirm := r.PostFormValue("confirm_password")

	switch err := auth.ValidateNewPassword(newPassword, confirm); {
	case errors.Is(err, auth.ErrPasswordMismatch):
		s.render(w, r, http.StatusOK, "change_password", "Change password", "Passwords do not match", nil)
		return
	case errors.Is(err, auth.ErrPasswordTooShort):
		s.render(w, r, http.StatusOK, "change_password", "Change password", "Password must be at least 8 characters", nil)
		return
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("hashing new password failed", "user_id", user.ID, "error", err)
		s.render(w, r, http.StatusInternalServerError, "change_password", "Change password", "Could not save the password", nil)
		return
	}
	if err := s.users.UpdatePassword(r.Context(), user.ID, digest, false); err != nil {
		s.logger.Error("saving new password failed", "user_id", user.ID, "error", err)
		s.render(w, r, http.StatusInternalServerError, "change_password", "Change password", "Could not save the password", nil)
		return
	}

	// Retire the old token when revocation is on.
	if _, err := s.resolver.Revoke(r.Context(), currentClaims(r.Context())); err != nil {
		s.logger.Warn("revoking previous session failed", "user_id", user.ID, "error", err)
	}
	user.MustChangePassword = false
	if err := s.startSession(w, user); err != nil {
		s.logger.Error("issuing session token failed", "user_id", user.ID, "error", err)
		s.clearSession(w)
		redirect(w, r, "/auth/login")
		return
	}

	s.auditLog(audit.ActionPasswordChanged, "user", user.ID, user.ID, nil)
	redirect(w, r, "/")
}

// handleLogout discards the session. With a revocation list configured the
// token also stops working server-side; without one, logout only deletes
// the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearSession(w)

	// A stale or forged cookie still gets cleared.
	if user := currentUser(r.Context()); user != nil {
		revoked, err := s.resolver.Revoke(r.Context(), currentClaims(r.Context()))
		if err != nil {
			s.logger.Warn("token revocation failed", "user_id", user.ID, "error", err)
		}
		s.auditLog(audit.ActionLogout, "user", user.ID, user.ID, map[string]any{"revoked": revoked})
	}
	redirect(w, r, "/auth/login")
}

// handleMe returns the signed-in user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r.Context()))
}
