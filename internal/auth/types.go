package auth

import (
	"errors"
	"net/mail"
	"time"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleClient is a gym member. Sees their own dashboard and only the
	// routines explicitly assigned to them.
	RoleClient Role = "client"

	// RoleStaff is a front-desk employee. Gated exactly like a client;
	// the only difference is the statistics dashboard on the home page.
	RoleStaff Role = "staff"

	// RoleAdmin manages members, plans, routines, and payments. Bypasses
	// routine ownership checks.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a user account may hold.
var ValidRoles = []Role{RoleClient, RoleStaff, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// IsValidEmail performs a syntactic check on a login handle.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// User is a member, staff, or admin account.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`

	// PasswordHash is empty when the account cannot sign in by password.
	PasswordHash string `json:"-"`

	// MustChangePassword blocks every route except change-password and
	// logout until the user picks a new password.
	MustChangePassword bool `json:"must_change_password"`

	// QRCode is the opaque check-in payload. Never derived from PII.
	QRCode string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CanLogin reports whether the account has a password to verify against.
func (u *User) CanLogin() bool {
	return u != nil && u.PasswordHash != ""
}

// RoutineAssignment links a user to a routine they may view.
type RoutineAssignment struct {
	UserID     string    `json:"user_id"`
	RoutineID  string    `json:"routine_id"`
	AssignedBy string    `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already exists")
	ErrQRCodeExists       = errors.New("qr code already exists")
	ErrInvalidRole        = errors.New("invalid role")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrNotAssigned        = errors.New("routine not assigned")
)
