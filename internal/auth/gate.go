package auth

import (
	"context"
	"fmt"
)

// Decision is the outcome of an authorisation check.
type Decision int

const (
	// DecisionAllow lets the request through.
	DecisionAllow Decision = iota

	// DecisionLogin means no session was resolved. Recoverable by signing in.
	DecisionLogin

	// DecisionChangePassword means the account must pick a new password
	// before anything else is reachable.
	DecisionChangePassword

	// DecisionForbidden means the resolved identity will never be allowed,
	// whether by role or by routine ownership.
	DecisionForbidden
)

// String returns the decision name used in logs.
func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionLogin:
		return "login"
	case DecisionChangePassword:
		return "change_password"
	case DecisionForbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Requirement describes what a route needs from the current user.
// The zero value means "any signed-in user with no pending password change".
type Requirement struct {
	// Admin requires role == admin.
	Admin bool

	// RoutineID, when set, requires an assignment to that routine unless
	// the user is an admin.
	RoutineID string

	// AllowPendingPasswordChange exempts the route from the forced
	// password change. Only change-password and logout set it.
	AllowPendingPasswordChange bool
}

// AssignmentChecker is the slice of RoutineAccessRepository the gate needs.
type AssignmentChecker interface {
	IsAssigned(ctx context.Context, userID, routineID string) (bool, error)
}

// Gate turns (user, requirement) into a Decision. It is stateless apart
// from the assignment store and safe for concurrent use.
type Gate struct {
	assignments AssignmentChecker
}

// NewGate creates a Gate backed by an assignment store.
func NewGate(assignments AssignmentChecker) *Gate {
	return &Gate{assignments: assignments}
}

// Authorize evaluates req for user. Checks run in a fixed order:
//
//  1. no user: DecisionLogin
//  2. pending password change (unless exempt): DecisionChangePassword
//  3. admin required and not admin: DecisionForbidden
//  4. routine required: admins pass without a lookup, others need an assignment
//
// An error is returned only when the assignment lookup fails; the decision
// is then DecisionForbidden.
func (g *Gate) Authorize(ctx context.Context, user *User, req Requirement) (Decision, error) {
	if user == nil {
		return DecisionLogin, nil
	}

	if user.MustChangePassword && !req.AllowPendingPasswordChange {
		return DecisionChangePassword, nil
	}

	if req.Admin && !user.IsAdmin() {
		return DecisionForbidden, nil
	}

	if req.RoutineID != "" {
		if user.IsAdmin() {
			return DecisionAllow, nil
		}
		ok, err := g.assignments.IsAssigned(ctx, user.ID, req.RoutineID)
		if err != nil {
			return DecisionForbidden, fmt.Errorf("checking routine ownership: %w", err)
		}
		if !ok {
			return DecisionForbidden, nil
		}
	}

	return DecisionAllow, nil
}
