package membership

import "errors"

var (
	// ErrPlanNotFound is returned when a plan does not exist.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrPlanInUse is returned when deleting a plan that has subscriptions.
	ErrPlanInUse = errors.New("plan has subscriptions")

	// ErrInvalidPlan is returned when plan fields fail validation.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrMemberNotFound is returned when checkout names an unknown user.
	ErrMemberNotFound = errors.New("member not found")

	// ErrInvalidAmount is returned for a malformed or negative amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNoSubscription is returned when a member has no active subscription.
	ErrNoSubscription = errors.New("no active subscription")
)
