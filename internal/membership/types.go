package membership

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxUnits is the largest whole amount whose cents still fit in an int64.
const maxUnits = (math.MaxInt64 - 99) / 100

// Payment status and method values.
const (
	StatusCompleted  = "completed"
	MethodMockStripe = "mock_stripe"
)

// Plan is a purchasable membership.
type Plan struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PriceCents   int64     `json:"price_cents"`
	DurationDays int       `json:"duration_days"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Price returns the plan price formatted in currency units.
func (p Plan) Price() string {
	return FormatCents(p.PriceCents)
}

// Subscription is a member's access window bought with a plan.
type Subscription struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	PlanID   string    `json:"plan_id"`
	PlanName string    `json:"plan_name,omitempty"`
	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
	Active   bool      `json:"active"`
}

// DaysLeft returns whole days remaining at now, or 0 when expired.
func (s Subscription) DaysLeft(now time.Time) int {
	if !now.Before(s.EndAt) {
		return 0
	}
	return int(s.EndAt.Sub(now).Hours() / 24) //nolint:mnd // hours per day
}

// Payment is one recorded charge.
type Payment struct {
	ID          string    `json:"id"`
	ReceiptNo   string    `json:"receipt_no"`
	UserID      string    `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	PaidAt      time.Time `json:"paid_at"`
}

// Amount returns the payment amount formatted in currency units.
func (p Payment) Amount() string {
	return FormatCents(p.AmountCents)
}

// Receipt is the result of a checkout.
type Receipt struct {
	Payment      Payment      `json:"payment"`
	Subscription Subscription `json:"subscription"`
}

// FormatCents renders 4999 as "49.99".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100) //nolint:mnd // cents per unit
}

// ParseAmount converts a decimal string such as "49.99" or "50" to cents.
// At most two decimal places are accepted.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && (len(frac) == 0 || len(frac) > 2) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 || units > maxUnits || strings.HasPrefix(whole, "+") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || strings.HasPrefix(frac, "-") || strings.HasPrefix(frac, "+") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	return units*100 + cents, nil //nolint:mnd // cents per unit
}
