// Package dashboard computes the back-office statistics shown to admins
// and staff.
//
// Month and day boundaries are taken in the site timezone. Growth
// percentages are truncated to whole numbers.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const daysInWeek = 7

// DayRevenue is one bar of the weekly revenue chart.
type DayRevenue struct {
	Label   string  `json:"label"`
	Revenue float64 `json:"revenue"`
}

// Stats is the dashboard read model.
type Stats struct {
	ActiveMembers        int          `json:"active_members"`
	TotalClients         int          `json:"total_clients"`
	NewClientsMonth      int          `json:"new_clients_month"`
	ClientGrowthPct      int          `json:"client_growth_pct"`
	MonthlyRevenue       float64      `json:"monthly_revenue"`
	PreviousMonthRevenue float64      `json:"previous_month_revenue"`
	RevenueGrowthPct     int          `json:"revenue_growth_pct"`
	TodayAttendance      int          `json:"today_attendance"`
	Last7Days            []DayRevenue `json:"last7_days"`
}

// Service reads dashboard figures from the store.
type Service struct {
	db  *sqlx.DB
	loc *time.Location
}

// NewService creates a dashboard service. nil loc means UTC.
func NewService(db *sqlx.DB, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, loc: loc}
}

type paymentRow struct {
	PaidAt      string `db:"paid_at"`
	AmountCents int64  `db:"amount_cents"`
}

// Stats computes the dashboard as of now.
func (s *Service) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	local := now.In(s.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
	prevMonthStart := monthStart.AddDate(0, -1, 0)
	weekStart := today.AddDate(0, 0, -(daysInWeek - 1))

	st := &Stats{}

	if err := s.db.GetContext(ctx, &st.ActiveMembers, `
		SELECT COUNT(DISTINCT s.user_id)
		FROM subscriptions s JOIN users u ON u.id = s.user_id
		WHERE u.role = 'client' AND s.active = 1 AND s.end_at > ?`,
		stamp(now)); err != nil {
		return nil, fmt.Errorf("counting active members: %w", err)
	}

	if err := s.db.GetContext(ctx, &st.TotalClients,
		"SELECT COUNT(*) FROM users WHERE role = 'client'"); err != nil {
		return nil, fmt.Errorf("counting clients: %w", err)
	}

	if err := s.db.GetContext(ctx, &st.NewClientsMonth,
		"SELECT COUNT(*) FROM users WHERE role = 'client' AND created_at >= ?",
		stamp(monthStart)); err != nil {
		return nil, fmt.Errorf("counting new clients: %w", err)
	}
	st.ClientGrowthPct = ClientGrowth(st.TotalClients, st.NewClientsMonth)

	var cur, prev int64
	if err := s.db.GetContext(ctx, &cur,
		"SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE paid_at >= ?",
		stamp(monthStart)); err != nil {
		return nil, fmt.Errorf("summing monthly revenue: %w", err)
	}
	if err := s.db.GetContext(ctx, &prev,
		"SELECT COALESCE(SUM(amount_cents), 0) FROM payments WHERE paid_at >= ? AND paid_at < ?",
		stamp(prevMonthStart), stamp(monthStart)); err != nil {
		return nil, fmt.Errorf("summing previous revenue: %w", err)
	}
	st.MonthlyRevenue = units(cur)
	st.PreviousMonthRevenue = units(prev)
	st.RevenueGrowthPct = RevenueGrowth(cur, prev)

	if err := s.db.GetContext(ctx, &st.TodayAttendance,
		"SELECT COUNT(*) FROM attendance WHERE checked_in_at >= ?",
		stamp(today)); err != nil {
		return nil, fmt.Errorf("counting attendance: %w", err)
	}

	var rows []paymentRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT paid_at, amount_cents FROM payments WHERE paid_at >= ?",
		stamp(weekStart)); err != nil {
		return nil, fmt.Errorf("listing weekly payments: %w", err)
	}
	st.Last7Days = s.bucketWeek(weekStart, rows)

	return st, nil
}

// bucketWeek sums payments into seven local days starting at weekStart.
func (s *Service) bucketWeek(weekStart time.Time, rows []paymentRow) []DayRevenue {
	cents := make([]int64, daysInWeek)
	for _, r := range rows {
		at, err := time.Parse(time.RFC3339, r.PaidAt)
		if err != nil {
			continue
		}
		local := at.In(s.loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
		for i := range daysInWeek {
			if weekStart.AddDate(0, 0, i).Equal(day) {
				cents[i] += r.AmountCents
				break
			}
		}
	}

	days := make([]DayRevenue, daysInWeek)
	for i := range daysInWeek {
		days[i] = DayRevenue{
			Label:   weekStart.AddDate(0, 0, i).Format("Mon"),
			Revenue: units(cents[i]),
		}
	}
	return days
}

// ClientGrowth is the share of this month's new clients over the clients
// that existed before the month began. With no prior base it is 100 when
// anyone joined and 0 otherwise.
func ClientGrowth(total, newThisMonth int) int {
	base := total - newThisMonth
	if base > 0 {
		return int(float64(newThisMonth) / float64(base) * 100) //nolint:mnd // percent
	}
	if newThisMonth > 0 {
		return 100 //nolint:mnd // percent
	}
	return 0
}

// RevenueGrowth is the month-over-month revenue change in percent, with
// the same zero-base rule as ClientGrowth.
func RevenueGrowth(current, previous int64) int {
	if previous > 0 {
		return int(float64(current-previous) / float64(previous) * 100) //nolint:mnd // percent
	}
	if current > 0 {
		return 100 //nolint:mnd // percent
	}
	return 0
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func units(cents int64) float64 {
	return float64(cents) / 100 //nolint:mnd // cents per unit
}
