package dashboard

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gymdesk/internal/infrastructure/database/dbtest"
)

func TestClientGrowth(t *testing.T) {
	tests := []struct {
		name         string
		total, fresh int
		want         int
	}{
		{"empty gym", 0, 0, 0},
		{"all new", 3, 3, 100},
		{"no new", 5, 0, 0},
		{"half again", 6, 2, 50},
		{"truncated", 4, 1, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClientGrowth(tt.total, tt.fresh))
		})
	}
}

func TestRevenueGrowth(t *testing.T) {
	tests := []struct {
		name          string
		current, prev int64
		want          int
	}{
		{"both zero", 0, 0, 0},
		{"zero base", 5000, 0, 100},
		{"flat", 5000, 5000, 0},
		{"doubled", 10000, 5000, 100},
		{"dropped", 2500, 5000, -50},
		{"truncated", 1000, 3000, -66},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RevenueGrowth(tt.current, tt.prev))
		})
	}
}

type fixture struct {
	t  *testing.T
	db *sql.DB
	n  int
}

func (f *fixture) id(prefix string) string {
	f.n++
	return prefix + "-" + string(rune('a'+f.n))
}

func (f *fixture) user(role string, created time.Time) string {
	f.t.Helper()
	id := f.id("usr")
	_, err := f.db.Exec(`INSERT INTO users (id, name, email, role, qr_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, id, id, id+"@example.com", role, "qr-"+id, stamp(created), stamp(created))
	require.NoError(f.t, err)
	return id
}

func (f *fixture) payment(userID string, cents int64, at time.Time) {
	f.t.Helper()
	id := f.id("pay")
	_, err := f.db.Exec(`INSERT INTO payments (id, receipt_no, user_id, amount_cents, method, status, paid_at)
		VALUES (?, ?, ?, ?, 'mock_stripe', 'completed', ?)`, id, "r-"+id, userID, cents, stamp(at))
	require.NoError(f.t, err)
}

func (f *fixture) subscription(userID string, end time.Time) {
	f.t.Helper()
	planID := f.id("pln")
	_, err := f.db.Exec(`INSERT INTO plans (id, name, price_cents, duration_days, created_at) VALUES (?, 'P', 100, 30, ?)`,
		planID, stamp(end))
	require.NoError(f.t, err)
	_, err = f.db.Exec(`INSERT INTO subscriptions (id, user_id, plan_id, start_at, end_at) VALUES (?, ?, ?, ?, ?)`,
		f.id("sub"), userID, planID, stamp(end.AddDate(0, 0, -30)), stamp(end))
	require.NoError(f.t, err)
}

func (f *fixture) checkin(userID string, at time.Time) {
	f.t.Helper()
	_, err := f.db.Exec("INSERT INTO attendance (id, user_id, checked_in_at) VALUES (?, ?, ?)",
		f.id("att"), userID, stamp(at))
	require.NoError(f.t, err)
}

func TestStats(t *testing.T) {
	db := dbtest.Open(t)
	f := &fixture{t: t, db: db.DB}

	// Wednesday 2026-06-17 15:00 UTC.
	now := time.Date(2026, 6, 17, 15, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

	old := f.user("client", lastMonth)
	fresh := f.user("client", now.AddDate(0, 0, -2))
	f.user("staff", now)
	f.user("admin", lastMonth)

	f.subscription(old, now.AddDate(0, 0, 10))
	f.subscription(fresh, now.AddDate(0, 0, -1)) // expired

	f.payment(old, 4000, lastMonth)
	f.payment(old, 3000, now.AddDate(0, 0, -1))
	f.payment(fresh, 5000, now)

	f.checkin(old, now.Add(-time.Hour))
	f.checkin(fresh, now.AddDate(0, 0, -1))

	st, err := NewService(db.Sqlx(), time.UTC).Stats(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, st.ActiveMembers)
	assert.Equal(t, 2, st.TotalClients)
	assert.Equal(t, 1, st.NewClientsMonth)
	assert.Equal(t, 100, st.ClientGrowthPct)
	assert.InDelta(t, 80.0, st.MonthlyRevenue, 0.001)
	assert.InDelta(t, 40.0, st.PreviousMonthRevenue, 0.001)
	assert.Equal(t, 100, st.RevenueGrowthPct)
	assert.Equal(t, 1, st.TodayAttendance)

	require.Len(t, st.Last7Days, 7)
	assert.Equal(t, "Thu", st.Last7Days[0].Label)
	assert.Equal(t, "Wed", st.Last7Days[6].Label)
	assert.InDelta(t, 30.0, st.Last7Days[5].Revenue, 0.001)
	assert.InDelta(t, 50.0, st.Last7Days[6].Revenue, 0.001)
	assert.Zero(t, st.Last7Days[0].Revenue)
}

func TestStats_EmptyStore(t *testing.T) {
	db := dbtest.Open(t)

	st, err := NewService(db.Sqlx(), nil).Stats(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Zero(t, st.TotalClients)
	assert.Zero(t, st.ClientGrowthPct)
	assert.Zero(t, st.RevenueGrowthPct)
	assert.Len(t, st.Last7Days, 7)
}

func TestStats_SiteTimezone(t *testing.T) {
	db := dbtest.Open(t)
	f := &fixture{t: t, db: db.DB}

	loc := time.FixedZone("UTC+3", 3*3600)
	// 22:30 UTC on the 9th is 01:30 on the 10th locally.
	now := time.Date(2026, 3, 9, 22, 30, 0, 0, time.UTC)
	member := f.user("client", now.AddDate(0, -2, 0))

	f.checkin(member, time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC)) // 23:00 local on the 9th
	f.checkin(member, time.Date(2026, 3, 9, 21, 30, 0, 0, time.UTC))

	st, err := NewService(db.Sqlx(), loc).Stats(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TodayAttendance)
}
