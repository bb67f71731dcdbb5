package membership

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gymdesk/internal/auth"
	"github.com/nerrad567/gymdesk/internal/events"
	"github.com/nerrad567/gymdesk/internal/infrastructure/database/dbtest"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturePublisher) Publish(ev events.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbtest.Open(t).DB
}

func seedMember(t *testing.T, db *sql.DB, email string) *auth.User {
	t.Helper()
	u := &auth.User{Name: "Member " + email, Email: email, Role: auth.RoleClient}
	require.NoError(t, auth.NewUserRepository(db).Create(context.Background(), u))
	return u
}

func seedPlan(t *testing.T, db *sql.DB, name string, priceCents int64, days int) *Plan {
	t.Helper()
	p := &Plan{Name: name, PriceCents: priceCents, DurationDays: days}
	require.NoError(t, NewPlanRepository(db).Create(context.Background(), p))
	return p
}

func TestPlanRepository_CRUD(t *testing.T) {
	db := testDB(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	monthly := &Plan{Name: "Monthly", PriceCents: 4999, DurationDays: 30, Description: "All classes"}
	require.NoError(t, repo.Create(ctx, monthly))
	seedPlan(t, db, "Day pass", 800, 1)

	got, err := repo.GetByID(ctx, monthly.ID)
	require.NoError(t, err)
	assert.Equal(t, "Monthly", got.Name)
	assert.Equal(t, int64(4999), got.PriceCents)
	assert.Equal(t, "49.99", got.Price())

	plans, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Day pass", plans[0].Name, "cheapest first")

	require.NoError(t, repo.Delete(ctx, monthly.ID))
	_, err = repo.GetByID(ctx, monthly.ID)
	assert.ErrorIs(t, err, ErrPlanNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, monthly.ID), ErrPlanNotFound)
}

func TestPlanRepository_Validation(t *testing.T) {
	repo := NewPlanRepository(testDB(t))
	ctx := context.Background()

	tests := []struct {
		name string
		plan Plan
	}{
		{"empty name", Plan{Name: " ", PriceCents: 100, DurationDays: 30}},
		{"negative price", Plan{Name: "X", PriceCents: -1, DurationDays: 30}},
		{"zero duration", Plan{Name: "X", PriceCents: 100, DurationDays: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.plan
			assert.ErrorIs(t, repo.Create(ctx, &p), ErrInvalidPlan)
		})
	}
}

func TestPlanRepository_DeleteInUse(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	member := seedMember(t, db, "busy@example.com")
	plan := seedPlan(t, db, "Annual", 39900, 365)

	checkout, err := NewCheckout(db, 1, "", nil)
	require.NoError(t, err)
	_, err = checkout.Process(ctx, member.ID, plan.ID, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, NewPlanRepository(db).Delete(ctx, plan.ID), ErrPlanInUse)
}

func TestCheckout_Process(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	pub := &capturePublisher{}

	member := seedMember(t, db, "payer@example.com")
	plan := seedPlan(t, db, "Quarterly", 12000, 90)

	checkout, err := NewCheckout(db, 7, "", pub)
	require.NoError(t, err)
	fixed := time.Date(2026, 2, 10, 15, 4, 5, 0, time.UTC)
	checkout.now = func() time.Time { return fixed }

	receipt, err := checkout.Process(ctx, member.ID, plan.ID, 11000)
	require.NoError(t, err)

	assert.NotEmpty(t, receipt.Payment.ReceiptNo)
	for prefix, id := range map[string]string{"pay-": receipt.Payment.ID, "sub-": receipt.Subscription.ID} {
		_, err := uuid.Parse(strings.TrimPrefix(id, prefix))
		assert.NoError(t, err, id)
	}
	assert.Equal(t, int64(11000), receipt.Payment.AmountCents)
	assert.Equal(t, MethodMockStripe, receipt.Payment.Method)
	assert.Equal(t, StatusCompleted, receipt.Payment.Status)
	assert.Equal(t, fixed, receipt.Subscription.StartAt)
	assert.Equal(t, fixed.AddDate(0, 0, 90), receipt.Subscription.EndAt)

	subs := NewSubscriptionRepository(db)

	active, err := subs.Active(ctx, member.ID, fixed.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, receipt.Subscription.ID, active.ID)
	assert.Equal(t, "Quarterly", active.PlanName)
	assert.Equal(t, 89, active.DaysLeft(fixed.Add(time.Hour)))

	payments, err := subs.ListPayments(ctx, member.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "110.00", payments[0].Amount())

	_, err = subs.Active(ctx, member.ID, fixed.AddDate(0, 0, 91))
	assert.ErrorIs(t, err, ErrNoSubscription)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, events.TypePaymentRecorded, ev.Type)
	assert.Equal(t, member.ID, ev.UserID)
	assert.InDelta(t, 110.0, ev.Amount(), 1e-9)
}

func TestCheckout_DefaultsToPlanPrice(t *testing.T) {
	db := testDB(t)
	member := seedMember(t, db, "default@example.com")
	plan := seedPlan(t, db, "Monthly", 4999, 30)

	checkout, err := NewCheckout(db, 1, "cash", nil)
	require.NoError(t, err)

	receipt, err := checkout.Process(context.Background(), member.ID, plan.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4999), receipt.Payment.AmountCents)
	assert.Equal(t, "cash", receipt.Payment.Method)
}

func TestCheckout_Errors(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	member := seedMember(t, db, "err@example.com")
	plan := seedPlan(t, db, "Monthly", 4999, 30)

	checkout, err := NewCheckout(db, 1, "", nil)
	require.NoError(t, err)

	_, err = checkout.Process(ctx, "usr-missing", plan.ID, 0)
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, err = checkout.Process(ctx, member.ID, "pln-missing", 0)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	_, err = checkout.Process(ctx, member.ID, plan.ID, -100)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// Nothing was written by the failed attempts.
	payments, err := NewSubscriptionRepository(db).ListPayments(ctx, member.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestCheckout_UniqueReceipts(t *testing.T) {
	db := testDB(t)
	member := seedMember(t, db, "many@example.com")
	plan := seedPlan(t, db, "Day", 500, 1)

	checkout, err := NewCheckout(db, 3, "", nil)
	require.NoError(t, err)

	seen := map[string]bool{}
	for range 20 {
		r, err := checkout.Process(context.Background(), member.ID, plan.ID, 0)
		require.NoError(t, err)
		assert.False(t, seen[r.Payment.ReceiptNo], "duplicate receipt %s", r.Payment.ReceiptNo)
		seen[r.Payment.ReceiptNo] = true
	}
}

func TestNewCheckout_InvalidNode(t *testing.T) {
	_, err := NewCheckout(nil, 1024, "", nil)
	assert.Error(t, err)
}

func TestFormatAndParseAmount(t *testing.T) {
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "49.99", FormatCents(4999))
	assert.Equal(t, "-1.50", FormatCents(-150))

	valid := map[string]int64{"50": 5000, "49.99": 4999, "0.5": 50, " 12.30 ": 1230, "0": 0, "92233720368547757.99": 9223372036854775799}
	for in, want := range valid {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "-5", "1.234", "abc", "1.", "1.-5", "+3", "1e3", "92233720368547759", "184467440737095517"} {
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}
}
