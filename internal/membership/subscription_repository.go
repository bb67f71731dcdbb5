package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SubscriptionRepository reads a member's subscriptions and payments.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository creates a new SQLite-backed reader.
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Active returns the member's current subscription with the latest end
// date, or ErrNoSubscription.
func (r *SubscriptionRepository) Active(ctx context.Context, userID string, now time.Time) (*Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.plan_id, p.name, s.start_at, s.end_at, s.active
		 FROM subscriptions s JOIN plans p ON p.id = s.plan_id
		 WHERE s.user_id = ? AND s.active = 1 AND s.end_at > ?
		 ORDER BY s.end_at DESC LIMIT 1`,
		userID, now.UTC().Format(time.RFC3339))

	s, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("getting active subscription: %w", err)
	}
	return s, nil
}

// ListSubscriptions returns every subscription for a member, newest first.
func (r *SubscriptionRepository) ListSubscriptions(ctx context.Context, userID string) ([]Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.plan_id, p.name, s.start_at, s.end_at, s.active
		 FROM subscriptions s JOIN plans p ON p.id = s.plan_id
		 WHERE s.user_id = ? ORDER BY s.start_at DESC, s.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}

// ListPayments returns every payment for a member, newest first.
func (r *SubscriptionRepository) ListPayments(ctx context.Context, userID string) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, receipt_no, user_id, amount_cents, method, status, paid_at
		 FROM payments WHERE user_id = ? ORDER BY paid_at DESC, receipt_no DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	payments := []Payment{}
	for rows.Next() {
		var p Payment
		var paidAt string
		if err := rows.Scan(&p.ID, &p.ReceiptNo, &p.UserID, &p.AmountCents, &p.Method, &p.Status, &paidAt); err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}
		p.PaidAt, _ = time.Parse(time.RFC3339, paidAt) //nolint:errcheck // format is controlled
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payments: %w", err)
	}
	return payments, nil
}

func scanSubscription(s scanner) (*Subscription, error) {
	var sub Subscription
	var startAt, endAt string
	var active int
	if err := s.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.PlanName, &startAt, &endAt, &active); err != nil {
		return nil, err
	}
	sub.StartAt, _ = time.Parse(time.RFC3339, startAt) //nolint:errcheck // format is controlled
	sub.EndAt, _ = time.Parse(time.RFC3339, endAt)     //nolint:errcheck // format is controlled
	sub.Active = active == 1
	return &sub, nil
}
