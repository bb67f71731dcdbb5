package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	"github.com/nerrad567/gymdesk/internal/events"
	"github.com/nerrad567/gymdesk/internal/infrastructure/database"
)

// Checkout records payments and opens subscriptions.
type Checkout struct {
	db       *sql.DB
	receipts *snowflake.Node
	method   string
	events   events.Publisher
	now      func() time.Time
}

// NewCheckout creates a checkout. nodeID must be in 0..1023 and unique per
// running instance. An empty method defaults to MethodMockStripe.
func NewCheckout(db *sql.DB, nodeID int64, method string, publisher events.Publisher) (*Checkout, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("creating receipt generator: %w", err)
	}
	if method == "" {
		method = MethodMockStripe
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Checkout{
		db:       db,
		receipts: node,
		method:   method,
		events:   publisher,
		now:      time.Now,
	}, nil
}

// Process charges userID for planID and opens a subscription running from
// now for the plan's duration. A negative amountCents is rejected; zero
// charges the plan price. Payment and subscription are written atomically.
func (c *Checkout) Process(ctx context.Context, userID, planID string, amountCents int64) (*Receipt, error) {
	if amountCents < 0 {
		return nil, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}

	now := c.now().UTC().Truncate(time.Second)
	receipt := &Receipt{}

	err := database.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id = ?", userID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMemberNotFound
		}
		if err != nil {
			return fmt.Errorf("checking member: %w", err)
		}

		plan, err := getPlan(ctx, tx, planID)
		if err != nil {
			return err
		}
		if amountCents == 0 {
			amountCents = plan.PriceCents
		}

		receipt.Payment = Payment{
			ID:          "pay-" + uuid.NewString(),
			ReceiptNo:   c.receipts.Generate().String(),
			UserID:      userID,
			AmountCents: amountCents,
			Method:      c.method,
			Status:      StatusCompleted,
			PaidAt:      now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO payments (id, receipt_no, user_id, amount_cents, method, status, paid_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			receipt.Payment.ID, receipt.Payment.ReceiptNo, userID, amountCents,
			c.method, StatusCompleted, now.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("recording payment: %w", err)
		}

		receipt.Subscription = Subscription{
			ID:       "sub-" + uuid.NewString(),
			UserID:   userID,
			PlanID:   plan.ID,
			PlanName: plan.Name,
			StartAt:  now,
			EndAt:    now.AddDate(0, 0, plan.DurationDays),
			Active:   true,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subscriptions (id, user_id, plan_id, start_at, end_at, active)
			 VALUES (?, ?, ?, ?, ?, 1)`,
			receipt.Subscription.ID, userID, plan.ID,
			now.Format(time.RFC3339), receipt.Subscription.EndAt.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("opening subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.events.Publish(events.Event{
		Type:   events.TypePaymentRecorded,
		At:     now,
		UserID: userID,
		Data: map[string]any{
			"receipt_no": receipt.Payment.ReceiptNo,
			"plan_id":    receipt.Subscription.PlanID,
			"amount":     float64(amountCents) / 100, //nolint:mnd // cents per unit
		},
	})

	return receipt, nil
}
