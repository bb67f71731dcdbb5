package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// PlanRepository defines persistence for plans.
type PlanRepository interface {
	Create(ctx context.Context, p *Plan) error
	GetByID(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context) ([]Plan, error)
	Delete(ctx context.Context, id string) error
}

// SQLitePlanRepository implements PlanRepository using SQLite.
type SQLitePlanRepository struct {
	db *sql.DB
}

// NewPlanRepository creates a new SQLite-backed plan repository.
func NewPlanRepository(db *sql.DB) *SQLitePlanRepository {
	return &SQLitePlanRepository{db: db}
}

// ValidatePlan checks plan fields before storage.
func ValidatePlan(p *Plan) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPlan)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidPlan)
	}
	if p.DurationDays < 1 {
		return fmt.Errorf("%w: duration must be at least one day", ErrInvalidPlan)
	}
	return nil
}

// Create inserts a plan. The ID is generated if empty.
func (r *SQLitePlanRepository) Create(ctx context.Context, p *Plan) error {
	if err := ValidatePlan(p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = "pln-" + uuid.NewString()[:8]
	}
	p.CreatedAt = time.Now().UTC().Truncate(time.Second)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plans (id, name, price_cents, duration_days, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.PriceCents, p.DurationDays, p.Description, p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("creating plan: %w", err)
	}
	return nil
}

// GetByID retrieves a plan.
func (r *SQLitePlanRepository) GetByID(ctx context.Context, id string) (*Plan, error) {
	return getPlan(ctx, r.db, id)
}

// List returns all plans, cheapest first.
func (r *SQLitePlanRepository) List(ctx context.Context) ([]Plan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, price_cents, duration_days, description, created_at
		 FROM plans ORDER BY price_cents, name`)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer rows.Close()

	plans := []Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plans: %w", err)
	}
	return plans, nil
}

// Delete removes a plan. Plans referenced by any subscription are kept
// and ErrPlanInUse is returned.
func (r *SQLitePlanRepository) Delete(ctx context.Context, id string) error {
	var inUse int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM subscriptions WHERE plan_id = ?", id).Scan(&inUse); err != nil {
		return fmt.Errorf("checking plan usage: %w", err)
	}
	if inUse > 0 {
		return ErrPlanInUse
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM plans WHERE id = ?", id)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return ErrPlanInUse
		}
		return fmt.Errorf("deleting plan %s: %w", id, err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getPlan(ctx context.Context, q queryer, id string) (*Plan, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, price_cents, duration_days, description, created_at
		 FROM plans WHERE id = ?`, id)

	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting plan %s: %w", id, err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(s scanner) (*Plan, error) {
	var p Plan
	var createdAt string
	if err := s.Scan(&p.ID, &p.Name, &p.PriceCents, &p.DurationDays, &p.Description, &createdAt); err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &p, nil
}
