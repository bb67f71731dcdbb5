package routine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gymdesk/internal/infrastructure/database"
)

// Repository defines persistence for routines and exercises.
type Repository interface {
	Create(ctx context.Context, r *Routine) error
	GetByID(ctx context.Context, id string) (*Routine, error)
	List(ctx context.Context) ([]Routine, error)
	ListByIDs(ctx context.Context, ids []string) ([]Routine, error)
	Delete(ctx context.Context, id string) error
	AddExercise(ctx context.Context, e *Exercise) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed routine repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a routine. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rt *Routine) error {
	if err := ValidateRoutine(rt); err != nil {
		return err
	}
	if rt.ID == "" {
		rt.ID = "rtn-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Truncate(time.Second)
	rt.CreatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO routines (id, name, description, frequency, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rt.ID, rt.Name, rt.Description, rt.Frequency, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("creating routine: %w", err)
	}
	return nil
}

// GetByID returns a routine with its exercises in position order.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Routine, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, description, frequency, created_at FROM routines WHERE id = ?", id)

	rt, err := scanRoutine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoutineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting routine %s: %w", id, err)
	}

	exercises, err := r.listExercises(ctx, id)
	if err != nil {
		return nil, err
	}
	rt.Exercises = exercises
	return rt, nil
}

// List returns every routine by name, without exercises.
func (r *SQLiteRepository) List(ctx context.Context) ([]Routine, error) {
	return r.query(ctx, "SELECT id, name, description, frequency, created_at FROM routines ORDER BY name, id")
}

// ListByIDs returns the routines with the given IDs by name. Unknown IDs are skipped.
func (r *SQLiteRepository) ListByIDs(ctx context.Context, ids []string) ([]Routine, error) {
	if len(ids) == 0 {
		return []Routine{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return r.query(ctx,
		"SELECT id, name, description, frequency, created_at FROM routines WHERE id IN ("+placeholders+") ORDER BY name, id",
		args...)
}

// Delete removes a routine. Exercises and assignments cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM routines WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting routine %s: %w", id, err)
	}
	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRoutineNotFound
	}
	return nil
}

// AddExercise appends an exercise to the end of a routine.
func (r *SQLiteRepository) AddExercise(ctx context.Context, e *Exercise) error {
	if err := ValidateExercise(e); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = "exr-" + uuid.NewString()[:8]
	}

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM routines WHERE id = ?", e.RoutineID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoutineNotFound
		}
		if err != nil {
			return fmt.Errorf("checking routine: %w", err)
		}

		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(position), 0) + 1 FROM exercises WHERE routine_id = ?", e.RoutineID,
		).Scan(&e.Position); err != nil {
			return fmt.Errorf("computing exercise position: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exercises (id, routine_id, name, sets, reps, weight, notes, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.RoutineID, e.Name, e.Sets, e.Reps, e.Weight, e.Notes, e.Position,
		); err != nil {
			return fmt.Errorf("adding exercise: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) listExercises(ctx context.Context, routineID string) ([]Exercise, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, routine_id, name, sets, reps, weight, notes, position
		 FROM exercises WHERE routine_id = ? ORDER BY position, id`, routineID)
	if err != nil {
		return nil, fmt.Errorf("listing exercises: %w", err)
	}
	defer rows.Close()

	exercises := []Exercise{}
	for rows.Next() {
		var e Exercise
		if err := rows.Scan(&e.ID, &e.RoutineID, &e.Name, &e.Sets, &e.Reps, &e.Weight, &e.Notes, &e.Position); err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		exercises = append(exercises, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating exercises: %w", err)
	}
	return exercises, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Routine, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing routines: %w", err)
	}
	defer rows.Close()

	routines := []Routine{}
	for rows.Next() {
		rt, err := scanRoutine(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning routine: %w", err)
		}
		routines = append(routines, *rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating routines: %w", err)
	}
	return routines, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoutine(s scanner) (*Routine, error) {
	var rt Routine
	var createdAt string
	if err := s.Scan(&rt.ID, &rt.Name, &rt.Description, &rt.Frequency, &createdAt); err != nil {
		return nil, err
	}
	rt.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &rt, nil
}
