package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// RoutineAccessRepository defines the interface for user↔routine assignments.
// An assignment is the only basis for a non-admin's read access to a routine.
type RoutineAccessRepository interface {
	Assign(ctx context.Context, userID, routineID, assignedBy string) error
	Unassign(ctx context.Context, userID, routineID string) error
	IsAssigned(ctx context.Context, userID, routineID string) (bool, error)
	ListRoutineIDs(ctx context.Context, userID string) ([]string, error)
	ListAssignments(ctx context.Context, userID string) ([]RoutineAssignment, error)
	SetAssignments(ctx context.Context, userID string, routineIDs []string, assignedBy string) error
}

// ErrAssignmentTarget is returned when the user or routine does not exist.
var ErrAssignmentTarget = errors.New("user or routine does not exist")

// SQLiteRoutineAccessRepository implements RoutineAccessRepository using SQLite.
type SQLiteRoutineAccessRepository struct {
	db *sql.DB
}

// NewRoutineAccessRepository creates a new SQLite-backed assignment repository.
func NewRoutineAccessRepository(db *sql.DB) *SQLiteRoutineAccessRepository {
	return &SQLiteRoutineAccessRepository{db: db}
}

// Assign links a user to a routine. Assigning twice is a no-op.
func (r *SQLiteRoutineAccessRepository) Assign(ctx context.Context, userID, routineID, assignedBy string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_routines (user_id, routine_id, assigned_by, assigned_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, routine_id) DO NOTHING`,
		userID, routineID, nullString(assignedBy), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrAssignmentTarget
		}
		return fmt.Errorf("assigning routine %s: %w", routineID, err)
	}
	return nil
}

// Unassign removes a link. Removing a missing link returns ErrNotAssigned.
func (r *SQLiteRoutineAccessRepository) Unassign(ctx context.Context, userID, routineID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM user_routines WHERE user_id = ? AND routine_id = ?", userID, routineID)
	if err != nil {
		return fmt.Errorf("unassigning routine %s: %w", routineID, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotAssigned
	}
	return nil
}

// IsAssigned reports whether userID is linked to routineID.
func (r *SQLiteRoutineAccessRepository) IsAssigned(ctx context.Context, userID, routineID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM user_routines WHERE user_id = ? AND routine_id = ?", userID, routineID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking routine assignment: %w", err)
	}
	return true, nil
}

// ListRoutineIDs returns just the routine IDs assigned to a user.
func (r *SQLiteRoutineAccessRepository) ListRoutineIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT routine_id FROM user_routines WHERE user_id = ? ORDER BY assigned_at, routine_id", userID)
	if err != nil {
		return nil, fmt.Errorf("listing assigned routines: %w", err)
	}
	defer rows.Close()

	var routineIDs []string
	for rows.Next() {
		var routineID string
		if err := rows.Scan(&routineID); err != nil {
			return nil, fmt.Errorf("scanning routine ID: %w", err)
		}
		routineIDs = append(routineIDs, routineID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating routine IDs: %w", err)
	}

	if routineIDs == nil {
		routineIDs = []string{}
	}
	return routineIDs, nil
}

// ListAssignments returns the full assignment rows for a user.
func (r *SQLiteRoutineAccessRepository) ListAssignments(ctx context.Context, userID string) ([]RoutineAssignment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, routine_id, assigned_by, assigned_at
		 FROM user_routines WHERE user_id = ? ORDER BY assigned_at, routine_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoutineAssignment
	for rows.Next() {
		var a RoutineAssignment
		var assignedBy sql.NullString
		var assignedAt string

		if err := rows.Scan(&a.UserID, &a.RoutineID, &assignedBy, &assignedAt); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		if assignedBy.Valid {
			a.AssignedBy = assignedBy.String
		}
		a.AssignedAt, _ = time.Parse(time.RFC3339, assignedAt) //nolint:errcheck // format is controlled

		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}

	if assignments == nil {
		assignments = []RoutineAssignment{}
	}
	return assignments, nil
}

// SetAssignments replaces all of a user's assignments in one transaction.
// Pass an empty slice to remove every assignment.
func (r *SQLiteRoutineAccessRepository) SetAssignments(ctx context.Context, userID string, routineIDs []string, assignedBy string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM user_routines WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clearing assignments: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range routineIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_routines (user_id, routine_id, assigned_by, assigned_at)
			 VALUES (?, ?, ?, ?) ON CONFLICT (user_id, routine_id) DO NOTHING`,
			userID, id, nullString(assignedBy), now); err != nil {
			if isForeignKeyViolation(err) {
				return ErrAssignmentTarget
			}
			return fmt.Errorf("assigning routine %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing assignments: %w", err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
