// Package audit records security-relevant actions in the audit_logs table
// and lists them for administrators.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Actions recorded in the audit trail.
const (
	ActionLogin           = "login"
	ActionLoginFailed     = "login_failed"
	ActionLogout          = "logout"
	ActionPasswordChanged = "password_changed"
	ActionCreate          = "create"
	ActionDelete          = "delete"
	ActionAssign          = "assign"
	ActionUnassign        = "unassign"
	ActionPayment         = "payment"
	ActionCheckIn         = "checkin"
)

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	UserID     string
	Limit      int // DefaultLimit when zero, capped at MaxLimit
	Offset     int
}

// where renders the filter as a parameterised WHERE clause.
func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	for _, c := range []struct{ col, val string }{
		{"action", f.Action},
		{"entity_type", f.EntityType},
		{"entity_id", f.EntityID},
		{"user_id", f.UserID},
	} {
		if c.val != "" {
			conds = append(conds, c.col+" = ?")
			args = append(args, c.val)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (f Filter) page() (limit, offset int) {
	limit, offset = f.Limit, max(f.Offset, 0)
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return limit, offset
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: sqlx.NewDb(db, "sqlite3")}
}

// auditRow mirrors an audit_logs row.
type auditRow struct {
	ID         string         `db:"id"`
	Action     string         `db:"action"`
	EntityType string         `db:"entity_type"`
	EntityID   sql.NullString `db:"entity_id"`
	UserID     sql.NullString `db:"user_id"`
	Source     string         `db:"source"`
	Details    sql.NullString `db:"details"`
	CreatedAt  string         `db:"created_at"`
}

func optional(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (row auditRow) entry() (AuditLog, error) {
	at, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return AuditLog{}, fmt.Errorf("parsing audit log timestamp %q: %w", row.CreatedAt, err)
	}
	log := AuditLog{
		ID:         row.ID,
		Action:     row.Action,
		EntityType: row.EntityType,
		EntityID:   row.EntityID.String,
		UserID:     row.UserID.String,
		Source:     row.Source,
		CreatedAt:  at,
	}
	if row.Details.String != "" {
		// Unreadable details are dropped; the entry itself is still useful.
		_ = json.Unmarshal([]byte(row.Details.String), &log.Details) //nolint:errcheck // see above
	}
	return log, nil
}

// Create inserts an entry, filling in ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	row := auditRow{
		ID:         log.ID,
		Action:     log.Action,
		EntityType: log.EntityType,
		EntityID:   optional(log.EntityID),
		UserID:     optional(log.UserID),
		Source:     log.Source,
		CreatedAt:  log.CreatedAt.UTC().Format(time.RFC3339),
	}
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		row.Details = optional(string(b))
	}

	if _, err := r.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, source, details, created_at)
		VALUES (:id, :action, :entity_type, :entity_id, :user_id, :source, :details, :created_at)`, row); err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns matching entries, newest first, with the unpaged total.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	where, args := filter.where()
	limit, offset := filter.page()

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_logs"+where, args...); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows,
		"SELECT * FROM audit_logs"+where+" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	); err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}

	result := &ListResult{Logs: make([]AuditLog, 0, len(rows)), Total: total, Limit: limit, Offset: offset}
	for _, row := range rows {
		log, err := row.entry()
		if err != nil {
			return nil, err
		}
		result.Logs = append(result.Logs, log)
	}
	return result, nil
}
