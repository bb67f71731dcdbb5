package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// UserRepository stores accounts of every role.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByQRCode(ctx context.Context, qrCode string) (*User, error)
	List(ctx context.Context) ([]User, error)
	ListByRole(ctx context.Context, role Role) ([]User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	CountByRole(ctx context.Context, role Role) (int, error)
}

// SQLiteUserRepository is the users table.
type SQLiteUserRepository struct {
	db *sqlx.DB
}

// NewUserRepository wraps an open pool. The pool is shared, not owned.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: sqlx.NewDb(db, "sqlite3")}
}

const selectUser = `SELECT id, name, email, role, password_hash, must_change_password,
	qr_code, created_at, updated_at FROM users`

// userRow mirrors a users row. Timestamps are RFC 3339 text.
type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Email        string         `db:"email"`
	Role         string         `db:"role"`
	PasswordHash sql.NullString `db:"password_hash"`
	MustChange   bool           `db:"must_change_password"`
	QRCode       string         `db:"qr_code"`
	CreatedAt    string         `db:"created_at"`
	UpdatedAt    string         `db:"updated_at"`
}

func (row userRow) user() User {
	u := User{
		ID:                 row.ID,
		Name:               row.Name,
		Email:              row.Email,
		Role:               Role(row.Role),
		PasswordHash:       row.PasswordHash.String,
		MustChangePassword: row.MustChange,
		QRCode:             row.QRCode,
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, row.CreatedAt) //nolint:errcheck // written by this package
	u.UpdatedAt, _ = time.Parse(time.RFC3339, row.UpdatedAt) //nolint:errcheck // written by this package
	return u
}

func newUserRow(u *User, stamp string) userRow {
	return userRow{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         string(u.Role),
		PasswordHash: nullString(u.PasswordHash),
		MustChange:   u.MustChangePassword,
		QRCode:       u.QRCode,
		CreatedAt:    stamp,
		UpdatedAt:    stamp,
	}
}

// stamp returns now truncated to the stored precision, plus its text form.
func stamp() (time.Time, string) {
	now := time.Now().UTC().Truncate(time.Second)
	return now, now.Format(time.RFC3339)
}

// Create inserts user, filling in the ID and check-in code when empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if !IsValidRole(user.Role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, user.Role)
	}
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	if user.QRCode == "" {
		user.QRCode = uuid.NewString()
	}

	now, text := stamp()
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO users
		(id, name, email, role, password_hash, must_change_password, qr_code, created_at, updated_at)
		VALUES (:id, :name, :email, :role, :password_hash, :must_change_password, :qr_code, :created_at, :updated_at)`,
		newUserRow(user, text))
	if err != nil {
		return mapUserConstraint(err, "creating user")
	}
	user.CreatedAt, user.UpdatedAt = now, now
	return nil
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.one(ctx, selectUser+" WHERE id = ?", id)
}

// GetByEmail matches the address exactly, case included.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.one(ctx, selectUser+" WHERE email = ?", email)
}

// GetByQRCode resolves a scanned check-in payload. An empty payload never
// matches.
func (r *SQLiteUserRepository) GetByQRCode(ctx context.Context, qrCode string) (*User, error) {
	if qrCode == "" {
		return nil, ErrUserNotFound
	}
	return r.one(ctx, selectUser+" WHERE qr_code = ?", qrCode)
}

// List returns every account, oldest first.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	return r.many(ctx, selectUser+" ORDER BY created_at, name")
}

// ListByRole returns the accounts holding role, by name.
func (r *SQLiteUserRepository) ListByRole(ctx context.Context, role Role) ([]User, error) {
	return r.many(ctx, selectUser+" WHERE role = ? ORDER BY name", string(role))
}

// Update writes name, email, role and check-in code. Password state is
// changed only through UpdatePassword.
func (r *SQLiteUserRepository) Update(ctx context.Context, user *User) error {
	if !IsValidRole(user.Role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, user.Role)
	}

	now, text := stamp()
	res, err := r.db.NamedExecContext(ctx, `UPDATE users
		SET name = :name, email = :email, role = :role, qr_code = :qr_code, updated_at = :updated_at
		WHERE id = :id`, newUserRow(user, text))
	if err != nil {
		return mapUserConstraint(err, "updating user")
	}
	if err := expectOne(res); err != nil {
		return err
	}
	user.UpdatedAt = now
	return nil
}

// UpdatePassword sets the hash and the forced-change flag together.
func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool) error {
	_, text := stamp()
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, must_change_password = ?, updated_at = ? WHERE id = ?",
		nullString(passwordHash), mustChange, text, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return expectOne(res)
}

// Delete removes the account. Routine assignments, subscriptions, payments
// and visits go with it through ON DELETE CASCADE.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return expectOne(res)
}

func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

func (r *SQLiteUserRepository) CountByRole(ctx context.Context, role Role) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users WHERE role = ?", string(role)); err != nil {
		return 0, fmt.Errorf("counting %s users: %w", role, err)
	}
	return n, nil
}

func (r *SQLiteUserRepository) one(ctx context.Context, query string, args ...any) (*User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	u := row.user()
	return &u, nil
}

func (r *SQLiteUserRepository) many(ctx context.Context, query string, args ...any) ([]User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	users := make([]User, len(rows))
	for i, row := range rows {
		users[i] = row.user()
	}
	return users, nil
}

// expectOne turns a statement that touched no row into ErrUserNotFound.
func expectOne(res sql.Result) error {
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always supported by go-sqlite3
		return ErrUserNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// mapUserConstraint converts a UNIQUE failure on email or qr_code into its
// sentinel and wraps anything else.
func mapUserConstraint(err error, op string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		switch msg := sqliteErr.Error(); {
		case strings.Contains(msg, "users.email"):
			return ErrEmailExists
		case strings.Contains(msg, "users.qr_code"):
			return ErrQRCodeExists
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
