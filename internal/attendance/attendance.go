// Package attendance records QR check-ins at the front desk.
//
// A check-in resolves the scanned payload against users.qr_code by exact
// match. The payload is an opaque UUID and never the member's email.
package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gymdesk/internal/auth"
	"github.com/nerrad567/gymdesk/internal/events"
)

// ErrUnknownCode is returned when no member carries the scanned code.
var ErrUnknownCode = errors.New("member not found")

// QRLookup is the slice of auth.UserRepository check-in needs.
type QRLookup interface {
	GetByQRCode(ctx context.Context, qrCode string) (*auth.User, error)
}

// Record is one stored check-in.
type Record struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// Result describes a successful check-in.
type Result struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	CheckedInAt time.Time `json:"checked_in_at"`
	LocalTime   string    `json:"time"` // HH:MM in the site timezone
}

// Service records and reads attendance.
type Service struct {
	db     *sql.DB
	users  QRLookup
	events events.Publisher
	loc    *time.Location
	now    func() time.Time
}

// NewService creates an attendance service. loc is the site timezone used
// for the local time shown at the kiosk; nil means UTC.
func NewService(db *sql.DB, users QRLookup, publisher events.Publisher, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{
		db:     db,
		users:  users,
		events: publisher,
		loc:    loc,
		now:    time.Now,
	}
}

// CheckIn records one attendance row for the member holding qrCode.
// An unknown code writes nothing and returns ErrUnknownCode.
func (s *Service) CheckIn(ctx context.Context, qrCode string) (*Result, error) {
	if qrCode == "" {
		return nil, ErrUnknownCode
	}

	user, err := s.users.GetByQRCode(ctx, qrCode)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, ErrUnknownCode
	}
	if err != nil {
		return nil, fmt.Errorf("resolving qr code: %w", err)
	}

	now := s.now().UTC().Truncate(time.Second)
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO attendance (id, user_id, checked_in_at) VALUES (?, ?, ?)",
		"att-"+uuid.NewString(), user.ID, now.Format(time.RFC3339),
	); err != nil {
		return nil, fmt.Errorf("recording attendance: %w", err)
	}

	s.events.Publish(events.Event{
		Type:   events.TypeAttendanceCheckedIn,
		At:     now,
		UserID: user.ID,
		Data:   map[string]any{"name": user.Name},
	})

	return &Result{
		UserID:      user.ID,
		Name:        user.Name,
		CheckedInAt: now,
		LocalTime:   now.In(s.loc).Format("15:04"),
	}, nil
}

// ListByUser returns a member's most recent check-ins, newest first.
// A non-positive limit returns all of them.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	query := "SELECT id, user_id, checked_in_at FROM attendance WHERE user_id = ? ORDER BY checked_in_at DESC, id"
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing attendance: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var at string
		if err := rows.Scan(&r.ID, &r.UserID, &at); err != nil {
			return nil, fmt.Errorf("scanning attendance: %w", err)
		}
		r.CheckedInAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // format is controlled
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attendance: %w", err)
	}
	return records, nil
}

// CountSince returns the number of check-ins at or after t.
func (s *Service) CountSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM attendance WHERE checked_in_at >= ?",
		t.UTC().Format(time.RFC3339)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting attendance: %w", err)
	}
	return n, nil
}
