// Package events fans domain events out to the live feed, MQTT and InfluxDB.
//
// Domain services publish onto a Bus without waiting for any sink. The Bus
// drains on its own goroutine so a slow broker never delays a check-in.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeAttendanceCheckedIn = "attendance.checked_in"
	TypePaymentRecorded     = "payment.recorded"
	TypeUserCreated         = "user.created"
)

// Event is one thing that happened at the gym.
type Event struct {
	Type   string         `json:"type"`
	At     time.Time      `json:"at"`
	UserID string         `json:"user_id,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Amount returns Data["amount"] as a float, or 0.
func (e Event) Amount() float64 {
	switch v := e.Data["amount"].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// Sink receives events from the Bus.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Publisher is what domain services depend on.
type Publisher interface {
	Publish(ev Event)
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}
