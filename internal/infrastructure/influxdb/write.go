package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementEvents is the measurement every gym event is written to.
const MeasurementEvents = "gym_events"

// NewEventPoint builds one gym_events point. Each event counts 1; amount is
// added as a field only when positive (payments).
func NewEventPoint(eventType, userID string, amount float64, at time.Time) *write.Point {
	tags := map[string]string{"type": eventType}
	if userID != "" {
		tags["user_id"] = userID
	}

	fields := map[string]interface{}{"count": 1}
	if amount > 0 {
		fields["amount"] = amount
	}

	return write.NewPoint(MeasurementEvents, tags, fields, at)
}

// WriteEvent queues one gym_events point. It is a no-op once closed.
func (c *Client) WriteEvent(eventType, userID string, amount float64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(NewEventPoint(eventType, userID, amount, at))
}
