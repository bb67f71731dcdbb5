package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gymdesk/internal/infrastructure/mqtt"
)

// MQTTPublisher is the part of mqtt.Client the MQTT sink uses.
type MQTTPublisher interface {
	PublishJSON(topic string, v any) error
	Topics() mqtt.Topics
}

// MQTTSink publishes each event as JSON on <prefix>/events/<type>.
type MQTTSink struct {
	client MQTTPublisher
}

// NewMQTTSink creates an MQTT sink.
func NewMQTTSink(client MQTTPublisher) *MQTTSink {
	return &MQTTSink{client: client}
}

// Emit implements Sink.
func (s *MQTTSink) Emit(_ context.Context, ev Event) error {
	if err := s.client.PublishJSON(s.client.Topics().Event(ev.Type), ev); err != nil {
		return fmt.Errorf("publishing %s: %w", ev.Type, err)
	}
	return nil
}

// InfluxWriter is the part of influxdb.Client the Influx sink uses.
type InfluxWriter interface {
	WriteEvent(eventType, userID string, amount float64, at time.Time)
}

// InfluxSink counts events in InfluxDB.
type InfluxSink struct {
	client InfluxWriter
}

// NewInfluxSink creates an InfluxDB sink.
func NewInfluxSink(client InfluxWriter) *InfluxSink {
	return &InfluxSink{client: client}
}

// Emit implements Sink. Writes are batched by the client, so this never fails.
func (s *InfluxSink) Emit(_ context.Context, ev Event) error {
	s.client.WriteEvent(ev.Type, ev.UserID, ev.Amount(), ev.At)
	return nil
}
