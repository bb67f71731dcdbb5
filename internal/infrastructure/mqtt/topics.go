package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "gymdesk"

// Topics builds Gym Desk MQTT topics under a configurable prefix.
//
//	topics := mqtt.NewTopics("gymdesk")
//	topics.Event("attendance.checked_in")
//	// Returns: "gymdesk/events/attendance.checked_in"
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder. Trailing slashes on prefix are dropped.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string {
	return t.prefix
}

// Event returns the topic for a domain event.
//
// Example: gymdesk/events/payment.recorded
func (t Topics) Event(eventType string) string {
	return t.prefix + "/events/" + eventType
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: gymdesk/system/status
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}

// AllEvents returns a pattern matching every domain event.
//
// Pattern: gymdesk/events/+
func (t Topics) AllEvents() string {
	return t.prefix + "/events/+"
}
