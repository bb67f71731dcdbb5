// Package mqtt announces domain events on an MQTT broker for door
// controllers and lobby displays. Nothing is subscribed.
//
//	<prefix>/events/<type>   JSON event
//	<prefix>/system/status   retained online/offline, doubles as the LWT
package mqtt
