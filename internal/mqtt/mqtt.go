// Package mqtt mirrors log records and lifecycle events to an MQTT broker,
// with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/lora-logger/internal/logic"
	"github.com/sweeney/lora-logger/internal/status"
)

// Topic is the MQTT topic for log records.
const Topic = "lora/logger/records"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "lora/logger/system"

// Publisher publishes records to MQTT.
type Publisher interface {
	// Publish mirrors one log record to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(rec logic.Record) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown, reconnect).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for a record.
type Payload struct {
	Record status.RecordJSON `json:"record"`
}

// FormatPayload creates the JSON payload for a log record.
func FormatPayload(rec logic.Record) ([]byte, error) {
	return json.Marshal(Payload{Record: status.NewRecordJSON(rec)})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(logic.Record) error { return nil }

// PublishSystem does nothing.
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// IsConnected always returns false.
func (NopPublisher) IsConnected() bool { return false }
