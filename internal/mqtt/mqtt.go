// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/keypad/internal/logic"
)

// DefaultTopicPrefix is the root of every topic published by the monitor.
const DefaultTopicPrefix = "keypad"

// Topics names the topics one keypad publishes to.
type Topics struct {
	Events string // key transitions
	System string // lifecycle events
}

// TopicsFor returns the topics for a keypad named name:
// keypad/<name>/events and keypad/<name>/system.
func TopicsFor(name string) Topics {
	base := DefaultTopicPrefix + "/" + name
	return Topics{
		Events: base + "/events",
		System: base + "/system",
	}
}

// Message is one MQTT message in wire form.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// eventMessage routes a key event to t.Events at QoS 0, not retained.
func eventMessage(t Topics, event logic.Event) (Message, error) {
	payload, err := FormatPayload(event)
	if err != nil {
		return Message{}, fmt.Errorf("format payload: %w", err)
	}
	return Message{Topic: t.Events, Payload: payload}, nil
}

// systemMessage routes a lifecycle event to t.System at QoS 1.
func systemMessage(t Topics, event SystemEvent) (Message, error) {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return Message{}, fmt.Errorf("format system payload: %w", err)
	}
	return Message{Topic: t.System, Payload: payload, QoS: 1, Retained: event.Retained}, nil
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a key event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Key KeyPayload `json:"key"`
}

// KeyPayload contains the key event details.
type KeyPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Row       int    `json:"row"`
	Col       int    `json:"col"`
}

// FormatPayload creates the JSON payload for a key event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Key: KeyPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:     string(event.Type),
			Row:       event.Key.Row,
			Col:       event.Key.Col,
		},
	}
	return json.Marshal(payload)
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
