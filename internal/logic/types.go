// Package logic contains pure business logic for keypad state tracking.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"time"

	"github.com/sweeney/keypad/keypad"
)

// State represents the logical state of a key.
type State string

const (
	StateDown State = "DOWN"
	StateUp   State = "UP"
)

// EventType represents a state transition event.
type EventType string

const (
	EventKeyDown EventType = "KEY_DOWN"
	EventKeyUp   EventType = "KEY_UP"
)

// Event represents a key transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Key       keypad.Coord
}

// KeyState tracks debounce state for a single key.
type KeyState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Input represents one pass over every key of the matrix.
type Input struct {
	Pressed [][]bool // [row][col], true = key held down
	Time    time.Time
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Down int
	Up   int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
