package logic

import (
	"time"

	"github.com/sweeney/keypad/keypad"
)

// Detector tracks per-key state and detects debounced transitions.
type Detector struct {
	debounceDuration time.Duration
	keys             [][]KeyState
	baselined        bool
	startTime        time.Time
	eventCounts      EventCounts
	lastHeartbeat    time.Time
}

// NewDetector creates a detector for a rows x cols keypad with the given
// debounce duration. The startTime is used for calculating uptime in
// heartbeat events.
func NewDetector(rows, cols int, debounceDuration time.Duration, startTime time.Time) *Detector {
	keys := make([][]KeyState, rows)
	for r := range keys {
		keys[r] = make([]KeyState, cols)
	}
	return &Detector{
		debounceDuration: debounceDuration,
		keys:             keys,
		startTime:        startTime,
		lastHeartbeat:    startTime,
	}
}

// Process takes a new input sample and returns any events that should be emitted.
// Events are only returned after every key is baselined, in row-major order.
// Keys missing from a short input are left untouched.
func (d *Detector) Process(input Input) []Event {
	var events []Event

	for r := range d.keys {
		if r >= len(input.Pressed) {
			break
		}
		for c := range d.keys[r] {
			if c >= len(input.Pressed[r]) {
				break
			}
			ks := &d.keys[r][c]
			if t := d.processKey(ks, boolToState(input.Pressed[r][c]), input.Time); t != nil {
				events = append(events, Event{
					Timestamp: input.Time,
					Type:      *t,
					Key:       keypad.Coord{Row: r, Col: c},
				})
			}
		}
	}

	// Check if we've established baseline
	if !d.baselined {
		if d.allBaselined() {
			d.baselined = true
		}
		return nil // No events until baseline established
	}

	for _, e := range events {
		switch e.Type {
		case EventKeyDown:
			d.eventCounts.Down++
		case EventKeyUp:
			d.eventCounts.Up++
		}
	}

	return events
}

func (d *Detector) allBaselined() bool {
	for _, row := range d.keys {
		for _, ks := range row {
			if !ks.Baselined {
				return false
			}
		}
	}
	return true
}

// processKey handles debounce logic for a single key.
// Returns the event type if a transition occurred, nil otherwise.
func (d *Detector) processKey(ks *KeyState, newState State, now time.Time) *EventType {
	// First time seeing this key
	if !ks.Baselined {
		if ks.Pending != newState {
			// Start observing, or state changed during baseline: restart
			ks.Pending = newState
			ks.PendingSince = now
		}

		// Check if debounce period has passed
		if now.Sub(ks.PendingSince) >= d.debounceDuration {
			ks.Stable = newState
			ks.Baselined = true
			ks.Pending = ""
		}
		return nil
	}

	// Already baselined - detect transitions
	if newState == ks.Stable {
		// No change from stable state, clear any pending
		ks.Pending = ""
		return nil
	}

	// State differs from stable
	if ks.Pending != newState {
		ks.Pending = newState
		ks.PendingSince = now
	}

	if now.Sub(ks.PendingSince) >= d.debounceDuration {
		ks.Stable = newState
		ks.Pending = ""
		event := EventKeyUp
		if newState == StateDown {
			event = EventKeyDown
		}
		return &event
	}

	return nil
}

func boolToState(pressed bool) State {
	if pressed {
		return StateDown
	}
	return StateUp
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// CurrentState returns a copy of the stable key states, [row][col].
// Keys without a baseline report "".
func (d *Detector) CurrentState() [][]State {
	out := make([][]State, len(d.keys))
	for r, row := range d.keys {
		out[r] = make([]State, len(row))
		for c, ks := range row {
			out[r][c] = ks.Stable
		}
	}
	return out
}

// Held returns the keys whose stable state is DOWN, in row-major order.
func (d *Detector) Held() []keypad.Coord {
	var out []keypad.Coord
	for r, row := range d.keys {
		for c, ks := range row {
			if ks.Stable == StateDown {
				out = append(out, keypad.Coord{Row: r, Col: c})
			}
		}
	}
	return out
}

// EventCountsSnapshot returns the event counters.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet baselined, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !d.baselined {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
