// Package status provides a thread-safe status tracker for the keypad-monitor daemon.
// It is read by the HTTP handlers and by the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/keypad/internal/logic"
	"github.com/sweeney/keypad/keypad"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Name        string
	Driver      string
	Rows        int
	Cols        int
	PollMs      int64
	DebounceMs  int64
	HeartbeatMs int64
	SettleUs    int64
	Broker      string
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Keys          [][]logic.State // [row][col]; "" until baselined
	Baselined     bool
	Counts        logic.EventCounts
	Scan          keypad.Stats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Held returns the keys reported DOWN, in row-major order.
func (s Snapshot) Held() []keypad.Coord {
	var out []keypad.Coord
	for r, row := range s.Keys {
		for c, st := range row {
			if st == logic.StateDown {
				out = append(out, keypad.Coord{Row: r, Col: c})
			}
		}
	}
	return out
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets key states, baseline status, and event counts.
// Called from runLoop on every tick. keys is copied.
func (t *Tracker) Update(keys [][]logic.State, baselined bool, counts logic.EventCounts) {
	cp := make([][]logic.State, len(keys))
	for r := range keys {
		cp[r] = append([]logic.State(nil), keys[r]...)
	}
	t.mu.Lock()
	t.snap.Keys = cp
	t.snap.Baselined = baselined
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetScanStats records the matrix scan counters.
func (t *Tracker) SetScanStats(s keypad.Stats) {
	t.mu.Lock()
	t.snap.Scan = s
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
