package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Keys          [][]string   `json:"keys"`
	Held          []string     `json:"held"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Scan          ScanJSON     `json:"scan"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	KeyDown int `json:"key_down"`
	KeyUp   int `json:"key_up"`
}

// ScanJSON is the JSON representation of matrix scan counters.
type ScanJSON struct {
	Scans    uint64 `json:"scans"`
	Failures uint64 `json:"failures"`
	Rejected uint64 `json:"rejected"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Name        string `json:"name"`
	Driver      string `json:"driver"`
	Rows        int    `json:"rows"`
	Cols        int    `json:"cols"`
	PollMs      int64  `json:"poll_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	SettleUs    int64  `json:"settle_us"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

// StateOrUnknown maps a key state to its display form.
func StateOrUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	keys := make([][]string, snap.Config.Rows)
	for r := range keys {
		keys[r] = make([]string, snap.Config.Cols)
		for c := range keys[r] {
			var st string
			if r < len(snap.Keys) && c < len(snap.Keys[r]) {
				st = string(snap.Keys[r][c])
			}
			keys[r][c] = StateOrUnknown(st)
		}
	}

	held := []string{}
	for _, k := range snap.Held() {
		held = append(held, k.String())
	}

	return StatusInner{
		Keys:          keys,
		Held:          held,
		Ready:         snap.Baselined,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			KeyDown: snap.Counts.Down,
			KeyUp:   snap.Counts.Up,
		},
		Scan: ScanJSON{
			Scans:    snap.Scan.Scans,
			Failures: snap.Scan.Failures,
			Rejected: snap.Scan.Rejected,
		},
		Config: ConfigJSON{
			Name:        snap.Config.Name,
			Driver:      snap.Config.Driver,
			Rows:        snap.Config.Rows,
			Cols:        snap.Config.Cols,
			PollMs:      snap.Config.PollMs,
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			SettleUs:    snap.Config.SettleUs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
