package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/keypad/internal/logic"
	"github.com/sweeney/keypad/internal/mqtt"
	"github.com/sweeney/keypad/internal/status"
	"github.com/sweeney/keypad/internal/web"
	"github.com/sweeney/keypad/keypad"
)

type runOptions struct {
	poll      time.Duration
	debounce  time.Duration
	heartbeat time.Duration
	broker    string
	httpAddr  string
}

func newRunCmd(o *options) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan continuously and publish key events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(o, ro)
		},
	}
	f := cmd.Flags()
	f.DurationVar(&ro.poll, "poll", 10*time.Millisecond, "matrix polling interval")
	f.DurationVar(&ro.debounce, "debounce", 30*time.Millisecond, "debounce duration")
	f.DurationVar(&ro.heartbeat, "heartbeat", 15*time.Minute, "heartbeat interval (0 to disable)")
	f.StringVar(&ro.broker, "broker", "tcp://127.0.0.1:1883", "MQTT broker address")
	f.StringVar(&ro.httpAddr, "http", ":8080", "HTTP status address (empty to disable)")
	return cmd
}

func run(o *options, ro *runOptions) error {
	log := o.log

	m, hw, err := openMatrix(o)
	if err != nil {
		return err
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.Warnf("close %s pins: %v", o.driver, err)
		}
	}()

	keys, err := m.Decompose()
	if err != nil {
		return fmt.Errorf("decompose matrix: %w", err)
	}
	defer func() {
		if _, _, err := m.Release(keys); err != nil {
			log.Warnf("release matrix: %v", err)
		}
	}()

	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   ro.broker,
		ClientID: "keypad-monitor-" + o.name,
		Topics:   mqtt.TopicsFor(o.name),
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Name:        o.name,
		Driver:      o.driver,
		Rows:        m.Rows(),
		Cols:        m.Cols(),
		PollMs:      ro.poll.Milliseconds(),
		DebounceMs:  ro.debounce.Milliseconds(),
		HeartbeatMs: ro.heartbeat.Milliseconds(),
		SettleUs:    m.Settle().Microseconds(),
		Broker:      ro.broker,
		HTTPAddr:    ro.httpAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warnf("failed to publish startup event: %v", err)
	} else {
		log.Infof("published startup event")
	}

	if ro.httpAddr != "" {
		srv := web.New(ro.httpAddr, tracker, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", ro.httpAddr)
	}

	log.Infow("started",
		"keypad", o.name,
		"driver", o.driver,
		"size", fmt.Sprintf("%dx%d", m.Rows(), m.Cols()),
		"policy", m.Policy(),
		"poll", ro.poll,
		"debounce", ro.debounce,
		"heartbeat", ro.heartbeat,
		"broker", ro.broker,
	)

	ticker := time.NewTicker(ro.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(log, m, keys, publisher, publisher, tracker, ro.debounce, ro.heartbeat, time.Now, ticker.C, sigCh)
}

// readKeys reads every key through its own pin, row by row.
func readKeys(keys keypad.Grid) ([][]bool, error) {
	out := make([][]bool, len(keys))
	for r, row := range keys {
		out[r] = make([]bool, len(row))
		for c, k := range row {
			pressed, err := k.IsLow()
			if err != nil {
				return nil, fmt.Errorf("%v: %w", k, err)
			}
			out[r][c] = pressed
		}
	}
	return out, nil
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func runLoop(log *zap.SugaredLogger, m *keypad.Matrix, keys keypad.Grid, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, debounce, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	detector := logic.NewDetector(m.Rows(), m.Cols(), debounce, startTime)

	// syncTracker copies detector and scan state into the tracker for HTTP consumers.
	syncTracker := func() {
		if tracker == nil {
			return
		}
		tracker.Update(detector.CurrentState(), detector.IsBaselined(), detector.EventCountsSnapshot())
		tracker.SetScanStats(m.Stats())
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			log.Infof("received %v, shutting down", s)
			name := signalName(s)
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    name,
				Retained:  true,
			}
			if tracker != nil {
				syncTracker()
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", name)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warnf("failed to publish shutdown event: %v", err)
			} else {
				log.Infof("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			pressed, err := readKeys(keys)
			if err != nil {
				log.Warnf("keypad read error: %v", err)
				continue
			}

			events := detector.Process(logic.Input{Pressed: pressed, Time: t})
			for _, event := range events {
				log.Infof("event: %s %v", event.Type, event.Key)
				if err := publisher.Publish(event); err != nil {
					// Don't crash on publish failure
					log.Warnf("publish error: %v", err)
				}
			}

			if !detector.IsBaselined() {
				// Still waiting for baseline
				continue
			}

			if hbData := detector.CheckHeartbeat(t, heartbeat); hbData != nil {
				st := m.Stats()
				log.Infof("heartbeat: uptime=%v key_down=%d key_up=%d scans=%d failures=%d",
					hbData.Uptime, hbData.Counts.Down, hbData.Counts.Up, st.Scans, st.Failures)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					syncTracker()
					hbEvent.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Warnf("heartbeat publish error: %v", err)
				}
			}

			syncTracker()
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
