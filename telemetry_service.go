package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const tickInterval = time.Second

// TelemetryService owns the simulator connection and the periodic producer
// loop that drives flight tracking and the broadcast fan-out. The loop is
// the only caller of the tracker, so tick processing is never interleaved.
type TelemetryService struct {
	tracker *FlightTracker
	hub     *BroadcastHub
	store   *TelemetryStore
	persist *PersistenceService

	mu        sync.Mutex
	connector SimConnector
	cancel    context.CancelFunc
	done      chan struct{}

	healthy bool
}

func NewTelemetryService(tracker *FlightTracker, hub *BroadcastHub, store *TelemetryStore, persist *PersistenceService) *TelemetryService {
	return &TelemetryService{
		tracker: tracker,
		hub:     hub,
		store:   store,
		persist: persist,
	}
}

// ConnectSim attaches a simulator adapter. "auto" prefers SimConnect when
// the platform has it and falls back to X-Plane UDP.
func (t *TelemetryService) ConnectSim(simType, xplaneHost string, xplanePort int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connector != nil {
		t.connector.Disconnect()
		t.connector = nil
	}

	var connector SimConnector
	switch simType {
	case "xplane":
		connector = NewXPlaneAdapter(xplaneHost, xplanePort)
	case "simconnect":
		connector = NewSimConnectAdapter()
		if connector == nil {
			return fmt.Errorf("SimConnect not available on this platform")
		}
	default: // "auto"
		connector = NewSimConnectAdapter()
		if connector == nil {
			connector = NewXPlaneAdapter(xplaneHost, xplanePort)
		}
	}

	if err := connector.Connect(); err != nil {
		return fmt.Errorf("connect to %s: %w", connector.Name(), err)
	}

	t.connector = connector
	slog.Info("connected to simulator", "adapter", connector.Name())
	return nil
}

// DisconnectSim detaches the adapter and abandons in-progress tracking.
func (t *TelemetryService) DisconnectSim() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connector != nil {
		t.connector.Disconnect()
		t.connector = nil
	}
	t.tracker.Reset()
}

// Start launches the producer loop. Cancelling ctx (or calling Stop)
// stops it; no tick is processed after Stop returns.
func (t *TelemetryService) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go t.run(ctx, done)
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (t *TelemetryService) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *TelemetryService) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// tick polls the source once and pushes the result through the pipeline.
// Source failures abort tracking and surface a status change; the loop
// keeps polling so a restarted simulator is picked up again.
func (t *TelemetryService) tick() {
	t.mu.Lock()
	connector := t.connector
	t.mu.Unlock()
	if connector == nil {
		return
	}

	snap, err := connector.GetSnapshot()
	if err != nil {
		if t.healthy {
			t.healthy = false
			slog.Warn("telemetry source lost", "error", err)
			t.tracker.Reset()
			t.hub.BroadcastJSON(statusMessage{Type: "status", Connected: false, Simulator: connector.Name()})
		}
		return
	}
	if !t.healthy {
		t.healthy = true
		slog.Info("telemetry source online", "simulator", connector.Name())
		t.hub.BroadcastJSON(statusMessage{Type: "status", Connected: true, Simulator: connector.Name()})
	}

	snap.Time = time.Now()
	t.process(snap)
}

// process runs one snapshot through storage, tracking and fan-out.
func (t *TelemetryService) process(snap *Snapshot) {
	if t.store != nil {
		if err := t.store.Insert(snap); err != nil {
			slog.Error("telemetry store write failed", "error", err)
		}
	}

	events := t.tracker.Update(snap)
	t.hub.BroadcastJSON(snap)

	for _, ev := range events {
		switch {
		case ev.Landing != nil:
			t.hub.BroadcastJSON(landingMessage{Type: "landing", Landing: ev.Landing})
		case ev.Record != nil:
			rec := ev.Record
			go func() {
				if err := t.persist.SubmitFlight(rec); err != nil {
					slog.Warn("flight record submission failed", "error", err)
				}
			}()
		case ev.Rejection != "":
			// Already logged by the tracker; nothing to deliver.
		}
	}
}
