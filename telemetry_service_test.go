package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type telemetryFixture struct {
	svc     *TelemetryService
	tracker *FlightTracker
	hub     *BroadcastHub
	store   *TelemetryStore
	srv     *httptest.Server
	flights func() []capturedFlight
}

func newTelemetryFixture(t *testing.T) *telemetryFixture {
	t.Helper()

	sink, flights := newFlightSink(t, http.StatusCreated)
	store, err := OpenTelemetryStore(filepath.Join(t.TempDir(), "telemetry.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tracker := NewFlightTracker(nil)
	hub := NewBroadcastHub(nil, tracker.SetRouteHint, nil)
	t.Cleanup(hub.Close)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &telemetryFixture{
		svc:     NewTelemetryService(tracker, hub, store, NewPersistenceService(sink.URL)),
		tracker: tracker,
		hub:     hub,
		store:   store,
		srv:     srv,
		flights: flights,
	}
}

// attachMock injects a connector directly, bypassing the adapter factory.
func (f *telemetryFixture) attachMock(mock *MockSimConnector) {
	f.svc.mu.Lock()
	defer f.svc.mu.Unlock()
	f.svc.connector = mock
}

func TestTelemetryServiceProcessPipeline(t *testing.T) {
	f := newTelemetryFixture(t)
	ws := dialHub(t, f.srv)
	readJSON(t, ws)

	f.svc.process(sampleSnapshot(time.Now()))

	// Raw snapshots are broadcast flat, with no message kind.
	msg := readJSON(t, ws)
	assert.NotContains(t, msg, "type")
	assert.Contains(t, msg, "timestamp")
	assert.InDelta(t, 51.4775, msg["latitude"].(float64), 1e-6)

	n, err := f.store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTelemetryServiceCompletedFlightIsSubmitted(t *testing.T) {
	f := newTelemetryFixture(t)
	f.tracker.SetRouteHint("EGLL", "EDDF")

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f.svc.process(groundSnapAt(now))
	now = now.Add(time.Second)
	f.svc.process(airSnapAt(now, 140, 10, homeLat))

	lat := homeLat
	for i := 0; i < 200; i++ {
		now = now.Add(time.Second)
		lat += 0.03
		f.svc.process(airSnapAt(now, 200, 2000, lat))
	}
	f.svc.process(groundSnapAt(now.Add(time.Second)))

	// Submission happens off the tick path.
	require.Eventually(t, func() bool { return len(f.flights()) == 1 },
		2*time.Second, 10*time.Millisecond)

	flight := f.flights()[0].body["flight"].(map[string]any)
	assert.Equal(t, "EGLL", flight["origin"])
	assert.Equal(t, "EDDF", flight["destination"])
	assert.Greater(t, flight["score"].(float64), 0.0)
}

func TestTelemetryServiceTickHealthTransitions(t *testing.T) {
	f := newTelemetryFixture(t)
	ws := dialHub(t, f.srv)
	readJSON(t, ws)

	mock := &MockSimConnector{}
	mock.SetSnapshot(sampleSnapshot(time.Now()))
	f.attachMock(mock)

	// First good poll announces the source.
	f.svc.tick()
	status := readJSON(t, ws)
	assert.Equal(t, "status", status["type"])
	assert.Equal(t, true, status["connected"])
	snap := readJSON(t, ws)
	assert.Contains(t, snap, "timestamp")

	// Source failure announces the loss once and abandons tracking.
	mock.SetError(fmt.Errorf("socket closed"))
	f.svc.tick()
	status = readJSON(t, ws)
	assert.Equal(t, "status", status["type"])
	assert.Equal(t, false, status["connected"])
	assert.False(t, f.tracker.baselined)

	// Repeated failures stay quiet; recovery announces again.
	f.svc.tick()
	mock.SetSnapshot(sampleSnapshot(time.Now()))
	f.svc.tick()
	status = readJSON(t, ws)
	assert.Equal(t, "status", status["type"])
	assert.Equal(t, true, status["connected"])
}

func TestTelemetryServiceTickWithoutConnector(t *testing.T) {
	f := newTelemetryFixture(t)
	assert.NotPanics(t, func() { f.svc.tick() })
}

func TestTelemetryServiceStartStop(t *testing.T) {
	f := newTelemetryFixture(t)

	f.svc.Start(context.Background())
	f.svc.Stop()

	// Stop is idempotent and safe without a running loop.
	f.svc.Stop()
}

func TestTelemetryServiceDisconnectResetsTracking(t *testing.T) {
	f := newTelemetryFixture(t)
	mock := &MockSimConnector{}
	mock.SetSnapshot(sampleSnapshot(time.Now()))
	f.attachMock(mock)

	f.svc.tick()
	assert.True(t, f.tracker.baselined)

	f.svc.DisconnectSim()
	assert.Equal(t, 1, mock.disconnectCalls)
	assert.False(t, f.tracker.baselined)
}
