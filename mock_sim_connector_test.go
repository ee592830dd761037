package main

import (
	"fmt"
	"sync"
	"time"
)

// MockSimConnector implements SimConnector for use in tests.
type MockSimConnector struct {
	mu   sync.Mutex
	snap *Snapshot
	err  error
	name string

	connectCalls    int
	disconnectCalls int
}

func (m *MockSimConnector) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	return nil
}

func (m *MockSimConnector) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectCalls++
	return nil
}

func (m *MockSimConnector) Name() string {
	if m.name == "" {
		return "MockSim"
	}
	return m.name
}

func (m *MockSimConnector) GetSnapshot() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.snap == nil {
		return nil, fmt.Errorf("no data")
	}
	snap := *m.snap
	return &snap, nil
}

func (m *MockSimConnector) SetSnapshot(s *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = s
	m.err = nil
}

func (m *MockSimConnector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// sampleSnapshot returns a parked-at-Heathrow telemetry sample.
func sampleSnapshot(at time.Time) *Snapshot {
	return &Snapshot{
		Time:          at,
		Latitude:      51.4775,
		Longitude:     -0.4614,
		Altitude:      83,
		AltitudeAGL:   0,
		GroundSpeed:   0,
		VerticalSpeed: 0,
		GForce:        1.0,
		Heading:       271,
		OnGround:      true,
		GearDown:      true,
		EngineOn:      true,
		AircraftTitle: "Boeing 737-800",
	}
}
