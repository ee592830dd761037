package main

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	sim "github.com/lian/msfs2020-go/simconnect"
)

type SimConnectAdapter struct {
	mu         sync.RWMutex
	sc         *sim.SimConnect
	report     *simReport
	latestData *Snapshot
	stopCh     chan struct{}
	stopped    chan struct{}
}

type simReport struct {
	sim.RecvSimobjectDataByType

	// Position
	Latitude    float64 `name:"PLANE LATITUDE" unit:"degrees"`
	Longitude   float64 `name:"PLANE LONGITUDE" unit:"degrees"`
	Altitude    float64 `name:"INDICATED ALTITUDE" unit:"feet"`
	AltitudeAGL float64 `name:"PLANE ALT ABOVE GROUND" unit:"feet"`

	// Kinematics
	GS          float64 `name:"GROUND VELOCITY" unit:"knots"`
	VS          float64 `name:"VERTICAL SPEED" unit:"feet per second"`
	GForce      float64 `name:"G FORCE" unit:"GForce"`
	HeadingTrue float64 `name:"PLANE HEADING DEGREES TRUE" unit:"degrees"`

	// Attitude
	Pitch float64 `name:"PLANE PITCH DEGREES" unit:"degrees"`
	Bank  float64 `name:"PLANE BANK DEGREES" unit:"degrees"`
	AoA   float64 `name:"INCIDENCE ALPHA" unit:"degrees"`
	Beta  float64 `name:"INCIDENCE BETA" unit:"degrees"`

	// Discrete state
	OnGround     float64 `name:"SIM ON GROUND" unit:"Bool"`
	GearDown     float64 `name:"GEAR HANDLE POSITION" unit:"Bool"`
	Flaps        float64 `name:"FLAPS HANDLE PERCENT" unit:"Percent Over 100"`
	Eng1Running  float64 `name:"GENERAL ENG COMBUSTION:1" unit:"Bool"`
	StallWarning float64 `name:"STALL WARNING" unit:"Bool"`

	// Strings must come last: byte arrays misalign subsequent float64s.
	AircraftTitle [256]byte `name:"TITLE" unit:""`
	ATCIdent      [32]byte  `name:"ATC ID" unit:""`
	ATCAirline    [64]byte  `name:"ATC AIRLINE" unit:""`
	GPSPrevID     [32]byte  `name:"GPS WP PREV ID" unit:""`
	GPSNextID     [32]byte  `name:"GPS WP NEXT ID" unit:""`
	GPSApproachID [32]byte  `name:"GPS APPROACH AIRPORT ID" unit:""`
}

func NewSimConnectAdapter() SimConnector {
	return &SimConnectAdapter{}
}

func (s *SimConnectAdapter) Name() string {
	return "SimConnect"
}

func (s *SimConnectAdapter) Connect() error {
	s.stopCh = make(chan struct{})
	s.stopped = make(chan struct{})
	errCh := make(chan error, 1)

	go s.run(errCh)

	return <-errCh
}

func (s *SimConnectAdapter) Disconnect() error {
	s.mu.RLock()
	sc := s.sc
	s.mu.RUnlock()

	if sc != nil {
		close(s.stopCh)
		<-s.stopped
	}
	return nil
}

// run performs ALL SimConnect operations on a single locked OS thread.
func (s *SimConnectAdapter) run(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.stopped)

	sc, err := sim.New("SimChecklist Bridge")
	if err != nil {
		errCh <- fmt.Errorf("simconnect open: %w", err)
		return
	}

	report := &simReport{}
	if err := sc.RegisterDataDefinition(report); err != nil {
		sc.Close()
		errCh <- fmt.Errorf("register data definition: %w", err)
		return
	}

	s.mu.Lock()
	s.sc = sc
	s.report = report
	s.mu.Unlock()

	slog.Info("SimConnect connected")
	errCh <- nil // signal success to Connect()

	defineID := sc.GetDefineID(report)

	requestTicker := time.NewTicker(time.Second)
	defer requestTicker.Stop()

	// Initial data request
	sc.RequestDataOnSimObjectType(0, defineID, 0, sim.SIMOBJECT_TYPE_USER)

	defer func() {
		sc.Close()
		s.mu.Lock()
		s.sc = nil
		s.latestData = nil
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case <-requestTicker.C:
			sc.RequestDataOnSimObjectType(0, defineID, 0, sim.SIMOBJECT_TYPE_USER)
		default:
			ppData, r1, _ := sc.GetNextDispatch()
			if r1 < 0 {
				time.Sleep(5 * time.Millisecond)
				continue
			}

			recvInfo := *(*sim.Recv)(ppData)

			switch recvInfo.ID {
			case sim.RECV_ID_SIMOBJECT_DATA_BYTYPE:
				r := (*simReport)(ppData)
				snap := &Snapshot{
					Latitude:           r.Latitude,
					Longitude:          r.Longitude,
					Altitude:           r.Altitude,
					AltitudeAGL:        r.AltitudeAGL,
					GroundSpeed:        r.GS,
					VerticalSpeed:      r.VS * 60, // fps to fpm
					GForce:             r.GForce,
					Heading:            r.HeadingTrue,
					Pitch:              r.Pitch,
					Bank:               r.Bank,
					AngleOfAttack:      r.AoA,
					Sideslip:           r.Beta,
					OnGround:           r.OnGround != 0,
					GearDown:           r.GearDown != 0,
					FlapsPercent:       r.Flaps * 100, // unit is "Percent Over 100"
					EngineOn:           r.Eng1Running != 0,
					StallWarning:       r.StallWarning != 0,
					AircraftTitle:      trimNullBytes(r.AircraftTitle[:]),
					ATCIdent:           trimNullBytes(r.ATCIdent[:]),
					ATCAirline:         trimNullBytes(r.ATCAirline[:]),
					GPSPrevWaypoint:    trimNullBytes(r.GPSPrevID[:]),
					GPSNextWaypoint:    trimNullBytes(r.GPSNextID[:]),
					GPSApproachAirport: trimNullBytes(r.GPSApproachID[:]),
				}
				s.mu.Lock()
				s.latestData = snap
				s.mu.Unlock()
			case sim.RECV_ID_EXCEPTION:
				slog.Warn("SimConnect exception received")
			}
		}
	}
}

// trimNullBytes returns a string from a null-padded byte slice.
func trimNullBytes(b []byte) string {
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// GetSnapshot returns the most recently cached telemetry sample.
func (s *SimConnectAdapter) GetSnapshot() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latestData == nil {
		return nil, fmt.Errorf("waiting for sim data")
	}

	snap := *s.latestData
	return &snap, nil
}
