package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Takeoff plausibility bounds on ground speed at the instant of liftoff
// (knots). Above the upper bound the aircraft was spawned in the air;
// below the lower bound the liftoff may be a scripted mission start and is
// tracked provisionally until real flight speed develops.
const (
	minTakeoffSpeedKts = 40.0
	maxTakeoffSpeedKts = 250.0
)

// Landing-acceptance rules. These reject ground bounces, paused sessions
// and other non-flights; the exact values are tuned empirically.
const (
	minFlightDurationSec   = 180.0
	minFlightAltitudeAGL   = 100.0
	minFlightGForce        = 0.5
	minFlightDistanceNM    = 5.0
	landingDebounce        = 5 * time.Second
	nearestAirportRadiusNM = 10.0
)

// AirportLocator resolves the nearest known airport within a radius.
type AirportLocator interface {
	Nearest(lat, lon, maxRadiusNM float64) (string, bool)
}

// FlightState accumulates one flight from validated takeoff to landing.
type FlightState struct {
	TakeoffTime    time.Time
	Origin         string
	Destination    string
	Aircraft       string
	MaxAltitudeAGL float64
	MaxGForce      float64
	DistanceNM     float64

	lastLat float64
	lastLon float64
}

// LandingEvent captures the last pre-touchdown values together with the
// rating, the resolved airport and the glide-path trace.
type LandingEvent struct {
	Time          time.Time       `json:"time"`
	Airport       string          `json:"airport,omitempty"`
	Rating        LandingRating   `json:"rating"`
	RatingScore   int             `json:"ratingScore"`
	VerticalSpeed float64         `json:"verticalSpeed"`
	GForce        float64         `json:"gForce"`
	Pitch         float64         `json:"pitch"`
	Bank          float64         `json:"bank"`
	GroundSpeed   float64         `json:"groundSpeed"`
	Approach      []ApproachPoint `json:"approach"`
}

// TrackerEvent is one lifecycle outcome of an Update call. Exactly one
// field is set.
type TrackerEvent struct {
	Landing   *LandingEvent
	Record    *FlightRecord
	Rejection string // why a touchdown was not counted as a landing
}

type trackingPhase int

const (
	phaseIdle trackingPhase = iota
	phaseUnvalidated
	phaseValidated
)

// FlightTracker consumes the snapshot stream and derives flight lifecycle
// events. Update and Reset must only be called from the single producer
// goroutine; SetRouteHint is safe for concurrent use by connection
// handlers.
type FlightTracker struct {
	locator AirportLocator

	hintMu          sync.Mutex
	hintOrigin      string
	hintDestination string

	baselined bool
	onGround  bool

	phase          trackingPhase
	takeoffTime    time.Time
	maxAltitudeAGL float64
	maxGForce      float64
	flight         *FlightState
	approach       ApproachRecorder
	lastLanding    time.Time
}

func NewFlightTracker(locator AirportLocator) *FlightTracker {
	return &FlightTracker{locator: locator}
}

// SetRouteHint supplies the broadcast route for use as an origin and
// destination fallback.
func (t *FlightTracker) SetRouteHint(origin, destination string) {
	t.hintMu.Lock()
	defer t.hintMu.Unlock()
	t.hintOrigin = strings.ToUpper(strings.TrimSpace(origin))
	t.hintDestination = strings.ToUpper(strings.TrimSpace(destination))
}

func (t *FlightTracker) routeHint() (origin, destination string) {
	t.hintMu.Lock()
	defer t.hintMu.Unlock()
	return t.hintOrigin, t.hintDestination
}

// Reset abandons any in-progress tracking without emitting events, so a
// telemetry source dropping mid-flight cannot fake a landing. The next
// snapshot re-establishes the ground/air baseline.
func (t *FlightTracker) Reset() {
	t.baselined = false
	t.phase = phaseIdle
	t.flight = nil
	t.approach.Clear()
}

// Update advances the state machine by one snapshot and returns whatever
// lifecycle events that tick produced.
func (t *FlightTracker) Update(s *Snapshot) []TrackerEvent {
	// The first sample only classifies ground/air status. Starting the
	// process mid-flight must not register a takeoff or a landing.
	if !t.baselined {
		t.baselined = true
		t.onGround = s.OnGround
		slog.Debug("telemetry baseline", "onGround", s.OnGround)
		return nil
	}

	var events []TrackerEvent
	switch {
	case t.onGround && !s.OnGround:
		t.handleLiftoff(s)
	case !t.onGround && s.OnGround:
		events = t.handleTouchdown(s)
	case !s.OnGround:
		t.handleAirborne(s)
	}
	t.onGround = s.OnGround
	return events
}

func (t *FlightTracker) handleLiftoff(s *Snapshot) {
	t.takeoffTime = s.Time
	t.maxAltitudeAGL = 0
	t.maxGForce = 0
	t.flight = nil
	t.approach.Clear()

	switch {
	case s.GroundSpeed > maxTakeoffSpeedKts:
		// In-air spawn: no real takeoff roll reaches this speed at liftoff.
		t.phase = phaseIdle
		slog.Info("liftoff discarded as in-air spawn", "groundSpeed", s.GroundSpeed)
	case s.GroundSpeed < minTakeoffSpeedKts:
		t.phase = phaseUnvalidated
		slog.Info("provisional takeoff, awaiting flight speed", "groundSpeed", s.GroundSpeed)
	default:
		t.phase = phaseValidated
		t.startFlight(s)
		slog.Info("takeoff", "origin", t.flight.Origin, "groundSpeed", s.GroundSpeed)
	}
}

// startFlight creates the FlightState. The origin is resolved exactly once
// here; a later hint never overwrites it.
func (t *FlightTracker) startFlight(s *Snapshot) {
	originHint, _ := t.routeHint()
	t.flight = &FlightState{
		TakeoffTime: t.takeoffTime,
		Origin:      t.resolveAirport(s.GPSPrevWaypoint, originHint, s.Latitude, s.Longitude),
		Aircraft:    s.AircraftTitle,
		lastLat:     s.Latitude,
		lastLon:     s.Longitude,
	}
}

func (t *FlightTracker) handleAirborne(s *Snapshot) {
	if t.phase == phaseIdle {
		return
	}

	if s.AltitudeAGL > t.maxAltitudeAGL {
		t.maxAltitudeAGL = s.AltitudeAGL
	}
	if s.GForce > t.maxGForce {
		t.maxGForce = s.GForce
	}

	// A slow mission start becomes a real flight the moment it reaches
	// takeoff speed, no matter how long after liftoff that happens.
	if t.phase == phaseUnvalidated && s.GroundSpeed >= minTakeoffSpeedKts {
		t.phase = phaseValidated
		t.startFlight(s)
		slog.Info("provisional takeoff confirmed", "origin", t.flight.Origin, "groundSpeed", s.GroundSpeed)
	}
	if t.phase != phaseValidated {
		return
	}

	f := t.flight
	if f.lastLat != 0 || f.lastLon != 0 {
		if inc := distanceNM(f.lastLat, f.lastLon, s.Latitude, s.Longitude); inc < maxTickDistanceNM {
			f.DistanceNM += inc
		}
	}
	f.lastLat, f.lastLon = s.Latitude, s.Longitude

	t.approach.Record(s)
}

func (t *FlightTracker) handleTouchdown(s *Snapshot) []TrackerEvent {
	phase := t.phase
	flight := t.flight
	t.phase = phaseIdle
	t.flight = nil

	if phase == phaseIdle {
		t.approach.Clear()
		return nil
	}

	if reason := t.landingRejection(phase, flight, s); reason != "" {
		slog.Info("landing rejected", "reason", reason)
		t.approach.Clear()
		return []TrackerEvent{{Rejection: reason}}
	}

	t.lastLanding = s.Time
	rating, ratingScore := RateLanding(s.VerticalSpeed)
	_, destHint := t.routeHint()
	flight.Destination = t.resolveAirport(s.GPSApproachAirport, destHint, s.Latitude, s.Longitude)
	flight.MaxAltitudeAGL = t.maxAltitudeAGL
	flight.MaxGForce = t.maxGForce

	landing := &LandingEvent{
		Time:          s.Time,
		Airport:       flight.Destination,
		Rating:        rating,
		RatingScore:   ratingScore,
		VerticalSpeed: s.VerticalSpeed,
		GForce:        s.GForce,
		Pitch:         s.Pitch,
		Bank:          s.Bank,
		GroundSpeed:   s.GroundSpeed,
		Approach:      t.approach.Drain(s.Time, s.Latitude, s.Longitude),
	}
	slog.Info("landing", "airport", landing.Airport, "rating", rating, "verticalSpeed", s.VerticalSpeed)

	events := []TrackerEvent{{Landing: landing}}
	if rec := newFlightRecord(flight, landing); rec != nil {
		slog.Info("flight completed",
			"origin", rec.Origin, "destination", rec.Destination,
			"distanceNm", rec.DistanceNM, "score", rec.Score)
		events = append(events, TrackerEvent{Record: rec})
	} else {
		slog.Info("flight below record threshold, not logged")
	}
	return events
}

// landingRejection returns the first rule a touchdown fails, or "" when
// the landing is accepted.
func (t *FlightTracker) landingRejection(phase trackingPhase, f *FlightState, s *Snapshot) string {
	if phase != phaseValidated || f == nil {
		return "takeoff never validated"
	}
	if !t.lastLanding.IsZero() && s.Time.Sub(t.lastLanding) < landingDebounce {
		return "ground bounce within debounce window"
	}
	if duration := s.Time.Sub(f.TakeoffTime).Seconds(); duration < minFlightDurationSec {
		return fmt.Sprintf("duration %.0fs below minimum", duration)
	}
	if t.maxAltitudeAGL < minFlightAltitudeAGL {
		return fmt.Sprintf("max altitude %.0fft AGL below minimum", t.maxAltitudeAGL)
	}
	if t.maxGForce < minFlightGForce {
		return "g-force never rose above pause threshold"
	}
	if f.DistanceNM < minFlightDistanceNM {
		return fmt.Sprintf("distance %.1fnm below minimum", f.DistanceNM)
	}
	return ""
}

// resolveAirport picks an airport identifier by priority: a plausible ICAO
// code from the GPS, then the route hint, then the nearest known airport
// to the given position.
func (t *FlightTracker) resolveAirport(gpsID, hint string, lat, lon float64) string {
	if isICAOCode(gpsID) {
		return strings.ToUpper(gpsID)
	}
	if hint != "" {
		return hint
	}
	if t.locator != nil {
		if id, ok := t.locator.Nearest(lat, lon, nearestAirportRadiusNM); ok {
			return id
		}
	}
	return ""
}

// isICAOCode reports whether s looks like a 3-4 letter airport identifier.
func isICAOCode(s string) bool {
	if len(s) < 3 || len(s) > 4 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
