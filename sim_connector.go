package main

import "time"

// Snapshot holds one telemetry sample from the flight simulator. Fields are
// flat so the broadcast payload stays a single JSON object; viewers tell it
// apart from protocol messages by the absence of a "type" field.
type Snapshot struct {
	Time time.Time `json:"timestamp"`

	// Position
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Altitude    float64 `json:"altitude"`
	AltitudeAGL float64 `json:"altitudeAgl"`

	// Kinematics
	GroundSpeed   float64 `json:"groundSpeed"`
	VerticalSpeed float64 `json:"verticalSpeed"`
	GForce        float64 `json:"gForce"`
	Heading       float64 `json:"heading"`

	// Attitude
	Pitch         float64 `json:"pitch"`
	Bank          float64 `json:"bank"`
	AngleOfAttack float64 `json:"angleOfAttack"`
	Sideslip      float64 `json:"sideslip"`

	// Discrete state
	OnGround     bool    `json:"onGround"`
	GearDown     bool    `json:"gearDown"`
	FlapsPercent float64 `json:"flapsPercent"`
	EngineOn     bool    `json:"engineOn"`
	StallWarning bool    `json:"stallWarning"`

	// Optional strings; empty when the adapter cannot supply them.
	AircraftTitle      string `json:"aircraftTitle,omitempty"`
	ATCIdent           string `json:"atcIdent,omitempty"`
	ATCAirline         string `json:"atcAirline,omitempty"`
	GPSPrevWaypoint    string `json:"gpsPrevWaypoint,omitempty"`
	GPSNextWaypoint    string `json:"gpsNextWaypoint,omitempty"`
	GPSApproachAirport string `json:"gpsApproachAirport,omitempty"`
}

// SimConnector abstracts simulator connections (SimConnect, X-Plane UDP).
type SimConnector interface {
	Connect() error
	Disconnect() error
	GetSnapshot() (*Snapshot, error)
	Name() string
}
