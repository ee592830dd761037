package main

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Minimum bar for permanent logging. Deliberately looser on duration than
// the landing-acceptance rules: a marginal landing can still be shown to
// viewers while the record is suppressed.
const (
	minRecordDurationSec = 120.0
	minRecordDistanceNM  = 5.0
	assumedCruiseKts     = 400.0
)

// FlightRecord is the immutable summary of one completed, validated flight
// as handed to the persistence sink.
type FlightRecord struct {
	ID             string        `json:"id"`
	Origin         string        `json:"origin,omitempty"`
	Destination    string        `json:"destination,omitempty"`
	Aircraft       string        `json:"aircraft,omitempty"`
	TakeoffTime    time.Time     `json:"takeoffTime"`
	LandingTime    time.Time     `json:"landingTime"`
	DurationSec    float64       `json:"durationSec"`
	DistanceNM     float64       `json:"distanceNm"`
	MaxAltitudeAGL float64       `json:"maxAltitudeAgl"`
	MaxGForce      float64       `json:"maxGForce"`
	LandingVS      float64       `json:"landingVs"`
	LandingRating  LandingRating `json:"landingRating"`
	Score          int           `json:"score"`
}

// flightScore rewards realistic-duration flights. Finishing a route faster
// than the assumed cruise speed allows scales the distance credit down;
// flying slower than that never earns a bonus.
func flightScore(distNM, durationSec float64, ratingScore int) int {
	expected := distNM / assumedCruiseKts * 3600
	factor := 1.0
	if expected > 0 && durationSec < expected {
		factor = durationSec / expected
	}
	return int(math.Round(distNM*factor)) + ratingScore*10
}

// newFlightRecord materializes the record for a completed flight, or nil
// when it fails the minimum bar. At least one endpoint must be known; a
// flight that resolved neither airport is not worth logging.
func newFlightRecord(f *FlightState, landing *LandingEvent) *FlightRecord {
	duration := landing.Time.Sub(f.TakeoffTime).Seconds()
	if duration < minRecordDurationSec || f.DistanceNM < minRecordDistanceNM {
		return nil
	}
	if f.Origin == "" && f.Destination == "" {
		return nil
	}

	return &FlightRecord{
		ID:             uuid.NewString(),
		Origin:         f.Origin,
		Destination:    f.Destination,
		Aircraft:       f.Aircraft,
		TakeoffTime:    f.TakeoffTime,
		LandingTime:    landing.Time,
		DurationSec:    duration,
		DistanceNM:     f.DistanceNM,
		MaxAltitudeAGL: f.MaxAltitudeAGL,
		MaxGForce:      f.MaxGForce,
		LandingVS:      landing.VerticalSpeed,
		LandingRating:  landing.Rating,
		Score:          flightScore(f.DistanceNM, duration, landing.RatingScore),
	}
}
