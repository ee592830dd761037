package main

import "time"

const (
	// approachWindowSize bounds the buffer; oldest samples are evicted first.
	approachWindowSize = 60
	// approachCeilingFt is the altitude-AGL below which samples are kept.
	approachCeilingFt = 3000.0
)

// ApproachSample is one low-altitude telemetry point retained while a
// flight descends toward a runway.
type ApproachSample struct {
	Time          time.Time
	AltitudeAGL   float64
	Latitude      float64
	Longitude     float64
	VerticalSpeed float64
	GroundSpeed   float64
}

// ApproachPoint is one entry of the drained glide-path trace, expressed
// relative to the touchdown time and position.
type ApproachPoint struct {
	SecondsBeforeTouchdown float64 `json:"secondsBeforeTouchdown"`
	AltitudeAGL            float64 `json:"altitudeAgl"`
	DistanceToTouchdownNM  float64 `json:"distanceToTouchdownNm"`
	VerticalSpeed          float64 `json:"verticalSpeed"`
	GroundSpeed            float64 `json:"groundSpeed"`
	Latitude               float64 `json:"latitude"`
	Longitude              float64 `json:"longitude"`
}

// ApproachRecorder keeps the most recent low-altitude samples, oldest
// first. It is owned by the flight tracker and is not safe for concurrent
// use.
type ApproachRecorder struct {
	samples []ApproachSample
}

// Record appends the snapshot if it is airborne and below the approach
// ceiling. Beyond the window size the oldest sample is evicted.
func (r *ApproachRecorder) Record(s *Snapshot) {
	if s.OnGround || s.AltitudeAGL <= 0 || s.AltitudeAGL >= approachCeilingFt {
		return
	}
	r.samples = append(r.samples, ApproachSample{
		Time:          s.Time,
		AltitudeAGL:   s.AltitudeAGL,
		Latitude:      s.Latitude,
		Longitude:     s.Longitude,
		VerticalSpeed: s.VerticalSpeed,
		GroundSpeed:   s.GroundSpeed,
	})
	if len(r.samples) > approachWindowSize {
		r.samples = r.samples[len(r.samples)-approachWindowSize:]
	}
}

// Drain converts the buffer into a touchdown-relative trace and clears it.
// Points come out oldest first, so secondsBeforeTouchdown ascends from the
// most negative value toward zero.
func (r *ApproachRecorder) Drain(touchdown time.Time, lat, lon float64) []ApproachPoint {
	trace := make([]ApproachPoint, 0, len(r.samples))
	for _, s := range r.samples {
		trace = append(trace, ApproachPoint{
			SecondsBeforeTouchdown: s.Time.Sub(touchdown).Seconds(),
			AltitudeAGL:            s.AltitudeAGL,
			DistanceToTouchdownNM:  distanceNM(s.Latitude, s.Longitude, lat, lon),
			VerticalSpeed:          s.VerticalSpeed,
			GroundSpeed:            s.GroundSpeed,
			Latitude:               s.Latitude,
			Longitude:              s.Longitude,
		})
	}
	r.samples = nil
	return trace
}

// Clear discards the buffer without producing a trace.
func (r *ApproachRecorder) Clear() {
	r.samples = nil
}

// Len reports how many samples are buffered.
func (r *ApproachRecorder) Len() int {
	return len(r.samples)
}
