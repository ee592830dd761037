package main

import "math"

const earthRadiusNM = 3440.065

// maxTickDistanceNM caps the distance credited for a single tick. Position
// jumps larger than this are slew/teleport artifacts, not flying.
const maxTickDistanceNM = 10.0

// distanceNM returns the great-circle distance between two points in
// nautical miles using the haversine formula.
func distanceNM(lat1, lon1, lat2, lon2 float64) float64 {
	r1 := lat1 * math.Pi / 180
	r2 := lat2 * math.Pi / 180

	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	// Normalize dateline crossings so a hop over 180E/W stays short.
	for dLon > math.Pi {
		dLon -= 2 * math.Pi
	}
	for dLon < -math.Pi {
		dLon += 2 * math.Pi
	}

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(r1)*math.Cos(r2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusNM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
