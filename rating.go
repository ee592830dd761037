package main

import "math"

// LandingRating classifies how firm a touchdown was.
type LandingRating string

const (
	RatingPerfect    LandingRating = "perfect"
	RatingGood       LandingRating = "good"
	RatingAcceptable LandingRating = "acceptable"
	RatingHard       LandingRating = "hard"
	RatingVeryHard   LandingRating = "very hard"
)

// RateLanding maps the touchdown vertical-speed magnitude (feet/minute) to
// a rating and its score contribution.
func RateLanding(verticalSpeed float64) (LandingRating, int) {
	switch v := math.Abs(verticalSpeed); {
	case v < 100:
		return RatingPerfect, 5
	case v < 200:
		return RatingGood, 4
	case v < 300:
		return RatingAcceptable, 3
	case v < 500:
		return RatingHard, 2
	default:
		return RatingVeryHard, 1
	}
}
