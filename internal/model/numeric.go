package model

import "math"

// Round rounds v to the given number of decimal places, halves away from zero.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
