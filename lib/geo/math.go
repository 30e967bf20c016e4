package geo

import "math"

// PrecisionCompare orders a and b, treating them as equal when they are
// within e of each other.
func PrecisionCompare(a, b, e float64) int {
	switch {
	case math.Abs(a-b) < e:
		return 0
	case a < b:
		return -1
	default:
		return 1
	}
}
