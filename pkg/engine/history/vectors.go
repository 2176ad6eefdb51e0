package history

import (
	"math"

	"github.com/DrSkyle/faultline/pkg/engine/spof"
)

// Vector is a SPOF count distribution over resource types.
type Vector []float64

const (
	PatternStable  = "STABLE"
	PatternShift   = "SHIFT"
	PatternUnknown = "UNKNOWN"
)

// CompositionVector projects a snapshot onto the given type axis.
func CompositionVector(s spof.Snapshot, types []string) Vector {
	v := make(Vector, len(types))
	for i, typ := range types {
		v[i] = float64(s.ByResourceType[typ])
	}
	return v
}

// Normalize scales the vector to unit length.
func Normalize(v Vector) Vector {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	magnitude := math.Sqrt(sum)
	if magnitude == 0 {
		return v
	}

	result := make(Vector, len(v))
	for i, x := range v {
		result[i] = x / magnitude
	}
	return result
}

func DotProduct(a, b Vector) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// CosineSimilarity is 1 for identical mixes; an empty vector is similar to nothing.
func CosineSimilarity(a, b Vector) float64 {
	na, nb := Normalize(a), Normalize(b)
	if isZero(na) || isZero(nb) {
		if isZero(na) && isZero(nb) {
			return 1
		}
		return 0
	}
	return DotProduct(na, nb)
}

// ClassifyShift compares the baseline mix with the latest.
func ClassifyShift(baseline, latest Vector) string {
	if len(baseline) == 0 {
		return PatternUnknown
	}
	if CosineSimilarity(baseline, latest) >= 0.8 {
		return PatternStable
	}
	return PatternShift
}

func isZero(v Vector) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
