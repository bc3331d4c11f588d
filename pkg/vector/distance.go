// Package vector provides distance functions and validation for float32 embeddings.
package vector

import (
	"fmt"
	"math"
)

// SquaredL2 calculates the squared Euclidean distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
//
// The value is monotonic with the true L2 distance, so rankings built on it
// are identical; take the square root only when the metric value itself is needed.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// L2 calculates the Euclidean distance between two vectors.
func L2(a, b []float32) float32 {
	return float32(math.Sqrt(float64(SquaredL2(a, b))))
}

// CheckDimension returns a *DimensionError when v does not have dim components.
func CheckDimension(v []float32, dim int) error {
	if len(v) != dim {
		return &DimensionError{Expected: dim, Actual: len(v)}
	}
	return nil
}

// Validate checks the dimension and that every component is finite.
func Validate(v []float32, dim int) error {
	if err := CheckDimension(v, dim); err != nil {
		return err
	}
	for i, val := range v {
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return fmt.Errorf("%w: component %d is %v", ErrInvalidVector, i, val)
		}
	}
	return nil
}

// Clone returns a copy of v.
func Clone(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
