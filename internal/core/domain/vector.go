package domain

import (
	"fmt"
	"math"
)

// Normalize returns v scaled to unit length. A zero vector is returned
// unchanged as a copy.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// CosineDistance returns 1 - cos(a, b), within [0, 2]. Vectors with zero
// magnitude are at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// CheckDimensions returns ErrDimensionMismatch unless len(v) == want.
func CheckDimensions(v []float32, want int) error {
	if len(v) != want {
		return fmt.Errorf("%w: got %d, store expects %d", ErrDimensionMismatch, len(v), want)
	}
	return nil
}
