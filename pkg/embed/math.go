package embed

import "math"

// l2Normalize normalizes vec in place and returns it.
// A vector with (near) zero magnitude is zeroed.
func l2Normalize(vec []float32) []float32 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude < 1e-10 {
		for i := range vec {
			vec[i] = 0
		}
		return vec
	}

	inv := float32(1 / magnitude)
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// dot returns the dot product; for unit vectors this is the cosine similarity.
func dot(v1, v2 []float32) float32 {
	var sum float32
	for i := range v1 {
		sum += v1[i] * v2[i]
	}
	return sum
}
