package matcher

import "math"

// CosineDistance returns 1 - cosine similarity: 0 for identical
// directions, 2 for opposite ones. Mismatched or zero vectors are at
// the maximum distance.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// float error can push similarity just outside [-1, 1]
	sim = math.Max(-1, math.Min(1, sim))
	return 1 - sim
}
