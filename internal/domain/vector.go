package domain

import "math"

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched or zero-length vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// MatchSimilarity maps a cosine value onto [0,1] for threshold matching.
// Negative cosine is treated as no similarity.
func MatchSimilarity(cosine float64) float64 {
	return Clamp01(cosine)
}

// RunningCentroid folds v into a centroid that already summarizes n vectors.
func RunningCentroid(centroid, v []float32, n int64) []float32 {
	if len(centroid) != len(v) || n <= 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}

	out := make([]float32, len(centroid))
	weight := float64(n)
	for i := range centroid {
		out[i] = float32((float64(centroid[i])*weight + float64(v[i])) / (weight + 1))
	}
	return out
}
