// Package vecmath provides float32 vector arithmetic for unit-normalized embeddings.
package vecmath

import "math"

// normEpsilon guards against division by zero when normalizing a zero vector.
const normEpsilon = 1e-12

// Normalize returns v divided by its L2 norm plus a small epsilon.
// The input is not modified. Normalize is idempotent within floating-point
// tolerance: Normalize(Normalize(v)) == Normalize(v).
func Normalize(v []float32) []float32 {
	norm := L2Norm(v) + normEpsilon
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// WeightedSum returns the elementwise weighted sum of vectors. It does not
// normalize the result; callers normalize after combining. All vectors must
// share the same dimension and len(weights) must equal len(vectors).
// Returns nil when vectors is empty.
func WeightedSum(vectors [][]float32, weights []float64) []float32 {
	if len(vectors) == 0 || len(vectors) != len(weights) {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	for i, vec := range vectors {
		if len(vec) != len(out) {
			return nil
		}
		w := weights[i]
		for j, x := range vec {
			out[j] += w * float64(x)
		}
	}
	result := make([]float32, len(out))
	for i, x := range out {
		result[i] = float32(x)
	}
	return result
}

// Mean returns the arithmetic mean of vectors, not normalized.
// Returns nil when vectors is empty or dimensions disagree.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	weights := make([]float64, len(vectors))
	w := 1.0 / float64(len(vectors))
	for i := range weights {
		weights[i] = w
	}
	return WeightedSum(vectors, weights)
}

// InnerProduct returns the inner product of two vectors (for normalized
// vectors this equals cosine similarity). Returns 0 on dimension mismatch.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
