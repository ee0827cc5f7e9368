// Package metrics turns a growing sequence of utterance embeddings into
// trajectory statistics: velocity, curvature, fractal scaling, entropy
// shift, voice distinctiveness, and a composite integrity score.
package metrics

import "math"

// Value is a metric sample that may be undefined (below a minimum window,
// zero-length step, too few speakers). Undefined values are explicit and
// never stand in for zero.
type Value struct {
	V       float64
	Defined bool
}

// Defined wraps v as a defined Value.
func Defined(v float64) Value { return Value{V: v, Defined: true} }

// Undefined is the explicit not-available sentinel.
var Undefined = Value{}

// Ptr returns the value as a nullable pointer for persistence.
func (v Value) Ptr() *float64 {
	if !v.Defined {
		return nil
	}
	f := v.V
	return &f
}

// dist computes the Euclidean distance between two equal-length vectors.
func dist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// sub returns a-b.
func sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// norm computes the Euclidean length of v.
func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// cosine computes cosine similarity; the boolean is false when either
// vector has zero length.
func cosine(a, b []float64) (float64, bool) {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0, false
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (na * nb), true
}

// centroid computes the component-wise mean of vectors.
func centroid(vecs [][]float64) []float64 {
	if len(vecs) == 0 {
		return nil
	}
	out := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		for i := range v {
			out[i] += v[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(vecs))
	}
	return out
}

// mean computes the arithmetic mean of xs; 0 for empty input.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev computes the population standard deviation of xs.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
