// Package minkowski provides the Minkowski p-metric family used by the
// ball tree index, including the reduced (monotone surrogate) form that
// traversal code compares against bounds without paying for roots.
package minkowski

import (
	"fmt"
	"math"
)

// Common exponents.
const (
	L1 = 1.0
	L2 = 2.0
)

// Chebyshev is the p = +Inf limit of the Minkowski family (max-norm).
var Chebyshev = math.Inf(1)

// ErrInvalidP is a named error type for an out-of-range exponent.
type ErrInvalidP struct {
	P float64
}

func (e *ErrInvalidP) Error() string {
	return fmt.Sprintf("invalid minkowski exponent: p must be >= 1, got %v", e.P)
}

// kind selects the specialized kernel for the common exponents.
type kind uint8

const (
	kindManhattan kind = iota // p == 1
	kindEuclidean             // p == 2
	kindChebyshev             // p == +Inf
	kindGeneral               // any other p >= 1
)

// Metric computes Minkowski distances for a fixed exponent p.
//
// The zero value is not usable; construct with New. Metric is immutable
// and safe for concurrent use.
type Metric struct {
	p float64
	k kind
}

// New creates a Metric for the given exponent.
// p must satisfy 1 <= p <= +Inf; NaN and p < 1 are rejected.
func New(p float64) (Metric, error) {
	if math.IsNaN(p) || p < 1 {
		return Metric{}, &ErrInvalidP{P: p}
	}

	k := kindGeneral
	switch {
	case p == 1:
		k = kindManhattan
	case p == 2:
		k = kindEuclidean
	case math.IsInf(p, 1):
		k = kindChebyshev
	}

	return Metric{p: p, k: k}, nil
}

// MustNew is like New but panics on an invalid exponent.
// Intended for package-level defaults and tests.
func MustNew(p float64) Metric {
	m, err := New(p)
	if err != nil {
		panic(err)
	}
	return m
}

// P returns the exponent this metric was built with.
func (m Metric) P() float64 { return m.p }

// Distance returns the true p-distance between x and y.
// Assumes len(x) == len(y) (caller's responsibility).
func (m Metric) Distance(x, y []float64) float64 {
	switch m.k {
	case kindManhattan:
		return sumAbs(x, y)
	case kindEuclidean:
		return math.Sqrt(sumSquares(x, y))
	case kindChebyshev:
		return maxAbs(x, y)
	default:
		return math.Pow(sumAbsPow(x, y, m.p), 1/m.p)
	}
}

// Reduced returns the reduced p-distance between x and y: a monotone
// transform of Distance that is cheaper to evaluate. For p = 2 this is
// the squared Euclidean distance; for p = 1 and p = +Inf it equals the
// true distance; otherwise it is the sum before the outer root.
func (m Metric) Reduced(x, y []float64) float64 {
	switch m.k {
	case kindManhattan:
		return sumAbs(x, y)
	case kindEuclidean:
		return sumSquares(x, y)
	case kindChebyshev:
		return maxAbs(x, y)
	default:
		return sumAbsPow(x, y, m.p)
	}
}

// DistFromReduced converts a reduced distance back to a true distance.
// For any a, b >= 0: a <= b iff ReducedFromDist(a) <= ReducedFromDist(b),
// and DistFromReduced(ReducedFromDist(d)) == d up to rounding.
func (m Metric) DistFromReduced(r float64) float64 {
	switch m.k {
	case kindEuclidean:
		return math.Sqrt(r)
	case kindGeneral:
		return math.Pow(r, 1/m.p)
	default:
		return r
	}
}

// ReducedFromDist converts a true distance to its reduced form.
func (m Metric) ReducedFromDist(d float64) float64 {
	switch m.k {
	case kindEuclidean:
		return d * d
	case kindGeneral:
		return math.Pow(d, m.p)
	default:
		return d
	}
}

func sumAbs(x, y []float64) float64 {
	var sum float64
	for i := range x {
		sum += math.Abs(x[i] - y[i])
	}
	return sum
}

func sumSquares(x, y []float64) float64 {
	var sum float64
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum
}

func maxAbs(x, y []float64) float64 {
	var maxVal float64
	for i := range x {
		if v := math.Abs(x[i] - y[i]); v > maxVal {
			maxVal = v
		}
	}
	return maxVal
}

func sumAbsPow(x, y []float64, p float64) float64 {
	var sum float64
	for i := range x {
		sum += math.Pow(math.Abs(x[i]-y[i]), p)
	}
	return sum
}
