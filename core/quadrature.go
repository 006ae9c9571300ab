package core

import "gonum.org/v1/gonum/integrate/quad"

// quadOrder is the fixed Gauss–Legendre order used by all coil integrals
// (mutual inductance, flux, field-coupling derivatives).
const quadOrder = 8

// gaussRule holds Gauss–Legendre nodes and weights generated directly on the
// target interval, so interval jacobians are already folded into the weights.
type gaussRule struct {
	x []float64
	w []float64
}

func newGaussRule(n int, min, max float64) gaussRule {
	r := gaussRule{
		x: make([]float64, n),
		w: make([]float64, n),
	}
	quad.Legendre{}.FixedLocations(r.x, r.w, min, max)
	return r
}
