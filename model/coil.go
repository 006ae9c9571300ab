package model

import (
	"math"
	"math/rand"
)

// CoilGeometry holds the shared circular-coil dimensions. Every coil in a
// grid has the same major radius R and minor (conductor) radius A.
type CoilGeometry struct {
	R float64 // coil major radius (metres)
	A float64 // conductor minor radius; defaults to R/100
}

// DefaultAspect is the hard-coded major/minor aspect ratio used when the
// minor radius is not supplied explicitly.
const DefaultAspect = 100.0

// NewCoilGeometry builds a geometry with the default aspect ratio.
func NewCoilGeometry(r float64) CoilGeometry {
	return CoilGeometry{R: r, A: r / DefaultAspect}
}

// Orientation is the full set of optimization variables: one (alpha, delta)
// angle pair per fundamental-domain coil. Alpha rotates the coil plane about
// the x-axis, delta about the y-axis; the resulting unit normal is
// (cos(alpha)·sin(delta), −sin(alpha), cos(alpha)·cos(delta)).
type Orientation struct {
	Alphas []float64
	Deltas []float64
}

// ZeroOrientation returns the identity orientation (all normals along +z).
func ZeroOrientation(n int) Orientation {
	return Orientation{
		Alphas: make([]float64, n),
		Deltas: make([]float64, n),
	}
}

// RandomOrientation draws alphas uniformly from (−π/2, π/2) and deltas from
// (−π, π), matching the original initialization ranges.
func RandomOrientation(n int, rng *rand.Rand) Orientation {
	o := ZeroOrientation(n)
	for i := 0; i < n; i++ {
		o.Alphas[i] = (rng.Float64() - 0.5) * math.Pi
		o.Deltas[i] = (rng.Float64() - 0.5) * 2 * math.Pi
	}
	return o
}

// NumCoils returns the number of fundamental-domain coils.
func (o Orientation) NumCoils() int { return len(o.Alphas) }

// Kappas flattens the orientation into the optimizer's variable vector:
// all alphas followed by all deltas.
func (o Orientation) Kappas() []float64 {
	n := o.NumCoils()
	k := make([]float64, 2*n)
	copy(k[:n], o.Alphas)
	copy(k[n:], o.Deltas)
	return k
}

// OrientationFromKappas splits a flat kappa vector back into angle pairs.
// The vector length must be even.
func OrientationFromKappas(kappas []float64) Orientation {
	n := len(kappas) / 2
	o := ZeroOrientation(n)
	copy(o.Alphas, kappas[:n])
	copy(o.Deltas, kappas[n:])
	return o
}

// Clone returns a deep copy so callers can snapshot the state.
func (o Orientation) Clone() Orientation {
	c := ZeroOrientation(o.NumCoils())
	copy(c.Alphas, o.Alphas)
	copy(c.Deltas, o.Deltas)
	return c
}
