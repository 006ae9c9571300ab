// Package geo provides analytic toroidal surfaces used as plasma boundaries
// and coil-winding shells. The circular-cross-section torus is exact and
// cheap, which makes it the workhorse for tests and for early design passes
// before a real equilibrium boundary is available.
package geo

import (
	"fmt"
	"math"

	"github.com/arknyazev/pscopt/core"
)

// Torus is a circular-cross-section torus sampled on a uniform (phi, theta)
// quadrature grid over the full device. It satisfies core.Surface.
//
//	γ(φ,θ) = ((R0 + a·cosθ)·cosφ, (R0 + a·cosθ)·sinφ, a·sinθ)
type Torus struct {
	r0, a    float64
	nfp      int
	stellsym bool
	nphi     int
	ntheta   int

	points    []core.Vec3
	normals   []core.Vec3
	areaElems []float64
	area      float64
}

// NewTorus builds a torus with major radius r0 and minor radius a, sampled
// at nphi × ntheta points. nfp and stellsym are device metadata carried
// through to the grid builder; the circular torus itself has every symmetry.
func NewTorus(r0, a float64, nfp int, stellsym bool, nphi, ntheta int) (*Torus, error) {
	if r0 <= 0 || a <= 0 || a >= r0 {
		return nil, fmt.Errorf("torus radii must satisfy 0 < a < r0, got r0=%v a=%v", r0, a)
	}
	if nfp < 1 {
		return nil, fmt.Errorf("nfp must be >= 1, got %d", nfp)
	}
	if nphi < 1 || ntheta < 1 {
		return nil, fmt.Errorf("quadrature grid must be positive, got %dx%d", nphi, ntheta)
	}

	t := &Torus{
		r0:       r0,
		a:        a,
		nfp:      nfp,
		stellsym: stellsym,
		nphi:     nphi,
		ntheta:   ntheta,
	}
	t.sample()
	return t, nil
}

func (t *Torus) sample() {
	n := t.nphi * t.ntheta
	t.points = make([]core.Vec3, 0, n)
	t.normals = make([]core.Vec3, 0, n)
	t.areaElems = make([]float64, 0, n)

	for ip := 0; ip < t.nphi; ip++ {
		phi := 2 * math.Pi * float64(ip) / float64(t.nphi)
		cp, sp := math.Cos(phi), math.Sin(phi)
		for it := 0; it < t.ntheta; it++ {
			theta := 2 * math.Pi * float64(it) / float64(t.ntheta)
			ct, st := math.Cos(theta), math.Sin(theta)

			ring := t.r0 + t.a*ct
			t.points = append(t.points, core.Vec3{X: ring * cp, Y: ring * sp, Z: t.a * st})
			t.normals = append(t.normals, core.Vec3{X: ct * cp, Y: ct * sp, Z: st})
			// |∂γ/∂u × ∂γ/∂v| with unit-interval parameters u, v.
			t.areaElems = append(t.areaElems, 4*math.Pi*math.Pi*t.a*ring)
		}
	}

	var sum float64
	for _, ae := range t.areaElems {
		sum += ae
	}
	t.area = sum / float64(n)
}

func (t *Torus) NFP() int       { return t.nfp }
func (t *Torus) StellSym() bool { return t.stellsym }
func (t *Torus) NPhi() int      { return t.nphi }
func (t *Torus) NTheta() int    { return t.ntheta }

func (t *Torus) Points() []core.Vec3      { return t.points }
func (t *Torus) UnitNormals() []core.Vec3 { return t.normals }
func (t *Torus) AreaElements() []float64  { return t.areaElems }
func (t *Torus) Area() float64            { return t.area }
func (t *Torus) MajorRadius() float64     { return t.r0 }

// MinorRadius returns the cross-section radius.
func (t *Torus) MinorRadius() float64 { return t.a }

// Shell is the toroidal annulus between two minor radii around a common
// circular axis. It satisfies core.Shell and bounds where coil centers may
// be placed.
type Shell struct {
	r0     float64
	aInner float64
	aOuter float64
}

// NewShell derives the annulus between the inner and outer tori. Both must
// share a major radius, and the outer must enclose the inner.
func NewShell(inner, outer *Torus) (*Shell, error) {
	if inner.r0 != outer.r0 {
		return nil, fmt.Errorf("shell tori must share a major radius, got %v and %v", inner.r0, outer.r0)
	}
	if outer.a <= inner.a {
		return nil, fmt.Errorf("outer minor radius %v must exceed inner %v", outer.a, inner.a)
	}
	return &Shell{r0: inner.r0, aInner: inner.a, aOuter: outer.a}, nil
}

// Contains reports whether p lies strictly between the inner and outer
// surfaces.
func (s *Shell) Contains(p core.Vec3) bool {
	rho := math.Hypot(p.X, p.Y)
	d := math.Hypot(rho-s.r0, p.Z)
	return d > s.aInner && d < s.aOuter
}
