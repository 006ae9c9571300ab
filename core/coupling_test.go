package core

import (
	"math"
	"testing"

	"github.com/arknyazev/pscopt/model"
)

// pointSurface is a minimal Surface carrying explicit evaluation points, for
// pinning the coupling matrix against closed-form loop fields.
type pointSurface struct {
	pts     []Vec3
	normals []Vec3
}

func (s *pointSurface) NFP() int             { return 1 }
func (s *pointSurface) StellSym() bool       { return false }
func (s *pointSurface) NPhi() int            { return len(s.pts) }
func (s *pointSurface) NTheta() int          { return 1 }
func (s *pointSurface) Points() []Vec3       { return s.pts }
func (s *pointSurface) UnitNormals() []Vec3  { return s.normals }
func (s *pointSurface) Area() float64        { return 1 }
func (s *pointSurface) MajorRadius() float64 { return 1 }
func (s *pointSurface) AreaElements() []float64 {
	ae := make([]float64, len(s.pts))
	for i := range ae {
		ae[i] = 1
	}
	return ae
}

// The exact on-axis field of a circular loop is μ0·I·R²/(2·(R²+z²)^{3/2}).
// Coupling entries are stored in units of μ0/4π, so the expected entry for
// unit current is 2π·R²/(R²+z²)^{3/2}.
func TestAssemble_OnAxisLoopField(t *testing.T) {
	const r = 0.1
	const z = 0.25
	grid := testGrid(t, []Vec3{{X: 1.0, Y: 0.4, Z: 0}}, r, 1, false)
	e := NewSymmetryExpander(grid)
	set := e.Expand(model.ZeroOrientation(1))

	surf := &pointSurface{
		pts:     []Vec3{{X: 1.0, Y: 0.4, Z: z}},
		normals: []Vec3{{Z: 1}},
	}
	fc := NewFieldCouplingAssembler(surf, r)
	a := fc.Assemble(e, set)

	want := 2 * math.Pi * r * r / math.Pow(r*r+z*z, 1.5)
	if got := a.At(0, 0); math.Abs(got-want)/want > 1e-10 {
		t.Errorf("on-axis coupling = %v, want %v", got, want)
	}
}

// The quadrature kernel must reproduce the exact elliptic-integral loop
// field (twice the μ0·I/2π bracket) off axis and for a tilted coil, so that
// sharing the kernel with Deriv costs no field accuracy.
func TestAssemble_MatchesEllipticClosedForm(t *testing.T) {
	const r = 0.1
	grid := testGrid(t, []Vec3{{X: 1.0, Y: 0.4, Z: 0}}, r, 1, false)
	e := NewSymmetryExpander(grid)
	set := e.Expand(model.Orientation{Alphas: []float64{0.3}, Deltas: []float64{-0.5}})

	surf := &pointSurface{
		pts:     []Vec3{{X: 1.3, Y: 0.6, Z: 0.4}, {X: 0.7, Y: 0.1, Z: -0.3}},
		normals: []Vec3{{Z: 1}, {X: 0.6, Y: 0.8}},
	}
	fc := NewFieldCouplingAssembler(surf, r)
	a := fc.Assemble(e, set)

	rot := rotationMatrix(set.Alphas[0], set.Deltas[0])
	for p, x := range surf.pts {
		b := fc.loopFieldBracket(e.Centers[0], rot, x)
		want := 2 * surf.normals[p].Dot(b)
		if got := a.At(p, 0); math.Abs(got-want) > 1e-3*math.Abs(want) {
			t.Errorf("coupling[%d] = %v, elliptic closed form %v", p, got, want)
		}
	}
}

func TestAssemble_ContinuousAcrossAxis(t *testing.T) {
	const r = 0.1
	grid := testGrid(t, []Vec3{{X: 1.0, Y: 0.4, Z: 0}}, r, 1, false)
	e := NewSymmetryExpander(grid)
	set := e.Expand(model.ZeroOrientation(1))

	onAxis := &pointSurface{
		pts:     []Vec3{{X: 1.0, Y: 0.4, Z: 0.3}},
		normals: []Vec3{{Z: 1}},
	}
	nearAxis := &pointSurface{
		pts:     []Vec3{{X: 1.0 + 1e-7, Y: 0.4, Z: 0.3}},
		normals: []Vec3{{Z: 1}},
	}

	aOn := NewFieldCouplingAssembler(onAxis, r).Assemble(e, set).At(0, 0)
	aNear := NewFieldCouplingAssembler(nearAxis, r).Assemble(e, set).At(0, 0)
	if math.Abs(aOn-aNear)/math.Abs(aOn) > 1e-6 {
		t.Errorf("coupling jumps across the coil axis: %v vs %v", aOn, aNear)
	}
}

func TestDeriv_FiniteDifference(t *testing.T) {
	const r = 0.08
	grid := testGrid(t, []Vec3{{X: 1.1, Y: 0.5, Z: 0.1}, {X: -0.7, Y: 0.9, Z: -0.2}}, r, 1, false)
	e := NewSymmetryExpander(grid)

	surf := &pointSurface{
		pts:     []Vec3{{X: 0.2, Y: 0.1, Z: 0.6}, {X: -0.4, Y: 0.3, Z: -0.5}},
		normals: []Vec3{{Z: 1}, {X: 0.6, Y: 0.8}},
	}
	fc := NewFieldCouplingAssembler(surf, r)

	alphas := []float64{0.4, -0.3}
	deltas := []float64{-0.8, 1.2}

	assembleAt := func(a, d []float64) [][]float64 {
		set := e.Expand(model.Orientation{Alphas: a, Deltas: d})
		m := fc.Assemble(e, set)
		out := make([][]float64, len(surf.pts))
		for p := range out {
			out[p] = []float64{m.At(p, 0), m.At(p, 1)}
		}
		return out
	}

	set := e.Expand(model.Orientation{Alphas: alphas, Deltas: deltas})
	d := fc.Deriv(e, set)

	const h = 1e-6
	for j := 0; j < 2; j++ {
		aPlus := append([]float64(nil), alphas...)
		aMinus := append([]float64(nil), alphas...)
		aPlus[j] += h
		aMinus[j] -= h
		plus, minus := assembleAt(aPlus, deltas), assembleAt(aMinus, deltas)

		dPlus := append([]float64(nil), deltas...)
		dMinus := append([]float64(nil), deltas...)
		dPlus[j] += h
		dMinus[j] -= h
		plusD, minusD := assembleAt(alphas, dPlus), assembleAt(alphas, dMinus)

		for p := range surf.pts {
			fdA := (plus[p][j] - minus[p][j]) / (2 * h)
			fdD := (plusD[p][j] - minusD[p][j]) / (2 * h)

			if got := d.At(p, j); math.Abs(got-fdA) > 1e-5*math.Max(1, math.Abs(fdA)) {
				t.Errorf("dA[%d][%d]/dalpha = %v, finite difference %v", p, j, got, fdA)
			}
			if got := d.At(p, 2+j); math.Abs(got-fdD) > 1e-5*math.Max(1, math.Abs(fdD)) {
				t.Errorf("dA[%d][%d]/ddelta = %v, finite difference %v", p, j, got, fdD)
			}
		}
	}
}
