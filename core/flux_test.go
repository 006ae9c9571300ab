package core

import (
	"math"
	"testing"

	"github.com/arknyazev/pscopt/model"
)

// uniformField is a constant field with zero gradient, kept local so the
// core tests do not depend on the field package.
type uniformField struct {
	b0 Vec3
}

func (u uniformField) B(points []Vec3) []Vec3 {
	out := make([]Vec3, len(points))
	for i := range out {
		out[i] = u.b0
	}
	return out
}

func (u uniformField) GradB(points []Vec3) []Mat3 {
	return make([]Mat3, len(points))
}

func fluxFixture(t *testing.T, alpha, delta float64, b0 Vec3) (*FluxSolver, *SymmetryExpander, *ExpandedSet, []float64) {
	t.Helper()
	const r = 0.1
	grid := testGrid(t, []Vec3{{X: 1.0, Y: 0.4, Z: 0.2}}, r, 1, false)
	e := NewSymmetryExpander(grid)
	set := e.Expand(model.Orientation{Alphas: []float64{alpha}, Deltas: []float64{delta}})

	f := uniformField{b0: b0}
	fs := NewFluxSolver(r, f)
	pts := fs.FluxPoints(e, set)
	psi := fs.Psi(set, f.B(pts))
	return fs, e, set, psi
}

func TestPsi_UniformFieldFlatCoil(t *testing.T) {
	const b0 = 0.7
	_, _, _, psi := fluxFixture(t, 0, 0, Vec3{Z: b0})

	want := b0 * math.Pi * 0.1 * 0.1
	if math.Abs(psi[0]-want) > 1e-12 {
		t.Errorf("psi = %v, want B·πR² = %v", psi[0], want)
	}
}

func TestPsi_TiltedCoilPicksUpCosine(t *testing.T) {
	const b0 = 0.7
	const alpha = 0.4
	_, _, _, psi := fluxFixture(t, alpha, 0, Vec3{Z: b0})

	// n_z = cos(alpha) when delta = 0.
	want := b0 * math.Pi * 0.1 * 0.1 * math.Cos(alpha)
	if math.Abs(psi[0]-want) > 1e-12 {
		t.Errorf("psi = %v, want %v", psi[0], want)
	}
}

func TestSolveCurrents_SingleCoilOpposesFlux(t *testing.T) {
	const r = 0.1
	grid := testGrid(t, []Vec3{{X: 1.0, Y: 0.4, Z: 0.2}}, r, 1, false)
	e := NewSymmetryExpander(grid)
	set := e.Expand(model.ZeroOrientation(1))

	f := uniformField{b0: Vec3{Z: 0.5}}
	fs := NewFluxSolver(r, f)
	ia := NewInductanceAssembler(grid.Geom)
	L := ia.Assemble(ia.Loops(e.CentersNorm, set.Alphas, set.Deltas))
	factor := factorizeCircuit(L)
	if factor.Degenerate() {
		t.Fatalf("single-coil inductance matrix degenerate")
	}

	psi := fs.Psi(set, f.B(fs.FluxPoints(e, set)))
	currents, err := fs.SolveCurrents(factor, psi)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	// L·I = −ψ/fac with L, ψ > 0 forces a negative (opposing) current.
	if currents[0] >= 0 {
		t.Errorf("induced current %v should oppose the applied flux", currents[0])
	}
	want := -psi[0] / (Mu0Over4Pi * L.At(0, 0))
	if math.Abs(currents[0]-want)/math.Abs(want) > 1e-12 {
		t.Errorf("current = %v, want %v", currents[0], want)
	}
}

func TestPsiDeriv_FiniteDifference(t *testing.T) {
	const r = 0.1
	grid := testGrid(t, []Vec3{{X: 1.0, Y: 0.4, Z: 0.2}}, r, 1, false)
	e := NewSymmetryExpander(grid)

	// A field with nonzero gradient exercises the moving-point term too.
	f := gradientField{}
	fs := NewFluxSolver(r, f)

	alpha, delta := 0.3, -0.6
	psiAt := func(a, d float64) float64 {
		set := e.Expand(model.Orientation{Alphas: []float64{a}, Deltas: []float64{d}})
		return fs.Psi(set, f.B(fs.FluxPoints(e, set)))[0]
	}

	set := e.Expand(model.Orientation{Alphas: []float64{alpha}, Deltas: []float64{delta}})
	pts := fs.FluxPoints(e, set)
	dA, dD := fs.PsiDeriv(set, f.B(pts), f.GradB(pts))

	const h = 1e-6
	fdA := (psiAt(alpha+h, delta) - psiAt(alpha-h, delta)) / (2 * h)
	fdD := (psiAt(alpha, delta+h) - psiAt(alpha, delta-h)) / (2 * h)

	if math.Abs(dA[0]-fdA) > 1e-8*math.Max(1, math.Abs(fdA)) {
		t.Errorf("dpsi/dalpha = %v, finite difference %v", dA[0], fdA)
	}
	if math.Abs(dD[0]-fdD) > 1e-8*math.Max(1, math.Abs(fdD)) {
		t.Errorf("dpsi/ddelta = %v, finite difference %v", dD[0], fdD)
	}
}

// gradientField is a divergence- and curl-free linear field, B = (z, 0, x),
// whose gradient is constant. Physical enough to be a meaningful test and
// simple enough to differentiate by eye.
type gradientField struct{}

func (gradientField) B(points []Vec3) []Vec3 {
	out := make([]Vec3, len(points))
	for i, p := range points {
		out[i] = Vec3{X: p.Z, Z: p.X}
	}
	return out
}

func (gradientField) GradB(points []Vec3) []Mat3 {
	out := make([]Mat3, len(points))
	for i := range out {
		out[i] = Mat3{
			{0, 0, 1},
			{0, 0, 0},
			{1, 0, 0},
		}
	}
	return out
}
