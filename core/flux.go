package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// FluxSolver integrates the externally imposed field through each expanded
// coil's disk and solves the circuit equation for the induced currents.
type FluxSolver struct {
	r     float64
	field FieldEvaluator
	rho   gaussRule // [0, R]
	phi   gaussRule // [0, 2π]

	unitPos []Vec3 // (cos φ, sin φ, 0) at the phi nodes
}

// NewFluxSolver builds a solver for the given coil radius and external field.
func NewFluxSolver(coilRadius float64, field FieldEvaluator) *FluxSolver {
	fs := &FluxSolver{
		r:     coilRadius,
		field: field,
		rho:   newGaussRule(quadOrder, 0, coilRadius),
		phi:   newGaussRule(quadOrder, 0, 2*math.Pi),
	}
	fs.unitPos = make([]Vec3, quadOrder)
	for k, p := range fs.phi.x {
		fs.unitPos[k] = Vec3{X: math.Cos(p), Y: math.Sin(p)}
	}
	return fs
}

// pointsPerCoil is the size of one coil's (rho, phi) quadrature block in the
// flattened flux-point array.
const pointsPerCoil = quadOrder * quadOrder

// FluxPoints returns the disk quadrature points of every expanded coil,
// flattened coil-major. The same layout feeds Psi and PsiDeriv so the field
// is evaluated exactly once per update.
func (fs *FluxSolver) FluxPoints(e *SymmetryExpander, set *ExpandedSet) []Vec3 {
	total := len(e.Centers)
	pts := make([]Vec3, total*pointsPerCoil)
	for i := 0; i < total; i++ {
		rot := rotationMatrix(set.Alphas[i], set.Deltas[i])
		for k, rho := range fs.rho.x {
			for m := 0; m < quadOrder; m++ {
				pts[i*pointsPerCoil+k*quadOrder+m] =
					e.Centers[i].Add(rot.MulVec(fs.unitPos[m]).Scale(rho))
			}
		}
	}
	return pts
}

// Psi integrates B·n over each coil disk given the field values at the
// FluxPoints layout, returning the linked flux of every expanded coil.
func (fs *FluxSolver) Psi(set *ExpandedSet, bAtPoints []Vec3) []float64 {
	total := len(set.Normals)
	psi := make([]float64, total)
	for i := 0; i < total; i++ {
		n := set.Normals[i]
		var sum float64
		for k, rho := range fs.rho.x {
			wr := fs.rho.w[k] * rho
			for m := 0; m < quadOrder; m++ {
				b := bAtPoints[i*pointsPerCoil+k*quadOrder+m]
				sum += wr * fs.phi.w[m] * b.Dot(n)
			}
		}
		psi[i] = sum
	}
	return psi
}

// PsiDeriv returns ∂ψ_i/∂alpha′_i and ∂ψ_i/∂delta′_i for every expanded
// coil, chaining the field gradient through the moving disk points and the
// field through the rotating normal.
func (fs *FluxSolver) PsiDeriv(set *ExpandedSet, bAtPoints []Vec3, gradAtPoints []Mat3) (dAlpha, dDelta []float64) {
	total := len(set.Normals)
	dAlpha = make([]float64, total)
	dDelta = make([]float64, total)

	for i := 0; i < total; i++ {
		alpha, delta := set.Alphas[i], set.Deltas[i]
		dRotA := rotationDAlpha(alpha, delta)
		dRotD := rotationDDelta(alpha, delta)
		n := set.Normals[i]
		// dn/dθ is the third column of the rotation derivative.
		dnA := Vec3{X: dRotA[0][2], Y: dRotA[1][2], Z: dRotA[2][2]}
		dnD := Vec3{X: dRotD[0][2], Y: dRotD[1][2], Z: dRotD[2][2]}

		var sumA, sumD float64
		for k, rho := range fs.rho.x {
			wr := fs.rho.w[k] * rho
			for m := 0; m < quadOrder; m++ {
				idx := i*pointsPerCoil + k*quadOrder + m
				b := bAtPoints[idx]
				g := gradAtPoints[idx]
				w := wr * fs.phi.w[m]

				dxA := dRotA.MulVec(fs.unitPos[m]).Scale(rho)
				dxD := dRotD.MulVec(fs.unitPos[m]).Scale(rho)

				sumA += w * (g.MulVec(dxA).Dot(n) + b.Dot(dnA))
				sumD += w * (g.MulVec(dxD).Dot(n) + b.Dot(dnD))
			}
		}
		dAlpha[i] = sumA
		dDelta[i] = sumD
	}
	return dAlpha, dDelta
}

// condWarnThreshold is the Cholesky condition estimate above which the solve
// is flagged as numerically degenerate. Geometry validation should prevent
// this; a warning is surfaced rather than an error because the original
// behavior is to let large currents through.
const condWarnThreshold = 1e12

// circuitFactor is a factorization of the inductance matrix. Cholesky is the
// normal path (L is symmetric positive definite for valid geometry); LU is
// the fallback when the matrix has degenerated past positive definiteness.
type circuitFactor struct {
	chol   mat.Cholesky
	lu     mat.LU
	usedLU bool
	cond   float64
}

// factorizeCircuit factors L, falling back to LU when Cholesky fails.
func factorizeCircuit(L *mat.SymDense) *circuitFactor {
	f := &circuitFactor{}
	if f.chol.Factorize(L) {
		f.cond = f.chol.Cond()
		return f
	}
	f.usedLU = true
	f.cond = math.Inf(1)
	f.lu.Factorize(L)
	return f
}

// Degenerate reports whether the factorization should be treated as
// ill-conditioned for logging purposes.
func (f *circuitFactor) Degenerate() bool {
	return f.usedLU || f.cond > condWarnThreshold
}

func (f *circuitFactor) solveVec(dst *mat.VecDense, b mat.Vector) error {
	if f.usedLU {
		return f.lu.SolveVecTo(dst, false, b)
	}
	return f.chol.SolveVecTo(dst, b)
}

func (f *circuitFactor) solve(dst *mat.Dense, b mat.Matrix) error {
	if f.usedLU {
		return f.lu.SolveTo(dst, false, b)
	}
	return f.chol.SolveTo(dst, b)
}

// SolveCurrents solves L·I = −ψ/(μ0/4π) over the full expanded set and returns
// the expanded current vector. The engine restricts it to the fundamental
// domain for the coupling step; the replicas are physically redundant but
// participate in the inductance coupling.
func (fs *FluxSolver) SolveCurrents(f *circuitFactor, psi []float64) ([]float64, error) {
	n := len(psi)
	rhs := mat.NewVecDense(n, nil)
	for i, p := range psi {
		rhs.SetVec(i, -p/Mu0Over4Pi)
	}
	out := mat.NewVecDense(n, nil)
	if err := f.solveVec(out, rhs); err != nil {
		return nil, fmt.Errorf("circuit solve: %w", err)
	}
	currents := make([]float64, n)
	copy(currents, out.RawVector().Data)
	return currents, nil
}
