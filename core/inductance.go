package core

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/arknyazev/pscopt/model"
)

// InductanceAssembler computes the symmetric mutual-inductance matrix of the
// expanded coil set and its angular derivative rows.
//
// Matrices are stored in units of μ0/4π: the mutual term is the dimensionless
// double line integral ∮∮ dl·dl′/|r| evaluated with unit-radius loops and
// centers in coil-radius units, scaled back by R. With that convention the
// circuit equation L·I = −ψ/(μ0/4π) yields physical currents directly.
type InductanceAssembler struct {
	geom model.CoilGeometry
	phi  gaussRule

	// Unit-circle basis vectors at the quadrature nodes, shared by every
	// coil frame.
	unitPos []Vec3 // (cos φ, sin φ, 0)
	unitTan []Vec3 // (−sin φ, cos φ, 0)
}

// NewInductanceAssembler builds an assembler with the fixed 8-point
// Gauss–Legendre rule on [0, 2π].
func NewInductanceAssembler(geom model.CoilGeometry) *InductanceAssembler {
	ia := &InductanceAssembler{
		geom: geom,
		phi:  newGaussRule(quadOrder, 0, 2*math.Pi),
	}
	ia.unitPos = make([]Vec3, quadOrder)
	ia.unitTan = make([]Vec3, quadOrder)
	for k, p := range ia.phi.x {
		c, s := math.Cos(p), math.Sin(p)
		ia.unitPos[k] = Vec3{X: c, Y: s}
		ia.unitTan[k] = Vec3{X: -s, Y: c}
	}
	return ia
}

// CoilLoops caches per-coil quadrature geometry (loop points and tangents in
// coil-radius units) for one expanded orientation, so the matrix assembly
// and its derivative rows share the same evaluations.
type CoilLoops struct {
	points   [][]Vec3 // [coil][node] ĉ + Rot·(cos φ, sin φ, 0)
	tangents [][]Vec3 // [coil][node] Rot·(−sin φ, cos φ, 0)
	alphas   []float64
	deltas   []float64
}

// NumCoils returns the number of loops in the cache.
func (l *CoilLoops) NumCoils() int { return len(l.points) }

// Loops evaluates every expanded coil's quadrature geometry. centersNorm are
// expanded centers divided by the coil radius; alphas/deltas are the
// recovered expanded-domain angles.
func (ia *InductanceAssembler) Loops(centersNorm []Vec3, alphas, deltas []float64) *CoilLoops {
	n := len(centersNorm)
	l := &CoilLoops{
		points:   make([][]Vec3, n),
		tangents: make([][]Vec3, n),
		alphas:   alphas,
		deltas:   deltas,
	}
	for j := 0; j < n; j++ {
		rot := rotationMatrix(alphas[j], deltas[j])
		pts := make([]Vec3, quadOrder)
		tan := make([]Vec3, quadOrder)
		for k := 0; k < quadOrder; k++ {
			pts[k] = centersNorm[j].Add(rot.MulVec(ia.unitPos[k]))
			tan[k] = rot.MulVec(ia.unitTan[k])
		}
		l.points[j] = pts
		l.tangents[j] = tan
	}
	return l
}

// SelfInductance returns the analytic self-inductance term placed on the
// diagonal, in the same μ0/4π units as the mutual terms.
func (ia *InductanceAssembler) SelfInductance() float64 {
	g := ia.geom
	return (math.Log(8*g.R/g.A) - 2) * 4 * math.Pi * g.R
}

// Assemble computes the full symmetric inductance matrix. Off-diagonal terms
// are computed once for i<j and mirrored; the diagonal is analytic.
func (ia *InductanceAssembler) Assemble(l *CoilLoops) *mat.SymDense {
	n := l.NumCoils()
	L := mat.NewSymDense(n, nil)
	self := ia.SelfInductance()
	r := ia.geom.R

	for i := 0; i < n; i++ {
		L.SetSym(i, i, self)
		for j := i + 1; j < n; j++ {
			L.SetSym(i, j, r*ia.mutual(l, i, j))
		}
	}
	return L
}

// mutual evaluates the dimensionless double line integral between loops i
// and j with the tensor-product Gauss–Legendre rule.
func (ia *InductanceAssembler) mutual(l *CoilLoops, i, j int) float64 {
	sum := 0.0
	for k := 0; k < quadOrder; k++ {
		pi := l.points[i][k]
		ti := l.tangents[i][k]
		wi := ia.phi.w[k]
		for m := 0; m < quadOrder; m++ {
			d := pi.Sub(l.points[j][m])
			sum += wi * ia.phi.w[m] * ti.Dot(l.tangents[j][m]) / d.Norm()
		}
	}
	return sum
}

// DerivRows returns ∂M(p,·)/∂alpha′_p and ∂M(p,·)/∂delta′_p for expanded
// coil p, in the same units and R scaling as Assemble. Only row p of the
// unsymmetrized matrix depends on coil p's angles; the symmetrized action
// (row and column p) is applied by the caller.
func (ia *InductanceAssembler) DerivRows(l *CoilLoops, p int) (dAlpha, dDelta []float64) {
	n := l.NumCoils()
	dAlpha = make([]float64, n)
	dDelta = make([]float64, n)

	dRotA := rotationDAlpha(l.alphas[p], l.deltas[p])
	dRotD := rotationDDelta(l.alphas[p], l.deltas[p])

	// Derivatives of coil p's loop points and tangents at each node.
	var dPtsA, dTanA, dPtsD, dTanD [quadOrder]Vec3
	for k := 0; k < quadOrder; k++ {
		dPtsA[k] = dRotA.MulVec(ia.unitPos[k])
		dTanA[k] = dRotA.MulVec(ia.unitTan[k])
		dPtsD[k] = dRotD.MulVec(ia.unitPos[k])
		dTanD[k] = dRotD.MulVec(ia.unitTan[k])
	}

	r := ia.geom.R
	for j := 0; j < n; j++ {
		if j == p {
			continue // self term is constant
		}
		var sumA, sumD float64
		for k := 0; k < quadOrder; k++ {
			pp := l.points[p][k]
			tp := l.tangents[p][k]
			wk := ia.phi.w[k]
			for m := 0; m < quadOrder; m++ {
				d := pp.Sub(l.points[j][m])
				tj := l.tangents[j][m]
				dist := d.Norm()
				inv := 1 / dist
				inv3 := inv * inv * inv
				dot := tp.Dot(tj)
				w := wk * ia.phi.w[m]

				sumA += w * (dTanA[k].Dot(tj)*inv - dot*d.Dot(dPtsA[k])*inv3)
				sumD += w * (dTanD[k].Dot(tj)*inv - dot*d.Dot(dPtsD[k])*inv3)
			}
		}
		dAlpha[j] = r * sumA
		dDelta[j] = r * sumD
	}
	return dAlpha, dDelta
}
