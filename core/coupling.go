package core

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
)

// FieldCouplingAssembler maps fundamental-domain coil currents to their
// normal-field contribution at the plasma boundary quadrature points,
// symmetry-summed over the full expanded coil set.
//
// Both the coupling matrix and its angular derivative integrate the same
// Biot–Savart loop kernel ∮ dl×r/|r|³ with the fixed Gauss–Legendre rule,
// so Deriv is the exact derivative of Assemble and finite differences of
// the objective reproduce the analytic gradient. The entries carry a unit
// coil current with the μ0/4π prefactor pulled out, matching the units of
// the inductance and flux stages.
type FieldCouplingAssembler struct {
	r       float64
	points  []Vec3
	normals []Vec3
	phi     gaussRule

	unitPos []Vec3
	unitTan []Vec3
}

// NewFieldCouplingAssembler builds an assembler for a fixed plasma boundary
// sampling and coil radius.
func NewFieldCouplingAssembler(plasma Surface, coilRadius float64) *FieldCouplingAssembler {
	fc := &FieldCouplingAssembler{
		r:       coilRadius,
		points:  plasma.Points(),
		normals: plasma.UnitNormals(),
		phi:     newGaussRule(quadOrder, 0, 2*math.Pi),
	}
	fc.unitPos = make([]Vec3, quadOrder)
	fc.unitTan = make([]Vec3, quadOrder)
	for k, p := range fc.phi.x {
		c, s := math.Cos(p), math.Sin(p)
		fc.unitPos[k] = Vec3{X: c, Y: s}
		fc.unitTan[k] = Vec3{X: -s, Y: c}
	}
	return fc
}

// NumPoints returns the number of plasma quadrature points.
func (fc *FieldCouplingAssembler) NumPoints() int { return len(fc.points) }

// Assemble computes the (numPoints × numPSC) coupling matrix. Replica
// contributions are accumulated into the fundamental coil's column with the
// stellarator-symmetry sign flip applied to the replica's current.
func (fc *FieldCouplingAssembler) Assemble(e *SymmetryExpander, set *ExpandedSet) *mat.Dense {
	nn := e.NumPSC()
	np := len(fc.points)
	a := mat.NewDense(np, nn, nil)

	for q := 0; q < e.Order(); q++ {
		sign := e.StellSign(q)
		for j := 0; j < nn; j++ {
			i := q*nn + j
			rot := rotationMatrix(set.Alphas[i], set.Deltas[i])
			center := e.Centers[i]

			var pts, tan [quadOrder]Vec3
			for k := 0; k < quadOrder; k++ {
				pts[k] = center.Add(rot.MulVec(fc.unitPos[k]).Scale(fc.r))
				tan[k] = rot.MulVec(fc.unitTan[k]).Scale(fc.r)
			}

			for p := 0; p < np; p++ {
				x := fc.points[p]
				n := fc.normals[p]
				var sum float64
				for k := 0; k < quadOrder; k++ {
					rv := x.Sub(pts[k])
					dist := rv.Norm()
					sum += fc.phi.w[k] * n.Dot(tan[k].Cross(rv)) / (dist * dist * dist)
				}
				a.Set(p, j, a.At(p, j)+sign*sum)
			}
		}
	}
	return a
}

// loopFieldBracket evaluates the unit-current circular-loop field at x in
// complete elliptic-integral form with the μ0·I/2π prefactor removed, in the
// lab frame. Exact reference for the quadrature kernel; twice the bracket is
// the field in the μ0/4π units Assemble uses.
func (fc *FieldCouplingAssembler) loopFieldBracket(center Vec3, rot Mat3, x Vec3) Vec3 {
	local := rot.MulVecT(x.Sub(center))
	rho := math.Hypot(local.X, local.Y)
	z := local.Z
	r := fc.r

	sumSq := (r+rho)*(r+rho) + z*z
	diffSq := (r-rho)*(r-rho) + z*z
	inv := 1 / math.Sqrt(sumSq)
	m := 4 * r * rho / sumSq
	k := mathext.CompleteK(m)
	el := mathext.CompleteE(m)

	bz := inv * (k + el*(r*r-rho*rho-z*z)/diffSq)

	var bLocal Vec3
	if rho > loopAxisTol*r {
		brho := z * inv / rho * (-k + el*(r*r+rho*rho+z*z)/diffSq)
		bLocal = Vec3{X: brho * local.X / rho, Y: brho * local.Y / rho, Z: bz}
	} else {
		// On the coil axis the radial component vanishes identically.
		bLocal = Vec3{Z: bz}
	}
	return rot.MulVec(bLocal)
}

const loopAxisTol = 1e-12

// Deriv computes the (numPoints × 2·numPSC) angular derivative of the
// coupling matrix, already pulled back from expanded-domain to
// fundamental-domain angles via the expander's propagation factors.
// Columns [0, numPSC) are alpha derivatives, [numPSC, 2·numPSC) delta.
func (fc *FieldCouplingAssembler) Deriv(e *SymmetryExpander, set *ExpandedSet) *mat.Dense {
	nn := e.NumPSC()
	np := len(fc.points)
	d := mat.NewDense(np, 2*nn, nil)

	for q := 0; q < e.Order(); q++ {
		sign := e.StellSign(q)
		for j := 0; j < nn; j++ {
			i := q*nn + j
			alpha, delta := set.Alphas[i], set.Deltas[i]
			rot := rotationMatrix(alpha, delta)
			dRotA := rotationDAlpha(alpha, delta)
			dRotD := rotationDDelta(alpha, delta)
			center := e.Centers[i]

			// Loop geometry and its angular derivatives at the nodes.
			var pts, tan, dPtsA, dTanA, dPtsD, dTanD [quadOrder]Vec3
			for k := 0; k < quadOrder; k++ {
				pts[k] = center.Add(rot.MulVec(fc.unitPos[k]).Scale(fc.r))
				tan[k] = rot.MulVec(fc.unitTan[k]).Scale(fc.r)
				dPtsA[k] = dRotA.MulVec(fc.unitPos[k]).Scale(fc.r)
				dTanA[k] = dRotA.MulVec(fc.unitTan[k]).Scale(fc.r)
				dPtsD[k] = dRotD.MulVec(fc.unitPos[k]).Scale(fc.r)
				dTanD[k] = dRotD.MulVec(fc.unitTan[k]).Scale(fc.r)
			}

			caa, cda := set.DAPrimeDA[i], set.DDPrimeDA[i]
			cad, cdd := set.DAPrimeDD[i], set.DDPrimeDD[i]

			for p := 0; p < np; p++ {
				x := fc.points[p]
				n := fc.normals[p]
				var sumA, sumD float64
				for k := 0; k < quadOrder; k++ {
					rv := x.Sub(pts[k])
					dist := rv.Norm()
					inv3 := 1 / (dist * dist * dist)
					inv5 := inv3 / (dist * dist)
					txr := tan[k].Cross(rv)
					w := fc.phi.w[k]

					sumA += w * n.Dot(
						dTanA[k].Cross(rv).Scale(inv3).
							Sub(tan[k].Cross(dPtsA[k]).Scale(inv3)).
							Add(txr.Scale(3*rv.Dot(dPtsA[k])*inv5)))
					sumD += w * n.Dot(
						dTanD[k].Cross(rv).Scale(inv3).
							Sub(tan[k].Cross(dPtsD[k]).Scale(inv3)).
							Add(txr.Scale(3*rv.Dot(dPtsD[k])*inv5)))
				}
				// Pull back onto the fundamental coil's (alpha, delta).
				d.Set(p, j, d.At(p, j)+sign*(sumA*caa+sumD*cda))
				d.Set(p, nn+j, d.At(p, nn+j)+sign*(sumA*cad+sumD*cdd))
			}
		}
	}
	return d
}
