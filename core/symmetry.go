package core

import (
	"math"

	"github.com/arknyazev/pscopt/model"
)

// SymmetryExpander replicates the fundamental-domain coil set under the
// device's discrete symmetries: nfp-fold rotation about the z-axis, plus a
// y/z sign flip on every replica when stellarator symmetry is on.
//
// Replica ordering matches the (field period, stellarator sign) loop nest:
// replica q = fp·branches + b, with b=0 the identity branch and b=1 the
// flipped branch. Expanded index q·numPSC + j always maps back to
// fundamental coil j, so no back-references are needed.
type SymmetryExpander struct {
	nfp      int
	stellsym bool
	order    int
	numPSC   int

	// Centers and CentersNorm are static: coil centers never move when
	// orientation angles change.
	Centers     []Vec3 // expanded centers
	CentersNorm []Vec3 // expanded centers divided by the coil radius
}

// ExpandedSet is the orientation-dependent half of the expansion, recomputed
// wholesale on every angle update.
type ExpandedSet struct {
	Normals []Vec3    // expanded unit normals
	Alphas  []float64 // recovered expanded-domain angles
	Deltas  []float64

	// Derivative-propagation factors: how a unit change of a fundamental
	// coil's angle moves the recovered expanded-domain angles of each of its
	// replicas. Used to pull expanded-domain jacobians back onto the actual
	// optimization variables.
	DAPrimeDA []float64 // ∂alpha'/∂alpha
	DAPrimeDD []float64 // ∂alpha'/∂delta
	DDPrimeDA []float64 // ∂delta'/∂alpha
	DDPrimeDD []float64 // ∂delta'/∂delta
}

// NewSymmetryExpander precomputes the expanded center set for a grid.
func NewSymmetryExpander(grid *CoilGrid) *SymmetryExpander {
	e := &SymmetryExpander{
		nfp:      grid.NFP,
		stellsym: grid.StellSym,
		order:    grid.SymmetryOrder(),
		numPSC:   grid.NumCoils(),
	}
	n := e.numPSC
	e.Centers = make([]Vec3, n*e.order)
	e.CentersNorm = make([]Vec3, n*e.order)
	invR := 1.0 / grid.Geom.R

	for q, s := range e.replicas() {
		for j, c := range grid.Centers {
			p := s.apply(c)
			e.Centers[q*n+j] = p
			e.CentersNorm[q*n+j] = p.Scale(invR)
		}
	}
	return e
}

// Order returns nfp × (2 when stellarator symmetric).
func (e *SymmetryExpander) Order() int { return e.order }

// NumPSC returns the fundamental-domain coil count.
func (e *SymmetryExpander) NumPSC() int { return e.numPSC }

// StellSign returns the current sign (+1/−1) of replica q: induced currents
// flip sign on the stellarator-flipped branches.
func (e *SymmetryExpander) StellSign(q int) float64 {
	if e.stellsym && q%2 == 1 {
		return -1
	}
	return 1
}

// Expand recomputes expanded normals, recovered angles, and the four
// derivative-propagation factors for the given orientation.
func (e *SymmetryExpander) Expand(o model.Orientation) *ExpandedSet {
	n := e.numPSC
	total := n * e.order
	set := &ExpandedSet{
		Normals:   make([]Vec3, total),
		Alphas:    make([]float64, total),
		Deltas:    make([]float64, total),
		DAPrimeDA: make([]float64, total),
		DAPrimeDD: make([]float64, total),
		DDPrimeDA: make([]float64, total),
		DDPrimeDD: make([]float64, total),
	}

	for q, s := range e.replicas() {
		for j := 0; j < n; j++ {
			alpha, delta := o.Alphas[j], o.Deltas[j]
			ca, sa := math.Cos(alpha), math.Sin(alpha)
			cd, sd := math.Cos(delta), math.Sin(delta)

			nPrime := normalizeNormal(s.apply(coilNormal(alpha, delta)))
			// Fundamental-domain normal derivatives, mapped through the
			// replica rotation.
			dnDa := s.apply(Vec3{X: -sa * sd, Y: -ca, Z: -sa * cd})
			dnDd := s.apply(Vec3{X: ca * cd, Y: 0, Z: -ca * sd})

			i := q*n + j
			set.Normals[i] = nPrime
			set.Alphas[i], set.Deltas[i] = anglesFromNormal(nPrime)

			// alpha' = −asin(n'_y): the chain rule needs 1/sqrt(1−n'_y²),
			// singular when the normal points along ±y (gimbal lock).
			denomA := math.Sqrt(math.Max(1-nPrime.Y*nPrime.Y, gimbalTol))
			// delta' = atan2(n'_x, n'_z).
			denomD := math.Max(nPrime.X*nPrime.X+nPrime.Z*nPrime.Z, gimbalTol)

			set.DAPrimeDA[i] = -dnDa.Y / denomA
			set.DAPrimeDD[i] = -dnDd.Y / denomA
			set.DDPrimeDA[i] = (nPrime.Z*dnDa.X - nPrime.X*dnDa.Z) / denomD
			set.DDPrimeDD[i] = (nPrime.Z*dnDd.X - nPrime.X*dnDd.Z) / denomD
		}
	}
	return set
}

const gimbalTol = 1e-24

// replica is one symmetry operation: rotation by phi0 about z composed with
// an optional y/z sign flip.
type replica struct {
	cos, sin float64
	sign     float64
}

func (s replica) apply(v Vec3) Vec3 {
	return Vec3{
		X: v.X*s.cos - v.Y*s.sin*s.sign,
		Y: v.X*s.sin + v.Y*s.cos*s.sign,
		Z: v.Z * s.sign,
	}
}

func (e *SymmetryExpander) replicas() []replica {
	signs := []float64{1}
	if e.stellsym {
		signs = []float64{1, -1}
	}
	out := make([]replica, 0, e.order)
	for fp := 0; fp < e.nfp; fp++ {
		phi0 := 2 * math.Pi * float64(fp) / float64(e.nfp)
		c, s := math.Cos(phi0), math.Sin(phi0)
		for _, sign := range signs {
			out = append(out, replica{cos: c, sin: s, sign: sign})
		}
	}
	return out
}
