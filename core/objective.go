package core

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/arknyazev/pscopt/internal/logging"
	"github.com/arknyazev/pscopt/model"
)

// InitPolicy selects how coil orientations are initialized at setup.
type InitPolicy int

const (
	// InitZeros starts every normal along +z. Tends to optimize best.
	InitZeros InitPolicy = iota
	// InitRandom draws angles uniformly from their natural ranges.
	InitRandom
	// InitFieldAligned points each normal along the external field at the
	// coil center, maximizing the initially induced current.
	InitFieldAligned
	// InitPlasmaAligned copies the unit normal of the nearest plasma point.
	InitPlasmaAligned
)

// ObjectiveConfig carries the optional setup inputs of an ObjectiveEngine.
type ObjectiveConfig struct {
	// BnPlasma is the prescribed plasma-only normal field on the boundary
	// quadrature grid. Zero value means an all-zero field.
	BnPlasma model.NormalField
	Init     InitPolicy
	// Rand seeds InitRandom; defaults to a fixed-seed source.
	Rand   *rand.Rand
	Logger logging.Logger
}

// DerivedState bundles every matrix derived from one orientation. It is the
// output of a pure recompute pass: nothing in it is patched incrementally.
type DerivedState struct {
	Set         *ExpandedSet
	Loops       *CoilLoops
	L           *mat.SymDense
	factor      *circuitFactor
	FluxPoints  []Vec3
	BAtFlux     []Vec3
	Psi         []float64
	CurrentsAll []float64
	Currents    []float64 // fundamental-domain restriction of CurrentsAll
	A           *mat.Dense
	Bn          []float64 // A·Currents at the plasma points
}

// ObjectiveEngine composes grid, symmetry, inductance, flux, and coupling
// into the least-squares objective an external optimizer drives through
// Evaluate and Gradient. The engine owns the orientation state exclusively
// and overwrites it wholesale on each call; callers must serialize calls.
type ObjectiveEngine struct {
	grid     *CoilGrid
	plasma   Surface
	field    FieldEvaluator
	expander *SymmetryExpander
	induct   *InductanceAssembler
	flux     *FluxSolver
	coupling *FieldCouplingAssembler

	gridNorm []float64
	bOpt     []float64
	fac2Norm float64

	orientation model.Orientation
	derived     *DerivedState
	history     []float64

	log logging.Logger
}

// axisSamples is the number of points on the magnetic-axis circle used for
// the characteristic-field normalization.
const axisSamples = 128

// NewObjectiveEngine wires the engine for a validated grid, a plasma
// boundary, and an external field, and runs the first recompute.
func NewObjectiveEngine(grid *CoilGrid, plasma Surface, field FieldEvaluator, cfg ObjectiveConfig) (*ObjectiveEngine, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}

	bnPlasma := cfg.BnPlasma
	if bnPlasma.Values == nil {
		bnPlasma = model.ZeroNormalField(plasma.NPhi(), plasma.NTheta())
	}
	if !bnPlasma.ShapeMatches(plasma.NPhi(), plasma.NTheta()) {
		return nil, fmt.Errorf("%w: got %dx%d (len %d), surface grid is %dx%d",
			ErrFieldShape, bnPlasma.NPhi, bnPlasma.NTheta, len(bnPlasma.Values),
			plasma.NPhi(), plasma.NTheta())
	}

	e := &ObjectiveEngine{
		grid:     grid,
		plasma:   plasma,
		field:    field,
		expander: NewSymmetryExpander(grid),
		induct:   NewInductanceAssembler(grid.Geom),
		flux:     NewFluxSolver(grid.Geom.R, field),
		coupling: NewFieldCouplingAssembler(plasma, grid.Geom.R),
		log:      log,
	}

	// Residual weights: sqrt of the area element per quadrature point, so
	// the squared residual approximates the surface integral of Bn².
	area := plasma.AreaElements()
	nGrid := float64(len(area))
	e.gridNorm = make([]float64, len(area))
	for i, a := range area {
		e.gridNorm[i] = math.Sqrt(a / nGrid)
	}

	// Background normal field, fixed for the whole run.
	pts := plasma.Points()
	normals := plasma.UnitNormals()
	bTF := field.B(pts)
	e.bOpt = make([]float64, len(pts))
	for i := range pts {
		e.bOpt[i] = (bTF[i].Dot(normals[i]) + bnPlasma.Values[i]) / Mu0Over4Pi
	}

	bAxis := onAxisField(field, plasma.MajorRadius())
	e.fac2Norm = Mu0Over4Pi * Mu0Over4Pi / (bAxis * bAxis * plasma.Area())

	o, err := e.initialOrientation(cfg)
	if err != nil {
		return nil, err
	}
	e.orientation = o
	e.derived = e.recompute(o)

	log.Info(context.Background(), "objective engine ready",
		logging.Int("num_psc", grid.NumCoils()),
		logging.Int("symmetry_order", grid.SymmetryOrder()),
		logging.Float64("coil_radius", grid.Geom.R),
		logging.Int("plasma_points", len(pts)),
	)
	return e, nil
}

func (e *ObjectiveEngine) initialOrientation(cfg ObjectiveConfig) (model.Orientation, error) {
	n := e.grid.NumCoils()
	switch cfg.Init {
	case InitRandom:
		rng := cfg.Rand
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		return model.RandomOrientation(n, rng), nil

	case InitFieldAligned:
		b := e.field.B(e.grid.Centers)
		o := model.ZeroOrientation(n)
		for i, v := range b {
			norm := v.Norm()
			if norm == 0 {
				continue
			}
			o.Alphas[i], o.Deltas[i] = anglesFromNormal(v.Scale(1 / norm))
		}
		return o, nil

	case InitPlasmaAligned:
		pts := e.plasma.Points()
		normals := e.plasma.UnitNormals()
		o := model.ZeroOrientation(n)
		for i, c := range e.grid.Centers {
			best, bestD := 0, math.Inf(1)
			for p, x := range pts {
				if d := c.Sub(x).Dot(c.Sub(x)); d < bestD {
					best, bestD = p, d
				}
			}
			o.Alphas[i], o.Deltas[i] = anglesFromNormal(normals[best])
		}
		return o, nil

	default:
		return model.ZeroOrientation(n), nil
	}
}

// onAxisField is the mean |B| on the circle of the given radius in the z=0
// plane, the characteristic field strength the objective is normalized by.
func onAxisField(field FieldEvaluator, radius float64) float64 {
	pts := make([]Vec3, axisSamples)
	for i := range pts {
		phi := 2 * math.Pi * float64(i) / axisSamples
		pts[i] = Vec3{X: radius * math.Cos(phi), Y: radius * math.Sin(phi)}
	}
	b := field.B(pts)
	var sum float64
	for _, v := range b {
		sum += v.Norm()
	}
	return sum / axisSamples
}

// recompute derives every matrix from the orientation. It is the only place
// downstream state is produced; there is no incremental update path.
func (e *ObjectiveEngine) recompute(o model.Orientation) *DerivedState {
	set := e.expander.Expand(o)
	loops := e.induct.Loops(e.expander.CentersNorm, set.Alphas, set.Deltas)
	L := e.induct.Assemble(loops)

	factor := factorizeCircuit(L)
	if factor.Degenerate() {
		e.log.Warn(context.Background(), "inductance matrix is ill-conditioned; currents may blow up",
			logging.Float64("cond", factor.cond),
			logging.Any("lu_fallback", factor.usedLU),
		)
	}

	fluxPts := e.flux.FluxPoints(e.expander, set)
	bAt := e.field.B(fluxPts)
	psi := e.flux.Psi(set, bAt)
	currentsAll, err := e.flux.SolveCurrents(factor, psi)
	if err != nil {
		// The factorization succeeded, so the solve cannot fail for valid
		// dimensions; surface it loudly rather than silently zeroing.
		e.log.Error(context.Background(), "circuit solve failed", logging.Any("err", err))
		currentsAll = make([]float64, len(psi))
	}
	nn := e.grid.NumCoils()

	a := e.coupling.Assemble(e.expander, set)
	bn := make([]float64, e.coupling.NumPoints())
	iVec := mat.NewVecDense(nn, currentsAll[:nn])
	out := mat.NewVecDense(len(bn), bn)
	out.MulVec(a, iVec)

	return &DerivedState{
		Set:         set,
		Loops:       loops,
		L:           L,
		factor:      factor,
		FluxPoints:  fluxPts,
		BAtFlux:     bAt,
		Psi:         psi,
		CurrentsAll: currentsAll,
		Currents:    currentsAll[:nn],
		A:           a,
		Bn:          bn,
	}
}

// NumVars returns the optimizer variable count, 2 × numPSC.
func (e *ObjectiveEngine) NumVars() int { return 2 * e.grid.NumCoils() }

// History returns the loss recorded at every Evaluate call. Diagnostic only.
func (e *ObjectiveEngine) History() []float64 {
	return append([]float64(nil), e.history...)
}

// Orientation returns a copy of the current orientation state.
func (e *ObjectiveEngine) Orientation() model.Orientation {
	return e.orientation.Clone()
}

// Currents returns the fundamental-domain induced currents at the current
// orientation.
func (e *ObjectiveEngine) Currents() []float64 {
	return append([]float64(nil), e.derived.Currents...)
}

// Derived exposes the current derived state for inspection and export.
func (e *ObjectiveEngine) Derived() *DerivedState { return e.derived }

func (e *ObjectiveEngine) setKappas(kappas []float64) error {
	if len(kappas) != e.NumVars() {
		return fmt.Errorf("%w: got %d, want %d", ErrKappaLength, len(kappas), e.NumVars())
	}
	e.orientation = model.OrientationFromKappas(kappas)
	e.derived = e.recompute(e.orientation)
	return nil
}

// Evaluate recomputes all derived state for the given kappa vector and
// returns the scalar loss 0.5·fac²/(B²·area)·‖(A·I + b)·w‖².
func (e *ObjectiveEngine) Evaluate(kappas []float64) (float64, error) {
	if err := e.setKappas(kappas); err != nil {
		return 0, err
	}
	var sum float64
	for i, bn := range e.derived.Bn {
		r := (bn + e.bOpt[i]) * e.gridNorm[i]
		sum += r * r
	}
	loss := 0.5 * e.fac2Norm * sum
	e.history = append(e.history, loss)
	return loss, nil
}

// Gradient recomputes all derived state and returns the exact gradient of
// Evaluate with respect to kappas. Two contributions are combined: the
// direct sensitivity of the coupling matrix at fixed currents, and the
// sensitivity of the currents through the flux and inductance derivatives,
// dI = −L⁻¹·(dψ/fac + dL·I).
func (e *ObjectiveEngine) Gradient(kappas []float64) ([]float64, error) {
	if err := e.setKappas(kappas); err != nil {
		return nil, err
	}
	d := e.derived
	set := d.Set
	nn := e.grid.NumCoils()
	total := nn * e.grid.SymmetryOrder()
	np := e.coupling.NumPoints()

	// Weighted residual r_p = (Bn_p + b_p)·w_p.
	res := make([]float64, np)
	for p := range res {
		res[p] = (d.Bn[p] + e.bOpt[p]) * e.gridNorm[p]
	}

	// Direct coupling sensitivity, already pulled back to fundamental angles.
	dA := e.coupling.Deriv(e.expander, set)

	// Flux sensitivity needs the field gradient at the same disk points.
	grads := e.field.GradB(d.FluxPoints)
	dPsiA, dPsiD := e.flux.PsiDeriv(set, d.BAtFlux, grads)

	// Right-hand sides of L·dI = −(dψ/fac + dL·I), one column per variable.
	rhs := mat.NewDense(total, 2*nn, nil)
	for p := 0; p < total; p++ {
		j := p % nn
		gA, gD := e.induct.DerivRows(d.Loops, p)
		gIA := floats.Dot(gA, d.CurrentsAll)
		gID := floats.Dot(gD, d.CurrentsAll)

		// Column j is d/dalpha_j, column nn+j is d/ddelta_j.
		for _, v := range [2]struct {
			col    int
			cA, cD float64
			dPsi   float64
		}{
			{j, set.DAPrimeDA[p], set.DDPrimeDA[p], dPsiA[p]*set.DAPrimeDA[p] + dPsiD[p]*set.DDPrimeDA[p]},
			{nn + j, set.DAPrimeDD[p], set.DDPrimeDD[p], dPsiA[p]*set.DAPrimeDD[p] + dPsiD[p]*set.DDPrimeDD[p]},
		} {
			// dψ term.
			rhs.Set(p, v.col, rhs.At(p, v.col)+v.dPsi/Mu0Over4Pi)
			// (dL·I) with dL = G + Gᵀ and G carrying only row p.
			rhs.Set(p, v.col, rhs.At(p, v.col)+v.cA*gIA+v.cD*gID)
			ip := d.CurrentsAll[p]
			for k := 0; k < total; k++ {
				g := v.cA*gA[k] + v.cD*gD[k]
				rhs.Set(k, v.col, rhs.At(k, v.col)+g*ip)
			}
		}
	}

	dIAll := mat.NewDense(total, 2*nn, nil)
	if err := d.factor.solve(dIAll, rhs); err != nil {
		return nil, fmt.Errorf("current sensitivity solve: %w", err)
	}
	dIAll.Scale(-1, dIAll)

	// A·dI over the fundamental block.
	dIFund := dIAll.Slice(0, nn, 0, 2*nn)
	aDI := mat.NewDense(np, 2*nn, nil)
	aDI.Mul(d.A, dIFund)

	grad := make([]float64, 2*nn)
	for m := 0; m < 2*nn; m++ {
		iScale := d.Currents[m%nn]
		var sum float64
		for p := 0; p < np; p++ {
			dBn := dA.At(p, m)*iScale + aDI.At(p, m)
			sum += res[p] * e.gridNorm[p] * dBn
		}
		grad[m] = e.fac2Norm * sum
	}
	return grad, nil
}
