package core

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/arknyazev/pscopt/model"
)

func ringSurface(t *testing.T) Surface {
	t.Helper()
	// A coarse ring of points with outward normals, standing in for a real
	// toroidal boundary. Geometry tests live in the geo package; here the
	// surface only needs to be a valid quadrature set.
	const n = 12
	s := &pointSurface{
		pts:     make([]Vec3, n),
		normals: make([]Vec3, n),
	}
	for i := 0; i < n; i++ {
		phi := 2 * math.Pi * float64(i) / n
		s.pts[i] = Vec3{X: 1.3 * math.Cos(phi), Y: 1.3 * math.Sin(phi), Z: 0.1}
		s.normals[i] = Vec3{X: math.Cos(phi), Y: math.Sin(phi)}
	}
	return s
}

func engineFixture(t *testing.T, f FieldEvaluator) *ObjectiveEngine {
	t.Helper()
	centers := []Vec3{
		{X: 1.0, Y: 0.4, Z: 0.3},
		{X: -0.8, Y: 0.7, Z: -0.2},
		{X: 0.1, Y: -1.1, Z: 0.25},
	}
	grid, err := ManualGrid(centers, model.NewCoilGeometry(0.08), 1, false)
	if err != nil {
		t.Fatalf("manual grid: %v", err)
	}
	engine, err := NewObjectiveEngine(grid, ringSurface(t), f, ObjectiveConfig{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return engine
}

func TestEvaluate_RejectsWrongKappaLength(t *testing.T) {
	engine := engineFixture(t, uniformField{b0: Vec3{Z: 0.2}})
	if _, err := engine.Evaluate([]float64{1, 2, 3}); !errors.Is(err, ErrKappaLength) {
		t.Fatalf("err = %v, want ErrKappaLength", err)
	}
	if _, err := engine.Gradient(make([]float64, 7)); !errors.Is(err, ErrKappaLength) {
		t.Fatalf("gradient err = %v, want ErrKappaLength", err)
	}
}

func TestEvaluate_RecordsHistory(t *testing.T) {
	engine := engineFixture(t, uniformField{b0: Vec3{Z: 0.2}})
	x := make([]float64, engine.NumVars())
	for i := 0; i < 3; i++ {
		if _, err := engine.Evaluate(x); err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}
	if got := len(engine.History()); got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}
}

func TestEvaluate_PeriodicInAngles(t *testing.T) {
	engine := engineFixture(t, uniformField{b0: Vec3{Z: 0.2}})

	rng := rand.New(rand.NewSource(7))
	x := make([]float64, engine.NumVars())
	for i := range x {
		x[i] = (rng.Float64() - 0.5) * 2
	}
	shifted := make([]float64, len(x))
	for i := range x {
		shifted[i] = x[i] + 2*math.Pi
	}

	l1, err := engine.Evaluate(x)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	l2, err := engine.Evaluate(shifted)
	if err != nil {
		t.Fatalf("evaluate shifted: %v", err)
	}
	if math.Abs(l1-l2) > 1e-9*math.Max(1, math.Abs(l1)) {
		t.Errorf("loss not 2π-periodic: %v vs %v", l1, l2)
	}
}

func TestEvaluate_RejectsMismatchedPlasmaField(t *testing.T) {
	grid, err := ManualGrid([]Vec3{{X: 1.0, Y: 0.4, Z: 0.3}}, model.NewCoilGeometry(0.08), 1, false)
	if err != nil {
		t.Fatalf("manual grid: %v", err)
	}
	_, err = NewObjectiveEngine(grid, ringSurface(t), uniformField{b0: Vec3{Z: 0.2}}, ObjectiveConfig{
		BnPlasma: model.ZeroNormalField(5, 5),
	})
	if !errors.Is(err, ErrFieldShape) {
		t.Fatalf("err = %v, want ErrFieldShape", err)
	}
}

func TestGradient_MatchesFiniteDifference(t *testing.T) {
	// A spatially varying field exercises every gradient term: the direct
	// coupling sensitivity, the flux derivative, and the dL·I contribution.
	engine := engineFixture(t, gradientField{})

	rng := rand.New(rand.NewSource(3))
	x := make([]float64, engine.NumVars())
	for i := range x {
		x[i] = (rng.Float64() - 0.5)
	}

	grad, err := engine.Gradient(x)
	if err != nil {
		t.Fatalf("gradient: %v", err)
	}

	const h = 1e-6
	for m := range x {
		xp := append([]float64(nil), x...)
		xm := append([]float64(nil), x...)
		xp[m] += h
		xm[m] -= h
		lp, err := engine.Evaluate(xp)
		if err != nil {
			t.Fatalf("evaluate +h: %v", err)
		}
		lm, err := engine.Evaluate(xm)
		if err != nil {
			t.Fatalf("evaluate -h: %v", err)
		}
		fd := (lp - lm) / (2 * h)

		tol := 1e-4 * math.Max(1e-8, math.Abs(fd))
		if math.Abs(grad[m]-fd) > tol {
			t.Errorf("grad[%d] = %v, finite difference %v", m, grad[m], fd)
		}
	}
}

func TestGradient_PointsDownhill(t *testing.T) {
	engine := engineFixture(t, gradientField{})

	x := make([]float64, engine.NumVars())
	for i := range x {
		x[i] = 0.2
	}
	l0, err := engine.Evaluate(x)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	grad, err := engine.Gradient(x)
	if err != nil {
		t.Fatalf("gradient: %v", err)
	}

	var norm2 float64
	for _, g := range grad {
		norm2 += g * g
	}
	if norm2 == 0 {
		t.Skip("zero gradient at test point")
	}

	step := 1e-6 / math.Sqrt(norm2)
	xs := make([]float64, len(x))
	for i := range x {
		xs[i] = x[i] - step*grad[i]
	}
	l1, err := engine.Evaluate(xs)
	if err != nil {
		t.Fatalf("evaluate stepped: %v", err)
	}
	if l1 >= l0 {
		t.Errorf("loss did not decrease along negative gradient: %v -> %v", l0, l1)
	}
}

func TestInitPolicies(t *testing.T) {
	centers := []Vec3{{X: 1.0, Y: 0.4, Z: 0.3}, {X: -0.8, Y: 0.7, Z: -0.2}}
	grid, err := ManualGrid(centers, model.NewCoilGeometry(0.08), 1, false)
	if err != nil {
		t.Fatalf("manual grid: %v", err)
	}

	zero, err := NewObjectiveEngine(grid, ringSurface(t), uniformField{b0: Vec3{Z: 0.2}}, ObjectiveConfig{Init: InitZeros})
	if err != nil {
		t.Fatalf("zeros engine: %v", err)
	}
	for _, a := range zero.Orientation().Kappas() {
		if a != 0 {
			t.Errorf("zeros policy produced nonzero angle %v", a)
		}
	}

	random, err := NewObjectiveEngine(grid, ringSurface(t), uniformField{b0: Vec3{Z: 0.2}}, ObjectiveConfig{
		Init: InitRandom,
		Rand: rand.New(rand.NewSource(42)),
	})
	if err != nil {
		t.Fatalf("random engine: %v", err)
	}
	allZero := true
	for _, a := range random.Orientation().Kappas() {
		if a != 0 {
			allZero = false
		}
	}
	if allZero {
		t.Errorf("random policy produced the zero orientation")
	}

	// Field-aligned against a +z uniform field means normals along +z,
	// which is the zero orientation.
	aligned, err := NewObjectiveEngine(grid, ringSurface(t), uniformField{b0: Vec3{Z: 0.2}}, ObjectiveConfig{Init: InitFieldAligned})
	if err != nil {
		t.Fatalf("field-aligned engine: %v", err)
	}
	for _, a := range aligned.Orientation().Kappas() {
		if math.Abs(a) > 1e-12 {
			t.Errorf("field-aligned against ẑ should be the zero orientation, got %v", a)
		}
	}
}
