package core

import (
	"errors"
	"math"
	"testing"

	"github.com/arknyazev/pscopt/model"
)

func TestManualGrid_RejectsOverlap(t *testing.T) {
	centers := []Vec3{
		{X: 1.0, Y: 0.5, Z: 0},
		{X: 1.0, Y: 0.5, Z: 0.05}, // 0.05 apart, diameter is 0.08
	}
	_, err := ManualGrid(centers, model.NewCoilGeometry(0.04), 1, false)
	if !errors.Is(err, ErrCoilOverlap) {
		t.Fatalf("err = %v, want ErrCoilOverlap", err)
	}
}

func TestManualGrid_RejectsSymmetryPlaneProximity(t *testing.T) {
	// phi = 0 is a rotation plane for every nfp > 1.
	centers := []Vec3{{X: 1.0, Y: 0.001, Z: 0}}
	_, err := ManualGrid(centers, model.NewCoilGeometry(0.04), 2, true)
	if !errors.Is(err, ErrSymmetryPlane) {
		t.Fatalf("err = %v, want ErrSymmetryPlane", err)
	}
}

func TestManualGrid_RejectsMirrorPlaneOnlyWhenStellsym(t *testing.T) {
	// phi = π/2 is a mirror plane for nfp=2 with stellarator symmetry, but
	// not a rotation plane.
	centers := []Vec3{{X: 0.001, Y: 1.0, Z: 0}}

	if _, err := ManualGrid(centers, model.NewCoilGeometry(0.04), 2, true); !errors.Is(err, ErrSymmetryPlane) {
		t.Errorf("stellsym: err = %v, want ErrSymmetryPlane", err)
	}
	if _, err := ManualGrid(centers, model.NewCoilGeometry(0.04), 2, false); err != nil {
		t.Errorf("no stellsym: err = %v, want nil", err)
	}
}

func TestManualGrid_RejectsBadRadius(t *testing.T) {
	_, err := ManualGrid([]Vec3{{X: 1}}, model.CoilGeometry{R: 0}, 1, false)
	if !errors.Is(err, ErrCoilRadius) {
		t.Fatalf("err = %v, want ErrCoilRadius", err)
	}
}

func TestManualGrid_DefaultsConductorRadius(t *testing.T) {
	grid, err := ManualGrid([]Vec3{{X: 1, Y: 0.5}}, model.CoilGeometry{R: 0.04}, 1, false)
	if err != nil {
		t.Fatalf("manual grid: %v", err)
	}
	if math.Abs(grid.Geom.A-0.04/model.DefaultAspect) > 1e-15 {
		t.Errorf("conductor radius = %v, want R/%v", grid.Geom.A, model.DefaultAspect)
	}
}

func TestSymmetryOrder(t *testing.T) {
	g := &CoilGrid{NFP: 3, StellSym: true}
	if g.SymmetryOrder() != 6 {
		t.Errorf("order = %d, want 6", g.SymmetryOrder())
	}
	g.StellSym = false
	if g.SymmetryOrder() != 3 {
		t.Errorf("order = %d, want 3", g.SymmetryOrder())
	}
}

func TestWrapAngle(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{math.Pi / 2, math.Pi / 2},
		{-math.Pi / 2, math.Pi / 2},
		{2*math.Pi - 0.1, 0.1},
		{3 * math.Pi, math.Pi},
	}
	for _, c := range cases {
		if got := wrapAngle(c.in); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("wrapAngle(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestInsideSector(t *testing.T) {
	// nfp=2: sector is [0, π/2) minus a margin near the upper edge.
	mid := Vec3{X: math.Cos(0.6), Y: math.Sin(0.6)}
	if !insideSector(mid, 2, 0.01, 1.0) {
		t.Errorf("point mid-sector rejected")
	}
	below := Vec3{X: math.Cos(-0.2), Y: math.Sin(-0.2)}
	if insideSector(below, 2, 0.01, 1.0) {
		t.Errorf("point below phi=0 accepted")
	}
	nearEdge := Vec3{X: math.Cos(math.Pi/2 - 1e-4), Y: math.Sin(math.Pi/2 - 1e-4)}
	if insideSector(nearEdge, 2, 0.01, 1.0) {
		t.Errorf("point within the margin of the sector edge accepted")
	}
}
