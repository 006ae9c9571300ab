package core

import (
	"fmt"
	"math"

	"github.com/arknyazev/pscopt/model"
)

// GridConfig controls candidate-center placement between two toroidal
// surfaces.
type GridConfig struct {
	// Nx, Ny, Nz are the uniform bounding-box resolutions.
	Nx, Ny, Nz int
	// PlasmaOffset is the plasma/coil standoff distance; it bounds the coil
	// radius for nfp other than 2.
	PlasmaOffset float64
}

// CoilGrid is the immutable output of geometry setup: fundamental-domain
// coil centers plus the shared coil geometry and the device symmetry they
// were validated against.
type CoilGrid struct {
	Centers  []Vec3
	Geom     model.CoilGeometry
	NFP      int
	StellSym bool
}

// NumCoils returns the number of fundamental-domain coils.
func (g *CoilGrid) NumCoils() int { return len(g.Centers) }

// SymmetryOrder returns nfp doubled when stellarator symmetry is on.
func (g *CoilGrid) SymmetryOrder() int {
	if g.StellSym {
		return 2 * g.NFP
	}
	return g.NFP
}

// BuildGrid places coil centers on a uniform Cartesian grid spanning the
// outer surface's bounding box, keeps only points inside the shell between
// the two surfaces and inside one fundamental sector, then sizes the coils
// from the grid spacing and validates the result.
//
// The coil radius heuristic is deliberately nfp-specific: it was tuned so
// that symmetrized neighbours stay at least a diameter apart on the
// configurations this grid is used for.
func BuildGrid(plasma Surface, outer Surface, shell Shell, cfg GridConfig) (*CoilGrid, error) {
	if cfg.Nx <= 0 || cfg.Ny <= 0 || cfg.Nz <= 0 {
		return nil, fmt.Errorf("%w: Nx=%d Ny=%d Nz=%d", ErrGridDims, cfg.Nx, cfg.Ny, cfg.Nz)
	}
	nfp := plasma.NFP()

	xMin, xMax := math.Inf(1), math.Inf(-1)
	yMin, yMax := math.Inf(1), math.Inf(-1)
	zAbs := 0.0
	for _, p := range outer.Points() {
		xMin = math.Min(xMin, p.X)
		xMax = math.Max(xMax, p.X)
		yMin = math.Min(yMin, p.Y)
		yMax = math.Max(yMax, p.Y)
		zAbs = math.Max(zAbs, math.Abs(p.Z))
	}

	dx := (xMax - xMin) / float64(cfg.Nx-1)
	dy := (yMax - yMin) / float64(cfg.Ny-1)
	dz := 2 * zAbs / float64(cfg.Nz-1)
	minSpacing := math.Min(dx, math.Min(dy, dz))

	var r float64
	switch nfp {
	case 2:
		r = minSpacing / 2.5
	case 3:
		r = math.Min(minSpacing/2.0, cfg.PlasmaOffset/3.0)
	default:
		r = cfg.PlasmaOffset / 2.5
	}
	if r <= 0 {
		return nil, fmt.Errorf("%w: derived R=%g", ErrCoilRadius, r)
	}

	// For nfp > 1 the candidate lattice is pulled half a cell off the box
	// faces so sector filtering never lands a coil exactly on a boundary.
	x0, x1 := xMin, xMax
	y0, y1 := yMin, yMax
	if nfp > 1 {
		x0, x1 = xMin+dx/2, xMax-dx/2
		y0, y1 = yMin+dy/2, yMax-dy/2
	}

	var centers []Vec3
	for i := 0; i < cfg.Nx; i++ {
		x := lerp(x0, x1, i, cfg.Nx)
		for j := 0; j < cfg.Ny; j++ {
			y := lerp(y0, y1, j, cfg.Ny)
			for k := 0; k < cfg.Nz; k++ {
				z := lerp(-zAbs, zAbs, k, cfg.Nz)
				p := Vec3{X: x, Y: y, Z: z}
				if nfp > 1 && !insideSector(p, nfp, r, plasma.MajorRadius()) {
					continue
				}
				if !shell.Contains(p) {
					continue
				}
				centers = append(centers, p)
			}
		}
	}

	grid := &CoilGrid{
		Centers:  centers,
		Geom:     model.NewCoilGeometry(r),
		NFP:      nfp,
		StellSym: plasma.StellSym(),
	}
	if err := validateCenters(grid); err != nil {
		return nil, err
	}
	return grid, nil
}

// ManualGrid builds a grid from caller-supplied centers and coil radius.
// The same overlap and symmetry-plane validation applies as in grid mode.
func ManualGrid(centers []Vec3, geom model.CoilGeometry, nfp int, stellsym bool) (*CoilGrid, error) {
	if geom.R <= 0 {
		return nil, fmt.Errorf("%w: R=%g", ErrCoilRadius, geom.R)
	}
	if geom.A <= 0 {
		geom.A = geom.R / model.DefaultAspect
	}
	grid := &CoilGrid{
		Centers:  append([]Vec3(nil), centers...),
		Geom:     geom,
		NFP:      nfp,
		StellSym: stellsym,
	}
	if err := validateCenters(grid); err != nil {
		return nil, err
	}
	return grid, nil
}

func lerp(lo, hi float64, i, n int) float64 {
	if n == 1 {
		return lo
	}
	return lo + (hi-lo)*float64(i)/float64(n-1)
}

// insideSector keeps points with toroidal angle in [0, π/nfp) minus an
// nfp-specific margin, so that a coil of radius r never straddles the sector
// boundary.
func insideSector(p Vec3, nfp int, r, majorRadius float64) bool {
	phi := math.Atan2(p.Y, p.X)
	var margin float64
	switch nfp {
	case 2:
		margin = math.Atan2(r, majorRadius)
	case 3:
		margin = math.Atan2(p.Y+r, p.X-r) - phi
	default:
		margin = math.Atan2(r, p.X)
	}
	return phi >= 0 && phi < math.Pi/float64(nfp)-margin
}

// validateCenters enforces the two fatal geometric preconditions: no pair of
// centers within one coil diameter, and no center within one coil radius of
// a discrete symmetry plane. Both would corrupt the symmetrized coil set:
// the first makes L numerically singular, the second makes a coil collide
// with its own mirror image.
func validateCenters(g *CoilGrid) error {
	r := g.Geom.R

	planes := symmetryPlanes(g.NFP, g.StellSym)
	for i, c := range g.Centers {
		rho := math.Hypot(c.X, c.Y)
		phi := math.Atan2(c.Y, c.X)
		// Angular half-width subtended by the coil at this radius.
		dev := math.Atan2(r, rho)
		for _, plane := range planes {
			if wrapAngle(phi-plane) < dev {
				return fmt.Errorf("%w: center %d at phi=%.6f rad (plane %.6f rad)",
					ErrSymmetryPlane, i, phi, plane)
			}
		}
	}

	for i := 0; i < len(g.Centers); i++ {
		for j := i + 1; j < len(g.Centers); j++ {
			if d := g.Centers[i].DistanceTo(g.Centers[j]); d < 2*r {
				return fmt.Errorf("%w: centers %d,%d at distance %g < %g",
					ErrCoilOverlap, i, j, d, 2*r)
			}
		}
	}
	return nil
}

// symmetryPlanes lists toroidal angles of the planes a coil must keep clear
// of. Field-period rotation contributes planes at 2πk/nfp; stellarator
// symmetry adds the mirror planes halfway between them. With no discrete
// symmetry at all there are no planes to avoid.
func symmetryPlanes(nfp int, stellsym bool) []float64 {
	if nfp == 1 && !stellsym {
		return nil
	}
	step := 2 * math.Pi / float64(nfp)
	if stellsym {
		step /= 2
	}
	count := nfp
	if stellsym {
		count *= 2
	}
	planes := make([]float64, count)
	for k := range planes {
		planes[k] = step * float64(k)
	}
	return planes
}

// wrapAngle returns the absolute angular distance in [0, π].
func wrapAngle(d float64) float64 {
	d = math.Mod(d, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}
