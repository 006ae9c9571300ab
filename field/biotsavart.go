// Package field provides external magnetic field evaluators: discretized
// Biot–Savart coil sets for toroidal-field coils and a uniform field for
// tests. Both report analytic spatial gradients so downstream sensitivity
// calculations stay exact.
package field

import (
	"fmt"
	"math"

	"github.com/arknyazev/pscopt/core"
)

// Loop is one filamentary coil discretized at uniform curve parameter. The
// tangents are dγ/ds with s ∈ [0,1), so line integrals reduce to means over
// the sample points.
type Loop struct {
	Points   []core.Vec3
	Tangents []core.Vec3
	Current  float64
}

// NewCircularLoop discretizes a planar circular coil. The loop lies in the
// plane through center whose normal is given by the rotation angles alpha
// (about x) and delta (about y), matching the orientation convention used
// for the passive coils.
func NewCircularLoop(center core.Vec3, alpha, delta, radius float64, current float64, nseg int) Loop {
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	cd, sd := math.Cos(delta), math.Sin(delta)
	rot := core.Mat3{
		{cd, sa * sd, ca * sd},
		{0, ca, -sa},
		{-sd, sa * cd, ca * cd},
	}

	l := Loop{
		Points:   make([]core.Vec3, nseg),
		Tangents: make([]core.Vec3, nseg),
		Current:  current,
	}
	for k := 0; k < nseg; k++ {
		s := 2 * math.Pi * float64(k) / float64(nseg)
		cs, ss := math.Cos(s), math.Sin(s)
		l.Points[k] = center.Add(rot.MulVec(core.Vec3{X: radius * cs, Y: radius * ss}))
		l.Tangents[k] = rot.MulVec(core.Vec3{X: -radius * ss, Y: radius * cs}).Scale(2 * math.Pi)
	}
	return l
}

// CoilSet is a fixed collection of current loops evaluated together. It
// satisfies core.FieldEvaluator.
type CoilSet struct {
	Loops []Loop
}

// EquallySpacedCoils builds the usual toroidal-field set: ncoils planar
// circular coils per half field period, centered on the circle of radius r0
// in the z=0 plane, replicated around the device by the rotation and
// stellarator symmetries with current signs flipped on reflected images.
func EquallySpacedCoils(r0, coilRadius, current float64, ncoils, nfp int, stellsym bool, nseg int) (*CoilSet, error) {
	if ncoils < 1 || nfp < 1 || nseg < 3 {
		return nil, fmt.Errorf("coil set needs ncoils >= 1, nfp >= 1, nseg >= 3; got %d, %d, %d", ncoils, nfp, nseg)
	}
	if r0 <= 0 || coilRadius <= 0 {
		return nil, fmt.Errorf("coil radii must be positive, got r0=%v radius=%v", r0, coilRadius)
	}

	branches := 1
	if stellsym {
		branches = 2
	}
	base := make([]Loop, ncoils)
	for i := range base {
		phi := (float64(i) + 0.5) * 2 * math.Pi / float64(branches*nfp*ncoils)
		base[i] = poloidalCircle(r0, coilRadius, phi, current, nseg)
	}

	set := &CoilSet{Loops: make([]Loop, 0, ncoils*branches*nfp)}
	for fp := 0; fp < nfp; fp++ {
		phi0 := 2 * math.Pi * float64(fp) / float64(nfp)
		c0, s0 := math.Cos(phi0), math.Sin(phi0)
		for b := 0; b < branches; b++ {
			stell := 1.0
			if b == 1 {
				stell = -1
			}
			// Rz(phi0) composed with the stellarator flip diag(1,-1,-1).
			m := core.Mat3{
				{c0, -s0 * stell, 0},
				{s0, c0 * stell, 0},
				{0, 0, stell},
			}
			for _, l := range base {
				img := Loop{
					Points:   make([]core.Vec3, len(l.Points)),
					Tangents: make([]core.Vec3, len(l.Tangents)),
					Current:  l.Current * stell,
				}
				for k := range l.Points {
					img.Points[k] = m.MulVec(l.Points[k])
					img.Tangents[k] = m.MulVec(l.Tangents[k])
				}
				set.Loops = append(set.Loops, img)
			}
		}
	}
	return set, nil
}

// poloidalCircle is a circle of the given radius in the poloidal plane at
// toroidal angle phi, centered on the axis circle of radius r0.
func poloidalCircle(r0, radius, phi, current float64, nseg int) Loop {
	cp, sp := math.Cos(phi), math.Sin(phi)
	l := Loop{
		Points:   make([]core.Vec3, nseg),
		Tangents: make([]core.Vec3, nseg),
		Current:  current,
	}
	for k := 0; k < nseg; k++ {
		s := 2 * math.Pi * float64(k) / float64(nseg)
		cs, ss := math.Cos(s), math.Sin(s)
		ring := r0 + radius*cs
		l.Points[k] = core.Vec3{X: ring * cp, Y: ring * sp, Z: radius * ss}
		l.Tangents[k] = core.Vec3{
			X: -2 * math.Pi * radius * ss * cp,
			Y: -2 * math.Pi * radius * ss * sp,
			Z: 2 * math.Pi * radius * cs,
		}
	}
	return l
}

// B evaluates the Biot–Savart field at each point by the midpoint rule over
// every loop's samples.
func (cs *CoilSet) B(points []core.Vec3) []core.Vec3 {
	out := make([]core.Vec3, len(points))
	for i, x := range points {
		var b core.Vec3
		for _, l := range cs.Loops {
			inv := l.Current / float64(len(l.Points))
			var acc core.Vec3
			for k := range l.Points {
				r := x.Sub(l.Points[k])
				d := r.Norm()
				if d == 0 {
					continue
				}
				acc = acc.Add(l.Tangents[k].Cross(r).Scale(1 / (d * d * d)))
			}
			b = b.Add(acc.Scale(inv))
		}
		out[i] = b.Scale(core.Mu0Over4Pi)
	}
	return out
}

// GradB evaluates ∂B_i/∂x_j at each point analytically:
//
//	∂/∂x_j [(t×r)_i / |r|³] = (t×e_j)_i/|r|³ − 3 r_j (t×r)_i/|r|⁵
func (cs *CoilSet) GradB(points []core.Vec3) []core.Mat3 {
	ex := core.Vec3{X: 1}
	ey := core.Vec3{Y: 1}
	ez := core.Vec3{Z: 1}

	out := make([]core.Mat3, len(points))
	for i, x := range points {
		var g core.Mat3
		for _, l := range cs.Loops {
			inv := l.Current / float64(len(l.Points))
			for k := range l.Points {
				r := x.Sub(l.Points[k])
				d := r.Norm()
				if d == 0 {
					continue
				}
				d3 := d * d * d
				d5 := d3 * d * d
				t := l.Tangents[k]
				txr := t.Cross(r)
				cols := [3]core.Vec3{t.Cross(ex), t.Cross(ey), t.Cross(ez)}
				rj := [3]float64{r.X, r.Y, r.Z}
				for col := 0; col < 3; col++ {
					c := cols[col].Scale(1 / d3).Sub(txr.Scale(3 * rj[col] / d5)).Scale(inv)
					g[0][col] += c.X
					g[1][col] += c.Y
					g[2][col] += c.Z
				}
			}
		}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				g[r][c] *= core.Mu0Over4Pi
			}
		}
		out[i] = g
	}
	return out
}
