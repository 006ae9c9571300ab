package core

import "math"

// The coil-plane parameterization used throughout: a coil's unit normal is
// obtained by rotating ẑ first by alpha about the x-axis, then by delta about
// the y-axis, giving n = (cos α · sin δ, −sin α, cos α · cos δ).

// rotationMatrix returns Ry(delta)·Rx(alpha). Its third column is the coil
// normal; the first two columns span the coil plane.
func rotationMatrix(alpha, delta float64) Mat3 {
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	cd, sd := math.Cos(delta), math.Sin(delta)
	return Mat3{
		{cd, sa * sd, ca * sd},
		{0, ca, -sa},
		{-sd, sa * cd, ca * cd},
	}
}

// rotationDAlpha is ∂/∂alpha of rotationMatrix.
func rotationDAlpha(alpha, delta float64) Mat3 {
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	cd, sd := math.Cos(delta), math.Sin(delta)
	return Mat3{
		{0, ca * sd, -sa * sd},
		{0, -sa, -ca},
		{0, ca * cd, -sa * cd},
	}
}

// rotationDDelta is ∂/∂delta of rotationMatrix.
func rotationDDelta(alpha, delta float64) Mat3 {
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	cd, sd := math.Cos(delta), math.Sin(delta)
	return Mat3{
		{-sd, sa * cd, ca * cd},
		{0, 0, 0},
		{-cd, -sa * sd, -ca * sd},
	}
}

// coilNormal returns the unit normal for an (alpha, delta) pair.
func coilNormal(alpha, delta float64) Vec3 {
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	cd, sd := math.Cos(delta), math.Sin(delta)
	return Vec3{X: ca * sd, Y: -sa, Z: ca * cd}
}

// signedZeroTol bounds how close to zero a normal component must be before
// a negative sign is scrubbed. Mirrors the float tolerance the angle
// recovery was tuned against.
const signedZeroTol = 1e-8

// normalizeNormal scrubs negative signs off (near-)zero components of a
// normal vector. Components like −0 or −1e−17 flip the quadrant returned by
// atan2 in the angle recovery below, which makes recovered angles jump
// discontinuously between symmetry replicas.
func normalizeNormal(n Vec3) Vec3 {
	if math.Abs(n.X) <= signedZeroTol && math.Signbit(n.X) {
		n.X = -n.X
	}
	if math.Abs(n.Y) <= signedZeroTol && math.Signbit(n.Y) {
		n.Y = -n.Y
	}
	if math.Abs(n.Z) <= signedZeroTol && math.Signbit(n.Z) {
		n.Z = -n.Z
	}
	return n
}

// anglesFromNormal recovers the (alpha, delta) pair whose coilNormal equals
// the given unit vector. The vector is normalized for signed zeros first;
// callers pass normals straight out of the symmetry rotation.
func anglesFromNormal(n Vec3) (alpha, delta float64) {
	n = normalizeNormal(n)
	delta = math.Atan2(n.X, n.Z)
	y := n.Y
	if y > 1 {
		y = 1
	} else if y < -1 {
		y = -1
	}
	alpha = -math.Asin(y)
	return alpha, delta
}
