package core

// Surface is the toroidal-boundary collaborator. Implementations expose a
// fixed quadrature sampling of a closed toroidal surface; the engine never
// inspects the underlying parameterization.
//
// Point sets are flattened phi-major: index i = iphi·NTheta + itheta.
type Surface interface {
	// NFP is the number of field periods of the device.
	NFP() int
	// StellSym reports whether the device is stellarator symmetric.
	StellSym() bool

	// NPhi and NTheta are the quadrature grid dimensions.
	NPhi() int
	NTheta() int

	// Points returns the surface quadrature points.
	Points() []Vec3
	// UnitNormals returns outward unit normals at the quadrature points.
	UnitNormals() []Vec3
	// AreaElements returns |∂γ/∂φ × ∂γ/∂θ| at the quadrature points, with
	// respect to unit-interval surface parameters.
	AreaElements() []float64
	// Area returns the total surface area.
	Area() float64

	// MajorRadius returns the surface's nominal major radius, used for the
	// nfp=2 sector margin and the on-axis field normalization.
	MajorRadius() float64
}

// Shell is the volume-membership collaborator used by the grid builder to
// keep only candidate centers lying between the inner and outer bounding
// surfaces.
type Shell interface {
	Contains(p Vec3) bool
}
