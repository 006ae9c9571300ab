package model

// NormalField is a scalar field sampled on a surface's (phi, theta)
// quadrature grid, stored phi-major. It carries its own shape so consumers
// can validate against the surface they pair it with.
type NormalField struct {
	NPhi   int
	NTheta int
	Values []float64
}

// ZeroNormalField returns an all-zero field of the given shape.
func ZeroNormalField(nphi, ntheta int) NormalField {
	return NormalField{
		NPhi:   nphi,
		NTheta: ntheta,
		Values: make([]float64, nphi*ntheta),
	}
}

// ShapeMatches reports whether the field matches the given quadrature grid
// and its flattened storage is consistent with the declared shape.
func (f NormalField) ShapeMatches(nphi, ntheta int) bool {
	return f.NPhi == nphi && f.NTheta == ntheta && len(f.Values) == nphi*ntheta
}
