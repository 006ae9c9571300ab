package core

import "errors"

// Configuration errors raised during grid or engine setup. All of them are
// fatal: the caller must fix the inputs and rebuild, there is no recovery
// path inside the engine.
var (
	// ErrGridDims indicates non-positive grid dimensions.
	ErrGridDims = errors.New("grid dimensions must be positive")

	// ErrCoilOverlap indicates two coil centers closer than one coil
	// diameter; such a pair would make the inductance matrix singular.
	ErrCoilOverlap = errors.New("coil centers closer than one coil diameter")

	// ErrSymmetryPlane indicates a coil center within one coil radius of a
	// discrete symmetry plane, where its symmetrized image would intersect it.
	ErrSymmetryPlane = errors.New("coil center too close to a symmetry plane")

	// ErrFieldShape indicates a plasma normal-field array whose shape does
	// not match the plasma boundary quadrature grid.
	ErrFieldShape = errors.New("plasma field array has wrong shape")

	// ErrKappaLength indicates an optimizer variable vector whose length is
	// not twice the number of fundamental-domain coils.
	ErrKappaLength = errors.New("kappa vector has wrong length")

	// ErrCoilRadius indicates a non-positive coil radius.
	ErrCoilRadius = errors.New("coil radius must be positive")
)
