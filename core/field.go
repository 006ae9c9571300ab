package core

// Mu0Over4Pi is the Biot–Savart prefactor μ0/4π in SI units. Inductance and
// coupling matrices are stored in units of this constant, which keeps their
// entries O(1) and the circuit solve well scaled.
const Mu0Over4Pi = 1e-7

// FieldEvaluator is the externally-imposed-field collaborator (the TF coil
// set in a stellarator). B returns the field at each point; GradB returns
// the 3×3 spatial gradient ∂B_i/∂x_j at each point, which the flux-derivative
// path needs to chain orientation changes through the moving quadrature
// points. Evaluators for spatially uniform fields return zero matrices.
type FieldEvaluator interface {
	B(points []Vec3) []Vec3
	GradB(points []Vec3) []Mat3
}
