package field

import "github.com/arknyazev/pscopt/core"

// Uniform is a spatially constant field. Its gradient is identically zero,
// which makes flux and sensitivity results exactly predictable in tests.
type Uniform struct {
	B0 core.Vec3
}

func (u Uniform) B(points []core.Vec3) []core.Vec3 {
	out := make([]core.Vec3, len(points))
	for i := range out {
		out[i] = u.B0
	}
	return out
}

func (u Uniform) GradB(points []core.Vec3) []core.Mat3 {
	return make([]core.Mat3, len(points))
}
