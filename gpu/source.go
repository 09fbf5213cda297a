package gpu

import "github.com/go-gl/mathgl/mgl32"

// Source describes one fragment program. Fragment is GLSL for hardware
// backends; Kernel is the same computation in Go for the software backend.
// Both are written against the shared vertex stage, which provides vUv and
// the four neighbor coordinates derived from the texelSize uniform.
type Source struct {
	Name     string
	Fragment string
	Kernel   Kernel
}

// Kernel computes the color of one fragment.
type Kernel func(f Fragment) mgl32.Vec4

// Fragment gives a kernel access to its coordinates, uniforms and samplers.
// Missing uniforms read as zero, as they would on a GL context.
type Fragment interface {
	UV() mgl32.Vec2
	Defined(flag string) bool

	Int(name string) int32
	Float(name string) float32
	Vec2(name string) mgl32.Vec2
	Vec3(name string) mgl32.Vec3

	// Sample reads the texture attached to the slot held by the named
	// sampler uniform, using that texture's filter and clamp-to-edge.
	Sample(sampler string, uv mgl32.Vec2) mgl32.Vec4
}

// Neighbors returns the left, right, top and bottom sample coordinates the
// vertex stage computes from texelSize.
func Neighbors(f Fragment) (l, r, t, b mgl32.Vec2) {
	uv := f.UV()
	ts := f.Vec2("texelSize")
	l = mgl32.Vec2{uv[0] - ts[0], uv[1]}
	r = mgl32.Vec2{uv[0] + ts[0], uv[1]}
	t = mgl32.Vec2{uv[0], uv[1] + ts[1]}
	b = mgl32.Vec2{uv[0], uv[1] - ts[1]}
	return l, r, t, b
}
