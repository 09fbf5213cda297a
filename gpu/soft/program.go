package soft

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"fluidsim/gpu"
)

// Program is a kernel plus its uniform state. As on a GL context, uniform
// values stay with the program across binds.
type Program struct {
	name     string
	kernel   gpu.Kernel
	defines  []string
	defineOf map[string]bool

	ints   map[string]int32
	floats map[string]float32
	vec2s  map[string]mgl32.Vec2
	vec3s  map[string]mgl32.Vec3
}

func (p *Program) Name() string      { return p.name }
func (p *Program) Defines() []string { return slices.Clone(p.defines) }
func (p *Program) Release()          {}

// fragment is reused across one row; only uv changes per texel.
type fragment struct {
	program *Program
	slots   *[maxSlots]*Texture
	uv      mgl32.Vec2
}

func (f *fragment) UV() mgl32.Vec2 { return f.uv }

func (f *fragment) Defined(flag string) bool { return f.program.defineOf[flag] }

func (f *fragment) Int(name string) int32       { return f.program.ints[name] }
func (f *fragment) Float(name string) float32   { return f.program.floats[name] }
func (f *fragment) Vec2(name string) mgl32.Vec2 { return f.program.vec2s[name] }
func (f *fragment) Vec3(name string) mgl32.Vec3 { return f.program.vec3s[name] }

func (f *fragment) Sample(sampler string, uv mgl32.Vec2) mgl32.Vec4 {
	slot := f.program.ints[sampler]
	if slot < 0 || int(slot) >= maxSlots {
		return mgl32.Vec4{}
	}
	t := f.slots[slot]
	if t == nil || t.released {
		return mgl32.Vec4{}
	}
	return t.sample(uv)
}
