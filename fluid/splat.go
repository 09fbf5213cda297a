package fluid

import (
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"

	"fluidsim/config"
	"fluidsim/core"
)

// minSplatRadius keeps the gaussian denominator away from zero.
const minSplatRadius = 1e-6

// Splat injects one impulse: a velocity kick at the sim resolution followed
// by a dye deposit at the dye resolution. The deposit is circular in pixels
// of the drawing buffer the fields were allocated for.
func (p *Pipeline) Splat(ev core.SplatEvent, cfg *config.SimulationConfig, rng *rand.Rand) error {
	if err := p.ready(); err != nil {
		return err
	}
	dev := p.dev
	aspect := p.aspect()
	point := mgl32.Vec2{ev.X, ev.Y}
	radius := max(ev.Radius, minSplatRadius)

	force := ev.Force
	var bias float32
	if ev.IsRadial() {
		bias = cfg.SplatForce
	}

	dev.SetBlend(false)
	dev.Viewport(p.velocity.Width(), p.velocity.Height())
	p.prog.splat.Bind()
	dev.Uniform1i("uVelocity", p.velocity.Read().Attach(0))
	dev.Uniform1f("aspectRatio", aspect)
	dev.Uniform2f("point", point)
	dev.Uniform2f("force", force)
	dev.Uniform1f("bias", bias)
	dev.Uniform1f("radius", radius)
	p.prog.splat.Draw(p.velocity.Write().Target())
	p.velocity.Swap()

	dev.Viewport(p.dye.Width(), p.dye.Height())
	p.prog.splatColor.Bind()
	dev.Uniform1f("aspectRatio", aspect)
	dev.Uniform1i("uTarget", p.dye.Read().Attach(0))
	dev.Uniform2f("point", point)
	dev.Uniform1f("radius", radius)
	dev.Uniform3f("color", SplatColor(ev, cfg.Colorful, rng))
	p.prog.splatColor.Draw(p.dye.Write().Target())
	p.dye.Swap()
	return nil
}

// SplatColor picks the dye deposited by ev. In colorful mode an explicit
// event color wins, otherwise a fully saturated random hue is used; either
// is scaled by the volume. Without colorful mode the deposit is grey.
func SplatColor(ev core.SplatEvent, colorfulMode bool, rng *rand.Rand) mgl32.Vec3 {
	if !colorfulMode {
		return mgl32.Vec3{ev.Volume, ev.Volume, ev.Volume}
	}
	if ev.Color != nil {
		return ev.Color.Mul(ev.Volume)
	}
	c := colorful.Hsv(rng.Float64()*360, 1, 1)
	return mgl32.Vec3{float32(c.R), float32(c.G), float32(c.B)}.Mul(ev.Volume)
}
