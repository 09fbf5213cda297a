// Package fluid implements the grid solver and display passes of the
// simulation on top of a gpu.Device.
//
// Every operation is a short sequence of full-surface draws. Passes that
// read and write the same field go through a DoubleSurface and swap after
// the draw, so a pass never samples the surface it is writing.
package fluid

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"fluidsim/config"
	"fluidsim/core"
	"fluidsim/gpu"
	"fluidsim/metrics"
)

// MaxDyeResolutionNearest caps the dye grid on devices without linear
// filtering, where advection falls back to four samples per fragment.
const MaxDyeResolutionNearest = 512

type programs struct {
	copy             *Program
	clear            *Program
	splat            *Program
	splatColor       *Program
	brown            *Program
	advection        *Program
	divergence       *Program
	curl             *Program
	vorticity        *Program
	pressure         *Program
	gradientSubtract *Program
}

// Pipeline owns the simulation fields and the programs that advance them.
type Pipeline struct {
	dev  gpu.Device
	log  *zap.Logger
	caps core.Capabilities

	prog    programs
	display *Material

	velocity   *DoubleSurface
	dye        *DoubleSurface
	divergence *Surface
	curl       *Surface
	pressure   *DoubleSurface

	simResolution int
	dyeResolution int

	// drawing buffer size of the current allocation
	drawW, drawH int
}

// New compiles every program. A compile or link failure is returned wrapped
// and leaves nothing allocated.
func New(dev gpu.Device, log *zap.Logger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{
		dev:  dev,
		log:  log.Named("fluid"),
		caps: dev.Capabilities(),
	}

	var advectionFlags []string
	if !p.caps.LinearFiltering {
		advectionFlags = append(advectionFlags, FlagManualFiltering)
		p.log.Warn("linear filtering unavailable, advection filters manually",
			zap.Int("maxDyeResolution", MaxDyeResolutionNearest))
	}

	builds := []struct {
		dst   **Program
		src   gpu.Source
		flags []string
	}{
		{&p.prog.copy, copySource, nil},
		{&p.prog.clear, clearSource, nil},
		{&p.prog.splat, splatSource, nil},
		{&p.prog.splatColor, splatColorSource, nil},
		{&p.prog.brown, brownSource, nil},
		{&p.prog.advection, advectionSource, advectionFlags},
		{&p.prog.divergence, divergenceSource, nil},
		{&p.prog.curl, curlSource, nil},
		{&p.prog.vorticity, vorticitySource, nil},
		{&p.prog.pressure, pressureSource, nil},
		{&p.prog.gradientSubtract, gradientSubtractSource, nil},
	}
	for _, b := range builds {
		prog, err := NewProgram(dev, b.src, p.log, b.flags...)
		if err != nil {
			p.Release()
			return nil, err
		}
		*b.dst = prog
	}

	p.display = NewMaterial(dev, displaySource, p.log)
	if err := p.display.SetFeatureFlags(); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) Capabilities() core.Capabilities { return p.caps }

// SetResolution sets the grid resolutions used by the next Resize.
func (p *Pipeline) SetResolution(sim, dye int) {
	if !p.caps.LinearFiltering && dye > MaxDyeResolutionNearest {
		dye = MaxDyeResolutionNearest
	}
	p.simResolution = sim
	p.dyeResolution = dye
}

// Resolution returns the grid resolutions last set.
func (p *Pipeline) Resolution() (sim, dye int) {
	return p.simResolution, p.dyeResolution
}

// Resize (re)allocates the fields for a drawing buffer of width x height.
// Velocity and dye keep their content through the copy program; divergence,
// curl and pressure are recreated empty. An empty drawing buffer is rejected
// and leaves the fields as they are.
func (p *Pipeline) Resize(width, height int) error {
	if p.simResolution <= 0 || p.dyeResolution <= 0 {
		return fmt.Errorf("fluid: resolution not set (sim %d, dye %d)", p.simResolution, p.dyeResolution)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmptyDrawable, width, height)
	}
	simW, simH := core.Resolution(p.simResolution, width, height)
	dyeW, dyeH := core.Resolution(p.dyeResolution, width, height)

	filter := p.caps.Filter()
	var err error

	if p.dye == nil {
		p.dye, err = NewDoubleSurface(p.dev, dyeW, dyeH, p.caps.FormatRGBA, filter)
	} else {
		err = p.dye.Resize(p.dev, dyeW, dyeH, p.prog.copy)
	}
	if err != nil {
		return fmt.Errorf("dye: %w", err)
	}

	if p.velocity == nil {
		p.velocity, err = NewDoubleSurface(p.dev, simW, simH, p.caps.FormatRG, filter)
	} else {
		err = p.velocity.Resize(p.dev, simW, simH, p.prog.copy)
	}
	if err != nil {
		return fmt.Errorf("velocity: %w", err)
	}

	divergence, err := NewSurface(p.dev, simW, simH, p.caps.FormatR, core.FilterNearest)
	if err != nil {
		return fmt.Errorf("divergence: %w", err)
	}
	curl, err := NewSurface(p.dev, simW, simH, p.caps.FormatR, core.FilterNearest)
	if err != nil {
		divergence.Release()
		return fmt.Errorf("curl: %w", err)
	}
	pressure, err := NewDoubleSurface(p.dev, simW, simH, p.caps.FormatR, core.FilterNearest)
	if err != nil {
		divergence.Release()
		curl.Release()
		return fmt.Errorf("pressure: %w", err)
	}

	p.releaseSingles()
	p.divergence, p.curl, p.pressure = divergence, curl, pressure
	p.drawW, p.drawH = width, height

	metrics.Reallocations.Inc()
	p.log.Info("fields allocated",
		zap.Int("drawWidth", width), zap.Int("drawHeight", height),
		zap.Int("simWidth", simW), zap.Int("simHeight", simH),
		zap.Int("dyeWidth", dyeW), zap.Int("dyeHeight", dyeH))
	return nil
}

func (p *Pipeline) releaseSingles() {
	if p.divergence != nil {
		p.divergence.Release()
	}
	if p.curl != nil {
		p.curl.Release()
	}
	if p.pressure != nil {
		p.pressure.Release()
	}
}

// ErrNotAllocated is returned by operations that need fields before the
// first Resize.
var ErrNotAllocated = errors.New("fluid: fields not allocated")

// ErrEmptyDrawable is returned by Resize for a zero-area drawing buffer.
var ErrEmptyDrawable = errors.New("fluid: empty drawing buffer")

// aspect is the width over height of the drawing buffer the fields were
// allocated for.
func (p *Pipeline) aspect() float32 { return float32(p.drawW) / float32(p.drawH) }

func (p *Pipeline) ready() error {
	if p.velocity == nil || p.dye == nil || p.drawH == 0 {
		return ErrNotAllocated
	}
	return nil
}

// Step advances velocity and dye by dt. The caller clamps dt.
func (p *Pipeline) Step(dt float32, cfg *config.SimulationConfig) error {
	if err := p.ready(); err != nil {
		return err
	}
	dev := p.dev
	vel := p.velocity
	ts := vel.TexelSize()

	dev.SetBlend(false)
	dev.Viewport(vel.Width(), vel.Height())

	p.prog.curl.Bind()
	dev.Uniform2f("texelSize", ts)
	dev.Uniform1i("uVelocity", vel.Read().Attach(0))
	p.prog.curl.Draw(p.curl.Target())

	p.prog.vorticity.Bind()
	dev.Uniform2f("texelSize", ts)
	dev.Uniform1i("uVelocity", vel.Read().Attach(0))
	dev.Uniform1i("uCurl", p.curl.Attach(1))
	dev.Uniform1f("curl", cfg.Curl)
	dev.Uniform1f("dt", dt)
	p.prog.vorticity.Draw(vel.Write().Target())
	vel.Swap()

	p.prog.divergence.Bind()
	dev.Uniform2f("texelSize", ts)
	dev.Uniform1i("uVelocity", vel.Read().Attach(0))
	p.prog.divergence.Draw(p.divergence.Target())

	p.prog.clear.Bind()
	dev.Uniform1i("uTexture", p.pressure.Read().Attach(0))
	dev.Uniform1f("value", cfg.Pressure)
	p.prog.clear.Draw(p.pressure.Write().Target())
	p.pressure.Swap()

	p.prog.pressure.Bind()
	dev.Uniform2f("texelSize", ts)
	dev.Uniform1i("uDivergence", p.divergence.Attach(0))
	for i := 0; i < cfg.PressureIterations; i++ {
		dev.Uniform1i("uPressure", p.pressure.Read().Attach(1))
		p.prog.pressure.Draw(p.pressure.Write().Target())
		p.pressure.Swap()
	}

	p.prog.gradientSubtract.Bind()
	dev.Uniform2f("texelSize", ts)
	dev.Uniform1i("uPressure", p.pressure.Read().Attach(0))
	dev.Uniform1i("uVelocity", vel.Read().Attach(1))
	p.prog.gradientSubtract.Draw(vel.Write().Target())
	vel.Swap()

	p.prog.advection.Bind()
	dev.Uniform2f("texelSize", ts)
	if !p.caps.LinearFiltering {
		dev.Uniform2f("dyeTexelSize", ts)
	}
	velocityID := vel.Read().Attach(0)
	dev.Uniform1i("uVelocity", velocityID)
	dev.Uniform1i("uSource", velocityID)
	dev.Uniform1f("dt", dt)
	dev.Uniform1f("dissipation", cfg.VelocityDissipation)
	p.prog.advection.Draw(vel.Write().Target())
	vel.Swap()

	dev.Viewport(p.dye.Width(), p.dye.Height())
	if !p.caps.LinearFiltering {
		dev.Uniform2f("dyeTexelSize", p.dye.TexelSize())
	}
	dev.Uniform1i("uVelocity", vel.Read().Attach(0))
	dev.Uniform1i("uSource", p.dye.Read().Attach(1))
	dev.Uniform1f("dissipation", cfg.DensityDissipation)
	p.prog.advection.Draw(p.dye.Write().Target())
	p.dye.Swap()

	return nil
}

// ApplyBrown perturbs velocity with a sinusoidal field. The four phase and
// frequency scalars are drawn uniformly from [0,1) by the caller each frame.
func (p *Pipeline) ApplyBrown(bias, a1, a2, b1, b2 float32) error {
	if err := p.ready(); err != nil {
		return err
	}
	dev := p.dev
	vel := p.velocity

	dev.SetBlend(false)
	dev.Viewport(vel.Width(), vel.Height())
	p.prog.brown.Bind()
	dev.Uniform1i("uVelocity", vel.Read().Attach(0))
	dev.Uniform1f("bias", bias)
	dev.Uniform1f("a1", a1)
	dev.Uniform1f("a2", a2)
	dev.Uniform1f("b1", b1)
	dev.Uniform1f("b2", b2)
	p.prog.brown.Draw(vel.Write().Target())
	vel.Swap()
	return nil
}

// SetDisplayFlags selects the display variant. The variant is compiled the
// first time a combination is used.
func (p *Pipeline) SetDisplayFlags(shading, reversed bool) error {
	var flags []string
	if shading {
		flags = append(flags, FlagShading)
	}
	if reversed {
		flags = append(flags, FlagReversed)
	}
	return p.display.SetFeatureFlags(flags...)
}

// DisplayFlags returns the active display flags.
func (p *Pipeline) DisplayFlags() []string { return p.display.Flags() }

// Render composites the dye field onto the presentation surface. Nothing is
// drawn while the presentation surface is empty.
func (p *Pipeline) Render(cfg *config.SimulationConfig) error {
	if err := p.ready(); err != nil {
		return err
	}
	dev := p.dev
	w, h := dev.DrawableSize()
	if w <= 0 || h <= 0 {
		return nil
	}

	if cfg.Transparent {
		dev.Clear(nil)
	}
	dev.SetBlend(cfg.Transparent)
	dev.Viewport(w, h)

	p.display.Bind()
	dev.Uniform2f("texelSize", mgl32.Vec2{1 / float32(w), 1 / float32(h)})
	dev.Uniform1f("background", cfg.Background)
	dev.Uniform3f("backColor", mgl32.Vec3{cfg.BackColor.R, cfg.BackColor.G, cfg.BackColor.B})
	dev.Uniform1f("transparent", boolf(cfg.Transparent))
	dev.Uniform1i("uTexture", p.dye.Read().Attach(0))
	p.display.Draw(nil)
	return nil
}

func (p *Pipeline) Velocity() *DoubleSurface { return p.velocity }
func (p *Pipeline) Dye() *DoubleSurface      { return p.dye }
func (p *Pipeline) Pressure() *DoubleSurface { return p.pressure }
func (p *Pipeline) Divergence() *Surface     { return p.divergence }
func (p *Pipeline) Curl() *Surface           { return p.curl }

// Release frees fields and programs. The pipeline is unusable afterwards.
func (p *Pipeline) Release() {
	if p.velocity != nil {
		p.velocity.Release()
		p.velocity = nil
	}
	if p.dye != nil {
		p.dye.Release()
		p.dye = nil
	}
	p.releaseSingles()
	p.divergence, p.curl, p.pressure = nil, nil, nil

	for _, prog := range []*Program{
		p.prog.copy, p.prog.clear, p.prog.splat, p.prog.splatColor, p.prog.brown,
		p.prog.advection, p.prog.divergence, p.prog.curl, p.prog.vorticity,
		p.prog.pressure, p.prog.gradientSubtract,
	} {
		if prog != nil {
			prog.Release()
		}
	}
	if p.display != nil {
		p.display.Release()
	}
}

func boolf(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
