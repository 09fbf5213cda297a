// Package opengl implements gpu.Device on an OpenGL 4.1 core context and
// hosts it in a glfw window.
//
// All calls must come from the goroutine that created the window; it has to
// stay locked to its OS thread.
package opengl

import (
	"fmt"
	"slices"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"fluidsim/core"
	"fluidsim/gpu"
	"fluidsim/rendering/opengl/shaders"
)

// Options configures device creation.
type Options struct {
	// Precision is the texel type requested for render targets
	Precision core.Precision

	// DisableLinearFiltering forces nearest sampling and the manual
	// bilinear path, as on hardware without float filtering.
	DisableLinearFiltering bool

	// Drawable reports the framebuffer size of the presentation surface
	Drawable func() (int, int)

	Logger *zap.Logger
}

type program struct {
	id        uint32
	name      string
	defines   []string
	locations map[string]int32
}

func (p *program) Name() string      { return p.name }
func (p *program) Defines() []string { return slices.Clone(p.defines) }

func (p *program) Release() {
	if p.id != 0 {
		gl.DeleteProgram(p.id)
		p.id = 0
	}
}

func (p *program) location(name string) int32 {
	if loc, ok := p.locations[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(p.id, gl.Str(name+"\x00"))
	p.locations[name] = loc
	return loc
}

// Device is a gpu.Device backed by the current GL context.
type Device struct {
	log      *zap.Logger
	caps     core.Capabilities
	drawable func() (int, int)
	probed   map[core.Format]bool

	vao     uint32
	current *program
	viewW   int
	viewH   int
}

// NewDevice negotiates capabilities on the current context. The window must
// already have made its context current and loaded the GL entry points.
func NewDevice(opts Options) (*Device, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Drawable == nil {
		return nil, fmt.Errorf("%w: no drawable", gpu.ErrNoContext)
	}
	if gl.GetString(gl.VERSION) == nil {
		return nil, fmt.Errorf("%w: no current GL context", gpu.ErrNoContext)
	}

	d := &Device{
		log:      opts.Logger,
		drawable: opts.Drawable,
		probed:   make(map[core.Format]bool),
	}

	// Float and half-float filtering are core in 4.1.
	linear := !opts.DisableLinearFiltering
	caps, err := core.NegotiateCapabilities(linear, opts.Precision, d.SupportsRenderFormat)
	if err != nil {
		return nil, err
	}
	d.caps = caps

	gl.GenVertexArrays(1, &d.vao)
	gl.BindVertexArray(d.vao)
	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.BLEND)
	d.viewW, d.viewH = d.DrawableSize()

	d.log.Info("OpenGL device ready",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
		zap.Bool("linearFiltering", caps.LinearFiltering),
		zap.Stringer("rgba", caps.FormatRGBA),
		zap.Stringer("rg", caps.FormatRG),
		zap.Stringer("r", caps.FormatR))
	return d, nil
}

func (d *Device) Capabilities() core.Capabilities { return d.caps }

// SupportsRenderFormat checks framebuffer completeness on a small texture.
// Results are cached per format.
func (d *Device) SupportsRenderFormat(f core.Format) bool {
	if ok, seen := d.probed[f]; seen {
		return ok
	}
	t, err := newTexture(4, 4, f, core.FilterNearest)
	ok := err == nil
	if ok {
		t.Release()
	} else {
		d.log.Debug("render format rejected", zap.Stringer("format", f), zap.Error(err))
	}
	d.probed[f] = ok
	return ok
}

func (d *Device) NewTexture(width, height int, f core.Format, filter core.Filter) (gpu.Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("opengl: invalid texture size %dx%d", width, height)
	}
	t, err := newTexture(width, height, f, filter)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (d *Device) Compile(src gpu.Source, defines []string) (gpu.Program, error) {
	id, err := shaders.Build(shaders.VertexShader, src.Fragment, defines)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name, err)
	}
	return &program{
		id:        id,
		name:      src.Name,
		defines:   slices.Clone(defines),
		locations: make(map[string]int32),
	}, nil
}

func (d *Device) UseProgram(p gpu.Program) {
	if p == nil {
		d.current = nil
		gl.UseProgram(0)
		return
	}
	d.current = p.(*program)
	gl.UseProgram(d.current.id)
}

func (d *Device) Uniform1i(name string, v int32) {
	if d.current != nil {
		gl.Uniform1i(d.current.location(name), v)
	}
}

func (d *Device) Uniform1f(name string, v float32) {
	if d.current != nil {
		gl.Uniform1f(d.current.location(name), v)
	}
}

func (d *Device) Uniform2f(name string, v mgl32.Vec2) {
	if d.current != nil {
		gl.Uniform2f(d.current.location(name), v[0], v[1])
	}
}

func (d *Device) Uniform3f(name string, v mgl32.Vec3) {
	if d.current != nil {
		gl.Uniform3f(d.current.location(name), v[0], v[1], v[2])
	}
}

func (d *Device) Viewport(width, height int) {
	d.viewW, d.viewH = width, height
}

// SetBlend uses premultiplied-alpha blending.
func (d *Device) SetBlend(enabled bool) {
	if enabled {
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
		return
	}
	gl.Disable(gl.BLEND)
}

func (d *Device) bindTarget(target gpu.Texture) {
	if target == nil {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		return
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, target.(*Texture).fbo)
}

// Draw issues the fullscreen triangle. Commands execute in submission order
// on the single context, so no fences are needed between passes.
func (d *Device) Draw(target gpu.Texture) {
	if d.current == nil {
		return
	}
	d.bindTarget(target)
	gl.Viewport(0, 0, int32(d.viewW), int32(d.viewH))
	gl.BindVertexArray(d.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
}

// Clear resets the target to opaque black.
func (d *Device) Clear(target gpu.Texture) {
	d.bindTarget(target)
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

func (d *Device) ReadPixels(t gpu.Texture) ([]float32, error) {
	w, h := d.DrawableSize()
	if t != nil {
		tex := t.(*Texture)
		if tex.id == 0 {
			return nil, fmt.Errorf("opengl: read from released texture")
		}
		w, h = tex.width, tex.height
	}
	d.bindTarget(t)
	pix := make([]float32, w*h*4)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.FLOAT, gl.Ptr(pix))
	if code := gl.GetError(); code != gl.NO_ERROR {
		return nil, fmt.Errorf("opengl: read pixels failed: 0x%x", code)
	}
	return pix, nil
}

func (d *Device) DrawableSize() (int, int) {
	return d.drawable()
}

func (d *Device) Release() {
	d.current = nil
	gl.UseProgram(0)
	if d.vao != 0 {
		gl.DeleteVertexArrays(1, &d.vao)
		d.vao = 0
	}
}
