// Package soft implements gpu.Device on the CPU.
//
// Programs run their Go kernels once per fragment, rows spread across all
// available cores. Each Draw returns only after every fragment is written,
// so the command order is also the completion order.
package soft

import (
	"fmt"
	"image"
	"image/color"
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"fluidsim/core"
	"fluidsim/gpu"
)

const maxSlots = 16

// Options configures the capabilities the device reports.
type Options struct {
	// Width and Height size the presentation surface
	Width, Height int

	// LinearFiltering enables hardware-style bilinear sampling
	LinearFiltering bool

	// Precision is the texel type of render targets
	Precision core.Precision

	// Unsupported formats fail the render-target probe, which exercises
	// the fallback chain.
	Unsupported []core.Format

	Logger *zap.Logger
}

// DefaultOptions returns a half-float device with linear filtering.
func DefaultOptions(width, height int) Options {
	return Options{
		Width:           width,
		Height:          height,
		LinearFiltering: true,
		Precision:       core.PrecisionHalf,
	}
}

// DrawInfo describes one completed draw, for OnDraw observers.
type DrawInfo struct {
	Program string
	Target  *Texture // nil for the presentation surface
}

// Device is a software gpu.Device.
type Device struct {
	log  *zap.Logger
	opts Options
	caps core.Capabilities

	screen  *Texture
	slots   [maxSlots]*Texture
	current *Program

	viewW, viewH int
	blend        bool

	mu           sync.Mutex
	compilations int
	draws        int

	// OnDraw is called after every draw
	OnDraw func(DrawInfo)
}

// NewDevice creates a software device and negotiates its capabilities.
func NewDevice(opts Options) (*Device, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: presentation surface %dx%d", gpu.ErrNoContext, opts.Width, opts.Height)
	}

	d := &Device{
		log:  opts.Logger,
		opts: opts,
	}

	caps, err := core.NegotiateCapabilities(opts.LinearFiltering, opts.Precision, d.SupportsRenderFormat)
	if err != nil {
		return nil, err
	}
	d.caps = caps
	d.screen = newTexture(d, opts.Width, opts.Height, core.Format{Channels: core.RGBA, Precision: core.PrecisionFloat}, core.FilterNearest)
	d.viewW, d.viewH = opts.Width, opts.Height

	d.log.Info("software device ready",
		zap.Bool("linearFiltering", caps.LinearFiltering),
		zap.Stringer("rgba", caps.FormatRGBA),
		zap.Stringer("rg", caps.FormatRG),
		zap.Stringer("r", caps.FormatR))
	return d, nil
}

func (d *Device) Capabilities() core.Capabilities { return d.caps }

func (d *Device) SupportsRenderFormat(f core.Format) bool {
	return !slices.Contains(d.opts.Unsupported, f)
}

func (d *Device) NewTexture(width, height int, f core.Format, filter core.Filter) (gpu.Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("soft: invalid texture size %dx%d", width, height)
	}
	if !d.SupportsRenderFormat(f) {
		return nil, fmt.Errorf("%w: %s", gpu.ErrUnsupportedFormat, f)
	}
	return newTexture(d, width, height, f, filter), nil
}

// Compile checks that the source has a kernel. A source without one is the
// software equivalent of a compiler rejecting the shader.
func (d *Device) Compile(src gpu.Source, defines []string) (gpu.Program, error) {
	if src.Kernel == nil {
		return nil, fmt.Errorf("%w: %s: no kernel for software backend", gpu.ErrCompile, src.Name)
	}

	d.mu.Lock()
	d.compilations++
	d.mu.Unlock()

	p := &Program{
		name:     src.Name,
		kernel:   src.Kernel,
		defines:  slices.Clone(defines),
		ints:     make(map[string]int32),
		floats:   make(map[string]float32),
		vec2s:    make(map[string]mgl32.Vec2),
		vec3s:    make(map[string]mgl32.Vec3),
		defineOf: make(map[string]bool, len(defines)),
	}
	for _, def := range defines {
		p.defineOf[def] = true
	}
	return p, nil
}

func (d *Device) UseProgram(p gpu.Program) {
	if p == nil {
		d.current = nil
		return
	}
	d.current = p.(*Program)
}

func (d *Device) Uniform1i(name string, v int32) {
	if d.current != nil {
		d.current.ints[name] = v
	}
}

func (d *Device) Uniform1f(name string, v float32) {
	if d.current != nil {
		d.current.floats[name] = v
	}
}

func (d *Device) Uniform2f(name string, v mgl32.Vec2) {
	if d.current != nil {
		d.current.vec2s[name] = v
	}
}

func (d *Device) Uniform3f(name string, v mgl32.Vec3) {
	if d.current != nil {
		d.current.vec3s[name] = v
	}
}

func (d *Device) Viewport(width, height int) {
	d.viewW, d.viewH = width, height
}

func (d *Device) SetBlend(enabled bool) { d.blend = enabled }

func (d *Device) attach(slot int, t *Texture) {
	if slot < 0 || slot >= maxSlots {
		d.log.Warn("sampler slot out of range", zap.Int("slot", slot))
		return
	}
	d.slots[slot] = t
}

// Draw runs the bound kernel over the viewport, clipped to the target.
func (d *Device) Draw(target gpu.Texture) {
	p := d.current
	if p == nil {
		return
	}
	dst := d.screen
	var tt *Texture
	if target != nil {
		tt = target.(*Texture)
		dst = tt
	}

	vw, vh := d.viewW, d.viewH
	if vw <= 0 || vh <= 0 {
		return
	}
	w, h := min(vw, dst.width), min(vh, dst.height)
	slots := d.slots
	blend := d.blend

	parallelRange(0, h, func(y int) {
		frag := fragment{program: p, slots: &slots}
		frag.uv[1] = (float32(y) + 0.5) / float32(vh)
		for x := 0; x < w; x++ {
			frag.uv[0] = (float32(x) + 0.5) / float32(vw)
			c := p.kernel(&frag)
			if blend {
				c = c.Add(dst.At(x, y).Mul(1 - c[3]))
			}
			dst.Set(x, y, c)
		}
	})

	d.mu.Lock()
	d.draws++
	d.mu.Unlock()

	if d.OnDraw != nil {
		d.OnDraw(DrawInfo{Program: p.name, Target: tt})
	}
}

// Clear resets the target to opaque black.
func (d *Device) Clear(target gpu.Texture) {
	dst := d.screen
	if target != nil {
		dst = target.(*Texture)
	}
	dst.clear()
}

func (d *Device) ReadPixels(t gpu.Texture) ([]float32, error) {
	src := d.screen
	if t != nil {
		src = t.(*Texture)
	}
	if src.released {
		return nil, fmt.Errorf("soft: read from released texture")
	}
	return slices.Clone(src.data), nil
}

func (d *Device) DrawableSize() (int, int) {
	return d.screen.width, d.screen.height
}

// SetDrawableSize resizes the presentation surface. Hosts call it when
// their window changes size.
func (d *Device) SetDrawableSize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	if width == d.screen.width && height == d.screen.height {
		return
	}
	d.screen = newTexture(d, width, height, d.screen.format, d.screen.filter)
}

// Screen returns the presentation surface.
func (d *Device) Screen() *Texture { return d.screen }

// ScreenImage converts the presentation surface to 8-bit RGBA, top row first.
func (d *Device) ScreenImage() *image.RGBA {
	s := d.screen
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		row := s.height - 1 - y
		for x := 0; x < s.width; x++ {
			c := s.At(x, row)
			img.SetRGBA(x, y, color.RGBA{
				R: core.Unorm8(c[0]),
				G: core.Unorm8(c[1]),
				B: core.Unorm8(c[2]),
				A: core.Unorm8(c[3]),
			})
		}
	}
	return img
}

// Compilations is the number of successful Compile calls.
func (d *Device) Compilations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.compilations
}

// Draws is the number of draws executed.
func (d *Device) Draws() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draws
}

func (d *Device) Release() {
	d.current = nil
	d.slots = [maxSlots]*Texture{}
}
