package fluid

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"fluidsim/core"
	"fluidsim/gpu"
)

// Surface is one 2D field: a texture plus the render target that writes it.
type Surface struct {
	tex gpu.Texture

	Width, Height int
	TexelSize     mgl32.Vec2
}

// NewSurface allocates a field and clears it.
func NewSurface(dev gpu.Device, width, height int, f core.Format, filter core.Filter) (*Surface, error) {
	tex, err := dev.NewTexture(width, height, f, filter)
	if err != nil {
		return nil, fmt.Errorf("allocate %dx%d %s surface: %w", width, height, f, err)
	}
	dev.Viewport(width, height)
	dev.Clear(tex)

	return &Surface{
		tex:       tex,
		Width:     width,
		Height:    height,
		TexelSize: mgl32.Vec2{1 / float32(width), 1 / float32(height)},
	}, nil
}

// Attach binds the surface to a sampler slot and returns the slot.
func (s *Surface) Attach(slot int) int32 { return s.tex.Attach(slot) }

// Target is the render target that draws into this surface.
func (s *Surface) Target() gpu.Texture { return s.tex }

func (s *Surface) Format() core.Format { return s.tex.Format() }
func (s *Surface) Filter() core.Filter { return s.tex.Filter() }

func (s *Surface) Release() {
	if s.tex != nil {
		s.tex.Release()
		s.tex = nil
	}
}

// DoubleSurface is a ping-pong pair for fields that are read and written in
// the same pass. Read and Write never return the same surface.
type DoubleSurface struct {
	surfaces [2]*Surface
	read     int

	format core.Format
	filter core.Filter
}

func NewDoubleSurface(dev gpu.Device, width, height int, f core.Format, filter core.Filter) (*DoubleSurface, error) {
	a, err := NewSurface(dev, width, height, f, filter)
	if err != nil {
		return nil, err
	}
	b, err := NewSurface(dev, width, height, f, filter)
	if err != nil {
		a.Release()
		return nil, err
	}
	return &DoubleSurface{
		surfaces: [2]*Surface{a, b},
		format:   f,
		filter:   filter,
	}, nil
}

func (d *DoubleSurface) Read() *Surface  { return d.surfaces[d.read] }
func (d *DoubleSurface) Write() *Surface { return d.surfaces[1-d.read] }

// Swap exchanges the read and write roles.
func (d *DoubleSurface) Swap() { d.read = 1 - d.read }

func (d *DoubleSurface) Width() int            { return d.surfaces[0].Width }
func (d *DoubleSurface) Height() int           { return d.surfaces[0].Height }
func (d *DoubleSurface) TexelSize() mgl32.Vec2 { return d.surfaces[0].TexelSize }

// Resize reallocates the pair at a new size, carrying the read content over
// with the copy program. The write surface comes back cleared; the next pass
// overwrites it anyway. Resizing to the current size does nothing.
func (d *DoubleSurface) Resize(dev gpu.Device, width, height int, copyProgram *Program) error {
	if width == d.Width() && height == d.Height() {
		return nil
	}

	read, err := NewSurface(dev, width, height, d.format, d.filter)
	if err != nil {
		return err
	}
	copyProgram.Bind()
	dev.Uniform1i("uTexture", d.Read().Attach(0))
	dev.Viewport(width, height)
	copyProgram.Draw(read.Target())

	write, err := NewSurface(dev, width, height, d.format, d.filter)
	if err != nil {
		read.Release()
		return err
	}

	d.Release()
	d.surfaces = [2]*Surface{read, write}
	d.read = 0
	return nil
}

func (d *DoubleSurface) Release() {
	for _, s := range d.surfaces {
		if s != nil {
			s.Release()
		}
	}
}
