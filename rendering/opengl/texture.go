package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"fluidsim/core"
	"fluidsim/gpu"
)

// glFormat is the (internal format, format, type) triple for TexImage2D.
type glFormat struct {
	internal int32
	format   uint32
	xtype    uint32
}

func formatFor(f core.Format) (glFormat, bool) {
	var xtype uint32
	switch f.Precision {
	case core.PrecisionByte:
		xtype = gl.UNSIGNED_BYTE
	case core.PrecisionHalf:
		xtype = gl.HALF_FLOAT
	case core.PrecisionFloat:
		xtype = gl.FLOAT
	default:
		return glFormat{}, false
	}

	internal := map[core.Precision]map[core.Channels]int32{
		core.PrecisionByte:  {core.R: gl.R8, core.RG: gl.RG8, core.RGBA: gl.RGBA8},
		core.PrecisionHalf:  {core.R: gl.R16F, core.RG: gl.RG16F, core.RGBA: gl.RGBA16F},
		core.PrecisionFloat: {core.R: gl.R32F, core.RG: gl.RG32F, core.RGBA: gl.RGBA32F},
	}[f.Precision][f.Channels]
	if internal == 0 {
		return glFormat{}, false
	}

	var format uint32
	switch f.Channels {
	case core.R:
		format = gl.RED
	case core.RG:
		format = gl.RG
	default:
		format = gl.RGBA
	}
	return glFormat{internal: internal, format: format, xtype: xtype}, true
}

// Texture is a GL texture with its own framebuffer object.
type Texture struct {
	id     uint32
	fbo    uint32
	width  int
	height int
	format core.Format
	filter core.Filter
}

func newTexture(width, height int, f core.Format, filter core.Filter) (*Texture, error) {
	gf, ok := formatFor(f)
	if !ok {
		return nil, fmt.Errorf("%w: %s", gpu.ErrUnsupportedFormat, f)
	}

	t := &Texture{width: width, height: height, format: f, filter: filter}

	param := int32(gl.NEAREST)
	if filter == core.FilterLinear {
		param = gl.LINEAR
	}

	gl.GenTextures(1, &t.id)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, param)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, param)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gf.internal, int32(width), int32(height), 0, gf.format, gf.xtype, nil)

	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.id, 0)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	if status != gl.FRAMEBUFFER_COMPLETE {
		t.Release()
		return nil, fmt.Errorf("%w: %s (framebuffer status 0x%x)", gpu.ErrUnsupportedFormat, f, status)
	}
	return t, nil
}

func (t *Texture) Width() int          { return t.width }
func (t *Texture) Height() int         { return t.height }
func (t *Texture) Format() core.Format { return t.format }
func (t *Texture) Filter() core.Filter { return t.filter }

func (t *Texture) Attach(slot int) int32 {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(slot))
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	return int32(slot)
}

func (t *Texture) Release() {
	if t.fbo != 0 {
		gl.DeleteFramebuffers(1, &t.fbo)
		t.fbo = 0
	}
	if t.id != 0 {
		gl.DeleteTextures(1, &t.id)
		t.id = 0
	}
}
