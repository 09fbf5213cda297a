package soft

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidsim/core"
	"fluidsim/gpu"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	opts := DefaultOptions(8, 8)
	opts.Precision = core.PrecisionFloat
	d, err := NewDevice(opts)
	require.NoError(t, err)
	return d
}

var fillSource = gpu.Source{
	Name: "fill",
	Kernel: func(f gpu.Fragment) mgl32.Vec4 {
		uv := f.UV()
		return mgl32.Vec4{uv[0], uv[1], f.Float("value"), 1}
	},
}

var copySource = gpu.Source{
	Name: "copy",
	Kernel: func(f gpu.Fragment) mgl32.Vec4 {
		return f.Sample("uTexture", f.UV())
	},
}

func TestDrawCoversViewport(t *testing.T) {
	d := newTestDevice(t)
	tex, err := d.NewTexture(4, 2, core.Format{Channels: core.RGBA, Precision: core.PrecisionFloat}, core.FilterNearest)
	require.NoError(t, err)

	p, err := d.Compile(fillSource, nil)
	require.NoError(t, err)
	d.UseProgram(p)
	d.Uniform1f("value", 0.25)
	d.Viewport(4, 2)
	d.Draw(tex)

	st := tex.(*Texture)
	assert.InDelta(t, 0.125, st.At(0, 0)[0], 1e-6)
	assert.InDelta(t, 0.875, st.At(3, 1)[0], 1e-6)
	assert.InDelta(t, 0.75, st.At(3, 1)[1], 1e-6)
	assert.InDelta(t, 0.25, st.At(2, 0)[2], 1e-6)
	assert.Equal(t, 1, d.Draws())
}

func TestChannelMaskAndPrecision(t *testing.T) {
	d := newTestDevice(t)
	tex, err := d.NewTexture(1, 1, core.Format{Channels: core.RG, Precision: core.PrecisionHalf}, core.FilterNearest)
	require.NoError(t, err)
	st := tex.(*Texture)

	st.Set(0, 0, mgl32.Vec4{0.1, 2049, 5, 0.5})
	c := st.At(0, 0)

	assert.NotEqual(t, float32(0.1), c[0], "half precision rounds 0.1")
	assert.InDelta(t, 0.1, c[0], 1e-4)
	assert.Equal(t, float32(2048), c[1], "2049 is not representable as half")
	assert.Equal(t, float32(0), c[2])
	assert.Equal(t, float32(1), c[3])
}

func TestLinearAndNearestSampling(t *testing.T) {
	d := newTestDevice(t)
	f := core.Format{Channels: core.R, Precision: core.PrecisionFloat}

	lin, err := d.NewTexture(2, 1, f, core.FilterLinear)
	require.NoError(t, err)
	near, err := d.NewTexture(2, 1, f, core.FilterNearest)
	require.NoError(t, err)

	for _, tex := range []*Texture{lin.(*Texture), near.(*Texture)} {
		tex.Set(0, 0, mgl32.Vec4{0})
		tex.Set(1, 0, mgl32.Vec4{1})
	}

	mid := mgl32.Vec2{0.5, 0.5}
	assert.InDelta(t, 0.5, lin.(*Texture).sample(mid)[0], 1e-6)
	assert.InDelta(t, 1.0, near.(*Texture).sample(mid)[0], 1e-6)

	// clamp to edge
	assert.InDelta(t, 0.0, lin.(*Texture).sample(mgl32.Vec2{-3, 0.5})[0], 1e-6)
	assert.InDelta(t, 1.0, lin.(*Texture).sample(mgl32.Vec2{7, 0.5})[0], 1e-6)
}

func TestSamplerSlots(t *testing.T) {
	d := newTestDevice(t)
	f := core.Format{Channels: core.RGBA, Precision: core.PrecisionFloat}
	src, err := d.NewTexture(4, 4, f, core.FilterNearest)
	require.NoError(t, err)
	dst, err := d.NewTexture(4, 4, f, core.FilterNearest)
	require.NoError(t, err)
	src.(*Texture).Set(2, 3, mgl32.Vec4{7, 0, 0, 1})

	p, err := d.Compile(copySource, nil)
	require.NoError(t, err)
	d.UseProgram(p)
	d.Uniform1i("uTexture", src.Attach(3))
	d.Viewport(4, 4)
	d.Draw(dst)

	assert.Equal(t, float32(7), dst.(*Texture).At(2, 3)[0])
}

func TestCompileWithoutKernel(t *testing.T) {
	d := newTestDevice(t)
	_, err := d.Compile(gpu.Source{Name: "broken"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrCompile))
	assert.Equal(t, 0, d.Compilations())
}

func TestDefinesReachKernel(t *testing.T) {
	d := newTestDevice(t)
	src := gpu.Source{
		Name: "flagged",
		Kernel: func(f gpu.Fragment) mgl32.Vec4 {
			if f.Defined("SHADING") {
				return mgl32.Vec4{1, 1, 1, 1}
			}
			return mgl32.Vec4{0, 0, 0, 1}
		},
	}
	p, err := d.Compile(src, []string{"SHADING"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SHADING"}, p.Defines())

	d.UseProgram(p)
	d.Viewport(8, 8)
	d.Draw(nil)
	assert.Equal(t, float32(1), d.Screen().At(4, 4)[0])
}

func TestUnsupportedFormatProbe(t *testing.T) {
	opts := DefaultOptions(4, 4)
	opts.Unsupported = []core.Format{{Channels: core.R, Precision: core.PrecisionHalf}}
	d, err := NewDevice(opts)
	require.NoError(t, err)

	caps := d.Capabilities()
	assert.Equal(t, core.RG, caps.FormatR.Channels)

	_, err = d.NewTexture(2, 2, core.Format{Channels: core.R, Precision: core.PrecisionHalf}, core.FilterNearest)
	assert.True(t, errors.Is(err, gpu.ErrUnsupportedFormat))
}

func TestNoContext(t *testing.T) {
	_, err := NewDevice(Options{})
	assert.True(t, errors.Is(err, gpu.ErrNoContext))
}

func TestScreenImageFlipsRows(t *testing.T) {
	d := newTestDevice(t)
	d.Screen().Set(0, 0, mgl32.Vec4{1, 0, 0, 1})

	img := d.ScreenImage()
	assert.Equal(t, uint8(255), img.RGBAAt(0, 7).R)
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).R)
}
