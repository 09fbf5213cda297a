package soft

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/x448/float16"

	"fluidsim/core"
)

// Texture stores four float32 channels per texel regardless of format.
// Channels outside the format read back as 0 (alpha as 1) and stored values
// are rounded to the format's precision, so the software device sees the
// same quantization a half-float render target would apply.
type Texture struct {
	dev    *Device
	width  int
	height int
	format core.Format
	filter core.Filter
	data   []float32

	released bool
}

func newTexture(dev *Device, width, height int, f core.Format, filter core.Filter) *Texture {
	t := &Texture{
		dev:    dev,
		width:  width,
		height: height,
		format: f,
		filter: filter,
		data:   make([]float32, width*height*4),
	}
	t.clear()
	return t
}

func (t *Texture) Width() int          { return t.width }
func (t *Texture) Height() int         { return t.height }
func (t *Texture) Format() core.Format { return t.format }
func (t *Texture) Filter() core.Filter { return t.filter }

// Attach binds the texture to a sampler slot of its device.
func (t *Texture) Attach(slot int) int32 {
	t.dev.attach(slot, t)
	return int32(slot)
}

// Release drops the texel storage.
func (t *Texture) Release() {
	t.released = true
	t.data = nil
}

// Released reports whether Release was called.
func (t *Texture) Released() bool { return t.released }

// At returns the stored texel at integer coordinates, row 0 at the bottom.
func (t *Texture) At(x, y int) mgl32.Vec4 {
	i := (y*t.width + x) * 4
	return mgl32.Vec4{t.data[i], t.data[i+1], t.data[i+2], t.data[i+3]}
}

// Set stores a texel, applying the format's channel mask and precision.
func (t *Texture) Set(x, y int, c mgl32.Vec4) {
	i := (y*t.width + x) * 4
	n := int(t.format.Channels)
	for ch := 0; ch < 4; ch++ {
		v := c[ch]
		switch {
		case ch >= n && ch == 3:
			v = 1
		case ch >= n:
			v = 0
		default:
			v = quantize(v, t.format.Precision)
		}
		t.data[i+ch] = v
	}
}

func (t *Texture) clear() {
	for y := 0; y < t.height; y++ {
		for x := 0; x < t.width; x++ {
			t.Set(x, y, mgl32.Vec4{0, 0, 0, 1})
		}
	}
}

func quantize(v float32, p core.Precision) float32 {
	switch p {
	case core.PrecisionHalf:
		return float16.Fromfloat32(v).Float32()
	case core.PrecisionByte:
		if v <= 0 || v != v {
			return 0
		}
		if v >= 1 {
			return 1
		}
		return float32(math.Round(float64(v)*255)) / 255
	default:
		return v
	}
}
