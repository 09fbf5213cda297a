package soft

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"fluidsim/core"
)

// sample reads t at normalized coordinates with clamp-to-edge wrapping.
func (t *Texture) sample(uv mgl32.Vec2) mgl32.Vec4 {
	if t.filter == core.FilterLinear {
		return t.sampleLinear(uv)
	}
	return t.sampleNearest(uv)
}

func (t *Texture) sampleNearest(uv mgl32.Vec2) mgl32.Vec4 {
	x := clampIndex(int(math.Floor(float64(uv[0])*float64(t.width))), t.width)
	y := clampIndex(int(math.Floor(float64(uv[1])*float64(t.height))), t.height)
	return t.At(x, y)
}

func (t *Texture) sampleLinear(uv mgl32.Vec2) mgl32.Vec4 {
	fx := float64(uv[0])*float64(t.width) - 0.5
	fy := float64(uv[1])*float64(t.height) - 0.5
	x0f, y0f := math.Floor(fx), math.Floor(fy)
	tx, ty := float32(fx-x0f), float32(fy-y0f)

	x0 := clampIndex(int(x0f), t.width)
	x1 := clampIndex(int(x0f)+1, t.width)
	y0 := clampIndex(int(y0f), t.height)
	y1 := clampIndex(int(y0f)+1, t.height)

	a := t.At(x0, y0)
	b := t.At(x1, y0)
	c := t.At(x0, y1)
	d := t.At(x1, y1)

	return mix(mix(a, b, tx), mix(c, d, tx), ty)
}

func mix(a, b mgl32.Vec4, t float32) mgl32.Vec4 {
	return a.Mul(1 - t).Add(b.Mul(t))
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
