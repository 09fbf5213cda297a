package fluid

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"fluidsim/gpu"
)

// Go renditions of the fragment shaders for the software device. Each one
// mirrors its GLSL counterpart operation for operation.

func copyKernel(f gpu.Fragment) mgl32.Vec4 {
	return f.Sample("uTexture", f.UV())
}

func clearKernel(f gpu.Fragment) mgl32.Vec4 {
	return f.Sample("uTexture", f.UV()).Mul(f.Float("value"))
}

func splatKernel(f gpu.Fragment) mgl32.Vec4 {
	uv := f.UV()
	p := uv.Sub(f.Vec2("point"))
	p[0] *= f.Float("aspectRatio")
	g := exp32(-p.Dot(p) / f.Float("radius"))

	push := f.Vec2("force").Add(p.Mul(f.Float("bias") / (p.Len() + 0.0001)))
	base := f.Sample("uVelocity", uv)
	return mgl32.Vec4{base[0] + g*push[0], base[1] + g*push[1], 0, 1}
}

func splatColorKernel(f gpu.Fragment) mgl32.Vec4 {
	uv := f.UV()
	p := uv.Sub(f.Vec2("point"))
	p[0] *= f.Float("aspectRatio")
	splat := f.Vec3("color").Mul(exp32(-p.Dot(p) / f.Float("radius")))

	base := f.Sample("uTarget", uv)
	return mgl32.Vec4{base[0] + splat[0], base[1] + splat[1], base[2] + splat[2], 1}
}

const tau = 2 * math.Pi

func brownKernel(f gpu.Fragment) mgl32.Vec4 {
	uv := f.UV()
	v := f.Sample("uVelocity", uv)
	kx := sin32(tau * (f.Float("a1")*uv[1] + f.Float("a2")))
	ky := sin32(tau * (f.Float("b1")*uv[0] + f.Float("b2")))
	bias := f.Float("bias")
	return mgl32.Vec4{v[0] + bias*kx, v[1] + bias*ky, 0, 1}
}

// bilerp interpolates four nearest samples by hand, for devices whose float
// textures cannot be filtered.
func bilerp(f gpu.Fragment, sampler string, uv, tsize mgl32.Vec2) mgl32.Vec4 {
	sx := uv[0]/tsize[0] - 0.5
	sy := uv[1]/tsize[1] - 0.5
	ix, iy := floor32(sx), floor32(sy)
	fx, fy := sx-ix, sy-iy

	a := f.Sample(sampler, mgl32.Vec2{(ix + 0.5) * tsize[0], (iy + 0.5) * tsize[1]})
	b := f.Sample(sampler, mgl32.Vec2{(ix + 1.5) * tsize[0], (iy + 0.5) * tsize[1]})
	c := f.Sample(sampler, mgl32.Vec2{(ix + 0.5) * tsize[0], (iy + 1.5) * tsize[1]})
	d := f.Sample(sampler, mgl32.Vec2{(ix + 1.5) * tsize[0], (iy + 1.5) * tsize[1]})

	return mix4(mix4(a, b, fx), mix4(c, d, fx), fy)
}

func advectionKernel(f gpu.Fragment) mgl32.Vec4 {
	uv := f.UV()
	ts := f.Vec2("texelSize")
	dt := f.Float("dt")

	var result mgl32.Vec4
	if f.Defined(FlagManualFiltering) {
		v := bilerp(f, "uVelocity", uv, ts)
		coord := mgl32.Vec2{uv[0] - dt*v[0]*ts[0], uv[1] - dt*v[1]*ts[1]}
		result = bilerp(f, "uSource", coord, f.Vec2("dyeTexelSize"))
	} else {
		v := f.Sample("uVelocity", uv)
		coord := mgl32.Vec2{uv[0] - dt*v[0]*ts[0], uv[1] - dt*v[1]*ts[1]}
		result = f.Sample("uSource", coord)
	}

	decay := 1 + f.Float("dissipation")*dt
	for i := range result {
		result[i] /= decay
	}
	return result
}

func divergenceKernel(f gpu.Fragment) mgl32.Vec4 {
	vl, vr, vt, vb := gpu.Neighbors(f)
	l := f.Sample("uVelocity", vl)[0]
	r := f.Sample("uVelocity", vr)[0]
	t := f.Sample("uVelocity", vt)[1]
	b := f.Sample("uVelocity", vb)[1]

	c := f.Sample("uVelocity", f.UV())
	if vl[0] < 0 {
		l = -c[0]
	}
	if vr[0] > 1 {
		r = -c[0]
	}
	if vt[1] > 1 {
		t = -c[1]
	}
	if vb[1] < 0 {
		b = -c[1]
	}

	return mgl32.Vec4{0.5 * (r - l + t - b), 0, 0, 1}
}

func curlKernel(f gpu.Fragment) mgl32.Vec4 {
	vl, vr, vt, vb := gpu.Neighbors(f)
	l := f.Sample("uVelocity", vl)[1]
	r := f.Sample("uVelocity", vr)[1]
	t := f.Sample("uVelocity", vt)[0]
	b := f.Sample("uVelocity", vb)[0]
	return mgl32.Vec4{0.5 * (r - l - t + b), 0, 0, 1}
}

func vorticityKernel(f gpu.Fragment) mgl32.Vec4 {
	vl, vr, vt, vb := gpu.Neighbors(f)
	l := f.Sample("uCurl", vl)[0]
	r := f.Sample("uCurl", vr)[0]
	t := f.Sample("uCurl", vt)[0]
	b := f.Sample("uCurl", vb)[0]
	c := f.Sample("uCurl", f.UV())[0]

	force := mgl32.Vec2{abs32(t) - abs32(b), abs32(r) - abs32(l)}.Mul(0.5)
	force = force.Mul(1 / (force.Len() + 0.0001))
	force = force.Mul(f.Float("curl") * c)
	force[1] = -force[1]

	dt := f.Float("dt")
	v := f.Sample("uVelocity", f.UV())
	vx := mgl32.Clamp(v[0]+force[0]*dt, -1000, 1000)
	vy := mgl32.Clamp(v[1]+force[1]*dt, -1000, 1000)
	return mgl32.Vec4{vx, vy, 0, 1}
}

func pressureKernel(f gpu.Fragment) mgl32.Vec4 {
	vl, vr, vt, vb := gpu.Neighbors(f)
	l := f.Sample("uPressure", vl)[0]
	r := f.Sample("uPressure", vr)[0]
	t := f.Sample("uPressure", vt)[0]
	b := f.Sample("uPressure", vb)[0]
	div := f.Sample("uDivergence", f.UV())[0]
	return mgl32.Vec4{(l + r + b + t - div) * 0.25, 0, 0, 1}
}

func gradientSubtractKernel(f gpu.Fragment) mgl32.Vec4 {
	vl, vr, vt, vb := gpu.Neighbors(f)
	l := f.Sample("uPressure", vl)[0]
	r := f.Sample("uPressure", vr)[0]
	t := f.Sample("uPressure", vt)[0]
	b := f.Sample("uPressure", vb)[0]
	v := f.Sample("uVelocity", f.UV())
	return mgl32.Vec4{v[0] - (r - l), v[1] - (t - b), 0, 1}
}

func displayKernel(f gpu.Fragment) mgl32.Vec4 {
	c := f.Sample("uTexture", f.UV()).Vec3()

	if f.Defined(FlagShading) {
		vl, vr, vt, vb := gpu.Neighbors(f)
		lc := f.Sample("uTexture", vl).Vec3()
		rc := f.Sample("uTexture", vr).Vec3()
		tc := f.Sample("uTexture", vt).Vec3()
		bc := f.Sample("uTexture", vb).Vec3()

		dx := rc.Len() - lc.Len()
		dy := tc.Len() - bc.Len()
		n := mgl32.Vec3{dx, dy, f.Vec2("texelSize").Len()}.Normalize()

		diffuse := mgl32.Clamp(n[2]+0.7, 0.7, 1)
		c = c.Mul(diffuse)
	}

	if f.Defined(FlagReversed) {
		for i := range c {
			c[i] = 1 - mgl32.Clamp(c[i], 0, 1)
		}
	}

	a := float32(1)
	if f.Float("transparent") > 0.5 {
		a = max(c[0], c[1], c[2])
	}
	c = c.Add(f.Vec3("backColor").Mul(f.Float("background") / 255))
	return c.Vec4(a)
}

func mix4(a, b mgl32.Vec4, t float32) mgl32.Vec4 {
	return a.Mul(1 - t).Add(b.Mul(t))
}

func exp32(v float32) float32   { return float32(math.Exp(float64(v))) }
func sin32(v float32) float32   { return float32(math.Sin(float64(v))) }
func floor32(v float32) float32 { return float32(math.Floor(float64(v))) }
func abs32(v float32) float32   { return float32(math.Abs(float64(v))) }
