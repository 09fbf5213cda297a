// Package overlay draws a small frame-stats panel over the presentation
// surface.
package overlay

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"

	"fluidsim/rendering/opengl/shaders"
)

// Bars are drawn instead of text: green is FPS, blue is the step size
// relative to the clamp, red marks a paused simulation.
const statsFragmentShader = `
in vec2 vUv;
out vec4 fragColor;

uniform vec2 screenSize;
uniform float fpsBar;
uniform float stepBar;
uniform float paused;

void main() {
    vec2 p = vUv * screenSize;

    if (p.x < 10.0 || p.x > 220.0 || p.y < 10.0 || p.y > 60.0) {
        discard;
    }
    vec4 c = vec4(0.1, 0.1, 0.3, 0.8);

    if (p.y > 40.0 && p.y < 50.0 && p.x > 20.0 && p.x < 20.0 + fpsBar) {
        c = vec4(0.0, 1.0, 0.0, 1.0);
    }
    if (p.y > 20.0 && p.y < 30.0 && p.x > 20.0 && p.x < 20.0 + stepBar) {
        c = vec4(0.5, 0.5, 1.0, 1.0);
    }
    if (paused > 0.5 && p.x > 200.0 && p.x < 212.0 && p.y > 20.0 && p.y < 50.0) {
        c = vec4(1.0, 0.2, 0.2, 1.0);
    }
    fragColor = vec4(c.rgb * c.a, c.a);
}
`

const maxBar = 170

// StatsOverlay renders performance stats
type StatsOverlay struct {
	program uint32
	vao     uint32

	width  float32
	height float32

	fpsBar  float32
	stepBar float32
	paused  bool
}

// NewStatsOverlay compiles the overlay program. The GL context must be
// current.
func NewStatsOverlay(width, height int) (*StatsOverlay, error) {
	program, err := shaders.Build(shaders.VertexShader, statsFragmentShader, nil)
	if err != nil {
		return nil, fmt.Errorf("stats overlay: %w", err)
	}

	so := &StatsOverlay{
		program: program,
		width:   float32(width),
		height:  float32(height),
	}
	gl.GenVertexArrays(1, &so.vao)
	return so, nil
}

// UpdateStats sets the values shown on the next Render.
func (so *StatsOverlay) UpdateStats(fps float64, step, maxStep float32, paused bool) {
	so.fpsBar, so.stepBar = bars(fps, step, maxStep)
	so.paused = paused
}

// bars maps FPS (one pixel per frame) and the step fraction of the clamp to
// bar lengths.
func bars(fps float64, step, maxStep float32) (float32, float32) {
	fpsBar := min(max(float32(fps), 0), maxBar)
	var stepBar float32
	if maxStep > 0 {
		stepBar = min(max(step/maxStep, 0), 1) * maxBar
	}
	return fpsBar, stepBar
}

// Render blends the panel onto the default framebuffer.
func (so *StatsOverlay) Render() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(0, 0, int32(so.width), int32(so.height))
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.ONE, gl.ONE_MINUS_SRC_ALPHA)

	gl.UseProgram(so.program)
	gl.Uniform2f(so.uniform("screenSize"), so.width, so.height)
	gl.Uniform1f(so.uniform("fpsBar"), so.fpsBar)
	gl.Uniform1f(so.uniform("stepBar"), so.stepBar)
	paused := float32(0)
	if so.paused {
		paused = 1
	}
	gl.Uniform1f(so.uniform("paused"), paused)

	gl.BindVertexArray(so.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)

	gl.Disable(gl.BLEND)
}

func (so *StatsOverlay) uniform(name string) int32 {
	return gl.GetUniformLocation(so.program, gl.Str(name+"\x00"))
}

// UpdateSize updates viewport size
func (so *StatsOverlay) UpdateSize(width, height int) {
	so.width = float32(width)
	so.height = float32(height)
}

// Release cleans up resources
func (so *StatsOverlay) Release() {
	if so.program != 0 {
		gl.DeleteProgram(so.program)
	}
	if so.vao != 0 {
		gl.DeleteVertexArrays(1, &so.vao)
	}
}
