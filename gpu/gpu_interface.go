package gpu

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"fluidsim/core"
)

var (
	// ErrNoContext means no usable graphics context could be created
	ErrNoContext = errors.New("gpu: no usable graphics context")

	// ErrCompile wraps a shader compiler diagnostic
	ErrCompile = errors.New("gpu: shader compilation failed")

	// ErrLink wraps a program linker diagnostic
	ErrLink = errors.New("gpu: program link failed")

	// ErrUnsupportedFormat is returned when a texture cannot be allocated
	ErrUnsupportedFormat = errors.New("gpu: unsupported texture format")
)

// Texture is a GPU-resident 2D field together with the render target that
// writes into it.
type Texture interface {
	Width() int
	Height() int
	Format() core.Format
	Filter() core.Filter

	// Attach binds the texture to a sampler slot and returns the slot so it
	// can be passed straight to a sampler uniform.
	Attach(slot int) int32

	Release()
}

// Program is one compiled variant of a shader source.
type Program interface {
	Name() string
	Defines() []string
	Release()
}

// Device is the command interface shared by all backends. It mirrors the
// state machine of a GL context: bind a program, set its uniforms, attach
// textures, then draw a full-viewport quad into a target.
//
// Commands must be issued from a single goroutine in dependency order. Every
// draw may read the outputs of all earlier draws; backends either execute
// draws synchronously or rely on an in-order queue. A backend exposing more
// than one queue has to fence between draws to keep that ordering.
type Device interface {
	// Capabilities is resolved once at construction and never changes
	Capabilities() core.Capabilities
	SupportsRenderFormat(f core.Format) bool

	NewTexture(width, height int, f core.Format, filter core.Filter) (Texture, error)

	// Compile builds a program variant; defines are injected as preprocessor
	// definitions ahead of the fragment source.
	Compile(src Source, defines []string) (Program, error)

	UseProgram(p Program)
	Uniform1i(name string, v int32)
	Uniform1f(name string, v float32)
	Uniform2f(name string, v mgl32.Vec2)
	Uniform3f(name string, v mgl32.Vec3)

	Viewport(width, height int)
	SetBlend(enabled bool)

	// Draw runs the bound program over the viewport into target. A nil
	// target is the presentation surface.
	Draw(target Texture)
	Clear(target Texture)

	// ReadPixels returns RGBA float texels, bottom row first.
	ReadPixels(t Texture) ([]float32, error)

	// DrawableSize is the pixel size of the presentation surface
	DrawableSize() (int, int)

	Release()
}
