package opengl

import (
	"fmt"
	"runtime"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"fluidsim/gpu"
)

// WindowOptions configures the host window.
type WindowOptions struct {
	Width, Height int
	Title         string
	VSync         bool

	// Transparent requests a framebuffer with alpha the compositor honors
	Transparent bool
}

// Window owns the glfw window and its GL context.
type Window struct {
	window *glfw.Window

	mouseDown  bool
	lastMouseX float64
	lastMouseY float64

	// OnKey is called on key press
	OnKey func(key glfw.Key)

	// OnPointer is called when the left button goes down (dx, dy zero) and
	// on every cursor move while it is held. Coordinates are window pixels,
	// origin top left.
	OnPointer func(x, y, dx, dy float64)

	// OnResize receives the new framebuffer size
	OnResize func(width, height int)
}

// NewWindow creates the window, makes its context current and loads GL.
// It locks the calling goroutine to its OS thread.
func NewWindow(opts WindowOptions) (*Window, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize GLFW: %v", gpu.ErrNoContext, err)
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	if opts.Transparent {
		glfw.WindowHint(glfw.TransparentFramebuffer, glfw.True)
	}

	window, err := glfw.CreateWindow(opts.Width, opts.Height, opts.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("%w: failed to create window: %v", gpu.ErrNoContext, err)
	}
	window.MakeContextCurrent()

	if opts.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("%w: failed to initialize OpenGL: %v", gpu.ErrNoContext, err)
	}

	w := &Window{window: window}

	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if w.OnResize != nil {
			w.OnResize(width, height)
		}
	})

	window.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action == glfw.Press && w.OnKey != nil {
			w.OnKey(key)
		}
	})

	window.SetMouseButtonCallback(func(win *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		switch action {
		case glfw.Press:
			w.mouseDown = true
			w.lastMouseX, w.lastMouseY = win.GetCursorPos()
			if w.OnPointer != nil {
				w.OnPointer(w.lastMouseX, w.lastMouseY, 0, 0)
			}
		case glfw.Release:
			w.mouseDown = false
		}
	})

	window.SetCursorPosCallback(func(_ *glfw.Window, xpos, ypos float64) {
		if !w.mouseDown {
			return
		}
		dx, dy := xpos-w.lastMouseX, ypos-w.lastMouseY
		w.lastMouseX, w.lastMouseY = xpos, ypos
		if w.OnPointer != nil {
			w.OnPointer(xpos, ypos, dx, dy)
		}
	})

	return w, nil
}

// FramebufferSize is the drawable size in pixels.
func (w *Window) FramebufferSize() (int, int) { return w.window.GetFramebufferSize() }

// Size is the window size in screen coordinates, the space cursor
// positions are reported in.
func (w *Window) Size() (int, int) { return w.window.GetSize() }

func (w *Window) ShouldClose() bool { return w.window.ShouldClose() }
func (w *Window) Close()            { w.window.SetShouldClose(true) }
func (w *Window) SwapBuffers()      { w.window.SwapBuffers() }
func (w *Window) PollEvents()       { glfw.PollEvents() }

func (w *Window) SetTitle(title string) { w.window.SetTitle(title) }

// Terminate destroys the window and shuts glfw down.
func (w *Window) Terminate() {
	w.window.Destroy()
	glfw.Terminate()
}
