// Command softview runs the simulation on the software device and shows it
// in a raylib window. It needs no GL 4.1 context, which makes it usable on
// machines where the main host cannot start.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"
	"os"
	"time"
	"unsafe"

	rl "github.com/gen2brain/raylib-go/raylib"
	"go.uber.org/zap"

	"fluidsim/config"
	"fluidsim/core"
	"fluidsim/gpu/soft"
	"fluidsim/logger"
	"fluidsim/simulation"
)

func main() {
	var (
		configPath = flag.String("config", "", "Settings file (.json, .toml or .yaml)")
		width      = flag.Int("width", 960, "Window width")
		height     = flag.Int("height", 540, "Window height")
		scale      = flag.Int("scale", 2, "Window pixels per simulated screen pixel")
		logLevel   = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	log, err := logger.New(logger.Config{Level: *logLevel, Name: "softview"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "softview: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	settings := config.Defaults()
	if *configPath != "" {
		if settings, err = config.Load(*configPath); err != nil {
			log.Fatal("config load failed", zap.Error(err))
		}
	}
	// The CPU cannot keep up with the desktop defaults.
	settings.Simulation.SimResolution = min(settings.Simulation.SimResolution, 128)
	settings.Simulation.DyeResolution = min(settings.Simulation.DyeResolution, 256)

	if *scale < 1 {
		*scale = 1
	}
	opts := soft.DefaultOptions(*width / *scale, *height / *scale)
	opts.Precision = core.PrecisionFloat
	opts.Logger = log
	dev, err := soft.NewDevice(opts)
	if err != nil {
		log.Fatal("software device failed", zap.Error(err))
	}

	store := config.NewStore(settings.Simulation)
	driver, err := simulation.New(dev, store, simulation.Options{
		Logger: log,
		Rand:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 7)),
	})
	if err != nil {
		log.Fatal("driver failed", zap.Error(err))
	}
	defer driver.Release()

	rl.SetConfigFlags(rl.FlagWindowResizable)
	rl.InitWindow(int32(*width), int32(*height), "fluidsim (software)")
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	var tex rl.Texture2D
	defer func() {
		if tex.ID != 0 {
			rl.UnloadTexture(tex)
		}
	}()

	pointerRand := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 8))

	for !rl.WindowShouldClose() {
		if rl.IsWindowResized() {
			driver.Resize(rl.GetScreenWidth() / *scale, rl.GetScreenHeight() / *scale)
		}
		handleKeys(log, driver, store)

		if rl.IsMouseButtonDown(rl.MouseButtonLeft) {
			pos := rl.GetMousePosition()
			delta := rl.GetMouseDelta()
			if rl.IsMouseButtonPressed(rl.MouseButtonLeft) {
				delta = rl.Vector2{}
			}
			ev := simulation.PointerSplat(store.Load(), pointerRand,
				float64(pos.X), float64(pos.Y), float64(delta.X), float64(delta.Y),
				rl.GetScreenWidth(), rl.GetScreenHeight())
			driver.QueueSplat(simulation.SourcePointer, ev)
		}

		if _, err := driver.Frame(time.Now()); err != nil {
			log.Fatal("frame failed", zap.Error(err))
		}

		img := dev.ScreenImage()
		tex = upload(tex, img)

		rl.BeginDrawing()
		rl.ClearBackground(rl.Black)
		src := rl.Rectangle{Width: float32(tex.Width), Height: float32(tex.Height)}
		dst := rl.Rectangle{Width: float32(rl.GetScreenWidth()), Height: float32(rl.GetScreenHeight())}
		rl.DrawTexturePro(tex, src, dst, rl.Vector2{}, 0, rl.White)
		rl.DrawFPS(10, 10)
		rl.EndDrawing()
	}
}

// upload copies img into tex, recreating the texture when the size changed.
func upload(tex rl.Texture2D, img *image.RGBA) rl.Texture2D {
	b := img.Bounds()
	if tex.ID == 0 || int(tex.Width) != b.Dx() || int(tex.Height) != b.Dy() {
		if tex.ID != 0 {
			rl.UnloadTexture(tex)
		}
		return rl.LoadTextureFromImage(rl.NewImageFromImage(img))
	}
	pixels := unsafe.Slice((*color.RGBA)(unsafe.Pointer(&img.Pix[0])), len(img.Pix)/4)
	rl.UpdateTexture(tex, pixels)
	return tex
}

func handleKeys(log *zap.Logger, driver *simulation.Driver, store *config.Store) {
	toggle := func(fn func(c *config.SimulationConfig)) {
		err := store.Update(func(c *config.SimulationConfig) error {
			fn(c)
			return nil
		})
		if err != nil {
			log.Warn("toggle failed", zap.Error(err))
		}
	}

	switch {
	case rl.IsKeyPressed(rl.KeyP):
		if err := driver.TogglePaused(); err != nil {
			log.Warn("pause failed", zap.Error(err))
		}
	case rl.IsKeyPressed(rl.KeyS):
		toggle(func(c *config.SimulationConfig) { c.Shading = !c.Shading })
	case rl.IsKeyPressed(rl.KeyR):
		toggle(func(c *config.SimulationConfig) { c.Reversed = !c.Reversed })
	case rl.IsKeyPressed(rl.KeyC):
		toggle(func(c *config.SimulationConfig) { c.Colorful = !c.Colorful })
	case rl.IsKeyPressed(rl.KeyF12):
		driver.RequestCapture()
	}
}
