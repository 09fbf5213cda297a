package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fluidsim/config"
	"fluidsim/core"
	"fluidsim/logger"
	"fluidsim/rendering/opengl"
	"fluidsim/rendering/opengl/overlay"
	"fluidsim/server"
	"fluidsim/simulation"
)

func main() {
	var (
		configPath = flag.String("config", "", "Settings file (.json, .toml or .yaml), hot reloaded")
		width      = flag.Int("width", 0, "Window width (overrides settings)")
		height     = flag.Int("height", 0, "Window height (overrides settings)")
		addr       = flag.String("addr", "", "Control server address, \"off\" to disable")
		logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
		vsync      = flag.Bool("vsync", true, "Wait for vertical sync")
	)
	flag.Parse()

	settings := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fluidsim: %v\n", err)
			os.Exit(1)
		}
		settings = loaded
	}
	if *width > 0 {
		settings.Window.Width = *width
	}
	if *height > 0 {
		settings.Window.Height = *height
	}
	if *addr != "" {
		settings.Server.Addr = *addr
	}
	if *logLevel != "" {
		settings.Log.Level = *logLevel
	}
	settings.Window.VSync = *vsync

	log, err := logger.New(logger.Config{Level: settings.Log.Level, Encoding: settings.Log.Encoding})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fluidsim: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log, settings, *configPath); err != nil {
		log.Error("fluidsim stopped", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

// run owns the window and the GL context for its whole lifetime, so it
// stays on the main goroutine.
func run(log *zap.Logger, settings config.Settings, configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	window, err := opengl.NewWindow(opengl.WindowOptions{
		Width:       settings.Window.Width,
		Height:      settings.Window.Height,
		Title:       settings.Window.Title,
		VSync:       settings.Window.VSync,
		Transparent: settings.Simulation.Transparent,
	})
	if err != nil {
		return err
	}
	defer window.Terminate()

	dev, err := opengl.NewDevice(opengl.Options{
		Precision: core.PrecisionHalf,
		Drawable:  window.FramebufferSize,
		Logger:    log.Named("gl"),
	})
	if err != nil {
		return err
	}
	defer dev.Release()

	store := config.NewStore(settings.Simulation)
	driver, err := simulation.New(dev, store, simulation.Options{
		Logger: log,
		Rand:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	})
	if err != nil {
		return err
	}
	defer driver.Release()

	stats, err := overlay.NewStatsOverlay(window.FramebufferSize())
	if err != nil {
		log.Warn("stats overlay unavailable", zap.Error(err))
	} else {
		defer stats.Release()
	}
	showStats := stats != nil

	g, gctx := errgroup.WithContext(ctx)
	if configPath != "" {
		watcher, err := config.NewWatcher(log, store, configPath)
		if err != nil {
			return err
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}
	if settings.Server.Addr != "off" {
		interval := time.Duration(settings.Server.StatsIntervalMs) * time.Millisecond
		srv := server.New(log, store, driver, interval)
		g.Go(func() error { return srv.Run(gctx, settings.Server.Addr) })
	}

	pointerRand := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1))

	window.OnResize = func(w, h int) {
		if w <= 0 || h <= 0 {
			return // minimized
		}
		driver.Resize(w, h)
		if stats != nil {
			stats.UpdateSize(w, h)
		}
	}
	window.OnPointer = func(x, y, dx, dy float64) {
		w, h := window.Size()
		ev := simulation.PointerSplat(store.Load(), pointerRand, x, y, dx, dy, w, h)
		driver.QueueSplat(simulation.SourcePointer, ev)
	}
	window.OnKey = func(key glfw.Key) {
		var err error
		switch key {
		case glfw.KeyEscape:
			window.Close()
		case glfw.KeyP:
			err = driver.TogglePaused()
		case glfw.KeyS:
			err = store.Update(func(c *config.SimulationConfig) error {
				c.Shading = !c.Shading
				return nil
			})
		case glfw.KeyR:
			err = store.Update(func(c *config.SimulationConfig) error {
				c.Reversed = !c.Reversed
				return nil
			})
		case glfw.KeyC:
			err = store.Update(func(c *config.SimulationConfig) error {
				c.Colorful = !c.Colorful
				return nil
			})
		case glfw.KeyF1:
			showStats = !showStats && stats != nil
		case glfw.KeyF12:
			driver.RequestCapture()
		}
		if err != nil {
			log.Warn("key action failed", zap.String("key", glfw.GetKeyName(key, 0)), zap.Error(err))
		}
	}

	log.Info("controls: P pause, S shading, R reversed, C colorful, F1 stats, F12 capture, Esc quit")

	lastTitle := time.Now()
	for !window.ShouldClose() && gctx.Err() == nil {
		window.PollEvents()

		now := time.Now()
		fs, err := driver.Frame(now)
		if err != nil {
			return err
		}

		if showStats && !fs.Hidden {
			stats.UpdateStats(fs.FPS, fs.DT, float32(simulation.DefaultMaxStep.Seconds()), fs.Paused)
			stats.Render()
		}
		window.SwapBuffers()

		if now.Sub(lastTitle) >= time.Second {
			window.SetTitle(fmt.Sprintf("%s | %.0f fps", settings.Window.Title, fs.FPS))
			lastTitle = now
		}
	}

	log.Info("shutting down")
	stop()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
