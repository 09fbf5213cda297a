// Package simulation runs the per-frame schedule around a fluid.Pipeline:
// clock, reallocation on size or resolution changes, splat injection,
// pause handling and the Brownian drive.
package simulation

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fluidsim/config"
	"fluidsim/core"
	"fluidsim/fluid"
	"fluidsim/gpu"
	"fluidsim/metrics"
)

// Splat sources, used as metric labels.
const (
	SourcePointer = "pointer"
	SourceAuto    = "auto"
	SourceRemote  = "remote"
)

const defaultQueueSize = 64

// FrameStats summarizes one frame.
type FrameStats struct {
	Frame     uint64  `json:"frame"`
	DT        float32 `json:"dt"`
	Clamped   bool    `json:"clamped"`
	FPS       float64 `json:"fps"`
	Paused    bool    `json:"paused"`
	Hidden    bool    `json:"hidden"`
	Splats    int     `json:"splats"`
	SimWidth  int     `json:"simWidth"`
	SimHeight int     `json:"simHeight"`
	DyeWidth  int     `json:"dyeWidth"`
	DyeHeight int     `json:"dyeHeight"`

	Submit time.Duration `json:"submitNs"`
}

type Options struct {
	Logger *zap.Logger

	// Rand drives auto splats, splat colors and the Brownian drive
	Rand *rand.Rand

	// QueueSize bounds pending splats; further splats are dropped
	QueueSize int

	// CaptureDir receives PNGs written for RequestCapture
	CaptureDir string
}

type queuedSplat struct {
	source string
	ev     core.SplatEvent
}

// drawableResizer is implemented by devices whose presentation surface is
// sized by the host rather than by a window system.
type drawableResizer interface {
	SetDrawableSize(width, height int)
}

// Driver owns the pipeline and advances it one frame at a time. Frame,
// Resize and Capture must be called from the goroutine that owns the device;
// QueueSplat, SetPaused, TogglePaused, RequestCapture and Stats are safe from
// any goroutine.
type Driver struct {
	dev   gpu.Device
	pipe  *fluid.Pipeline
	store *config.Store
	log   *zap.Logger
	rng   *rand.Rand
	clock *TimeStep

	splats        chan queuedSplat
	captureDir    string
	captureWanted atomic.Bool
	create        func(name string) (io.WriteCloser, error)

	pendingW, pendingH int

	// allocated state
	drawW, drawH     int
	simRes, dyeRes   int
	shading, reverse bool
	hidden           bool

	frame     uint64
	lastFrame time.Time
	fps       float64
	stats     atomic.Pointer[FrameStats]
}

// New builds the pipeline, allocates its fields for the current drawable
// size and selects the display variant.
func New(dev gpu.Device, store *config.Store, opts Options) (*Driver, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.CaptureDir == "" {
		opts.CaptureDir = "."
	}

	pipe, err := fluid.New(dev, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	d := &Driver{
		dev:        dev,
		pipe:       pipe,
		store:      store,
		log:        opts.Logger.Named("driver"),
		rng:        opts.Rand,
		splats:     make(chan queuedSplat, opts.QueueSize),
		captureDir: opts.CaptureDir,
		create: func(name string) (io.WriteCloser, error) {
			return os.Create(name)
		},
	}
	d.stats.Store(&FrameStats{})

	cfg, err := d.limit()
	if err != nil {
		pipe.Release()
		return nil, err
	}
	if _, err := d.sync(cfg); err != nil {
		pipe.Release()
		return nil, err
	}
	return d, nil
}

// limit rewrites settings the device cannot honor and returns the live
// snapshot. Without linear filtering shading stays off and the dye grid
// stays within MaxDyeResolutionNearest, whatever a reload or patch asks for.
func (d *Driver) limit() (*config.SimulationConfig, error) {
	cfg := d.store.Load()
	if d.dev.Capabilities().LinearFiltering {
		return cfg, nil
	}
	if !cfg.Shading && cfg.DyeResolution <= fluid.MaxDyeResolutionNearest {
		return cfg, nil
	}
	err := d.store.Update(func(c *config.SimulationConfig) error {
		c.Shading = false
		c.DyeResolution = min(c.DyeResolution, fluid.MaxDyeResolutionNearest)
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.log.Warn("linear filtering unavailable, shading disabled",
		zap.Int("maxDyeResolution", fluid.MaxDyeResolutionNearest))
	return d.store.Load(), nil
}

func (d *Driver) Pipeline() *fluid.Pipeline { return d.pipe }

// Resize records a new drawable size in device pixels. It takes effect at
// the next frame.
func (d *Driver) Resize(width, height int) {
	d.pendingW, d.pendingH = width, height
}

// sync reallocates fields and reselects the display variant when the
// drawable size, the grid resolutions or the display flags changed. It
// reports false while the drawable is empty, as for a minimized window; the
// last allocation is kept untouched until it has a size again.
func (d *Driver) sync(cfg *config.SimulationConfig) (bool, error) {
	if d.pendingW > 0 && d.pendingH > 0 {
		if r, ok := d.dev.(drawableResizer); ok {
			r.SetDrawableSize(d.pendingW, d.pendingH)
		}
		d.pendingW, d.pendingH = 0, 0
	}

	w, h := d.dev.DrawableSize()
	if w <= 0 || h <= 0 {
		if !d.hidden {
			d.log.Info("drawable is empty, frames suspended")
			d.hidden = true
		}
		return false, nil
	}
	if d.hidden {
		d.log.Info("drawable restored, frames resumed", zap.Int("width", w), zap.Int("height", h))
		d.hidden = false
	}

	if w != d.drawW || h != d.drawH || cfg.SimResolution != d.simRes || cfg.DyeResolution != d.dyeRes {
		d.pipe.SetResolution(cfg.SimResolution, cfg.DyeResolution)
		if err := d.pipe.Resize(w, h); err != nil {
			return false, fmt.Errorf("reallocate fields: %w", err)
		}
		d.drawW, d.drawH = w, h
		d.simRes, d.dyeRes = cfg.SimResolution, cfg.DyeResolution
	}

	if cfg.Shading != d.shading || cfg.Reversed != d.reverse {
		if err := d.pipe.SetDisplayFlags(cfg.Shading, cfg.Reversed); err != nil {
			return false, err
		}
		d.shading, d.reverse = cfg.Shading, cfg.Reversed
	}
	return true, nil
}

// QueueSplat schedules a splat for the next frame. A zero Volume or Radius
// is filled in the way pointer splats pick theirs. It reports false when
// the queue is full and the splat was dropped.
func (d *Driver) QueueSplat(source string, ev core.SplatEvent) bool {
	select {
	case d.splats <- queuedSplat{source: source, ev: ev}:
		return true
	default:
		metrics.SplatsDropped.Inc()
		d.log.Warn("splat queue full, dropping splat", zap.String("source", source))
		return false
	}
}

func (d *Driver) SetPaused(paused bool) error {
	return d.store.Update(func(c *config.SimulationConfig) error {
		c.Paused = paused
		return nil
	})
}

func (d *Driver) TogglePaused() error {
	return d.store.Update(func(c *config.SimulationConfig) error {
		c.Paused = !c.Paused
		return nil
	})
}

// RequestCapture asks for a PNG of the dye field to be written into the
// capture directory at the end of the next frame.
func (d *Driver) RequestCapture() {
	d.captureWanted.Store(true)
}

// Capture writes the dye field as PNG at the configured capture resolution.
func (d *Driver) Capture(w io.Writer) error {
	return d.pipe.Capture(w, d.store.Load().CaptureResolution)
}

// Stats returns the summary of the last completed frame.
func (d *Driver) Stats() FrameStats { return *d.stats.Load() }

// Frame runs one frame: splats, the solver step unless paused, the
// Brownian drive and the display pass. While the drawable is empty nothing
// runs; queued splats and capture requests wait for the next visible frame.
func (d *Driver) Frame(now time.Time) (FrameStats, error) {
	start := time.Now()
	if d.clock == nil {
		d.clock = NewTimeStep(now)
		d.lastFrame = now
	}
	dt := d.clock.Next(now)
	d.trackFPS(now)

	cfg, err := d.limit()
	if err != nil {
		return FrameStats{}, err
	}
	visible, err := d.sync(cfg)
	if err != nil {
		return FrameStats{}, err
	}
	if !visible {
		stats := *d.stats.Load()
		stats.DT = 0
		stats.Clamped = false
		stats.Splats = 0
		stats.FPS = d.fps
		stats.Paused = cfg.Paused
		stats.Hidden = true
		stats.Submit = time.Since(start)
		d.stats.Store(&stats)
		metrics.Frames.WithLabelValues("hidden").Inc()
		return stats, nil
	}

	splats, err := d.drainSplats(cfg)
	if err != nil {
		return FrameStats{}, err
	}

	if d.rng.Float32() < cfg.Frequency*cfg.Frequency {
		if err := d.pipe.Splat(AutoSplat(cfg, d.rng), cfg, d.rng); err != nil {
			return FrameStats{}, err
		}
		metrics.Splats.WithLabelValues(SourceAuto).Inc()
		splats++
	}

	state := "running"
	if cfg.Paused {
		state = "paused"
	} else {
		stepStart := time.Now()
		if err := d.pipe.Step(dt, cfg); err != nil {
			return FrameStats{}, err
		}
		metrics.ObserveSince(metrics.StepDuration, stepStart)
	}

	if err := d.pipe.ApplyBrown(cfg.BrownBias, d.rng.Float32(), d.rng.Float32(), d.rng.Float32(), d.rng.Float32()); err != nil {
		return FrameStats{}, err
	}
	if err := d.pipe.Render(cfg); err != nil {
		return FrameStats{}, err
	}

	if d.captureWanted.Swap(false) {
		if name, err := d.writeCapture(cfg); err != nil {
			d.log.Error("capture failed", zap.String("path", name), zap.Error(err))
		} else {
			d.log.Info("captured dye field", zap.String("path", name))
		}
	}

	d.frame++
	vel, dye := d.pipe.Velocity(), d.pipe.Dye()
	stats := FrameStats{
		Frame:     d.frame,
		DT:        dt,
		Clamped:   d.clock.Clamped,
		FPS:       d.fps,
		Paused:    cfg.Paused,
		Splats:    splats,
		SimWidth:  vel.Width(),
		SimHeight: vel.Height(),
		DyeWidth:  dye.Width(),
		DyeHeight: dye.Height(),
		Submit:    time.Since(start),
	}
	d.stats.Store(&stats)

	metrics.Frames.WithLabelValues(state).Inc()
	metrics.TimeStep.Set(float64(dt))
	metrics.ObserveSince(metrics.FrameDuration, start)
	return stats, nil
}

func (d *Driver) drainSplats(cfg *config.SimulationConfig) (int, error) {
	n := 0
	for {
		select {
		case q := <-d.splats:
			ev := q.ev
			if ev.Volume <= 0 {
				ev.Volume = SplatVolume(cfg, d.rng)
			}
			if ev.Radius <= 0 {
				ev.Radius = SplatRadius(cfg, d.rng)
			}
			if err := d.pipe.Splat(ev, cfg, d.rng); err != nil {
				return n, err
			}
			metrics.Splats.WithLabelValues(q.source).Inc()
			n++
		default:
			return n, nil
		}
	}
}

func (d *Driver) trackFPS(now time.Time) {
	interval := now.Sub(d.lastFrame).Seconds()
	d.lastFrame = now
	if interval <= 0 {
		return
	}
	inst := 1 / interval
	if d.fps == 0 {
		d.fps = inst
		return
	}
	d.fps += (inst - d.fps) * 0.1
}

// writeCapture writes one PNG into the capture directory. A failed close
// fails the capture, since the file may be truncated.
func (d *Driver) writeCapture(cfg *config.SimulationConfig) (string, error) {
	name := filepath.Join(d.captureDir, fmt.Sprintf("capture-%d.png", time.Now().UnixNano()))
	f, err := d.create(name)
	if err != nil {
		return name, err
	}

	err = d.pipe.Capture(f, cfg.CaptureResolution)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close capture: %w", cerr)
	}
	return name, err
}

// Release frees the pipeline.
func (d *Driver) Release() { d.pipe.Release() }

// SplatVolume picks a dye volume in [0.1, 1) x 10 x SplatBias.
func SplatVolume(cfg *config.SimulationConfig, rng *rand.Rand) float32 {
	return (rng.Float32()*0.9 + 0.1) * 10 * cfg.SplatBias
}

// SplatRadius picks a radius in [RadiusMin, RadiusMin+RadiusRange) / 100.
func SplatRadius(cfg *config.SimulationConfig, rng *rand.Rand) float32 {
	return cfg.RadiusMin/100 + rng.Float32()*cfg.RadiusRange/100
}

// AutoSplat is a radial splat at a random position.
func AutoSplat(cfg *config.SimulationConfig, rng *rand.Rand) core.SplatEvent {
	x, y := rng.Float32(), rng.Float32()
	return core.SplatEvent{
		X:      x,
		Y:      y,
		Volume: SplatVolume(cfg, rng),
		Radius: SplatRadius(cfg, rng),
	}
}

// PointerSplat builds the splat for a pointer event in window coordinates,
// origin at the top left. A zero delta makes a radial burst; otherwise the
// drag delta, scaled by SplatForce, pushes the fluid.
func PointerSplat(cfg *config.SimulationConfig, rng *rand.Rand, x, y, dx, dy float64, width, height int) core.SplatEvent {
	ev := core.SplatEvent{
		X:      float32(x / float64(width)),
		Y:      float32(1 - y/float64(height)),
		Volume: SplatVolume(cfg, rng),
		Radius: SplatRadius(cfg, rng),
	}
	if dx != 0 || dy != 0 {
		ev.Force[0] = float32(dx/float64(width)) * cfg.SplatForce
		ev.Force[1] = float32(-dy/float64(height)) * cfg.SplatForce
	}
	return ev
}
