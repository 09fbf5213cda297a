package simulation

import (
	"bytes"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidsim/config"
	"fluidsim/core"
	"fluidsim/fluid"
	"fluidsim/gpu/soft"
)

func testConfig() config.SimulationConfig {
	c := config.DefaultSimulation()
	c.SimResolution = 16
	c.DyeResolution = 32
	c.Frequency = 0
	return c
}

func newTestDriver(t *testing.T, cfg config.SimulationConfig, linear bool, opts Options) (*Driver, *soft.Device, *config.Store) {
	t.Helper()
	devOpts := soft.DefaultOptions(32, 32)
	devOpts.LinearFiltering = linear
	dev, err := soft.NewDevice(devOpts)
	require.NoError(t, err)

	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(7, 11))
	}
	store := config.NewStore(cfg)
	d, err := New(dev, store, opts)
	require.NoError(t, err)
	t.Cleanup(d.Release)
	return d, dev, store
}

func recordPasses(dev *soft.Device) *[]string {
	var names []string
	dev.OnDraw = func(info soft.DrawInfo) { names = append(names, info.Program) }
	return &names
}

func TestFrameRunning(t *testing.T) {
	d, dev, _ := newTestDriver(t, testConfig(), true, Options{})
	names := recordPasses(dev)

	t0 := time.Unix(100, 0)
	_, err := d.Frame(t0)
	require.NoError(t, err)

	*names = nil
	stats, err := d.Frame(t0.Add(10 * time.Millisecond))
	require.NoError(t, err)

	assert.InDelta(t, 0.01, stats.DT, 1e-6)
	assert.False(t, stats.Paused)
	assert.Equal(t, uint64(2), stats.Frame)
	assert.Contains(t, *names, "curl")
	assert.Contains(t, *names, "pressure")
	assert.Equal(t, "display", (*names)[len(*names)-1])
	assert.Equal(t, "brown", (*names)[len(*names)-2])
	assert.Equal(t, stats, d.Stats())
}

func TestFrameClampsStep(t *testing.T) {
	d, _, _ := newTestDriver(t, testConfig(), true, Options{})

	t0 := time.Unix(100, 0)
	_, err := d.Frame(t0)
	require.NoError(t, err)

	stats, err := d.Frame(t0.Add(3 * time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 1.0/60, stats.DT, 1e-6)
	assert.True(t, stats.Clamped)

	stats, err = d.Frame(t0.Add(3*time.Second + 5*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, stats.Clamped)
}

func TestPausedFrameKeepsDriveAndRender(t *testing.T) {
	cfg := testConfig()
	cfg.Paused = true
	cfg.Frequency = 1
	d, dev, _ := newTestDriver(t, cfg, true, Options{})
	names := recordPasses(dev)

	stats, err := d.Frame(time.Unix(100, 0))
	require.NoError(t, err)
	assert.True(t, stats.Paused)

	for _, solver := range []string{"curl", "vorticity", "divergence", "clear", "pressure", "gradientSubtract", "advection"} {
		assert.NotContains(t, *names, solver)
	}
	assert.Equal(t, []string{"splat", "splatColor", "brown", "display"}, *names)
	assert.Equal(t, 1, stats.Splats, "auto splats still fire while paused")
}

func TestPausedFrameKeepsFields(t *testing.T) {
	d, dev, store := newTestDriver(t, testConfig(), true, Options{})

	require.True(t, d.QueueSplat(SourceRemote, core.SplatEvent{X: 0.4, Y: 0.6, Volume: 3, Radius: 0.01}))
	_, err := d.Frame(time.Unix(100, 0))
	require.NoError(t, err)
	require.NoError(t, d.SetPaused(true))
	require.Zero(t, store.Load().Frequency)

	snapshot := func() (dye, pressure []float32) {
		dye, err := dev.ReadPixels(d.Pipeline().Dye().Read().Target())
		require.NoError(t, err)
		pressure, err = dev.ReadPixels(d.Pipeline().Pressure().Read().Target())
		require.NoError(t, err)
		return dye, pressure
	}

	_, err = d.Frame(time.Unix(101, 0))
	require.NoError(t, err)
	dye1, pressure1 := snapshot()
	assert.NotEqual(t, make([]float32, len(dye1)), dye1, "the splat left dye behind")

	stats, err := d.Frame(time.Unix(102, 0))
	require.NoError(t, err)
	assert.True(t, stats.Paused)
	dye2, pressure2 := snapshot()

	assert.Equal(t, dye1, dye2)
	assert.Equal(t, pressure1, pressure2)
}

func TestPauseToggle(t *testing.T) {
	d, dev, store := newTestDriver(t, testConfig(), true, Options{})
	names := recordPasses(dev)

	require.NoError(t, d.TogglePaused())
	assert.True(t, store.Load().Paused)

	_, err := d.Frame(time.Unix(100, 0))
	require.NoError(t, err)
	assert.NotContains(t, *names, "pressure")

	require.NoError(t, d.SetPaused(false))
	*names = nil
	_, err = d.Frame(time.Unix(101, 0))
	require.NoError(t, err)
	assert.Contains(t, *names, "pressure")
}

func TestQueueSplatBounded(t *testing.T) {
	d, dev, _ := newTestDriver(t, testConfig(), true, Options{QueueSize: 2})
	names := recordPasses(dev)

	assert.True(t, d.QueueSplat(SourceRemote, core.SplatEvent{X: 0.2, Y: 0.2}))
	assert.True(t, d.QueueSplat(SourcePointer, core.SplatEvent{X: 0.8, Y: 0.8, Volume: 3, Radius: 0.001}))
	assert.False(t, d.QueueSplat(SourceRemote, core.SplatEvent{X: 0.5, Y: 0.5}))

	stats, err := d.Frame(time.Unix(100, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Splats)

	splats := 0
	for _, n := range *names {
		if n == "splat" {
			splats++
		}
	}
	assert.Equal(t, 2, splats)

	stats, err = d.Frame(time.Unix(101, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Splats, "queued splats are consumed once")
}

func TestResizeReallocates(t *testing.T) {
	d, dev, store := newTestDriver(t, testConfig(), true, Options{})

	d.Resize(64, 32)
	stats, err := d.Frame(time.Unix(100, 0))
	require.NoError(t, err)

	w, h := dev.DrawableSize()
	assert.Equal(t, 64, w)
	assert.Equal(t, 32, h)
	assert.Equal(t, 32, stats.SimWidth)
	assert.Equal(t, 16, stats.SimHeight)
	assert.Equal(t, 64, stats.DyeWidth)
	assert.Equal(t, 32, stats.DyeHeight)

	require.NoError(t, store.Update(func(c *config.SimulationConfig) error {
		c.SimResolution = 8
		return nil
	}))
	stats, err = d.Frame(time.Unix(101, 0))
	require.NoError(t, err)
	assert.Equal(t, 16, stats.SimWidth)
	assert.Equal(t, 8, stats.SimHeight)
}

func TestDisplayFlagsFollowConfig(t *testing.T) {
	d, _, store := newTestDriver(t, testConfig(), true, Options{})
	assert.Empty(t, d.Pipeline().DisplayFlags())

	require.NoError(t, store.Update(func(c *config.SimulationConfig) error {
		c.Shading = true
		c.Reversed = true
		return nil
	}))
	_, err := d.Frame(time.Unix(100, 0))
	require.NoError(t, err)

	flags := d.Pipeline().DisplayFlags()
	slices.Sort(flags)
	assert.Equal(t, []string{fluid.FlagReversed, fluid.FlagShading}, flags)
}

func TestNoLinearFilteringDisablesShading(t *testing.T) {
	cfg := testConfig()
	cfg.Shading = true
	cfg.DyeResolution = 1024
	_, _, store := newTestDriver(t, cfg, false, Options{})

	live := store.Load()
	assert.False(t, live.Shading)
	assert.Equal(t, fluid.MaxDyeResolutionNearest, live.DyeResolution)
}

func TestNoLinearFilteringSurvivesReload(t *testing.T) {
	d, _, store := newTestDriver(t, testConfig(), false, Options{})

	reloaded := testConfig()
	reloaded.Shading = true
	reloaded.DyeResolution = 2048
	require.NoError(t, store.Replace(reloaded))

	stats, err := d.Frame(time.Unix(100, 0))
	require.NoError(t, err)

	live := store.Load()
	assert.False(t, live.Shading)
	assert.Equal(t, fluid.MaxDyeResolutionNearest, live.DyeResolution)
	assert.Empty(t, d.Pipeline().DisplayFlags())
	assert.Equal(t, fluid.MaxDyeResolutionNearest, stats.DyeWidth)
}

// hiddenDevice reports an empty drawable while hidden, like a minimized
// window.
type hiddenDevice struct {
	*soft.Device
	hidden bool
}

func (d *hiddenDevice) DrawableSize() (int, int) {
	if d.hidden {
		return 0, 0
	}
	return d.Device.DrawableSize()
}

func requireFinite(t *testing.T, dev *soft.Device, s *fluid.Surface) {
	t.Helper()
	px, err := dev.ReadPixels(s.Target())
	require.NoError(t, err)
	for i, v := range px {
		f := float64(v)
		require.False(t, math.IsNaN(f) || math.IsInf(f, 0), "value %d is %v", i, f)
	}
}

func TestEmptyDrawableSuspendsFrames(t *testing.T) {
	base, err := soft.NewDevice(soft.DefaultOptions(32, 32))
	require.NoError(t, err)
	dev := &hiddenDevice{Device: base}

	cfg := testConfig()
	cfg.Frequency = 1
	store := config.NewStore(cfg)
	d, err := New(dev, store, Options{Rand: rand.New(rand.NewPCG(7, 11))})
	require.NoError(t, err)
	t.Cleanup(d.Release)

	_, err = d.Frame(time.Unix(100, 0))
	require.NoError(t, err)
	vel, dye := d.Pipeline().Velocity().Read(), d.Pipeline().Dye().Read()

	dev.hidden = true
	names := recordPasses(base)
	d.RequestCapture()
	require.True(t, d.QueueSplat(SourcePointer, core.SplatEvent{X: 0.5, Y: 0.5}))
	for i := int64(1); i <= 3; i++ {
		stats, err := d.Frame(time.Unix(100+i, 0))
		require.NoError(t, err)
		assert.True(t, stats.Hidden)
		assert.Zero(t, stats.Splats)
		assert.Equal(t, uint64(1), stats.Frame)
		assert.Equal(t, 16, stats.SimWidth, "last allocation is kept")
	}
	assert.Empty(t, *names, "nothing runs while the drawable is empty")
	assert.Same(t, vel, d.Pipeline().Velocity().Read())
	assert.Same(t, dye, d.Pipeline().Dye().Read())
	requireFinite(t, base, vel)
	requireFinite(t, base, dye)

	dir := t.TempDir()
	d.captureDir = dir
	dev.hidden = false
	stats, err := d.Frame(time.Unix(110, 0))
	require.NoError(t, err)
	assert.False(t, stats.Hidden)
	assert.Equal(t, 2, stats.Splats, "the queued splat and the auto splat run once visible")
	requireFinite(t, base, d.Pipeline().Velocity().Read())
	requireFinite(t, base, d.Pipeline().Dye().Read())

	matches, err := filepath.Glob(filepath.Join(dir, "capture-*.png"))
	require.NoError(t, err)
	assert.Len(t, matches, 1, "the capture waited for a visible frame")
}

func TestRequestCapture(t *testing.T) {
	dir := t.TempDir()
	d, _, _ := newTestDriver(t, testConfig(), true, Options{CaptureDir: dir})

	d.RequestCapture()
	_, err := d.Frame(time.Unix(100, 0))
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "capture-*.png"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	info, err := os.Stat(matches[0])
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = d.Frame(time.Unix(101, 0))
	require.NoError(t, err)
	matches, _ = filepath.Glob(filepath.Join(dir, "capture-*.png"))
	assert.Len(t, matches, 1, "a request produces one capture")
}

type failingClose struct {
	bytes.Buffer
	err error
}

func (f *failingClose) Close() error { return f.err }

func TestCaptureReportsCloseError(t *testing.T) {
	d, _, store := newTestDriver(t, testConfig(), true, Options{CaptureDir: t.TempDir()})
	_, err := d.Frame(time.Unix(100, 0))
	require.NoError(t, err)

	errFlush := errors.New("disk full")
	out := &failingClose{err: errFlush}
	d.create = func(string) (io.WriteCloser, error) { return out, nil }

	name, err := d.writeCapture(store.Load())
	assert.ErrorIs(t, err, errFlush)
	assert.NotEmpty(t, name)
	assert.Positive(t, out.Len(), "the PNG was written before close failed")

	out.err = nil
	_, err = d.writeCapture(store.Load())
	assert.NoError(t, err)
}

func TestSplatVolumeAndRadius(t *testing.T) {
	cfg := config.DefaultSimulation()
	rng := rand.New(rand.NewPCG(3, 4))

	for i := 0; i < 100; i++ {
		v := SplatVolume(&cfg, rng)
		assert.GreaterOrEqual(t, v, 0.1*10*cfg.SplatBias)
		assert.Less(t, v, 10*cfg.SplatBias)

		r := SplatRadius(&cfg, rng)
		assert.GreaterOrEqual(t, r, cfg.RadiusMin/100)
		assert.Less(t, r, (cfg.RadiusMin+cfg.RadiusRange)/100)
	}
}

func TestPointerSplat(t *testing.T) {
	cfg := config.DefaultSimulation()
	rng := rand.New(rand.NewPCG(3, 4))

	ev := PointerSplat(&cfg, rng, 0, 0, 0, 0, 200, 100)
	assert.Equal(t, float32(0), ev.X)
	assert.Equal(t, float32(1), ev.Y)
	assert.True(t, ev.IsRadial())

	ev = PointerSplat(&cfg, rng, 100, 75, 20, 10, 200, 100)
	assert.InDelta(t, 0.5, ev.X, 1e-6)
	assert.InDelta(t, 0.25, ev.Y, 1e-6)
	assert.InDelta(t, 0.1*cfg.SplatForce, ev.Force[0], 1e-3)
	assert.InDelta(t, -0.1*cfg.SplatForce, ev.Force[1], 1e-3)
}

func TestAutoSplatInBounds(t *testing.T) {
	cfg := config.DefaultSimulation()
	rng := rand.New(rand.NewPCG(5, 6))
	for i := 0; i < 50; i++ {
		ev := AutoSplat(&cfg, rng)
		assert.True(t, ev.IsRadial())
		assert.True(t, ev.X >= 0 && ev.X < 1 && ev.Y >= 0 && ev.Y < 1)
	}
}
