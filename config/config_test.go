package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultsValidate(t *testing.T) {
	s := Defaults()
	require.NoError(t, s.Validate())

	sim := s.Simulation
	assert.Equal(t, 256, sim.SimResolution)
	assert.Equal(t, 1024, sim.DyeResolution)
	assert.Equal(t, 10, sim.PressureIterations)
	assert.InDelta(t, 0.12, sim.Frequency, 1e-7)
	assert.False(t, sim.Paused)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*SimulationConfig)
	}{
		{"zero sim resolution", func(c *SimulationConfig) { c.SimResolution = 0 }},
		{"negative dye resolution", func(c *SimulationConfig) { c.DyeResolution = -8 }},
		{"negative iterations", func(c *SimulationConfig) { c.PressureIterations = -1 }},
		{"negative curl", func(c *SimulationConfig) { c.Curl = -3 }},
		{"nan dissipation", func(c *SimulationConfig) { c.DensityDissipation = float32(math.NaN()) }},
		{"infinite force", func(c *SimulationConfig) { c.SplatForce = float32(math.Inf(1)) }},
		{"frequency above one", func(c *SimulationConfig) { c.Frequency = 1.5 }},
		{"back color out of range", func(c *SimulationConfig) { c.BackColor.G = 300 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultSimulation()
			tt.modify(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestValidateAcceptsEdges(t *testing.T) {
	c := DefaultSimulation()
	c.PressureIterations = 0
	c.Frequency = 1
	c.Curl = 0
	assert.NoError(t, c.Validate())
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"json", "settings.json", `{"simulation":{"simResolution":128,"curl":7,"colorful":true},"log":{"level":"debug"}}`},
		{"toml", "settings.toml", "[simulation]\nsimResolution = 128\ncurl = 7.0\ncolorful = true\n\n[log]\nlevel = \"debug\"\n"},
		{"yaml", "settings.yaml", "simulation:\n  simResolution: 128\n  curl: 7\n  colorful: true\nlog:\n  level: debug\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load(writeFile(t, tt.file, tt.body))
			require.NoError(t, err)

			assert.Equal(t, 128, s.Simulation.SimResolution)
			assert.Equal(t, float32(7), s.Simulation.Curl)
			assert.True(t, s.Simulation.Colorful)
			assert.Equal(t, "debug", s.Log.Level)

			// untouched fields keep their defaults
			assert.Equal(t, 1024, s.Simulation.DyeResolution)
			assert.Equal(t, float32(800), s.Simulation.SplatForce)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "settings.ini", "x=1"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "settings.json", `{"simulation":`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "settings.json", `{"simulation":{"frequency":2}}`))
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore(DefaultSimulation())
	before := store.Load()

	require.NoError(t, store.Update(func(c *SimulationConfig) error {
		c.Curl = 12
		return nil
	}))
	after := store.Load()

	assert.Equal(t, float32(12), after.Curl)
	assert.Equal(t, float32(3), before.Curl, "published snapshots are never modified")
	assert.NotSame(t, before, after)
}

func TestStoreRejectsInvalid(t *testing.T) {
	store := NewStore(DefaultSimulation())
	live := store.Load()

	err := store.Update(func(c *SimulationConfig) error {
		c.Frequency = 4
		return nil
	})
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Same(t, live, store.Load())

	boom := errors.New("boom")
	assert.ErrorIs(t, store.Update(func(*SimulationConfig) error { return boom }), boom)
	assert.Same(t, live, store.Load())
}

func TestStorePartialJSON(t *testing.T) {
	store := NewStore(DefaultSimulation())
	require.NoError(t, store.Update(func(c *SimulationConfig) error {
		return json.Unmarshal([]byte(`{"shading":true,"pressureIterations":20}`), c)
	}))

	c := store.Load()
	assert.True(t, c.Shading)
	assert.Equal(t, 20, c.PressureIterations)
	assert.Equal(t, 256, c.SimResolution)
}

func TestWatcherReloadKeepsPause(t *testing.T) {
	path := writeFile(t, "settings.json", `{"simulation":{"curl":9}}`)

	store := NewStore(DefaultSimulation())
	require.NoError(t, store.Update(func(c *SimulationConfig) error {
		c.Paused = true
		return nil
	}))

	w, err := NewWatcher(zap.NewNop(), store, path)
	require.NoError(t, err)
	defer w.watcher.Close()

	var reloaded int
	w.OnReload = func(Settings) { reloaded++ }
	w.Reload()

	c := store.Load()
	assert.Equal(t, float32(9), c.Curl)
	assert.True(t, c.Paused)
	assert.Equal(t, 1, reloaded)

	require.NoError(t, os.WriteFile(path, []byte(`{"simulation":{"curl":-1}}`), 0o644))
	w.Reload()
	assert.Equal(t, float32(9), store.Load().Curl)
	assert.Equal(t, 1, reloaded)
}
