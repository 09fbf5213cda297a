package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid value")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Settings struct {
	Simulation SimulationConfig `json:"simulation" toml:"simulation" yaml:"simulation"`
	Window     WindowSettings   `json:"window" toml:"window" yaml:"window"`
	Server     ServerSettings   `json:"server" toml:"server" yaml:"server"`
	Log        LogSettings      `json:"log" toml:"log" yaml:"log"`
}

// Color is an 8-bit RGB triple stored as floats, as the display shader takes it.
type Color struct {
	R float32 `json:"r" toml:"r" yaml:"r"`
	G float32 `json:"g" toml:"g" yaml:"g"`
	B float32 `json:"b" toml:"b" yaml:"b"`
}

// SimulationConfig holds every tunable the solver and display read.
type SimulationConfig struct {
	SimResolution     int `json:"simResolution" toml:"simResolution" yaml:"simResolution"`
	DyeResolution     int `json:"dyeResolution" toml:"dyeResolution" yaml:"dyeResolution"`
	CaptureResolution int `json:"captureResolution" toml:"captureResolution" yaml:"captureResolution"`

	DensityDissipation  float32 `json:"densityDissipation" toml:"densityDissipation" yaml:"densityDissipation"`
	VelocityDissipation float32 `json:"velocityDissipation" toml:"velocityDissipation" yaml:"velocityDissipation"`
	Pressure            float32 `json:"pressure" toml:"pressure" yaml:"pressure"`
	PressureIterations  int     `json:"pressureIterations" toml:"pressureIterations" yaml:"pressureIterations"`
	Curl                float32 `json:"curl" toml:"curl" yaml:"curl"`

	RadiusMin   float32 `json:"radiusMin" toml:"radiusMin" yaml:"radiusMin"`
	RadiusRange float32 `json:"radiusRange" toml:"radiusRange" yaml:"radiusRange"`
	SplatForce  float32 `json:"splatForce" toml:"splatForce" yaml:"splatForce"`
	SplatBias   float32 `json:"splatBias" toml:"splatBias" yaml:"splatBias"` // splat volume
	BrownBias   float32 `json:"brownBias" toml:"brownBias" yaml:"brownBias"`
	Frequency   float32 `json:"frequency" toml:"frequency" yaml:"frequency"`

	Colorful    bool    `json:"colorful" toml:"colorful" yaml:"colorful"`
	Shading     bool    `json:"shading" toml:"shading" yaml:"shading"`
	Reversed    bool    `json:"reversed" toml:"reversed" yaml:"reversed"`
	Paused      bool    `json:"paused" toml:"paused" yaml:"paused"`
	BackColor   Color   `json:"backColor" toml:"backColor" yaml:"backColor"`
	Background  float32 `json:"background" toml:"background" yaml:"background"`
	Transparent bool    `json:"transparent" toml:"transparent" yaml:"transparent"`
}

type WindowSettings struct {
	Width  int    `json:"width" toml:"width" yaml:"width"`
	Height int    `json:"height" toml:"height" yaml:"height"`
	Title  string `json:"title" toml:"title" yaml:"title"`
	VSync  bool   `json:"vsync" toml:"vsync" yaml:"vsync"`
}

type ServerSettings struct {
	Addr            string `json:"addr" toml:"addr" yaml:"addr"`
	StatsIntervalMs int    `json:"statsIntervalMs" toml:"statsIntervalMs" yaml:"statsIntervalMs"`
}

type LogSettings struct {
	Level    string `json:"level" toml:"level" yaml:"level"`
	Encoding string `json:"encoding" toml:"encoding" yaml:"encoding"`
}

// DefaultSimulation returns the stock tuning.
func DefaultSimulation() SimulationConfig {
	return SimulationConfig{
		SimResolution:       256,
		DyeResolution:       1024,
		CaptureResolution:   512,
		DensityDissipation:  0.6,
		VelocityDissipation: 0.4,
		Pressure:            0.1,
		PressureIterations:  10,
		Curl:                3,
		RadiusMin:           0.005,
		RadiusRange:         0.03,
		SplatForce:          800,
		SplatBias:           20,
		BrownBias:           5.5,
		Frequency:           0.12,
		BackColor:           Color{0, 0, 0},
		Background:          0.02,
	}
}

// Defaults returns settings used when no file is given.
func Defaults() Settings {
	return Settings{
		Simulation: DefaultSimulation(),
		Window: WindowSettings{
			Width:  1280,
			Height: 720,
			Title:  "fluidsim",
			VSync:  true,
		},
		Server: ServerSettings{
			Addr:            "127.0.0.1:8080",
			StatsIntervalMs: 1000,
		},
		Log: LogSettings{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Validate rejects values the solver cannot run with.
func (c *SimulationConfig) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"simResolution", c.SimResolution},
		{"dyeResolution", c.DyeResolution},
		{"captureResolution", c.CaptureResolution},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, p.name, p.v)
		}
	}
	if c.PressureIterations < 0 {
		return fmt.Errorf("%w: pressureIterations must not be negative, got %d", ErrInvalid, c.PressureIterations)
	}

	nonNegative := []struct {
		name string
		v    float32
	}{
		{"densityDissipation", c.DensityDissipation},
		{"velocityDissipation", c.VelocityDissipation},
		{"pressure", c.Pressure},
		{"curl", c.Curl},
		{"radiusMin", c.RadiusMin},
		{"radiusRange", c.RadiusRange},
		{"splatForce", c.SplatForce},
		{"splatBias", c.SplatBias},
		{"brownBias", c.BrownBias},
		{"frequency", c.Frequency},
		{"background", c.Background},
	}
	for _, n := range nonNegative {
		f := float64(n.v)
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return fmt.Errorf("%w: %s must be finite and non-negative, got %v", ErrInvalid, n.name, n.v)
		}
	}
	if c.Frequency > 1 {
		return fmt.Errorf("%w: frequency must be at most 1, got %v", ErrInvalid, c.Frequency)
	}

	for _, ch := range []float32{c.BackColor.R, c.BackColor.G, c.BackColor.B} {
		if ch < 0 || ch > 255 {
			return fmt.Errorf("%w: backColor channels must be within 0..255, got %v", ErrInvalid, c.BackColor)
		}
	}
	return nil
}

func (s *Settings) Validate() error {
	if err := s.Simulation.Validate(); err != nil {
		return err
	}
	if s.Window.Width <= 0 || s.Window.Height <= 0 {
		return fmt.Errorf("%w: window %dx%d", ErrInvalid, s.Window.Width, s.Window.Height)
	}
	if s.Server.StatsIntervalMs < 0 {
		return fmt.Errorf("%w: statsIntervalMs must not be negative", ErrInvalid)
	}
	return nil
}

// Load reads settings from path over the defaults. The format follows the
// extension: .json, .toml, .yaml or .yml.
func Load(path string) (Settings, error) {
	s := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := Decode(path, data, &s); err != nil {
		return s, err
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Decode unmarshals data into s using the format implied by name.
func Decode(name string, data []byte, s *Settings) error {
	var err error
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".json":
		err = json.Unmarshal(data, s)
	case ".toml":
		err = toml.Unmarshal(data, s)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, s)
	default:
		return fmt.Errorf("config: unsupported file type %q", ext)
	}
	if err != nil {
		return fmt.Errorf("error parsing %s: %w", name, err)
	}
	return nil
}
