package fluid

import (
	"fmt"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"fluidsim/gpu"
	"fluidsim/metrics"
)

// Material is a shader source with lazily compiled variants, one per set of
// feature flags. Variants are cached for the life of the material.
type Material struct {
	dev gpu.Device
	src gpu.Source
	log *zap.Logger

	variants  map[string]gpu.Program
	active    gpu.Program
	activeKey string

	passes prometheus.Counter
}

func NewMaterial(dev gpu.Device, src gpu.Source, log *zap.Logger) *Material {
	if log == nil {
		log = zap.NewNop()
	}
	return &Material{
		dev:      dev,
		src:      src,
		log:      log,
		variants: make(map[string]gpu.Program),
		passes:   metrics.Passes.WithLabelValues(src.Name),
	}
}

// variantKey returns the sorted, de-duplicated flag set and its cache key.
// Flags are preprocessor identifiers, so "|" cannot appear inside one.
func variantKey(flags []string) (string, []string) {
	set := slices.Clone(flags)
	slices.Sort(set)
	set = slices.Compact(set)
	return strings.Join(set, "|"), set
}

// SetFeatureFlags makes the variant for flags active, compiling it on first
// use. Selecting the active set again does nothing.
func (m *Material) SetFeatureFlags(flags ...string) error {
	key, set := variantKey(flags)
	if m.active != nil && key == m.activeKey {
		return nil
	}

	p, ok := m.variants[key]
	if !ok {
		var err error
		p, err = m.dev.Compile(m.src, set)
		if err != nil {
			return fmt.Errorf("program %s [%s]: %w", m.src.Name, key, err)
		}
		m.variants[key] = p
		metrics.Compilations.WithLabelValues(m.src.Name).Inc()
		m.log.Debug("compiled program variant",
			zap.String("program", m.src.Name),
			zap.Strings("flags", set))
	}

	m.active = p
	m.activeKey = key
	return nil
}

// Bind makes the active variant current on the device.
func (m *Material) Bind() { m.dev.UseProgram(m.active) }

// Draw runs the bound variant into target.
func (m *Material) Draw(target gpu.Texture) {
	m.dev.Draw(target)
	m.passes.Inc()
}

func (m *Material) Name() string { return m.src.Name }

// Flags returns the active flag set.
func (m *Material) Flags() []string {
	if m.active == nil {
		return nil
	}
	return m.active.Defines()
}

// Variants is the number of compiled variants.
func (m *Material) Variants() int { return len(m.variants) }

func (m *Material) Release() {
	for key, p := range m.variants {
		p.Release()
		delete(m.variants, key)
	}
	m.active = nil
	m.activeKey = ""
}

// Program is a material pinned to one flag set at construction.
type Program struct {
	m *Material
}

func NewProgram(dev gpu.Device, src gpu.Source, log *zap.Logger, flags ...string) (*Program, error) {
	m := NewMaterial(dev, src, log)
	if err := m.SetFeatureFlags(flags...); err != nil {
		return nil, err
	}
	return &Program{m: m}, nil
}

func (p *Program) Bind()                   { p.m.Bind() }
func (p *Program) Draw(target gpu.Texture) { p.m.Draw(target) }
func (p *Program) Name() string            { return p.m.Name() }
func (p *Program) Flags() []string         { return p.m.Flags() }
func (p *Program) Release()                { p.m.Release() }
