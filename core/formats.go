package core

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoRenderableFormat is returned when not even the widest format can be
// rendered to. Nothing can be simulated without it.
var ErrNoRenderableFormat = errors.New("core: no renderable texture format")

// FormatProbe reports whether a format can be used as a render target.
type FormatProbe func(Format) bool

// ResolveFormat finds the narrowest renderable format at least as wide as want.
// The chain is R -> RG -> RGBA at the same precision.
func ResolveFormat(want Format, probe FormatProbe) (Format, error) {
	f := want
	for {
		if probe(f) {
			return f, nil
		}
		switch f.Channels {
		case R:
			f.Channels = RG
		case RG:
			f.Channels = RGBA
		default:
			return Format{}, fmt.Errorf("%w: %s", ErrNoRenderableFormat, want)
		}
	}
}

// NegotiateCapabilities resolves all three channel tiers for the given texel
// type. It runs once at startup; the result never changes afterwards.
func NegotiateCapabilities(linear bool, texel Precision, probe FormatProbe) (Capabilities, error) {
	caps := Capabilities{
		LinearFiltering: linear,
		TexelType:       texel,
	}

	var err error
	if caps.FormatRGBA, err = ResolveFormat(Format{RGBA, texel}, probe); err != nil {
		return Capabilities{}, err
	}
	if caps.FormatRG, err = ResolveFormat(Format{RG, texel}, probe); err != nil {
		return Capabilities{}, err
	}
	if caps.FormatR, err = ResolveFormat(Format{R, texel}, probe); err != nil {
		return Capabilities{}, err
	}
	return caps, nil
}

// Unorm8 converts a normalized channel value to 8 bits, rounding to nearest.
// Values outside [0,1] are clamped and NaN maps to zero.
func Unorm8(v float32) uint8 {
	if v <= 0 || v != v {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(float64(v) * 255))
}
