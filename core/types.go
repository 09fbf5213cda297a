package core

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Channels is the number of color channels stored per texel
type Channels int

const (
	R    Channels = 1
	RG   Channels = 2
	RGBA Channels = 4
)

func (c Channels) String() string {
	switch c {
	case R:
		return "R"
	case RG:
		return "RG"
	case RGBA:
		return "RGBA"
	default:
		return fmt.Sprintf("Channels(%d)", int(c))
	}
}

// Precision is the storage type of a single channel
type Precision int

const (
	PrecisionByte Precision = iota
	PrecisionHalf
	PrecisionFloat
)

func (p Precision) String() string {
	switch p {
	case PrecisionByte:
		return "byte"
	case PrecisionHalf:
		return "half"
	case PrecisionFloat:
		return "float"
	default:
		return fmt.Sprintf("Precision(%d)", int(p))
	}
}

// Format describes the texel layout of a surface
type Format struct {
	Channels  Channels
	Precision Precision
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%s", f.Channels, f.Precision)
}

// Filter is the sampling mode used when a surface is read
type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

func (f Filter) String() string {
	if f == FilterLinear {
		return "linear"
	}
	return "nearest"
}

// Capabilities is what the graphics context reported at startup.
// Formats are already resolved through the fallback chain, so FormatR may
// in fact be an RG or RGBA format on limited hardware.
type Capabilities struct {
	LinearFiltering bool
	FormatRGBA      Format
	FormatRG        Format
	FormatR         Format
	TexelType       Precision
}

// Filter returns the filter mode for fields that are sampled between texels.
func (c Capabilities) Filter() Filter {
	if c.LinearFiltering {
		return FilterLinear
	}
	return FilterNearest
}

// SplatEvent is a single impulse injected into the velocity and dye fields.
// X and Y are normalized to [0,1] with the origin at the bottom left.
type SplatEvent struct {
	X, Y float32

	// Force is the velocity impulse. A zero vector makes a radial burst
	// whose strength comes from the configured splat force.
	Force mgl32.Vec2

	// Volume is the amount of dye deposited
	Volume float32

	// Radius is the gaussian falloff denominator in normalized units
	Radius float32

	// Color overrides the generated dye color in colorful mode
	Color *mgl32.Vec3
}

// IsRadial reports whether the splat pushes outward from its center.
func (e SplatEvent) IsRadial() bool {
	return e.Force[0] == 0 && e.Force[1] == 0
}
