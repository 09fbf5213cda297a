package core

import "math"

// Resolution converts a configured grid resolution into grid dimensions that
// follow the aspect ratio of the drawing buffer. The shorter side gets exactly
// res cells and the axis with the larger pixel extent gets res*aspect.
func Resolution(res, drawWidth, drawHeight int) (width, height int) {
	if drawWidth <= 0 || drawHeight <= 0 {
		n := int(math.Round(float64(res)))
		return n, n
	}

	aspect := float64(drawWidth) / float64(drawHeight)
	if aspect < 1 {
		aspect = 1 / aspect
	}

	lo := int(math.Round(float64(res)))
	hi := int(math.Round(float64(res) * aspect))

	if drawWidth > drawHeight {
		return hi, lo
	}
	return lo, hi
}
