package fluid

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	"fluidsim/core"
	"fluidsim/gpu"
)

// Snapshot reads a surface back and converts it to 8-bit RGBA, top row
// first. Channels are clamped to [0,1]; alpha is forced opaque.
func Snapshot(dev gpu.Device, s *Surface) (*image.RGBA, error) {
	px, err := dev.ReadPixels(s.Target())
	if err != nil {
		return nil, fmt.Errorf("read back %dx%d surface: %w", s.Width, s.Height, err)
	}
	if len(px) < s.Width*s.Height*4 {
		return nil, fmt.Errorf("read back: got %d values for %dx%d", len(px), s.Width, s.Height)
	}

	img := image.NewRGBA(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		row := (s.Height - 1 - y) * s.Width * 4
		for x := 0; x < s.Width; x++ {
			i := row + x*4
			img.SetRGBA(x, y, color.RGBA{
				R: core.Unorm8(px[i]),
				G: core.Unorm8(px[i+1]),
				B: core.Unorm8(px[i+2]),
				A: 255,
			})
		}
	}
	return img, nil
}

// Capture writes the dye field as a PNG whose shorter side is res pixels.
func (p *Pipeline) Capture(w io.Writer, res int) error {
	if err := p.ready(); err != nil {
		return err
	}
	src, err := Snapshot(p.dev, p.dye.Read())
	if err != nil {
		return err
	}

	cw, ch := core.Resolution(res, src.Bounds().Dx(), src.Bounds().Dy())
	dst := image.NewRGBA(image.Rect(0, 0, cw, ch))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	if err := png.Encode(w, dst); err != nil {
		return fmt.Errorf("encode capture: %w", err)
	}
	return nil
}
