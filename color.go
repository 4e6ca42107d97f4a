package rasterpipe

import (
	"fmt"
	"image"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"

	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// ColorSample describes one pixel of the edited visible frame.
type ColorSample struct {
	X, Y  int
	RGBA  color.NRGBA
	Hex   string     // #rrggbb, alpha ignored
	HSL   [3]float64 // hue in degrees, saturation and lightness in [0, 1]
	HSV   [3]float64
	Lab   [3]float64 // CIE L*a*b*, D65
	Alpha float64    // [0, 1]
}

// SampleColor reads the pixel at (x, y) of what Current would show.
func (c *Coordinator) SampleColor(x, y int) (ColorSample, error) {
	c.mu.Lock()
	if c.cur == nil {
		c.mu.Unlock()
		return ColorSample{}, apperrors.New(apperrors.CategoryInput, "coordinator.color", apperrors.ErrNoImage)
	}
	img := c.cur.hist.Current(c.cur.anim.CurrentFrame())
	c.mu.Unlock()

	if !image.Pt(x, y).In(img.Rect) {
		return ColorSample{}, apperrors.Validation("coordinator.color",
			"point (%d,%d) outside %dx%d image", x, y, img.Rect.Dx(), img.Rect.Dy())
	}
	return sample(img, x, y), nil
}

func sample(img *image.NRGBA, x, y int) ColorSample {
	px := img.NRGBAAt(x, y)
	col := colorful.Color{R: float64(px.R) / 255, G: float64(px.G) / 255, B: float64(px.B) / 255}
	s := ColorSample{X: x, Y: y, RGBA: px, Hex: col.Hex(), Alpha: float64(px.A) / 255}
	s.HSL[0], s.HSL[1], s.HSL[2] = col.Hsl()
	s.HSV[0], s.HSV[1], s.HSV[2] = col.Hsv()
	s.Lab[0], s.Lab[1], s.Lab[2] = col.Lab()
	return s
}

func (s ColorSample) String() string {
	return fmt.Sprintf("%s hsl(%.0f, %.0f%%, %.0f%%) at (%d,%d)", s.Hex, s.HSL[0], s.HSL[1]*100, s.HSL[2]*100, s.X, s.Y)
}
