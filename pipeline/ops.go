// Package pipeline holds the edit operations and the undoable history that
// turns a decoded base raster into the currently visible one.
package pipeline

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/utils"
)

// MaxDimension bounds the output size of Resize.
const MaxDimension = 1 << 15

// Kind names an operation variant.
type Kind string

const (
	KindCrop        Kind = "crop"
	KindRotate      Kind = "rotate"
	KindFlipH       Kind = "flip_h"
	KindFlipV       Kind = "flip_v"
	KindResize      Kind = "resize"
	KindColorAdjust Kind = "color_adjust"
	KindBrightness  Kind = "brightness"
	KindContrast    Kind = "contrast"
	KindSaturation  Kind = "saturation"
	KindGamma       Kind = "gamma"
	KindHue         Kind = "hue"
	KindGrayscale   Kind = "grayscale"
	KindInvert      Kind = "invert"
	KindSepia       Kind = "sepia"
	KindBlur        Kind = "blur"
	KindSharpen     Kind = "sharpen"
)

// Operation is one immutable edit.  Apply must be deterministic and must not
// modify its input.
type Operation interface {
	Kind() Kind
	// Validate checks the parameters against the size of the raster the
	// operation would be applied to.
	Validate(size image.Point) error
	// OutputSize returns the raster size after the operation.
	OutputSize(size image.Point) image.Point
	Apply(img *image.NRGBA) *image.NRGBA
}

// Invertible operations can be undone by applying Inverse to their output,
// with a bit-exact result.
type Invertible interface {
	Operation
	Inverse() Operation
}

// Adjustable operations are continuous controls.  Merge folds a later value
// of the same kind into one history entry.
type Adjustable interface {
	Operation
	Merge(next Operation) (Operation, bool)
}

func invalid(kind Kind, format string, args ...interface{}) error {
	return apperrors.Validation("edit."+string(kind), format, args...)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func inRange(v, lo, hi float64) bool { return finite(v) && v >= lo && v <= hi }

// perPixel runs a bild colour filter on the straight-alpha colours of img.
// bild works on premultiplied RGBA, so the filter sees an opaque copy and the
// source alpha is put back afterwards.
func perPixel(img *image.NRGBA, filter func(image.Image) *image.RGBA) *image.NRGBA {
	src := img
	if !img.Opaque() {
		src = image.NewNRGBA(img.Rect)
		copy(src.Pix, img.Pix)
		for i := 3; i < len(src.Pix); i += 4 {
			src.Pix[i] = 0xff
		}
	}
	out := imaging.Clone(filter(src))
	if src != img {
		for i := 3; i < len(out.Pix); i += 4 {
			out.Pix[i] = img.Pix[i]
		}
	}
	return out
}

// ── Geometry ──────────────────────────────────────────────────────────────────

// Crop keeps Rect, which must lie inside the image.
type Crop struct {
	Rect image.Rectangle
}

func (o Crop) Kind() Kind { return KindCrop }

func (o Crop) Validate(size image.Point) error {
	if o.Rect.Empty() {
		return invalid(KindCrop, "crop rect %v is empty", o.Rect)
	}
	if !o.Rect.In(image.Rectangle{Max: size}) {
		return invalid(KindCrop, "crop rect %v exceeds image bounds %v", o.Rect, size)
	}
	return nil
}

func (o Crop) OutputSize(image.Point) image.Point { return o.Rect.Size() }

func (o Crop) Apply(img *image.NRGBA) *image.NRGBA { return imaging.Crop(img, o.Rect) }

// Rotate turns the image by quarter turns; positive is clockwise.
type Rotate struct {
	Turns int
}

func (o Rotate) Kind() Kind { return KindRotate }

func (o Rotate) quarter() int { return ((o.Turns % 4) + 4) % 4 }

func (o Rotate) Validate(image.Point) error {
	if o.quarter() == 0 {
		return invalid(KindRotate, "rotation by %d quarter turns is a no-op", o.Turns)
	}
	return nil
}

func (o Rotate) OutputSize(size image.Point) image.Point {
	if o.quarter()%2 == 1 {
		return image.Pt(size.Y, size.X)
	}
	return size
}

func (o Rotate) Apply(img *image.NRGBA) *image.NRGBA {
	// imaging rotates counter-clockwise.
	switch o.quarter() {
	case 1:
		return imaging.Rotate270(img)
	case 2:
		return imaging.Rotate180(img)
	case 3:
		return imaging.Rotate90(img)
	}
	return imaging.Clone(img)
}

func (o Rotate) Inverse() Operation { return Rotate{Turns: -o.Turns} }

// FlipH mirrors left to right.
type FlipH struct{}

func (FlipH) Kind() Kind { return KindFlipH }
func (FlipH) Validate(image.Point) error { return nil }
func (FlipH) OutputSize(size image.Point) image.Point { return size }
func (FlipH) Apply(img *image.NRGBA) *image.NRGBA { return imaging.FlipH(img) }
func (FlipH) Inverse() Operation { return FlipH{} }

// FlipV mirrors top to bottom.
type FlipV struct{}

func (FlipV) Kind() Kind { return KindFlipV }
func (FlipV) Validate(image.Point) error { return nil }
func (FlipV) OutputSize(size image.Point) image.Point { return size }
func (FlipV) Apply(img *image.NRGBA) *image.NRGBA { return imaging.FlipV(img) }
func (FlipV) Inverse() Operation { return FlipV{} }

// Filter names a resampling kernel.
type Filter string

const (
	FilterNearest  Filter = "nearest"
	FilterLinear   Filter = "linear"
	FilterCubic    Filter = "cubic"
	FilterGaussian Filter = "gaussian"
	FilterLanczos  Filter = "lanczos"
)

var filters = map[Filter]imaging.ResampleFilter{
	FilterNearest:  imaging.NearestNeighbor,
	FilterLinear:   imaging.Linear,
	FilterCubic:    imaging.CatmullRom,
	FilterGaussian: imaging.Gaussian,
	FilterLanczos:  imaging.Lanczos,
}

// Resize scales to Width x Height.  A zero axis is derived from the other to
// keep the aspect ratio.  An empty Filter means Lanczos.
type Resize struct {
	Width, Height int
	Filter        Filter
}

func (o Resize) Kind() Kind { return KindResize }

func (o Resize) filter() (imaging.ResampleFilter, bool) {
	if o.Filter == "" {
		return imaging.Lanczos, true
	}
	f, ok := filters[o.Filter]
	return f, ok
}

func (o Resize) Validate(size image.Point) error {
	if o.Width < 0 || o.Height < 0 || (o.Width == 0 && o.Height == 0) {
		return invalid(KindResize, "resize to %dx%d: %v", o.Width, o.Height, apperrors.ErrInvalidDimensions)
	}
	if _, ok := o.filter(); !ok {
		return invalid(KindResize, "unknown filter %q", o.Filter)
	}
	out := o.OutputSize(size)
	if out.X < 1 || out.Y < 1 || out.X > MaxDimension || out.Y > MaxDimension {
		return invalid(KindResize, "output size %v out of range: %v", out, apperrors.ErrInvalidDimensions)
	}
	return nil
}

func (o Resize) OutputSize(size image.Point) image.Point {
	w, h := utils.ScaleDimensions(size.X, size.Y, o.Width, o.Height)
	return image.Pt(w, h)
}

func (o Resize) Apply(img *image.NRGBA) *image.NRGBA {
	out := o.OutputSize(img.Rect.Size())
	f, _ := o.filter()
	return imaging.Resize(img, out.X, out.Y, f)
}

// ── Colour ────────────────────────────────────────────────────────────────────

// ColorAdjust shifts hue (degrees, -180..180) and scales saturation, lightness
// and contrast (each -1..1) in HSL space.
type ColorAdjust struct {
	Hue        float64
	Saturation float64
	Lightness  float64
	Contrast   float64
}

func (o ColorAdjust) Kind() Kind { return KindColorAdjust }

func (o ColorAdjust) Validate(image.Point) error {
	if !inRange(o.Hue, -180, 180) {
		return invalid(KindColorAdjust, "hue %v outside [-180, 180]", o.Hue)
	}
	if !inRange(o.Saturation, -1, 1) {
		return invalid(KindColorAdjust, "saturation %v outside [-1, 1]", o.Saturation)
	}
	if !inRange(o.Lightness, -1, 1) {
		return invalid(KindColorAdjust, "lightness %v outside [-1, 1]", o.Lightness)
	}
	if !inRange(o.Contrast, -1, 1) {
		return invalid(KindColorAdjust, "contrast %v outside [-1, 1]", o.Contrast)
	}
	return nil
}

func (o ColorAdjust) OutputSize(size image.Point) image.Point { return size }

func (o ColorAdjust) Apply(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Rect)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		c := colorful.Color{
			R: float64(img.Pix[i]) / 255,
			G: float64(img.Pix[i+1]) / 255,
			B: float64(img.Pix[i+2]) / 255,
		}
		h, s, l := c.Hsl()
		h = math.Mod(h+o.Hue+360, 360)
		s = clamp01(s * (1 + o.Saturation))
		l = clamp01(l + o.Lightness*0.5)
		c = colorful.Hsl(h, s, l).Clamped()
		c.R = clamp01((c.R-0.5)*(1+o.Contrast) + 0.5)
		c.G = clamp01((c.G-0.5)*(1+o.Contrast) + 0.5)
		c.B = clamp01((c.B-0.5)*(1+o.Contrast) + 0.5)
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c.RGB255()
		out.Pix[i+3] = img.Pix[i+3]
	}
	return out
}

func (o ColorAdjust) Merge(next Operation) (Operation, bool) {
	n, ok := next.(ColorAdjust)
	return n, ok
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Brightness changes lightness by Amount in -1..1.
type Brightness struct{ Amount float64 }

func (o Brightness) Kind() Kind { return KindBrightness }
func (o Brightness) Validate(image.Point) error {
	if !inRange(o.Amount, -1, 1) {
		return invalid(KindBrightness, "amount %v outside [-1, 1]", o.Amount)
	}
	return nil
}
func (o Brightness) OutputSize(size image.Point) image.Point { return size }
func (o Brightness) Apply(img *image.NRGBA) *image.NRGBA {
	return perPixel(img, func(src image.Image) *image.RGBA { return adjust.Brightness(src, o.Amount) })
}
func (o Brightness) Merge(next Operation) (Operation, bool) {
	n, ok := next.(Brightness)
	return n, ok
}

// Contrast changes contrast by Amount in -1..1.
type Contrast struct{ Amount float64 }

func (o Contrast) Kind() Kind { return KindContrast }
func (o Contrast) Validate(image.Point) error {
	if !inRange(o.Amount, -1, 1) {
		return invalid(KindContrast, "amount %v outside [-1, 1]", o.Amount)
	}
	return nil
}
func (o Contrast) OutputSize(size image.Point) image.Point { return size }
func (o Contrast) Apply(img *image.NRGBA) *image.NRGBA {
	return perPixel(img, func(src image.Image) *image.RGBA { return adjust.Contrast(src, o.Amount) })
}
func (o Contrast) Merge(next Operation) (Operation, bool) {
	n, ok := next.(Contrast)
	return n, ok
}

// Saturation scales saturation by 1+Amount, Amount in -1..1.
type Saturation struct{ Amount float64 }

func (o Saturation) Kind() Kind { return KindSaturation }
func (o Saturation) Validate(image.Point) error {
	if !inRange(o.Amount, -1, 1) {
		return invalid(KindSaturation, "amount %v outside [-1, 1]", o.Amount)
	}
	return nil
}
func (o Saturation) OutputSize(size image.Point) image.Point { return size }
func (o Saturation) Apply(img *image.NRGBA) *image.NRGBA {
	return perPixel(img, func(src image.Image) *image.RGBA { return adjust.Saturation(src, o.Amount) })
}
func (o Saturation) Merge(next Operation) (Operation, bool) {
	n, ok := next.(Saturation)
	return n, ok
}

// Gamma applies gamma correction; 1 is the identity.
type Gamma struct{ Value float64 }

func (o Gamma) Kind() Kind { return KindGamma }
func (o Gamma) Validate(image.Point) error {
	if !finite(o.Value) || o.Value <= 0 || o.Value > 10 {
		return invalid(KindGamma, "gamma %v outside (0, 10]", o.Value)
	}
	return nil
}
func (o Gamma) OutputSize(size image.Point) image.Point { return size }
func (o Gamma) Apply(img *image.NRGBA) *image.NRGBA {
	return perPixel(img, func(src image.Image) *image.RGBA { return adjust.Gamma(src, o.Value) })
}
func (o Gamma) Merge(next Operation) (Operation, bool) {
	n, ok := next.(Gamma)
	return n, ok
}

// Hue rotates the hue angle by Degrees in -360..360.
type Hue struct{ Degrees int }

func (o Hue) Kind() Kind { return KindHue }
func (o Hue) Validate(image.Point) error {
	if o.Degrees < -360 || o.Degrees > 360 {
		return invalid(KindHue, "degrees %d outside [-360, 360]", o.Degrees)
	}
	return nil
}
func (o Hue) OutputSize(size image.Point) image.Point { return size }
func (o Hue) Apply(img *image.NRGBA) *image.NRGBA {
	// bild expects a non-negative shift for a well-defined modulo.
	return perPixel(img, func(src image.Image) *image.RGBA { return adjust.Hue(src, (o.Degrees+360)%360) })
}
func (o Hue) Merge(next Operation) (Operation, bool) {
	n, ok := next.(Hue)
	return n, ok
}

// ── Effects ───────────────────────────────────────────────────────────────────

type Grayscale struct{}

func (Grayscale) Kind() Kind { return KindGrayscale }
func (Grayscale) Validate(image.Point) error { return nil }
func (Grayscale) OutputSize(size image.Point) image.Point { return size }
func (Grayscale) Apply(img *image.NRGBA) *image.NRGBA { return perPixel(img, effect.Grayscale) }

type Invert struct{}

func (Invert) Kind() Kind { return KindInvert }
func (Invert) Validate(image.Point) error { return nil }
func (Invert) OutputSize(size image.Point) image.Point { return size }
func (Invert) Apply(img *image.NRGBA) *image.NRGBA { return perPixel(img, effect.Invert) }
func (Invert) Inverse() Operation { return Invert{} }

type Sepia struct{}

func (Sepia) Kind() Kind { return KindSepia }
func (Sepia) Validate(image.Point) error { return nil }
func (Sepia) OutputSize(size image.Point) image.Point { return size }
func (Sepia) Apply(img *image.NRGBA) *image.NRGBA { return perPixel(img, effect.Sepia) }

// Blur applies a gaussian blur with the given sigma.
type Blur struct{ Sigma float64 }

func (o Blur) Kind() Kind { return KindBlur }
func (o Blur) Validate(image.Point) error {
	if !finite(o.Sigma) || o.Sigma <= 0 || o.Sigma > 100 {
		return invalid(KindBlur, "sigma %v outside (0, 100]", o.Sigma)
	}
	return nil
}
func (o Blur) OutputSize(size image.Point) image.Point { return size }
func (o Blur) Apply(img *image.NRGBA) *image.NRGBA { return imaging.Blur(img, o.Sigma) }

// Sharpen applies an unsharp mask with the given sigma.
type Sharpen struct{ Sigma float64 }

func (o Sharpen) Kind() Kind { return KindSharpen }
func (o Sharpen) Validate(image.Point) error {
	if !finite(o.Sigma) || o.Sigma <= 0 || o.Sigma > 100 {
		return invalid(KindSharpen, "sigma %v outside (0, 100]", o.Sigma)
	}
	return nil
}
func (o Sharpen) OutputSize(size image.Point) image.Point { return size }
func (o Sharpen) Apply(img *image.NRGBA) *image.NRGBA { return imaging.Sharpen(img, o.Sigma) }

// Describe renders op for logs.
func Describe(op Operation) string {
	return fmt.Sprintf("%s%+v", op.Kind(), op)
}
