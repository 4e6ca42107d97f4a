package core

import (
	"image"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatSVG     Format = "svg"
	FormatPSD     Format = "psd"
	FormatRAW     Format = "raw"
	FormatHEIF    Format = "heif"
	FormatAVIF    Format = "avif"
	FormatJP2     Format = "jp2"
	FormatJXL     Format = "jxl"
	FormatPDF     Format = "pdf"
	FormatUnknown Format = "unknown"
)

// IsVector reports whether sources of this format are rasterized at a
// caller-chosen resolution rather than decoded at a native size.
func (f Format) IsVector() bool { return f == FormatSVG || f == FormatPDF }

// ColorSpace represents the colour model of the source before normalization.
type ColorSpace string

const (
	ColorSpaceRGB     ColorSpace = "rgb"
	ColorSpaceRGBA    ColorSpace = "rgba"
	ColorSpaceCMYK    ColorSpace = "cmyk"
	ColorSpaceGray    ColorSpace = "gray"
	ColorSpaceYCbCr   ColorSpace = "ycbcr"
	ColorSpacePalette ColorSpace = "palette"
)

// Metadata describes a decoded image.  Orientation has already been applied
// to the pixels, so no orientation field is kept.
type Metadata struct {
	Width      int
	Height     int
	Format     Format
	ColorSpace ColorSpace
	HasAlpha   bool
	EXIF       map[string]string // nil when absent
	LoopCount  int               // GIF semantics: 0 loops forever, -1 plays once
	SourceSize int64             // encoded size in bytes
}

// Frame is one canonical raster plus how long it stays on screen.  Delay is
// zero for still images.
type Frame struct {
	Image *image.NRGBA
	Delay time.Duration
}

// DecodedImage is the canonical in-memory representation every decoder
// converges to: 8-bit non-premultiplied RGBA frames with orientation applied.
// Once inserted into the frame cache it is shared read-only; callers must not
// mutate the pixel buffers.
type DecodedImage struct {
	Frames []Frame
	Meta   Metadata
}

// Base returns the first frame's raster.
func (d *DecodedImage) Base() *image.NRGBA {
	if d == nil || len(d.Frames) == 0 {
		return nil
	}
	return d.Frames[0].Image
}

// Animated reports whether the image has more than one frame.
func (d *DecodedImage) Animated() bool { return d != nil && len(d.Frames) > 1 }

// Delays returns the per-frame display durations.
func (d *DecodedImage) Delays() []time.Duration {
	out := make([]time.Duration, len(d.Frames))
	for i, f := range d.Frames {
		out[i] = f.Delay
	}
	return out
}

// Weight is the byte size used for cache accounting.
func (d *DecodedImage) Weight() int64 {
	if d == nil {
		return 0
	}
	var w int64
	for _, f := range d.Frames {
		if f.Image == nil {
			continue
		}
		b := f.Image.Bounds()
		w += int64(b.Dx()) * int64(b.Dy()) * 4
	}
	return w
}

// RawFrame is a decoder's un-normalized output for one frame.
type RawFrame struct {
	Image image.Image
	Delay time.Duration
}

// RawImage is what a Decoder returns.  The registry converts it into a
// DecodedImage, applying Orientation on the way.
type RawImage struct {
	Frames      []RawFrame
	Format      Format
	ColorSpace  ColorSpace
	Orientation int // EXIF orientation tag (1-8); 0 or 1 means upright
	EXIF        map[string]string
	LoopCount   int
}

// DecodeOptions carries caller context into a decoder.
type DecodeOptions struct {
	// Target is the rasterization size for vector formats.  Raster decoders
	// ignore it.
	Target image.Point

	// GIF-style frame delays at or below MinFrameDelay are replaced with
	// DefaultFrameDelay.
	MinFrameDelay     time.Duration
	DefaultFrameDelay time.Duration
}

// FrameDelay applies the minimum-delay rule to d.
func (o DecodeOptions) FrameDelay(d time.Duration) time.Duration {
	if d <= o.MinFrameDelay && o.DefaultFrameDelay > 0 {
		return o.DefaultFrameDelay
	}
	return d
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality   int  // 1-100; 0 = use encoder default
	Lossless  bool // WebP lossless mode
	LoopCount int  // animated GIF loop count, GIF semantics
}
