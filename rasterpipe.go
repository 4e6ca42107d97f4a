// Package rasterpipe is the entry point of the decode, cache and edit
// pipeline behind an image viewer.  A Coordinator owns the current image:
// it schedules decodes, keeps decoded frames in a bounded cache, tracks the
// undoable edit history and animation position, and reports what to display
// through an event stream.
package rasterpipe

import (
	"image"
	"time"

	"github.com/Skryldev/rasterpipe/config"
	"github.com/Skryldev/rasterpipe/core"
	"github.com/Skryldev/rasterpipe/pipeline"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	GIF  = core.FormatGIF
	WebP = core.FormatWebP
	TIFF = core.FormatTIFF
	BMP  = core.FormatBMP
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// ── Options ───────────────────────────────────────────────────────────────────

// Option configures a Coordinator at construction time.
type Option func(*options)

type options struct {
	logger   core.Logger
	metrics  core.MetricsCollector
	hooks    []core.Hook
	decoders []extraDecoder
	encoders map[core.Format]core.Encoder
	now      func() time.Time
}

type extraDecoder struct {
	dec      core.Decoder
	priority int
}

// WithLogger attaches a structured logger to every component.
func WithLogger(l core.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics attaches a metrics collector.
func WithMetrics(m core.MetricsCollector) Option { return func(o *options) { o.metrics = m } }

// WithHook registers an observer for decode, edit and export steps.
func WithHook(h core.Hook) Option { return func(o *options) { o.hooks = append(o.hooks, h) } }

// WithDecoder registers an additional decoder.  Built-in decoders use
// decoder.PriorityNative; register above it to take precedence.
func WithDecoder(d core.Decoder, priority int) Option {
	return func(o *options) { o.decoders = append(o.decoders, extraDecoder{dec: d, priority: priority}) }
}

// WithEncoder registers or replaces the export encoder for f.
func WithEncoder(f core.Format, e core.Encoder) Option {
	return func(o *options) {
		if o.encoders == nil {
			o.encoders = make(map[core.Format]core.Encoder)
		}
		o.encoders[f] = e
	}
}

// WithClock overrides the clock used for edit coalescing.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// ── Source constructors ────────────────────────────────────────────────────────

// FromFile creates a source for a file on disk.  The format is sniffed from
// the content; the extension only breaks ties.
func FromFile(path string) (core.ImageSource, error) { return core.NewFileSource(path, "") }

// FromBytes creates a source for a clipboard or drag-and-drop payload.  hint
// may be a MIME type, file name or extension, or empty.
func FromBytes(data []byte, hint string) core.ImageSource { return core.NewBytesSource(data, hint) }

// FromImage creates a source for pixels that are already decoded.
func FromImage(img image.Image) core.ImageSource { return core.NewRasterSource(img) }

// ── Edit constructors ─────────────────────────────────────────────────────────

// Crop returns a crop to the given rectangle of the current raster.
func Crop(x, y, width, height int) pipeline.Operation {
	return pipeline.Crop{Rect: image.Rect(x, y, x+width, y+height)}
}

// Rotate returns a rotation by quarter turns; positive is clockwise.
func Rotate(turns int) pipeline.Operation { return pipeline.Rotate{Turns: turns} }

// Resize returns a Lanczos resize.  Pass 0 for one axis to preserve aspect ratio.
func Resize(width, height int) pipeline.Operation {
	return pipeline.Resize{Width: width, Height: height}
}

// Brightness returns a brightness change in [-1, 1].
func Brightness(amount float64) pipeline.Operation { return pipeline.Brightness{Amount: amount} }

// Grayscale returns a desaturating edit.
func Grayscale() pipeline.Operation { return pipeline.Grayscale{} }

// FlipHorizontal mirrors the raster left to right.
func FlipHorizontal() pipeline.Operation { return pipeline.FlipH{} }

// FlipVertical mirrors the raster top to bottom.
func FlipVertical() pipeline.Operation { return pipeline.FlipV{} }
