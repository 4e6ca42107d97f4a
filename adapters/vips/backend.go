// Package vips adapts libvips (via govips) for formats with no pure-Go codec.
package vips

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend decodes HEIF, AVIF, JPEG 2000, JPEG XL and PDF through libvips and
// encodes WebP.  Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 85
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) Name() string { return "vips" }

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatHEIF, core.FormatAVIF, core.FormatJP2, core.FormatJXL, core.FormatPDF,
		core.FormatSVG, core.FormatWebP, core.FormatTIFF:
		return true
	}
	return false
}

// Decode loads the first page or frame, applies the EXIF orientation inside
// libvips and hands the pixels over as PNG, which the standard library reads
// losslessly.
func (b *Backend) Decode(ctx context.Context, r io.Reader, _ core.DecodeOptions) (*core.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.DecodeFailure("vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Decode(apperrors.KindCorrupt, "vips.decode", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, apperrors.Decode(apperrors.KindCorrupt, "vips.decode.autorotate", err)
	}
	space := interpretation(ref.Interpretation())

	out, _, err := ref.ExportPng(govips.NewPngExportParams())
	if err != nil {
		return nil, apperrors.Decode(apperrors.KindColorSpace, "vips.decode.export", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, apperrors.DecodeFailure("vips.decode.png", err)
	}

	return &core.RawImage{
		Frames:      []core.RawFrame{{Image: img}},
		Format:      core.Format(utils.DetectFormat(raw)),
		ColorSpace:  space,
		Orientation: 1,
	}, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanEncode(f core.Format) bool { return f == core.FormatWebP }

// Encode writes the first frame as WebP.
func (b *Backend) Encode(ctx context.Context, w io.Writer, frames []core.Frame, opts core.EncodeOptions) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "vips.encode", err)
	}
	if len(frames) == 0 || frames[0].Image == nil {
		return apperrors.New(apperrors.CategoryEncode, "vips.encode", apperrors.ErrEmptyInput)
	}

	var staged bytes.Buffer
	if err := imaging.Encode(&staged, frames[0].Image, imaging.PNG, imaging.PNGCompressionLevel(png.NoCompression)); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.stage", err)
	}
	ref, err := govips.NewImageFromBuffer(staged.Bytes())
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.load", err)
	}
	defer ref.Close()

	quality := opts.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}
	ep := govips.NewWebpExportParams()
	ep.Quality = quality
	ep.Lossless = opts.Lossless
	ep.StripMetadata = true
	data, _, err := ref.ExportWebp(ep)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.webp", err)
	}
	if _, err := w.Write(data); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.write", err)
	}
	return nil
}

// ─── Registration ─────────────────────────────────────────────────────────────

// Register adds b as a decoder at priority and as the WebP encoder.  Use a
// priority below the native decoders so libvips only handles what they cannot.
func Register(reg core.Registry, b *Backend, priority int) {
	reg.RegisterDecoder(b, priority)
	reg.RegisterEncoder(core.FormatWebP, b)
}

func interpretation(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationBW:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

// compile-time interface checks
var _ core.Decoder = (*Backend)(nil)
var _ core.Encoder = (*Backend)(nil)
