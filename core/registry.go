package core

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/disintegration/imaging"

	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/utils"
)

// ── Registry ──────────────────────────────────────────────────────────────────

type registeredDecoder struct {
	dec      Decoder
	priority int
	seq      int
}

// DefaultRegistry is a thread-safe implementation of Registry.  Decoders are
// tried in priority order for each candidate format: the explicit hint first,
// then the sniffed signature, then the file extension.
type DefaultRegistry struct {
	mu       sync.RWMutex
	decoders []registeredDecoder
	encoders map[Format]Encoder
	defaults DecodeOptions
	vector   image.Point
	logger   Logger
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		encoders: make(map[Format]Encoder),
		vector:   image.Pt(1024, 1024),
		logger:   NopLogger{},
	}
}

// SetLogger attaches a structured logger.
func (r *DefaultRegistry) SetLogger(l Logger) {
	if l == nil {
		l = NopLogger{}
	}
	r.mu.Lock()
	r.logger = l
	r.mu.Unlock()
}

// SetDecodeDefaults sets the frame delay policy handed to decoders.
func (r *DefaultRegistry) SetDecodeDefaults(opts DecodeOptions) {
	r.mu.Lock()
	r.defaults = opts
	r.mu.Unlock()
}

// SetVectorDefault sets the rasterization size used when a vector source
// carries no target.
func (r *DefaultRegistry) SetVectorDefault(w, h int) {
	r.mu.Lock()
	r.vector = image.Pt(w, h)
	r.mu.Unlock()
}

// RegisterDecoder adds d.  Higher priority decoders are tried first; equal
// priorities keep registration order.
func (r *DefaultRegistry) RegisterDecoder(d Decoder, priority int) {
	r.mu.Lock()
	r.decoders = append(r.decoders, registeredDecoder{dec: d, priority: priority, seq: len(r.decoders)})
	sort.SliceStable(r.decoders, func(i, j int) bool {
		if r.decoders[i].priority != r.decoders[j].priority {
			return r.decoders[i].priority > r.decoders[j].priority
		}
		return r.decoders[i].seq < r.decoders[j].seq
	})
	r.mu.Unlock()
}

func (r *DefaultRegistry) RegisterEncoder(f Format, e Encoder) {
	r.mu.Lock()
	r.encoders[f] = e
	r.mu.Unlock()
}

func (r *DefaultRegistry) EncoderFor(f Format) (Encoder, bool) {
	r.mu.RLock()
	e, ok := r.encoders[f]
	r.mu.RUnlock()
	return e, ok
}

// Supports reports whether any registered decoder handles f.
func (r *DefaultRegistry) Supports(f Format) bool {
	if f == FormatUnknown {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rd := range r.decoders {
		if rd.dec.CanDecode(f) {
			return true
		}
	}
	return false
}

// CacheKey returns the fingerprint a decode of src is cached under.  Vector
// sources are keyed per rasterization size.
func (r *DefaultRegistry) CacheKey(src ImageSource) Fingerprint {
	if !r.likelyFormat(src).IsVector() {
		return src.Fingerprint()
	}
	t := r.targetFor(src)
	return Fingerprint(fmt.Sprintf("%s@%dx%d", src.Fingerprint(), t.X, t.Y))
}

func (r *DefaultRegistry) likelyFormat(src ImageSource) Format {
	if src.Hint() != FormatUnknown {
		return src.Hint()
	}
	switch src.Origin() {
	case OriginBytes:
		return Format(utils.DetectFormat(src.Data()))
	case OriginPath:
		return ParseFormat(src.Path())
	}
	return FormatUnknown
}

func (r *DefaultRegistry) targetFor(src ImageSource) image.Point {
	if t := src.Target(); t.X > 0 && t.Y > 0 {
		return t
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vector
}

// candidates returns the decoders to try, in order, without duplicates.
func (r *DefaultRegistry) candidates(formats ...Format) []Decoder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[Decoder]bool)
	var out []Decoder
	for _, f := range formats {
		if f == FormatUnknown || f == "" {
			continue
		}
		for _, rd := range r.decoders {
			if seen[rd.dec] || !rd.dec.CanDecode(f) {
				continue
			}
			seen[rd.dec] = true
			out = append(out, rd.dec)
		}
	}
	return out
}

// Decode turns src (whose encoded bytes are data) into a canonical
// DecodedImage.  Every failure is a decode-category error.
func (r *DefaultRegistry) Decode(ctx context.Context, src ImageSource, data []byte) (*DecodedImage, error) {
	if src.Origin() == OriginRaster {
		n := src.Raster()
		return &DecodedImage{
			Frames: []Frame{{Image: n}},
			Meta: Metadata{
				Width:      n.Rect.Dx(),
				Height:     n.Rect.Dy(),
				Format:     FormatUnknown,
				ColorSpace: ColorSpaceRGBA,
				HasAlpha:   !n.Opaque(),
			},
		}, nil
	}
	if len(data) == 0 {
		return nil, apperrors.Decode(apperrors.KindTruncated, "registry.decode", apperrors.ErrEmptyInput)
	}

	sniffed := Format(utils.DetectFormat(data))
	ext := FormatUnknown
	if src.Origin() == OriginPath {
		ext = ParseFormat(src.Path())
	}
	decs := r.candidates(src.Hint(), sniffed, ext)
	if len(decs) == 0 {
		return nil, apperrors.Decode(apperrors.KindUnsupported, "registry.decode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, describeFormats(src.Hint(), sniffed, ext)))
	}

	r.mu.RLock()
	opts := r.defaults
	logger := r.logger
	r.mu.RUnlock()
	opts.Target = r.targetFor(src)

	var firstErr, sniffedErr error
	for _, d := range decs {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryDecode, "registry.decode", err)
		}
		raw, err := safeDecode(ctx, d, data, opts)
		if err == nil {
			var out *DecodedImage
			out, err = Normalize(raw)
			if err == nil {
				out.Meta.SourceSize = int64(len(data))
				return out, nil
			}
		}
		logger.Debug("registry.decode.attempt_failed", "decoder", d.Name(), "source", src.Name(), "error", err.Error())
		if firstErr == nil {
			firstErr = err
		}
		if sniffedErr == nil && sniffed != FormatUnknown && d.CanDecode(sniffed) {
			sniffedErr = err
		}
	}
	if sniffedErr != nil {
		return nil, apperrors.DecodeFailure("registry.decode", sniffedErr)
	}
	return nil, apperrors.DecodeFailure("registry.decode", firstErr)
}

// safeDecode runs one decoder, converting a panic into a corrupt-data error.
func safeDecode(ctx context.Context, d Decoder, data []byte, opts DecodeOptions) (raw *RawImage, err error) {
	defer func() {
		if p := recover(); p != nil {
			raw = nil
			err = apperrors.Decode(apperrors.KindCorrupt, d.Name()+".decode", fmt.Errorf("decoder panic: %v", p))
		}
	}()
	return d.Decode(ctx, bytes.NewReader(data), opts)
}

func describeFormats(fs ...Format) string {
	var parts []string
	for _, f := range fs {
		if f != FormatUnknown && f != "" {
			parts = append(parts, string(f))
		}
	}
	if len(parts) == 0 {
		return "unrecognised signature"
	}
	return fmt.Sprint(parts)
}

// ── Normalization ─────────────────────────────────────────────────────────────

// Normalize converts every frame of raw to *image.NRGBA with a zero origin and
// applies the EXIF orientation.
func Normalize(raw *RawImage) (*DecodedImage, error) {
	if raw == nil || len(raw.Frames) == 0 {
		return nil, apperrors.Decode(apperrors.KindCorrupt, "normalize", fmt.Errorf("decoder produced no frames"))
	}
	out := &DecodedImage{
		Frames: make([]Frame, 0, len(raw.Frames)),
		Meta: Metadata{
			Format:     raw.Format,
			ColorSpace: raw.ColorSpace,
			EXIF:       raw.EXIF,
			LoopCount:  raw.LoopCount,
		},
	}
	for i, f := range raw.Frames {
		if f.Image == nil {
			return nil, apperrors.Decode(apperrors.KindCorrupt, "normalize", fmt.Errorf("frame %d is empty", i))
		}
		if f.Image.ColorModel() == nil {
			return nil, apperrors.Decode(apperrors.KindColorSpace, "normalize", fmt.Errorf("frame %d has no color model", i))
		}
		b := f.Image.Bounds()
		if b.Dx() <= 0 || b.Dy() <= 0 {
			return nil, apperrors.Decode(apperrors.KindCorrupt, "normalize", apperrors.ErrInvalidDimensions)
		}
		n := toNRGBA(f.Image)
		n = ApplyOrientation(n, raw.Orientation)
		if !n.Opaque() {
			out.Meta.HasAlpha = true
		}
		out.Frames = append(out.Frames, Frame{Image: n, Delay: f.Delay})
	}
	if len(out.Frames) == 1 {
		out.Frames[0].Delay = 0
	}
	base := out.Frames[0].Image.Rect
	out.Meta.Width, out.Meta.Height = base.Dx(), base.Dy()
	return out, nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) && n.Stride == 4*n.Rect.Dx() {
		return n
	}
	return imaging.Clone(img)
}

// ApplyOrientation returns img transformed so that an image carrying EXIF
// orientation o displays upright.
func ApplyOrientation(img *image.NRGBA, o int) *image.NRGBA {
	switch o {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}
