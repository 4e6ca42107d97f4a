package decoder

import (
	"context"
	"io"

	"golang.org/x/image/webp"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// WebP decodes still WebP images (lossy and lossless) using
// golang.org/x/image/webp.  Animated WebP yields its first frame only; enable
// the libvips backend for full animation support.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (w *WebP) Name() string { return "webp" }

func (w *WebP) CanDecode(format core.Format) bool { return format == core.FormatWebP }

func (w *WebP) Decode(ctx context.Context, r io.Reader, _ core.DecodeOptions) (*core.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "webp.decode", err)
	}
	img, err := webp.Decode(r)
	if err != nil {
		return nil, apperrors.DecodeFailure("webp.decode", err)
	}
	return still(img, core.FormatWebP), nil
}
