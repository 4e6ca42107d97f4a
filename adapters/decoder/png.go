package decoder

import (
	"context"
	"image/png"
	"io"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// PNG decodes PNG images using the standard library.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) Name() string { return "png" }

func (p *PNG) CanDecode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Decode(ctx context.Context, r io.Reader, _ core.DecodeOptions) (*core.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "png.decode", err)
	}
	img, err := png.Decode(r)
	if err != nil {
		return nil, apperrors.DecodeFailure("png.decode", err)
	}
	return still(img, core.FormatPNG), nil
}
