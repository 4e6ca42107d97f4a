package encoder

import (
	"context"
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// PNG encodes the first frame to PNG.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, w io.Writer, frames []core.Frame, opts core.EncodeOptions) error {
	src, err := firstFrame(ctx, "png.encode", frames)
	if err != nil {
		return err
	}

	level := png.DefaultCompression
	if opts.Lossless {
		level = png.BestCompression
	}
	if err := imaging.Encode(w, src, imaging.PNG, imaging.PNGCompressionLevel(level)); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}
	return nil
}

// firstFrame returns the raster still formats encode.
func firstFrame(ctx context.Context, op string, frames []core.Frame) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	if len(frames) == 0 || frames[0].Image == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
	}
	return frames[0].Image, nil
}
