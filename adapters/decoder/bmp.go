package decoder

import (
	"context"
	"io"

	"golang.org/x/image/bmp"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// BMP decodes Windows bitmaps using golang.org/x/image/bmp.
type BMP struct{}

func NewBMP() *BMP { return &BMP{} }

func (b *BMP) Name() string { return "bmp" }

func (b *BMP) CanDecode(format core.Format) bool { return format == core.FormatBMP }

func (b *BMP) Decode(ctx context.Context, r io.Reader, _ core.DecodeOptions) (*core.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "bmp.decode", err)
	}
	img, err := bmp.Decode(r)
	if err != nil {
		return nil, apperrors.DecodeFailure("bmp.decode", err)
	}
	return still(img, core.FormatBMP), nil
}
