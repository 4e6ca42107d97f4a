package decoder

import (
	"bytes"
	"context"
	"errors"
	"io"

	"golang.org/x/image/tiff"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// TIFF decodes baseline TIFF using golang.org/x/image/tiff, honouring the
// orientation tag.
type TIFF struct{}

func NewTIFF() *TIFF { return &TIFF{} }

func (t *TIFF) Name() string { return "tiff" }

func (t *TIFF) CanDecode(format core.Format) bool { return format == core.FormatTIFF }

func (t *TIFF) Decode(ctx context.Context, r io.Reader, _ core.DecodeOptions) (*core.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "tiff.decode", err)
	}
	data, err := drain(ctx, r, "tiff.drain")
	if err != nil {
		return nil, err
	}

	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		var unsupported tiff.UnsupportedError
		if errors.As(err, &unsupported) {
			return nil, apperrors.Decode(apperrors.KindColorSpace, "tiff.decode", err)
		}
		return nil, apperrors.DecodeFailure("tiff.decode", err)
	}

	raw := still(img, core.FormatTIFF)
	raw.Orientation, raw.EXIF = readEXIF(data)
	return raw, nil
}
