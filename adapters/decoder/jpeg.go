package decoder

import (
	"bytes"
	"context"
	"image/jpeg"
	"io"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// JPEG decodes JPEG images using the standard library and reads the EXIF
// orientation so the registry can rotate the pixels upright.
type JPEG struct{}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) Name() string { return "jpeg" }

func (j *JPEG) CanDecode(format core.Format) bool { return format == core.FormatJPEG }

func (j *JPEG) Decode(ctx context.Context, r io.Reader, _ core.DecodeOptions) (*core.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "jpeg.decode", err)
	}
	data, err := drain(ctx, r, "jpeg.drain")
	if err != nil {
		return nil, err
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.DecodeFailure("jpeg.decode", err)
	}

	raw := still(img, core.FormatJPEG)
	raw.Orientation, raw.EXIF = readEXIF(data)
	return raw, nil
}
