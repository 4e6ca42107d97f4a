package encoder

import (
	"context"
	"io"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// JPEG encodes the first frame to JPEG.
type JPEG struct {
	DefaultQuality int // used when EncodeOptions.Quality == 0
}

func NewJPEG(defaultQuality int) *JPEG {
	if defaultQuality <= 0 {
		defaultQuality = 85
	}
	return &JPEG{DefaultQuality: defaultQuality}
}

func (j *JPEG) CanEncode(format core.Format) bool {
	return format == core.FormatJPEG
}

func (j *JPEG) Encode(ctx context.Context, w io.Writer, frames []core.Frame, opts core.EncodeOptions) error {
	src, err := firstFrame(ctx, "jpeg.encode", frames)
	if err != nil {
		return err
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = j.DefaultQuality
	}
	if quality > 100 {
		quality = 100
	}

	if err := imaging.Encode(w, src, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}
	return nil
}
