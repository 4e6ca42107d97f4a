package encoder

import (
	"context"
	"io"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// Still encodes the first frame to a lossless container with no tunable
// options (TIFF or BMP).
type Still struct {
	format core.Format
	target imaging.Format
}

func NewTIFF() *Still { return &Still{format: core.FormatTIFF, target: imaging.TIFF} }

func NewBMP() *Still { return &Still{format: core.FormatBMP, target: imaging.BMP} }

func (s *Still) CanEncode(format core.Format) bool { return format == s.format }

func (s *Still) Encode(ctx context.Context, w io.Writer, frames []core.Frame, _ core.EncodeOptions) error {
	op := string(s.format) + ".encode"
	src, err := firstFrame(ctx, op, frames)
	if err != nil {
		return err
	}
	if err := imaging.Encode(w, src, s.target); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	return nil
}

// RegisterDefaults registers every pure-Go encoder on reg.
func RegisterDefaults(reg core.Registry, defaultQuality int) {
	reg.RegisterEncoder(core.FormatJPEG, NewJPEG(defaultQuality))
	reg.RegisterEncoder(core.FormatPNG, NewPNG())
	reg.RegisterEncoder(core.FormatGIF, NewGIF())
	reg.RegisterEncoder(core.FormatTIFF, NewTIFF())
	reg.RegisterEncoder(core.FormatBMP, NewBMP())
}
