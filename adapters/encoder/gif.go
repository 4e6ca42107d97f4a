package encoder

import (
	"context"
	"image"
	"image/color/palette"
	"image/gif"
	"io"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// GIF encodes every frame, so animated sources keep their timing.  Frames are
// quantized to the Plan 9 palette with Floyd-Steinberg dithering.
type GIF struct{}

func NewGIF() *GIF { return &GIF{} }

func (g *GIF) CanEncode(format core.Format) bool { return format == core.FormatGIF }

func (g *GIF) Encode(ctx context.Context, w io.Writer, frames []core.Frame, opts core.EncodeOptions) error {
	if _, err := firstFrame(ctx, "gif.encode", frames); err != nil {
		return err
	}

	out := &gif.GIF{
		Image:     make([]*image.Paletted, 0, len(frames)),
		Delay:     make([]int, 0, len(frames)),
		Disposal:  make([]byte, 0, len(frames)),
		LoopCount: opts.LoopCount,
	}
	for i, f := range frames {
		if i%8 == 0 {
			if err := ctx.Err(); err != nil {
				return apperrors.Wrap(apperrors.CategoryEncode, "gif.encode", err)
			}
		}
		if f.Image == nil {
			return apperrors.New(apperrors.CategoryEncode, "gif.encode", apperrors.ErrEmptyInput)
		}
		p := image.NewPaletted(f.Image.Rect, palette.Plan9)
		xdraw.FloydSteinberg.Draw(p, p.Rect, f.Image, f.Image.Rect.Min)
		out.Image = append(out.Image, p)
		out.Delay = append(out.Delay, int(f.Delay/(10*time.Millisecond)))
		out.Disposal = append(out.Disposal, gif.DisposalBackground)
	}

	if err := gif.EncodeAll(w, out); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "gif.encode", err)
	}
	return nil
}
