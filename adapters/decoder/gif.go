package decoder

import (
	"context"
	"image"
	"image/gif"
	"io"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// GIF decodes still and animated GIFs.  Each frame is composited onto a
// full-size canvas according to its disposal method, so every output frame is
// a complete picture.
type GIF struct{}

func NewGIF() *GIF { return &GIF{} }

func (g *GIF) Name() string { return "gif" }

func (g *GIF) CanDecode(format core.Format) bool { return format == core.FormatGIF }

func (g *GIF) Decode(ctx context.Context, r io.Reader, opts core.DecodeOptions) (*core.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "gif.decode", err)
	}
	anim, err := gif.DecodeAll(r)
	if err != nil {
		return nil, apperrors.DecodeFailure("gif.decode", err)
	}
	if len(anim.Image) == 0 {
		return nil, apperrors.Decode(apperrors.KindCorrupt, "gif.decode", apperrors.ErrEmptyInput)
	}

	bounds := image.Rect(0, 0, anim.Config.Width, anim.Config.Height)
	if bounds.Empty() {
		bounds = anim.Image[0].Bounds()
	}
	canvas := image.NewNRGBA(bounds)
	frames := make([]core.RawFrame, 0, len(anim.Image))

	for i, p := range anim.Image {
		if i%16 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, apperrors.Wrap(apperrors.CategoryDecode, "gif.decode", err)
			}
		}
		disposal := byte(gif.DisposalNone)
		if i < len(anim.Disposal) {
			disposal = anim.Disposal[i]
		}

		var previous *image.NRGBA
		if disposal == gif.DisposalPrevious {
			previous = cloneNRGBA(canvas)
		}

		xdraw.Draw(canvas, p.Bounds(), p, p.Bounds().Min, xdraw.Over)

		delay := time.Duration(0)
		if i < len(anim.Delay) {
			delay = time.Duration(anim.Delay[i]) * 10 * time.Millisecond
		}
		frames = append(frames, core.RawFrame{
			Image: cloneNRGBA(canvas),
			Delay: opts.FrameDelay(delay),
		})

		switch disposal {
		case gif.DisposalBackground:
			xdraw.Draw(canvas, p.Bounds(), image.Transparent, image.Point{}, xdraw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}

	return &core.RawImage{
		Frames:      frames,
		Format:      core.FormatGIF,
		ColorSpace:  core.ColorSpacePalette,
		Orientation: 1,
		LoopCount:   anim.LoopCount,
	}, nil
}

func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}
