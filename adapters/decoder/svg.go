package decoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/utils"
)

// SVG rasterizes vector documents with oksvg/rasterx.  The document's view box
// is scaled to fit opts.Target, keeping its aspect ratio.
type SVG struct{}

func NewSVG() *SVG { return &SVG{} }

func (s *SVG) Name() string { return "svg" }

func (s *SVG) CanDecode(format core.Format) bool { return format == core.FormatSVG }

func (s *SVG) Decode(ctx context.Context, r io.Reader, opts core.DecodeOptions) (*core.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "svg.decode", err)
	}
	data, err := drain(ctx, r, "svg.drain")
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, apperrors.Decode(apperrors.KindCorrupt, "svg.parse", err)
	}

	target := opts.Target
	if target.X <= 0 || target.Y <= 0 {
		return nil, apperrors.Decode(apperrors.KindRasterize, "svg.rasterize", apperrors.ErrInvalidDimensions)
	}
	w, h := target.X, target.Y
	if vb := icon.ViewBox; vb.W > 0 && vb.H > 0 {
		w, h = utils.FitDimensions(int(vb.W+0.5), int(vb.H+0.5), target.X, target.Y)
	}

	img, err := rasterize(icon, w, h)
	if err != nil {
		return nil, apperrors.Decode(apperrors.KindRasterize, "svg.rasterize", err)
	}
	return &core.RawImage{
		Frames:      []core.RawFrame{{Image: img}},
		Format:      core.FormatSVG,
		ColorSpace:  core.ColorSpaceRGBA,
		Orientation: 1,
	}, nil
}

func rasterize(icon *oksvg.SvgIcon, w, h int) (img *image.RGBA, err error) {
	defer func() {
		if p := recover(); p != nil {
			img, err = nil, fmt.Errorf("rasterizer panic: %v", p)
		}
	}()
	img = image.NewRGBA(image.Rect(0, 0, w, h))
	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return img, nil
}
