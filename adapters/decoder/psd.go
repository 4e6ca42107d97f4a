package decoder

import (
	"context"
	"io"

	"github.com/oov/psd"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// PSD decodes the merged (flattened) composite of a Photoshop document.
// Individual layers are skipped.
type PSD struct{}

func NewPSD() *PSD { return &PSD{} }

func (p *PSD) Name() string { return "psd" }

func (p *PSD) CanDecode(format core.Format) bool { return format == core.FormatPSD }

func (p *PSD) Decode(ctx context.Context, r io.Reader, _ core.DecodeOptions) (*core.RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "psd.decode", err)
	}
	doc, _, err := psd.Decode(r, &psd.DecodeOptions{SkipLayerImage: true})
	if err != nil {
		return nil, apperrors.DecodeFailure("psd.decode", err)
	}
	if doc.Picker == nil {
		return nil, apperrors.Decode(apperrors.KindColorSpace, "psd.decode", apperrors.ErrUnsupportedFormat)
	}
	return still(doc.Picker, core.FormatPSD), nil
}
