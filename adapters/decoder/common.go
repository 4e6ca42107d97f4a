// Package decoder provides format-specific image decoders.
package decoder

import (
	"context"
	"image"
	"io"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/utils"
)

// Priorities used by RegisterDefaults.  Native decoders outrank the libvips
// fallback, which registers at PriorityFallback.
const (
	PriorityNative   = 100
	PriorityFallback = 10
)

// RegisterDefaults registers every pure-Go decoder on reg.
func RegisterDefaults(reg core.Registry) {
	reg.RegisterDecoder(NewJPEG(), PriorityNative)
	reg.RegisterDecoder(NewPNG(), PriorityNative)
	reg.RegisterDecoder(NewGIF(), PriorityNative)
	reg.RegisterDecoder(NewWebP(), PriorityNative)
	reg.RegisterDecoder(NewBMP(), PriorityNative)
	reg.RegisterDecoder(NewTIFF(), PriorityNative)
	reg.RegisterDecoder(NewSVG(), PriorityNative)
	reg.RegisterDecoder(NewPSD(), PriorityNative)
	reg.RegisterDecoder(NewRAW(), PriorityNative)
}

// colorSpace returns the colour space of an image.Image.
func colorSpace(img image.Image) core.ColorSpace {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSpaceGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return core.ColorSpaceRGBA
	case *image.CMYK:
		return core.ColorSpaceCMYK
	case *image.YCbCr:
		return core.ColorSpaceYCbCr
	case *image.Paletted:
		return core.ColorSpacePalette
	}
	return core.ColorSpaceRGB
}

// still wraps a single decoded raster.
func still(img image.Image, format core.Format) *core.RawImage {
	return &core.RawImage{
		Frames:     []core.RawFrame{{Image: img}},
		Format:     format,
		ColorSpace: colorSpace(img),
	}
}

// drain reads r fully for decoders that need random access.
func drain(ctx context.Context, r io.Reader, op string) ([]byte, error) {
	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.DecodeFailure(op, err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	return data, nil
}
