package encoder_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/Skryldev/rasterpipe/adapters/encoder"
	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

func frame(t *testing.T, w, h int, c color.NRGBA, delay time.Duration) core.Frame {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return core.Frame{Image: img, Delay: delay}
}

func TestEncoders_RoundTripSize(t *testing.T) {
	frames := []core.Frame{frame(t, 9, 4, color.NRGBA{R: 10, G: 200, B: 30, A: 255}, 0)}
	tests := []struct {
		name   string
		enc    core.Encoder
		format core.Format
		decode func(*bytes.Reader) (image.Image, error)
	}{
		{"png", encoder.NewPNG(), core.FormatPNG, func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) }},
		{"jpeg", encoder.NewJPEG(90), core.FormatJPEG, func(r *bytes.Reader) (image.Image, error) { return jpeg.Decode(r) }},
		{"gif", encoder.NewGIF(), core.FormatGIF, func(r *bytes.Reader) (image.Image, error) { return gif.Decode(r) }},
		{"tiff", encoder.NewTIFF(), core.FormatTIFF, func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) }},
		{"bmp", encoder.NewBMP(), core.FormatBMP, func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.enc.CanEncode(tt.format) {
				t.Fatalf("CanEncode(%s) = false", tt.format)
			}
			var buf bytes.Buffer
			if err := tt.enc.Encode(context.Background(), &buf, frames, core.EncodeOptions{}); err != nil {
				t.Fatalf("encode: %v", err)
			}
			img, err := tt.decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := img.Bounds().Size(); got != image.Pt(9, 4) {
				t.Errorf("size = %v, want 9x4", got)
			}
		})
	}
}

func TestGIF_KeepsAnimation(t *testing.T) {
	frames := []core.Frame{
		frame(t, 4, 4, color.NRGBA{R: 255, A: 255}, 100*time.Millisecond),
		frame(t, 4, 4, color.NRGBA{B: 255, A: 255}, 250*time.Millisecond),
	}
	var buf bytes.Buffer
	if err := encoder.NewGIF().Encode(context.Background(), &buf, frames, core.EncodeOptions{LoopCount: 0}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	g, err := gif.DecodeAll(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(g.Image) != 2 || g.Delay[0] != 10 || g.Delay[1] != 25 {
		t.Errorf("frames=%d delays=%v", len(g.Image), g.Delay)
	}
}

func TestEncode_EmptyFrames(t *testing.T) {
	for _, enc := range []core.Encoder{encoder.NewPNG(), encoder.NewJPEG(0), encoder.NewGIF(), encoder.NewBMP()} {
		err := enc.Encode(context.Background(), &bytes.Buffer{}, nil, core.EncodeOptions{})
		if !apperrors.IsCategory(err, apperrors.CategoryEncode) {
			t.Errorf("%T: got %v, want encode error", enc, err)
		}
	}
}

func TestRegisterDefaults(t *testing.T) {
	reg := core.NewRegistry()
	encoder.RegisterDefaults(reg, 80)
	for _, f := range []core.Format{core.FormatPNG, core.FormatJPEG, core.FormatGIF, core.FormatTIFF, core.FormatBMP} {
		if _, ok := reg.EncoderFor(f); !ok {
			t.Errorf("no encoder for %s", f)
		}
	}
}
