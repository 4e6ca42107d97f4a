package vips_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/Skryldev/rasterpipe/adapters/vips"
	"github.com/Skryldev/rasterpipe/core"
)

func TestBackend_Capabilities(t *testing.T) {
	b := &vips.Backend{}
	for _, f := range []core.Format{core.FormatHEIF, core.FormatAVIF, core.FormatJP2, core.FormatJXL, core.FormatPDF} {
		if !b.CanDecode(f) {
			t.Errorf("CanDecode(%s) = false", f)
		}
	}
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatGIF} {
		if b.CanDecode(f) {
			t.Errorf("CanDecode(%s) = true; native decoders own it", f)
		}
	}
	if !b.CanEncode(core.FormatWebP) || b.CanEncode(core.FormatPNG) {
		t.Error("vips should only encode WebP")
	}
}

// ─── Benchmarks (require libvips) ─────────────────────────────────────────────

func BenchmarkEncodeWebP_1024(b *testing.B) {
	backend := vips.NewBackend(vips.BackendConfig{DefaultQuality: 80})
	defer backend.Shutdown()

	img := image.NewNRGBA(image.Rect(0, 0, 1024, 1024))
	for y := 0; y < 1024; y++ {
		for x := 0; x < 1024; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	frames := []core.Frame{{Image: img}}
	var buf bytes.Buffer
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		if err := backend.Encode(context.Background(), &buf, frames, core.EncodeOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}
