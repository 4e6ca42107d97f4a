package core_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

// pngMagic is enough for signature sniffing; fake decoders ignore the rest.
var pngMagic = []byte("\x89PNG\r\n\x1a\n0000")

type fakeDecoder struct {
	name    string
	formats []core.Format
	raw     *core.RawImage
	err     error
	panics  bool
	calls   int32
}

func (f *fakeDecoder) Name() string { return f.name }

func (f *fakeDecoder) CanDecode(format core.Format) bool {
	for _, x := range f.formats {
		if x == format {
			return true
		}
	}
	return false
}

func (f *fakeDecoder) Decode(_ context.Context, r io.Reader, _ core.DecodeOptions) (*core.RawImage, error) {
	atomic.AddInt32(&f.calls, 1)
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	if f.panics {
		panic("index out of range")
	}
	return f.raw, f.err
}

func rawOf(t *testing.T, w, h int) *core.RawImage {
	t.Helper()
	return &core.RawImage{
		Frames: []core.RawFrame{{Image: image.NewNRGBA(image.Rect(0, 0, w, h)), Delay: time.Second}},
		Format: core.FormatPNG,
	}
}

func bytesSource(data []byte, hint string) core.ImageSource { return core.NewBytesSource(data, hint) }

// ── Decode dispatch ───────────────────────────────────────────────────────────

func TestRegistry_PriorityOrder(t *testing.T) {
	low := &fakeDecoder{name: "low", formats: []core.Format{core.FormatPNG}, raw: rawOf(t, 1, 1)}
	high := &fakeDecoder{name: "high", formats: []core.Format{core.FormatPNG}, raw: rawOf(t, 2, 2)}
	reg := core.NewRegistry()
	reg.RegisterDecoder(low, 10)
	reg.RegisterDecoder(high, 100)

	img, err := reg.Decode(context.Background(), bytesSource(pngMagic, ""), pngMagic)
	if err != nil {
		t.Fatal(err)
	}
	if img.Meta.Width != 2 || low.calls != 0 {
		t.Errorf("width=%d low calls=%d; the high priority decoder should win", img.Meta.Width, low.calls)
	}
}

func TestRegistry_FallsBackOnFailure(t *testing.T) {
	tests := []struct {
		name string
		bad  *fakeDecoder
	}{
		{"error", &fakeDecoder{name: "bad", formats: []core.Format{core.FormatPNG}, err: errors.New("unsupported variant")}},
		{"panic", &fakeDecoder{name: "bad", formats: []core.Format{core.FormatPNG}, panics: true}},
		{"no frames", &fakeDecoder{name: "bad", formats: []core.Format{core.FormatPNG}, raw: &core.RawImage{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			good := &fakeDecoder{name: "good", formats: []core.Format{core.FormatPNG}, raw: rawOf(t, 3, 3)}
			reg := core.NewRegistry()
			reg.RegisterDecoder(tt.bad, 100)
			reg.RegisterDecoder(good, 10)

			img, err := reg.Decode(context.Background(), bytesSource(pngMagic, ""), pngMagic)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if img.Meta.Width != 3 {
				t.Errorf("width = %d, want 3 from the fallback", img.Meta.Width)
			}
		})
	}
}

func TestRegistry_Failures(t *testing.T) {
	panicky := &fakeDecoder{name: "panicky", formats: []core.Format{core.FormatPNG}, panics: true}
	tests := []struct {
		name string
		data []byte
		hint string
		want apperrors.DecodeKind
	}{
		{"empty input", nil, "png", apperrors.KindTruncated},
		{"unknown signature", []byte("plain text, no image here"), "", apperrors.KindUnsupported},
		{"no decoder for format", []byte("GIF89a...."), "", apperrors.KindUnsupported},
		{"decoder panic", pngMagic, "", apperrors.KindCorrupt},
	}
	reg := core.NewRegistry()
	reg.RegisterDecoder(panicky, 100)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Decode(context.Background(), bytesSource(tt.data, tt.hint), tt.data)
			if !apperrors.IsCategory(err, apperrors.CategoryDecode) {
				t.Fatalf("got %v, want a decode error", err)
			}
			if k := apperrors.KindOf(err); k != tt.want {
				t.Errorf("kind = %q, want %q", k, tt.want)
			}
		})
	}
}

func TestRegistry_HintOutranksSignature(t *testing.T) {
	gifDec := &fakeDecoder{name: "gif", formats: []core.Format{core.FormatGIF}, raw: rawOf(t, 5, 5)}
	pngDec := &fakeDecoder{name: "png", formats: []core.Format{core.FormatPNG}, raw: rawOf(t, 1, 1)}
	reg := core.NewRegistry()
	reg.RegisterDecoder(pngDec, 100)
	reg.RegisterDecoder(gifDec, 1)

	img, err := reg.Decode(context.Background(), bytesSource(pngMagic, "image/gif"), pngMagic)
	if err != nil {
		t.Fatal(err)
	}
	if img.Meta.Width != 5 {
		t.Errorf("width = %d; the hinted decoder should be tried first", img.Meta.Width)
	}
}

func TestRegistry_DecodeRaster(t *testing.T) {
	src := image.NewRGBA(image.Rect(2, 2, 6, 5))
	src.Set(2, 2, color.RGBA{R: 255, A: 255})
	reg := core.NewRegistry()

	img, err := reg.Decode(context.Background(), core.NewRasterSource(src), nil)
	if err != nil {
		t.Fatal(err)
	}
	if img.Base().Rect != image.Rect(0, 0, 4, 3) {
		t.Errorf("bounds %v, want a zero origin", img.Base().Rect)
	}
	if got := img.Base().NRGBAAt(0, 0); got.R != 255 {
		t.Errorf("pixel = %v", got)
	}
}

func TestRegistry_Supports(t *testing.T) {
	reg := core.NewRegistry()
	reg.RegisterDecoder(&fakeDecoder{name: "png", formats: []core.Format{core.FormatPNG}}, 1)
	if !reg.Supports(core.FormatPNG) || reg.Supports(core.FormatGIF) || reg.Supports(core.FormatUnknown) {
		t.Error("Supports disagrees with the registered decoders")
	}
}

// ── Cache keys ────────────────────────────────────────────────────────────────

func TestRegistry_CacheKey(t *testing.T) {
	reg := core.NewRegistry()
	reg.SetVectorDefault(800, 600)

	raster := bytesSource(pngMagic, "")
	if reg.CacheKey(raster) != raster.Fingerprint() {
		t.Error("raster sources should be keyed by fingerprint alone")
	}

	svg := bytesSource([]byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`), "svg")
	def := reg.CacheKey(svg)
	sized := reg.CacheKey(svg.WithTarget(200, 100))
	if !strings.HasSuffix(string(def), "@800x600") || !strings.HasSuffix(string(sized), "@200x100") {
		t.Errorf("vector keys %q, %q", def, sized)
	}
	if def == sized {
		t.Error("different rasterization sizes share a key")
	}
}

func TestSources_Fingerprints(t *testing.T) {
	a := core.NewBytesSource([]byte("abc"), "")
	b := core.NewBytesSource([]byte("abc"), "png")
	c := core.NewBytesSource([]byte("abd"), "")
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("the hint must not change content identity")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different content shares a fingerprint")
	}
	if (core.ImageSource{}).IsZero() != true || a.IsZero() {
		t.Error("IsZero")
	}
}

// ── Normalization ─────────────────────────────────────────────────────────────

func TestNormalize(t *testing.T) {
	t.Run("orientation applied", func(t *testing.T) {
		src := image.NewNRGBA(image.Rect(0, 0, 4, 2))
		src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
		out, err := core.Normalize(&core.RawImage{Frames: []core.RawFrame{{Image: src}}, Orientation: 6})
		if err != nil {
			t.Fatal(err)
		}
		if out.Meta.Width != 2 || out.Meta.Height != 4 {
			t.Fatalf("size %dx%d, want 2x4", out.Meta.Width, out.Meta.Height)
		}
		// Orientation 6 needs a clockwise quarter turn: top-left moves to top-right.
		if got := out.Base().NRGBAAt(1, 0); got.R != 255 {
			t.Errorf("pixel (1,0) = %v", got)
		}
	})

	t.Run("still image has no delay", func(t *testing.T) {
		out, err := core.Normalize(rawOf(t, 2, 2))
		if err != nil {
			t.Fatal(err)
		}
		if out.Frames[0].Delay != 0 || out.Animated() {
			t.Errorf("delay %v animated %v", out.Frames[0].Delay, out.Animated())
		}
	})

	t.Run("alpha detected", func(t *testing.T) {
		out, err := core.Normalize(rawOf(t, 2, 2)) // fully transparent
		if err != nil {
			t.Fatal(err)
		}
		if !out.Meta.HasAlpha {
			t.Error("transparent frame not flagged")
		}
	})

	t.Run("paletted converted", func(t *testing.T) {
		p := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.RGBA{B: 255, A: 255}})
		out, err := core.Normalize(&core.RawImage{Frames: []core.RawFrame{{Image: p}}})
		if err != nil {
			t.Fatal(err)
		}
		if got := out.Base().NRGBAAt(1, 1); got.B != 255 || got.A != 255 {
			t.Errorf("pixel = %v", got)
		}
		if out.Weight() != 16 {
			t.Errorf("weight = %d, want 16", out.Weight())
		}
	})
}

func TestApplyOrientation_AllTags(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for o := 0; o <= 8; o++ {
		out := core.ApplyOrientation(src, o)
		wantW, wantH := 3, 2
		if o >= 5 {
			wantW, wantH = 2, 3
		}
		if out.Rect.Dx() != wantW || out.Rect.Dy() != wantH {
			t.Errorf("orientation %d: size %v", o, out.Rect.Size())
		}
	}
}
