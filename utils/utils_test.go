package utils_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Skryldev/rasterpipe/utils"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0}, "jpeg"},
		{"png", []byte("\x89PNG\r\n\x1a\n"), "png"},
		{"gif", []byte("GIF89a\x01\x00"), "gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"bmp", []byte("BM\x00\x00\x00\x00"), "bmp"},
		{"psd", []byte("8BPS\x00\x01"), "psd"},
		{"tiff le", []byte("II*\x00\x08\x00\x00\x00"), "tiff"},
		{"tiff be", []byte("MM\x00*\x00\x00\x00\x08"), "tiff"},
		{"cr2", []byte("II*\x00\x10\x00\x00\x00CR\x02\x00"), "raw"},
		{"raf", []byte("FUJIFILMCCD-RAW 0201"), "raw"},
		{"orf", []byte("IIRO\x08\x00"), "raw"},
		{"avif", []byte("\x00\x00\x00\x1cftypavif\x00\x00"), "avif"},
		{"heic", []byte("\x00\x00\x00\x18ftypheic\x00\x00"), "heif"},
		{"pdf", []byte("%PDF-1.7"), "pdf"},
		{"svg", []byte("\n  <?xml version=\"1.0\"?><svg xmlns=\"http://www.w3.org/2000/svg\"/>"), "svg"},
		{"html is not svg", []byte("<html><body>hi</body></html>"), "unknown"},
		{"too short", []byte{0xFF}, "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := utils.DetectFormat(tc.data); got != tc.want {
				t.Errorf("DetectFormat: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatFromName(t *testing.T) {
	tests := map[string]string{
		"/photos/IMG_0001.JPG": "jpeg",
		"png":                  "png",
		".webp":                "webp",
		"image/svg+xml":        "svg",
		"image/x-portable":     "unknown",
		"shot.NEF":             "raw",
		"":                     "unknown",
		"notes.txt":            "unknown",
	}
	for in, want := range tests {
		if got := utils.FormatFromName(in); got != want {
			t.Errorf("FormatFromName(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestScaleDimensions(t *testing.T) {
	tests := []struct {
		srcW, srcH, targetW, targetH int
		wantW, wantH                 int
	}{
		{800, 600, 400, 0, 400, 300},
		{800, 600, 0, 300, 400, 300},
		{800, 600, 200, 200, 200, 200},
		{800, 600, 0, 0, 800, 600},
	}
	for _, tc := range tests {
		gotW, gotH := utils.ScaleDimensions(tc.srcW, tc.srcH, tc.targetW, tc.targetH)
		if gotW != tc.wantW || gotH != tc.wantH {
			t.Errorf("ScaleDimensions(%d,%d,%d,%d) = %d,%d; want %d,%d",
				tc.srcW, tc.srcH, tc.targetW, tc.targetH, gotW, gotH, tc.wantW, tc.wantH)
		}
	}
}

func TestFitDimensions(t *testing.T) {
	if w, h := utils.FitDimensions(200, 100, 1024, 1024); w != 1024 || h != 512 {
		t.Errorf("got %dx%d, want 1024x512", w, h)
	}
	if w, h := utils.FitDimensions(0, 0, 64, 32); w != 64 || h != 32 {
		t.Errorf("degenerate source: got %dx%d", w, h)
	}
}

func TestReadAll_Limit(t *testing.T) {
	ctx := context.Background()
	data := bytes.Repeat([]byte("x"), 100)

	got, err := utils.ReadAll(ctx, bytes.NewReader(data), 100, 16)
	if err != nil || len(got) != 100 {
		t.Fatalf("exact-size read: len=%d err=%v", len(got), err)
	}

	_, err = utils.ReadAll(ctx, bytes.NewReader(data), 99, 16)
	if !errors.Is(err, utils.ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}

func TestDrainReader_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := utils.DrainReader(ctx, strings.NewReader("abc"), 1); err == nil {
		t.Error("expected context error")
	}
}

func TestChunkedWriter(t *testing.T) {
	var calls int
	var out bytes.Buffer
	w := &utils.ChunkedWriter{W: writerFunc(func(p []byte) (int, error) {
		calls++
		return out.Write(p)
	}), ChunkSize: 4}
	n, err := w.Write([]byte("0123456789"))
	if err != nil || n != 10 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	if calls != 3 || out.String() != "0123456789" {
		t.Errorf("calls=%d out=%q", calls, out.String())
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
