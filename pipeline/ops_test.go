package pipeline_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/Skryldev/rasterpipe/pipeline"
)

func TestRotate_Clockwise(t *testing.T) {
	a := color.NRGBA{R: 255, A: 255}
	b := color.NRGBA{B: 255, A: 255}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, a)
	img.SetNRGBA(1, 0, b)

	out := pipeline.Rotate{Turns: 1}.Apply(img)
	if out.Rect.Size() != image.Pt(1, 2) {
		t.Fatalf("size = %v, want 1x2", out.Rect.Size())
	}
	if out.NRGBAAt(0, 0) != a || out.NRGBAAt(0, 1) != b {
		t.Error("quarter turn is not clockwise")
	}
	back := pipeline.Rotate{Turns: 1}.Inverse().Apply(out)
	if !samePixels(back, img) {
		t.Error("inverse rotation did not restore the input")
	}
}

func TestOutputSize(t *testing.T) {
	size := image.Pt(40, 20)
	tests := []struct {
		op   pipeline.Operation
		want image.Point
	}{
		{pipeline.Rotate{Turns: 1}, image.Pt(20, 40)},
		{pipeline.Rotate{Turns: 2}, image.Pt(40, 20)},
		{pipeline.Rotate{Turns: -3}, image.Pt(20, 40)},
		{pipeline.Crop{Rect: image.Rect(5, 5, 15, 10)}, image.Pt(10, 5)},
		{pipeline.Resize{Width: 20}, image.Pt(20, 10)},
		{pipeline.Resize{Height: 40}, image.Pt(80, 40)},
		{pipeline.Resize{Width: 7, Height: 9}, image.Pt(7, 9)},
		{pipeline.Blur{Sigma: 1}, size},
	}
	for _, tt := range tests {
		if got := tt.op.OutputSize(size); got != tt.want {
			t.Errorf("%s: got %v, want %v", pipeline.Describe(tt.op), got, tt.want)
		}
		if got := tt.op.Apply(image.NewNRGBA(image.Rectangle{Max: size})).Rect.Size(); got != tt.want {
			t.Errorf("%s: applied size %v, want %v", pipeline.Describe(tt.op), got, tt.want)
		}
	}
}

func TestEffects_KeepAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	for _, op := range []pipeline.Operation{pipeline.Grayscale{}, pipeline.Sepia{}, pipeline.ColorAdjust{Hue: 30}} {
		out := op.Apply(img)
		if a := out.NRGBAAt(1, 1).A; a < 199 || a > 201 {
			t.Errorf("%s: alpha %d, want ~200", op.Kind(), a)
		}
	}
	gray := pipeline.Grayscale{}.Apply(gradient(t, 4, 4)).NRGBAAt(3, 2)
	if gray.R != gray.G || gray.G != gray.B {
		t.Errorf("grayscale pixel %+v is not neutral", gray)
	}
}
