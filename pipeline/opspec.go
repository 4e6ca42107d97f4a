package pipeline

import (
	"image"

	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// OpSpec is the wire form of an Operation, as accepted by the HTTP shell.
// Only the fields relevant to Op are read.
type OpSpec struct {
	Op Kind `json:"op"`

	X      int `json:"x,omitempty"`
	Y      int `json:"y,omitempty"`
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	Turns  int    `json:"turns,omitempty"`
	Filter Filter `json:"filter,omitempty"`

	Amount     float64 `json:"amount,omitempty"`
	Degrees    int     `json:"degrees,omitempty"`
	Sigma      float64 `json:"sigma,omitempty"`
	Hue        float64 `json:"hue,omitempty"`
	Saturation float64 `json:"saturation,omitempty"`
	Lightness  float64 `json:"lightness,omitempty"`
	Contrast   float64 `json:"contrast,omitempty"`
}

// Build returns the Operation described by s.  Parameter ranges are checked
// later, by History.Push.
func (s OpSpec) Build() (Operation, error) {
	switch s.Op {
	case KindCrop:
		return Crop{Rect: image.Rect(s.X, s.Y, s.X+s.Width, s.Y+s.Height)}, nil
	case KindRotate:
		return Rotate{Turns: s.Turns}, nil
	case KindFlipH:
		return FlipH{}, nil
	case KindFlipV:
		return FlipV{}, nil
	case KindResize:
		return Resize{Width: s.Width, Height: s.Height, Filter: s.Filter}, nil
	case KindColorAdjust:
		return ColorAdjust{Hue: s.Hue, Saturation: s.Saturation, Lightness: s.Lightness, Contrast: s.Contrast}, nil
	case KindBrightness:
		return Brightness{Amount: s.Amount}, nil
	case KindContrast:
		return Contrast{Amount: s.Amount}, nil
	case KindSaturation:
		return Saturation{Amount: s.Amount}, nil
	case KindGamma:
		return Gamma{Value: s.Amount}, nil
	case KindHue:
		return Hue{Degrees: s.Degrees}, nil
	case KindGrayscale:
		return Grayscale{}, nil
	case KindInvert:
		return Invert{}, nil
	case KindSepia:
		return Sepia{}, nil
	case KindBlur:
		return Blur{Sigma: s.Sigma}, nil
	case KindSharpen:
		return Sharpen{Sigma: s.Sigma}, nil
	}
	return nil, apperrors.Validation("edit.build", "unknown operation %q", s.Op)
}
