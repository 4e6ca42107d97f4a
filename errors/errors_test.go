package errors_test

import (
	"errors"
	"fmt"
	"image"
	"io"
	"testing"

	apperrors "github.com/Skryldev/rasterpipe/errors"
)

func TestDecodeFailure_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.DecodeKind
	}{
		{"truncated", io.ErrUnexpectedEOF, apperrors.KindTruncated},
		{"wrapped truncated", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), apperrors.KindTruncated},
		{"unknown format", image.ErrFormat, apperrors.KindUnsupported},
		{"sentinel unsupported", apperrors.ErrUnsupportedFormat, apperrors.KindUnsupported},
		{"anything else", errors.New("bad huffman code"), apperrors.KindCorrupt},
		{"explicit kind kept", apperrors.Decode(apperrors.KindColorSpace, "x", nil), apperrors.KindColorSpace},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := apperrors.DecodeFailure("test.decode", tc.err)
			if !apperrors.IsCategory(err, apperrors.CategoryDecode) {
				t.Fatalf("category: got %v, want decode", err)
			}
			if got := apperrors.KindOf(err); got != tc.want {
				t.Errorf("kind: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeFailure_Nil(t *testing.T) {
	if err := apperrors.DecodeFailure("op", nil); err != nil {
		t.Errorf("got %v, want nil", err)
	}
}

func TestWrap_KeepsCategory(t *testing.T) {
	inner := apperrors.Validation("crop", "width %d out of range", -1)
	err := apperrors.Wrap(apperrors.CategoryInput, "coordinator.apply", inner)
	if !apperrors.IsCategory(err, apperrors.CategoryValidation) {
		t.Errorf("wrapped error lost its category: %v", err)
	}
	if apperrors.Wrap(apperrors.CategoryInput, "x", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestTransient_IsRetryable(t *testing.T) {
	if !apperrors.IsRetryable(apperrors.Transient("read", io.ErrShortBuffer)) {
		t.Error("transient error should be retryable")
	}
	if apperrors.IsRetryable(apperrors.New(apperrors.CategoryFatal, "submit", apperrors.ErrWorkerPoolFull)) {
		t.Error("fatal error should not be retryable")
	}
}
