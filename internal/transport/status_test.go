package transport

import (
	"errors"
	"net/http"
	"testing"

	apperrors "github.com/Skryldev/rasterpipe/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no image", apperrors.New(apperrors.CategoryInput, "op", apperrors.ErrNoImage), http.StatusNotFound},
		{"validation", apperrors.Validation("op", "bad %d", 1), http.StatusUnprocessableEntity},
		{"decode", apperrors.Decode(apperrors.KindCorrupt, "op", errors.New("x")), http.StatusUnprocessableEntity},
		{"input", apperrors.New(apperrors.CategoryInput, "op", apperrors.ErrEmptyInput), http.StatusBadRequest},
		{"superseded", apperrors.New(apperrors.CategorySuperseded, "op", apperrors.ErrSuperseded), http.StatusConflict},
		{"fatal", apperrors.New(apperrors.CategoryFatal, "op", apperrors.ErrSchedulerStopped), http.StatusServiceUnavailable},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor = %d, want %d", got, tt.want)
			}
		})
	}
}
