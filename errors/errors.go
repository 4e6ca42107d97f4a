package errors

import (
	"errors"
	"fmt"
	"image"
	"io"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryDecode     Category = "decode"
	CategoryEncode     Category = "encode"
	CategoryValidation Category = "validation"
	CategorySuperseded Category = "superseded"
	CategoryFatal      Category = "fatal"
	CategoryStorage    Category = "storage"
	CategoryConfig     Category = "config"
	CategoryTransient  Category = "transient"
	CategoryInput      Category = "input"
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category  Category
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a non-retryable ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Transient creates a retryable ProcessingError.
func Transient(op string, err error) *ProcessingError {
	return &ProcessingError{Category: CategoryTransient, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context.  An error that already carries a
// category keeps it.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return &ProcessingError{Category: pe.Category, Op: op, Err: err, Retryable: pe.Retryable}
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// ── Decode failures ───────────────────────────────────────────────────────────

// DecodeKind narrows a decode failure for user-facing reporting.
type DecodeKind string

const (
	KindUnsupported DecodeKind = "unsupported format"
	KindCorrupt     DecodeKind = "corrupt data"
	KindTruncated   DecodeKind = "truncated input"
	KindColorSpace  DecodeKind = "unsupported color space"
	KindRasterize   DecodeKind = "rasterization failed"
)

// DecodeError describes why a source could not be turned into a raster.
type DecodeError struct {
	Kind DecodeKind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode returns a decode-category ProcessingError of the given kind.
func Decode(kind DecodeKind, op string, err error) *ProcessingError {
	return New(CategoryDecode, op, &DecodeError{Kind: kind, Err: err})
}

// DecodeFailure classifies a raw codec error.  Errors that already carry a
// DecodeError are returned with only the op replaced.
func DecodeFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return New(CategoryDecode, op, de)
	}
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return Decode(KindTruncated, op, err)
	case errors.Is(err, image.ErrFormat), errors.Is(err, ErrUnsupportedFormat):
		return Decode(KindUnsupported, op, err)
	}
	return Decode(KindCorrupt, op, err)
}

// KindOf extracts the DecodeKind from err, or "" when err is not a decode failure.
func KindOf(err error) DecodeKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Validation returns a validation-category error for rejected edit parameters.
func Validation(op, format string, args ...interface{}) *ProcessingError {
	return New(CategoryValidation, op, fmt.Errorf(format, args...))
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrEmptyInput         = errors.New("empty input")
	ErrWorkerPoolFull     = errors.New("worker pool queue full")
	ErrSchedulerStopped   = errors.New("scheduler stopped")
	ErrSuperseded         = errors.New("superseded by a newer request")
	ErrNoImage            = errors.New("no image loaded")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")
)
