package core

import (
	"context"
	"io"
	"time"
)

// Decoder converts encoded bytes into a RawImage.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	// Name identifies the decoder in logs and metrics.
	Name() string
	// CanDecode reports whether this decoder handles the given format.
	CanDecode(format Format) bool
	// Decode reads from r and returns the un-normalized frames.
	Decode(ctx context.Context, r io.Reader, opts DecodeOptions) (*RawImage, error)
}

// Encoder serialises canonical frames in a target format.
// Implementations live in adapters/encoder/ and adapters/vips/.
type Encoder interface {
	Encode(ctx context.Context, w io.Writer, frames []Frame, opts EncodeOptions) error
	CanEncode(format Format) bool
}

// SourceReader loads the bytes behind a file-backed ImageSource.
// adapters/storage.Local is the production implementation.
type SourceReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// FrameStore is the slice of the frame cache the scheduler depends on.
// GetOrInsert must invoke compute at most once per in-flight key.
type FrameStore interface {
	GetOrInsert(key Fingerprint, compute func() (*DecodedImage, error)) (img *DecodedImage, hit bool, err error)
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordProcessingTime(stepName string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordMemory(bytes int64)
	RecordError(stepName string, category string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Hook is an optional observer invoked around decode jobs and edits.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, src ImageSource)
	AfterStep(ctx context.Context, stepName string, img *DecodedImage, d time.Duration, err error)
}

// Registry maps formats to codecs and performs normalized decodes.
type Registry interface {
	RegisterDecoder(d Decoder, priority int)
	RegisterEncoder(format Format, e Encoder)
	EncoderFor(format Format) (Encoder, bool)
	CacheKey(src ImageSource) Fingerprint
	Decode(ctx context.Context, src ImageSource, data []byte) (*DecodedImage, error)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
