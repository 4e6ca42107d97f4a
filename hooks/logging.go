// Package hooks provides production-ready Hook and Logger implementations.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Skryldev/rasterpipe/core"
)

// ── Zerolog adapter ───────────────────────────────────────────────────────────

// ZerologLogger adapts a zerolog.Logger to core.Logger.  Fields are
// alternating key/value pairs.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps l.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger { return &ZerologLogger{log: l} }

// NewLogger builds a zerolog-backed logger writing to w (stdout when nil).
// format "console" selects the human-readable writer; anything else is JSON.
func NewLogger(level, format string, w io.Writer) (*ZerologLogger, error) {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("hooks: log level %q: %w", level, err)
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return &ZerologLogger{log: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}, nil
}

// Zerolog returns the underlying logger.
func (z *ZerologLogger) Zerolog() zerolog.Logger { return z.log }

func (z *ZerologLogger) Debug(msg string, fields ...interface{}) {
	z.log.Debug().Fields(fields).Msg(msg)
}
func (z *ZerologLogger) Info(msg string, fields ...interface{}) {
	z.log.Info().Fields(fields).Msg(msg)
}
func (z *ZerologLogger) Warn(msg string, fields ...interface{}) {
	z.log.Warn().Fields(fields).Msg(msg)
}
func (z *ZerologLogger) Error(msg string, fields ...interface{}) {
	z.log.Error().Fields(fields).Msg(msg)
}

// ── Structured logger adapter ─────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

func (s *SlogLogger) Debug(msg string, fields ...interface{}) {
	s.log.Debug(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Info(msg string, fields ...interface{}) {
	s.log.Info(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Warn(msg string, fields ...interface{}) {
	s.log.Warn(msg, toAttrs(fields)...)
}
func (s *SlogLogger) Error(msg string, fields ...interface{}) {
	s.log.Error(msg, toAttrs(fields)...)
}

func toAttrs(fields []interface{}) []any { return fields }

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs before/after each decode job and edit.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeStep(_ context.Context, stepName string, src core.ImageSource) {
	h.logger.Debug("pipeline.step.start",
		"step", stepName,
		"source", src.Name(),
		"origin", src.Origin().String(),
	)
}

func (h *LoggingHook) AfterStep(_ context.Context, stepName string, img *core.DecodedImage, d time.Duration, err error) {
	if err != nil {
		h.logger.Error("pipeline.step.error",
			"step", stepName,
			"duration_ms", d.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	out := "nil"
	if img != nil {
		out = fmt.Sprintf("%dx%d %s %d frame(s)", img.Meta.Width, img.Meta.Height, img.Meta.Format, len(img.Frames))
	}
	h.logger.Debug("pipeline.step.done",
		"step", stepName,
		"duration_ms", d.Milliseconds(),
		"output", out,
	)
}
