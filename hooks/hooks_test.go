package hooks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
	"github.com/Skryldev/rasterpipe/hooks"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func decoded(t *testing.T, w, h int) *core.DecodedImage {
	t.Helper()
	return &core.DecodedImage{
		Frames: []core.Frame{{Image: image.NewNRGBA(image.Rect(0, 0, w, h))}},
		Meta:   core.Metadata{Width: w, Height: h, Format: core.FormatPNG},
	}
}

// lines decodes each JSON log line written to buf.
func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		m := map[string]interface{}{}
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("log line %q is not JSON: %v", l, err)
		}
		out = append(out, m)
	}
	return out
}

// ── Loggers ───────────────────────────────────────────────────────────────────

func TestZerologLogger_FieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := hooks.NewLogger("info", "json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	l.Debug("hidden", "k", 1)
	l.Warn("cache.overcapacity", "weight", 300, "capacity", 256)

	got := lines(t, &buf)
	if len(got) != 1 {
		t.Fatalf("got %d lines, want 1 (debug filtered): %v", len(got), got)
	}
	if got[0]["message"] != "cache.overcapacity" || got[0]["level"] != "warn" {
		t.Errorf("unexpected entry %v", got[0])
	}
	if got[0]["weight"] != float64(300) || got[0]["capacity"] != float64(256) {
		t.Errorf("fields not carried: %v", got[0])
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := hooks.NewLogger("loud", "json", nil); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	l, err := hooks.NewLogger("debug", "console", &buf)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("coordinator.display", "source", "a.png")
	if out := buf.String(); !strings.Contains(out, "coordinator.display") || strings.HasPrefix(out, "{") {
		t.Errorf("unexpected console output %q", out)
	}
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	l := hooks.NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	l.Error("scheduler.job.failed", "slot", "display")

	got := lines(t, &buf)
	if len(got) != 1 || got[0]["msg"] != "scheduler.job.failed" || got[0]["slot"] != "display" {
		t.Errorf("unexpected output %v", got)
	}
}

// ── Hooks ─────────────────────────────────────────────────────────────────────

func TestLoggingHook(t *testing.T) {
	var buf bytes.Buffer
	l := hooks.NewZerologLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	h := hooks.NewLoggingHook(l)
	ctx := context.Background()
	src := core.NewBytesSource([]byte{1, 2, 3}, "png")

	h.BeforeStep(ctx, "decode", src)
	h.AfterStep(ctx, "decode", decoded(t, 4, 3), 12*time.Millisecond, nil)
	h.AfterStep(ctx, "edit", nil, time.Millisecond, errors.New("boom"))

	got := lines(t, &buf)
	if len(got) != 3 {
		t.Fatalf("got %d lines, want 3", len(got))
	}
	if got[0]["message"] != "pipeline.step.start" || got[0]["origin"] != "bytes" {
		t.Errorf("start entry %v", got[0])
	}
	if got[1]["output"] != "4x3 png 1 frame(s)" || got[1]["duration_ms"] != float64(12) {
		t.Errorf("done entry %v", got[1])
	}
	if got[2]["level"] != "error" || got[2]["error"] != "boom" {
		t.Errorf("error entry %v", got[2])
	}
}

func TestMetricsHook(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	h := hooks.NewMetricsHook(m)
	ctx := context.Background()

	h.AfterStep(ctx, "decode", nil, 20*time.Millisecond, nil)
	h.AfterStep(ctx, "decode", nil, 30*time.Millisecond,
		apperrors.Decode(apperrors.KindCorrupt, "png.decode", errors.New("bad crc")))
	h.AfterStep(ctx, "edit", nil, time.Millisecond,
		apperrors.Validation("pipeline.push", "amount out of range"))

	s := m.Snapshot()
	if s.StepCalls["decode"] != 2 || s.StepDurationsMs["decode"] != 50 {
		t.Errorf("decode stats: calls=%d ms=%d", s.StepCalls["decode"], s.StepDurationsMs["decode"])
	}
	if s.StepErrors["decode"] != 1 || s.StepErrors["edit"] != 1 {
		t.Errorf("errors: %v", s.StepErrors)
	}
}

func TestInMemoryMetrics_ConcurrentAndGauge(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordThroughput(100)
			m.RecordProcessingTime("decode", time.Millisecond)
		}()
	}
	wg.Wait()
	m.RecordMemory(4096)
	m.RecordMemory(1024)

	s := m.Snapshot()
	if s.TotalThroughputB != 5000 {
		t.Errorf("throughput = %d, want 5000", s.TotalThroughputB)
	}
	if s.StepCalls["decode"] != 50 {
		t.Errorf("calls = %d, want 50", s.StepCalls["decode"])
	}
	if s.ResidentB != 1024 {
		t.Errorf("resident = %d, want the latest value 1024", s.ResidentB)
	}
}
