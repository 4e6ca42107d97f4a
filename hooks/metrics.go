package hooks

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics atomically; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	stepDurationsMs map[string]int64 // cumulative ms per step
	stepCalls       map[string]int64 // call count per step
	stepErrors      map[string]int64

	totalThroughputB int64
	residentB        int64 // latest cache weight, a gauge
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		stepDurationsMs: make(map[string]int64),
		stepCalls:       make(map[string]int64),
		stepErrors:      make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordProcessingTime(stepName string, d interface{ Seconds() float64 }) {
	ms := int64(math.Round(d.Seconds() * 1000))
	m.mu.Lock()
	m.stepDurationsMs[stepName] += ms
	m.stepCalls[stepName]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordThroughput(bytes int64) {
	atomic.AddInt64(&m.totalThroughputB, bytes)
}

func (m *InMemoryMetrics) RecordMemory(bytes int64) {
	atomic.StoreInt64(&m.residentB, bytes)
}

func (m *InMemoryMetrics) RecordError(stepName string, _ string) {
	m.mu.Lock()
	m.stepErrors[stepName]++
	m.mu.Unlock()
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		StepDurationsMs:  make(map[string]int64, len(m.stepDurationsMs)),
		StepCalls:        make(map[string]int64, len(m.stepCalls)),
		StepErrors:       make(map[string]int64, len(m.stepErrors)),
		TotalThroughputB: atomic.LoadInt64(&m.totalThroughputB),
		ResidentB:        atomic.LoadInt64(&m.residentB),
	}
	for k, v := range m.stepDurationsMs {
		snap.StepDurationsMs[k] = v
	}
	for k, v := range m.stepCalls {
		snap.StepCalls[k] = v
	}
	for k, v := range m.stepErrors {
		snap.StepErrors[k] = v
	}
	return snap
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	StepDurationsMs  map[string]int64 `json:"step_durations_ms"`
	StepCalls        map[string]int64 `json:"step_calls"`
	StepErrors       map[string]int64 `json:"step_errors"`
	TotalThroughputB int64            `json:"total_throughput_bytes"`
	ResidentB        int64            `json:"resident_bytes"`
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds decode and edit events into a MetricsCollector.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) BeforeStep(_ context.Context, _ string, _ core.ImageSource) {}

func (h *MetricsHook) AfterStep(_ context.Context, stepName string, _ *core.DecodedImage, d time.Duration, err error) {
	h.collector.RecordProcessingTime(stepName, d)
	if err != nil {
		h.collector.RecordError(stepName, errorCategory(err))
	}
}

func errorCategory(err error) string {
	for _, c := range []apperrors.Category{
		apperrors.CategoryDecode, apperrors.CategoryValidation, apperrors.CategoryStorage,
		apperrors.CategoryEncode, apperrors.CategoryInput, apperrors.CategoryFatal,
	} {
		if apperrors.IsCategory(err, c) {
			return string(c)
		}
	}
	return "unknown"
}
