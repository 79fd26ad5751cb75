// Package hooks provides production-ready Hook and Logger implementations.
package hooks

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

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

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs before/after each applied decode strategy.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeStep(_ context.Context, stepName string, buf *core.PixelBuffer) {
	h.logger.Debug("pipeline.strategy.start",
		"strategy", stepName,
		"width", buf.Width(),
		"height", buf.Height(),
	)
}

func (h *LoggingHook) AfterStep(_ context.Context, stepName string, payload *core.Payload, d time.Duration, err error) {
	if err != nil {
		h.logger.Error("pipeline.strategy.error",
			"strategy", stepName,
			"duration_ms", d.Milliseconds(),
			"error", err.Error(),
		)
		return
	}
	h.logger.Debug("pipeline.strategy.done",
		"strategy", stepName,
		"duration_ms", d.Milliseconds(),
		"hit", payload != nil,
	)
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	stepDurationsMs map[string]int64 // cumulative ms per strategy
	stepCalls       map[string]int64 // call count per strategy
	stepHits        map[string]int64
	stepErrors      map[string]int64
	errorKinds      map[string]int64

	attempts int64
	hits     int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		stepDurationsMs: make(map[string]int64),
		stepCalls:       make(map[string]int64),
		stepHits:        make(map[string]int64),
		stepErrors:      make(map[string]int64),
		errorKinds:      make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordProcessingTime(stepName string, d interface{ Seconds() float64 }) {
	ms := int64(d.Seconds() * 1000)
	m.mu.Lock()
	m.stepDurationsMs[stepName] += ms
	m.stepCalls[stepName]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordAttempt(stepName string, hit bool) {
	atomic.AddInt64(&m.attempts, 1)
	if !hit {
		return
	}
	atomic.AddInt64(&m.hits, 1)
	m.mu.Lock()
	m.stepHits[stepName]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordError(stepName string, kind string) {
	m.mu.Lock()
	m.stepErrors[stepName]++
	m.errorKinds[kind]++
	m.mu.Unlock()
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		StepDurationsMs: copyCounts(m.stepDurationsMs),
		StepCalls:       copyCounts(m.stepCalls),
		StepHits:        copyCounts(m.stepHits),
		StepErrors:      copyCounts(m.stepErrors),
		ErrorKinds:      copyCounts(m.errorKinds),
		Attempts:        atomic.LoadInt64(&m.attempts),
		Hits:            atomic.LoadInt64(&m.hits),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	StepDurationsMs map[string]int64 `json:"step_durations_ms"`
	StepCalls       map[string]int64 `json:"step_calls"`
	StepHits        map[string]int64 `json:"step_hits"`
	StepErrors      map[string]int64 `json:"step_errors"`
	ErrorKinds      map[string]int64 `json:"error_kinds"`
	Attempts        int64            `json:"attempts"`
	Hits            int64            `json:"hits"`
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds pipeline events into a MetricsCollector.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) BeforeStep(context.Context, string, *core.PixelBuffer) {}

func (h *MetricsHook) AfterStep(_ context.Context, stepName string, payload *core.Payload, d time.Duration, err error) {
	h.collector.RecordProcessingTime(stepName, d)
	if err != nil {
		kind := string(apperrors.KindOf(err))
		if kind == "" {
			kind = string(apperrors.KindPipeline)
		}
		h.collector.RecordError(stepName, kind)
		return
	}
	h.collector.RecordAttempt(stepName, payload != nil)
}
