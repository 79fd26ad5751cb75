// Package capture owns live capture sessions: permission, stream acquisition
// with constraint fallback, attach-and-play retries, frame sampling and
// teardown.
package capture

import (
	"context"
	"sync"

	"github.com/Skryldev/qrscan/config"
	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
	"github.com/Skryldev/qrscan/pipeline"
)

// Controller hands out capture sessions and allows at most one live session
// at a time.  It is safe for concurrent use.
type Controller struct {
	cfg     config.CaptureConfig
	devices core.MediaDevices
	runner  core.PipelineRunner
	logger  core.Logger
	metrics core.MetricsCollector

	mu     sync.Mutex
	active *Session
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger attaches a structured logger.
func WithLogger(l core.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics attaches a metrics collector for session failures.
func WithMetrics(m core.MetricsCollector) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithRunner replaces the per-tick decode attempt.  The default runs only
// the identity strategy.
func WithRunner(r core.PipelineRunner) Option {
	return func(c *Controller) { c.runner = r }
}

// NewController returns a Controller acquiring devices through devices and
// decoding frames with prim.
func NewController(devices core.MediaDevices, prim core.Primitive, cfg config.CaptureConfig, opts ...Option) *Controller {
	c := &Controller{
		cfg:     cfg,
		devices: devices,
		runner:  pipeline.New(prim).Use(pipeline.IdentityStrategy{}),
		logger:  nopLogger{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open creates an Idle session bound to sink.  onDecoded receives at most one
// payload for the session's lifetime.  Open fails with SessionAlreadyActive
// while another session has not reached Error or Stopped.
func (c *Controller) Open(sink core.Sink, onDecoded func(core.Payload)) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil && !c.active.State().Terminal() {
		return nil, apperrors.New(apperrors.KindSessionAlreadyActive, "capture.open", apperrors.ErrSessionAlreadyActive)
	}
	s := newSession(c, sink, onDecoded)
	c.active = s
	return s, nil
}

// Start opens a session and starts it.  On failure the returned session is
// still valid for inspection.
func (c *Controller) Start(ctx context.Context, sink core.Sink, onDecoded func(core.Payload)) (*Session, error) {
	s, err := c.Open(sink, onDecoded)
	if err != nil {
		return nil, err
	}
	return s, s.Start(ctx)
}

// Active returns the most recent session, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Close stops the active session, releasing its device.  The controller
// remains usable.
func (c *Controller) Close() {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

func (c *Controller) release(s *Session) {
	c.mu.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()
}

func (c *Controller) preferred() core.Constraints { return constraintsFrom(c.cfg.Preferred) }
func (c *Controller) minimal() core.Constraints   { return constraintsFrom(c.cfg.Minimal) }

func constraintsFrom(cc config.ConstraintsConfig) core.Constraints {
	return core.Constraints{
		FacingMode:  cc.FacingMode,
		Width:       core.Range{Ideal: cc.IdealWidth, Max: cc.MaxWidth},
		Height:      core.Range{Ideal: cc.IdealHeight, Max: cc.MaxHeight},
		AspectRatio: cc.AspectRatio,
	}
}
