package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

// StateChange describes one session transition.
type StateChange struct {
	SessionID string
	From      core.CaptureState
	To        core.CaptureState
	// Err is set for transitions into StateError.
	Err error
}

// Session is one lifecycle of live device acquisition, from permission
// request to teardown.  A device stream is held only in Attaching and
// Scanning and is released on every exit path.
type Session struct {
	id        string
	ctrl      *Controller
	sink      core.Sink
	onDecoded func(core.Payload)

	mu        sync.Mutex
	state     core.CaptureState
	err       error
	stream    core.Stream
	loop      *ScanLoop
	started   bool
	stopped   bool
	delivered bool
	listeners []func(StateChange)

	stopCh chan struct{}
}

func newSession(c *Controller, sink core.Sink, onDecoded func(core.Payload)) *Session {
	return &Session{
		id:        uuid.NewString(),
		ctrl:      c,
		sink:      sink,
		onDecoded: onDecoded,
		state:     core.StateIdle,
		stopCh:    make(chan struct{}),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() core.CaptureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that moved the session into StateError, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Loop returns the running scan loop, or nil before Scanning.
func (s *Session) Loop() *ScanLoop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

// OnStateChange registers fn for every later transition.  fn runs without
// any session lock held and may call Stop.
func (s *Session) OnStateChange(fn func(StateChange)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Start drives the session from Idle to Scanning.  It blocks until scanning
// has begun or the session failed; ctx bounds only this start-up phase.
// Start on a session that was already started fails with
// SessionAlreadyActive, on a stopped one with ErrSessionStopped.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return apperrors.ErrSessionStopped
	}
	if s.started || s.state != core.StateIdle {
		s.mu.Unlock()
		return apperrors.New(apperrors.KindSessionAlreadyActive, "capture.start", apperrors.ErrSessionAlreadyActive)
	}
	s.started = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.start(ctx)
	if err != nil && !errors.Is(err, apperrors.ErrSessionStopped) && ctx.Err() != nil && s.State() != core.StateError {
		// Caller gave up: tear down like an explicit stop.
		s.Stop()
		return ctx.Err()
	}
	return err
}

func (s *Session) start(ctx context.Context) error {
	devices := s.ctrl.devices
	if devices == nil || !devices.Available() {
		return s.fail(apperrors.New(apperrors.KindPermissionUnavailable, "capture.permission", apperrors.ErrNoCaptureAPI))
	}

	// ── RequestingPermission ──────────────────────────────────────────────
	if err := s.transition(core.StateRequestingPermission); err != nil {
		return err
	}
	if err := devices.RequestPermission(ctx); err != nil {
		if ctx.Err() != nil {
			return s.interrupted(ctx)
		}
		return s.fail(apperrors.FromPlatform("capture.permission", err, apperrors.KindPermissionDenied))
	}

	// ── Negotiating ───────────────────────────────────────────────────────
	if err := s.transition(core.StateNegotiating); err != nil {
		return err
	}
	stream, err := s.negotiate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.interrupted(ctx)
		}
		return s.fail(err)
	}

	// ── Attaching ─────────────────────────────────────────────────────────
	if err := s.own(stream); err != nil {
		return err
	}
	if !s.sink.Materialized() {
		return s.fail(apperrors.New(apperrors.KindPlaybackBlocked, "capture.attach", apperrors.ErrSinkNotMaterialized))
	}
	if err := s.sink.Attach(stream); err != nil {
		return s.fail(apperrors.New(apperrors.KindPlaybackBlocked, "capture.attach", err))
	}
	if s.isStopped() {
		// Stop released the stream while Attach was running.
		s.sink.Detach()
		return apperrors.ErrSessionStopped
	}
	if err := s.play(ctx); err != nil {
		if errors.Is(err, apperrors.ErrSessionStopped) {
			return err
		}
		if ctx.Err() != nil {
			return s.interrupted(ctx)
		}
		return s.fail(err)
	}

	// ── Scanning ──────────────────────────────────────────────────────────
	return s.scan()
}

// negotiate opens a stream with the preferred constraints and retries once
// with the minimal set when the device cannot satisfy them.
func (s *Session) negotiate(ctx context.Context) (core.Stream, error) {
	devices := s.ctrl.devices
	stream, err := devices.Open(ctx, s.ctrl.preferred())
	if err == nil {
		return stream, nil
	}
	err = apperrors.FromPlatform("capture.negotiate", err, apperrors.KindDeviceUnavailable)
	if !apperrors.IsKind(err, apperrors.KindConstraintsUnsatisfiable) || ctx.Err() != nil {
		return nil, err
	}

	s.ctrl.logger.Info("capture.negotiate.fallback", "session", s.id, "error", err.Error())
	stream, err = devices.Open(ctx, s.ctrl.minimal())
	if err != nil {
		return nil, apperrors.FromPlatform("capture.negotiate.minimal", err, apperrors.KindDeviceUnavailable)
	}
	return stream, nil
}

// play starts playback, retrying until MaxPlayAttempts calls have failed.
// Each retry waits for whichever comes first: a sink readiness event or the
// linear backoff timer.
func (s *Session) play(ctx context.Context) error {
	attempts := s.ctrl.cfg.MaxPlayAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			trigger, err := s.awaitRetry(ctx, attempt-1)
			if err != nil {
				return err
			}
			s.ctrl.logger.Debug("capture.play.retry", "session", s.id, "attempt", attempt, "trigger", string(trigger))
		}
		if s.isStopped() {
			return apperrors.ErrSessionStopped
		}
		err := s.sink.Play(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		s.ctrl.logger.Debug("capture.play.failed", "session", s.id, "attempt", attempt, "error", err.Error())
	}
	return apperrors.New(apperrors.KindPlaybackBlocked, "capture.play",
		fmt.Errorf("%w after %d attempts: %v", apperrors.ErrPlaybackExhausted, attempts, lastErr))
}

// awaitRetry blocks until the gate for retry n resolves.
func (s *Session) awaitRetry(ctx context.Context, n int) (Trigger, error) {
	gate := NewGate()
	timer := time.AfterFunc(s.ctrl.cfg.PlayBackoff*time.Duration(n), func() { gate.Fire(TriggerTimer) })
	defer timer.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case _, ok := <-s.sink.Ready():
			if ok {
				gate.Fire(TriggerReady)
			}
		case <-done:
		}
	}()

	select {
	case t := <-gate.C():
		return t, nil
	case <-s.stopCh:
		return "", apperrors.ErrSessionStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) scan() error {
	loop := NewScanLoop(s.ctrl.cfg.ScanInterval, s.sink.Frame, s.ctrl.runner, s.deliver, s.ctrl.logger)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return apperrors.ErrSessionStopped
	}
	if s.loop != nil {
		s.loop.Stop()
	}
	s.loop = loop
	change := s.setStateLocked(core.StateScanning, nil)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.notify(listeners, change)
	loop.Start()
	return nil
}

// deliver hands the first payload to the collaborator.  Payloads that arrive
// after Stop or after a previous delivery are dropped.
func (s *Session) deliver(p core.Payload) {
	s.mu.Lock()
	if s.stopped || s.delivered {
		s.mu.Unlock()
		return
	}
	s.delivered = true
	cb := s.onDecoded
	s.mu.Unlock()

	s.ctrl.logger.Info("capture.decoded", "session", s.id, "length", len(p.Text))
	if cb != nil {
		cb(p)
	}
}

// Stop cancels the session from any state, releases the device and leaves
// the session in Stopped.  It never waits on the scan loop, so it may be
// called from inside the decode callback.  Stop is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	stream := s.stream
	s.stream = nil
	loop := s.loop
	change := s.setStateLocked(core.StateStopped, nil)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	s.releaseStream(stream)
	s.ctrl.release(s)
	s.ctrl.logger.Debug("capture.stopped", "session", s.id)
	s.notify(listeners, change)
}

// ── transitions ───────────────────────────────────────────────────────────────

// transition moves to a non-terminal state unless the session was stopped.
func (s *Session) transition(to core.CaptureState) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return apperrors.ErrSessionStopped
	}
	change := s.setStateLocked(to, nil)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.notify(listeners, change)
	return nil
}

// own takes ownership of a freshly opened stream and enters Attaching.  A
// stream arriving after Stop is released immediately.
func (s *Session) own(stream core.Stream) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		stream.Stop()
		return apperrors.ErrSessionStopped
	}
	s.stream = stream
	change := s.setStateLocked(core.StateAttaching, nil)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.notify(listeners, change)
	return nil
}

// fail releases any held stream, then enters Error.  After Stop the failure
// is not reported as a state.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return apperrors.ErrSessionStopped
	}
	stream := s.stream
	s.stream = nil
	s.err = err
	change := s.setStateLocked(core.StateError, err)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.releaseStream(stream)
	kind := apperrors.KindOf(err)
	s.ctrl.logger.Warn("capture.error", "session", s.id, "kind", string(kind), "error", err.Error())
	if s.ctrl.metrics != nil {
		s.ctrl.metrics.RecordError("capture", string(kind))
	}
	s.notify(listeners, change)
	return err
}

// interrupted handles a start-up call that returned because ctx ended.
func (s *Session) interrupted(ctx context.Context) error {
	if s.isStopped() {
		return apperrors.ErrSessionStopped
	}
	return ctx.Err()
}

func (s *Session) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Session) releaseStream(stream core.Stream) {
	if stream == nil {
		return
	}
	s.sink.Detach()
	stream.Stop()
}

func (s *Session) setStateLocked(to core.CaptureState, err error) StateChange {
	from := s.state
	s.state = to
	return StateChange{SessionID: s.id, From: from, To: to, Err: err}
}

func (s *Session) listenersLocked() []func(StateChange) {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]func(StateChange), len(s.listeners))
	copy(out, s.listeners)
	return out
}

func (s *Session) notify(listeners []func(StateChange), change StateChange) {
	s.ctrl.logger.Debug("capture.state",
		"session", change.SessionID,
		"from", change.From.String(),
		"to", change.To.String(),
	)
	for _, fn := range listeners {
		fn(change)
	}
}
