package capture_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Skryldev/qrscan/capture"
	"github.com/Skryldev/qrscan/config"
	"github.com/Skryldev/qrscan/core"
)

// fakeDevices records every acquisition and release.
type fakeDevices struct {
	unavailable bool
	permErr     error
	openErrs    []error // indexed by Open call; nil entries succeed
	openDelay   func() time.Duration

	mu        sync.Mutex
	openCalls []core.Constraints

	acquired atomic.Int64
	released atomic.Int64
}

func (d *fakeDevices) Available() bool { return !d.unavailable }

func (d *fakeDevices) RequestPermission(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.permErr
}

func (d *fakeDevices) Open(ctx context.Context, c core.Constraints) (core.Stream, error) {
	d.mu.Lock()
	idx := len(d.openCalls)
	d.openCalls = append(d.openCalls, c)
	d.mu.Unlock()

	if idx < len(d.openErrs) && d.openErrs[idx] != nil {
		return nil, d.openErrs[idx]
	}
	if d.openDelay != nil {
		// Opening a real device does not observe cancellation either.
		time.Sleep(d.openDelay())
	}
	d.acquired.Add(1)
	return &fakeStream{devices: d}, nil
}

func (d *fakeDevices) calls() []core.Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.Constraints(nil), d.openCalls...)
}

type fakeStream struct {
	devices *fakeDevices
}

func (s *fakeStream) ID() string { return "fake" }
func (s *fakeStream) Stop()      { s.devices.released.Add(1) }

// fakeSink fails the first failPlays Play calls (-1: all of them).
type fakeSink struct {
	hidden    bool
	failPlays int
	ready     chan core.ReadyEvent

	plays    atomic.Int64
	attaches atomic.Int64
	detaches atomic.Int64

	mu    sync.Mutex
	frame *core.PixelBuffer
}

func newSink() *fakeSink { return &fakeSink{ready: make(chan core.ReadyEvent, 4)} }

func (s *fakeSink) Materialized() bool           { return !s.hidden }
func (s *fakeSink) Detach()                      { s.detaches.Add(1) }
func (s *fakeSink) Ready() <-chan core.ReadyEvent { return s.ready }

func (s *fakeSink) Attach(core.Stream) error {
	s.attaches.Add(1)
	return nil
}

func (s *fakeSink) Play(context.Context) error {
	n := s.plays.Add(1)
	if s.failPlays < 0 || int(n) <= s.failPlays {
		return errors.New("NotAllowedError: play() failed")
	}
	return nil
}

func (s *fakeSink) setFrame(buf *core.PixelBuffer) {
	s.mu.Lock()
	s.frame = buf
	s.mu.Unlock()
}

func (s *fakeSink) Frame() (*core.PixelBuffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.frame != nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func testConfig() config.CaptureConfig {
	cfg := config.Default().Capture
	cfg.ScanInterval = time.Millisecond
	cfg.PlayBackoff = time.Millisecond
	return cfg
}

var miss = core.PrimitiveFunc(func(*core.PixelBuffer) (core.Payload, bool) { return core.Payload{}, false })

func hitWith(text string) core.Primitive {
	return core.PrimitiveFunc(func(*core.PixelBuffer) (core.Payload, bool) { return core.Payload{Text: text}, true })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// stateRecorder collects transitions.
type stateRecorder struct {
	mu     sync.Mutex
	states []core.CaptureState
}

func (r *stateRecorder) record(c capture.StateChange) {
	r.mu.Lock()
	r.states = append(r.states, c.To)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []core.CaptureState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.CaptureState(nil), r.states...)
}
