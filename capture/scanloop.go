package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/qrscan/core"
)

// FrameSource copies the currently visible frame.  ok is false while no frame
// is buffered yet.
type FrameSource func() (buf *core.PixelBuffer, ok bool)

// ScanLoop samples one frame per tick and runs a single decode attempt on it.
// Ticks never overlap: the next tick is scheduled only after the current
// tick's work returned.  The loop stops itself after the first hit.
type ScanLoop struct {
	interval time.Duration
	frames   FrameSource
	runner   core.PipelineRunner
	onHit    func(core.Payload)
	logger   core.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}

	ticks   atomic.Int64
	skipped atomic.Int64
}

// NewScanLoop returns a loop that is not running yet.
func NewScanLoop(interval time.Duration, frames FrameSource, runner core.PipelineRunner, onHit func(core.Payload), logger core.Logger) *ScanLoop {
	if logger == nil {
		logger = nopLogger{}
	}
	return &ScanLoop{
		interval: interval,
		frames:   frames,
		runner:   runner,
		onHit:    onHit,
		logger:   logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop goroutine.  It is idempotent.
func (l *ScanLoop) Start() {
	l.startOnce.Do(func() { go l.run() })
}

// Stop cancels pending ticks.  It never waits for an in-flight tick, so it is
// safe to call from inside onHit.  It is idempotent.
func (l *ScanLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Done is closed once the loop goroutine has exited.
func (l *ScanLoop) Done() <-chan struct{} { return l.done }

// Ticks returns the number of ticks that sampled a frame.
func (l *ScanLoop) Ticks() int64 { return l.ticks.Load() }

// Skipped returns the number of ticks that found no buffered frame.
func (l *ScanLoop) Skipped() int64 { return l.skipped.Load() }

func (l *ScanLoop) stopped() bool {
	select {
	case <-l.stopCh:
		return true
	default:
		return false
	}
}

func (l *ScanLoop) run() {
	defer close(l.done)
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-timer.C:
		}
		if l.tick() {
			return
		}
		timer.Reset(l.interval)
	}
}

// tick reports whether the loop is finished.
func (l *ScanLoop) tick() bool {
	if l.stopped() {
		return true
	}
	frame, ok := l.frames()
	if !ok || frame == nil {
		l.skipped.Add(1)
		return false
	}
	l.ticks.Add(1)

	res, _, err := l.runner.Run(context.Background(), frame)
	if err != nil {
		l.logger.Debug("scanloop.error", "error", err.Error())
		return false
	}
	if !res.Found() {
		return false
	}
	l.Stop()
	l.logger.Debug("scanloop.hit", "ticks", l.ticks.Load())
	l.onHit(*res.Payload)
	return true
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
