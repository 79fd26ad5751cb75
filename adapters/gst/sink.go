package gst

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

// Sink is the appsink-backed preview surface.  It keeps only the most
// recent frame; older ones are dropped by the pipeline itself.
type Sink struct {
	shown  atomic.Bool
	logger core.Logger

	mu      sync.Mutex
	stream  *Stream
	frame   *core.PixelBuffer
	samples uint64

	ready chan core.ReadyEvent
}

// NewSink returns a materialized sink.
func NewSink(logger core.Logger) *Sink {
	s := &Sink{logger: logger, ready: make(chan core.ReadyEvent, 4)}
	s.shown.Store(true)
	return s
}

// Show and Hide toggle whether the sink counts as present.
func (s *Sink) Show() { s.shown.Store(true) }
func (s *Sink) Hide() { s.shown.Store(false) }

func (s *Sink) Materialized() bool { return s.shown.Load() }

func (s *Sink) Ready() <-chan core.ReadyEvent { return s.ready }

// Attach binds the sink to a stream opened by Devices.
func (s *Sink) Attach(stream core.Stream) error {
	gs, ok := stream.(*Stream)
	if !ok {
		return apperrors.NewPlatformError("NotSupportedError", fmt.Sprintf("stream %T is not a gstreamer stream", stream))
	}
	s.mu.Lock()
	s.stream = gs
	s.frame = nil
	s.samples = 0
	s.mu.Unlock()

	gs.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return s.onSample(gs, sink)
		},
	})
	return nil
}

// Play resumes the pipeline and fails with the classified bus error if
// GStreamer refuses.
func (s *Sink) Play(ctx context.Context) error {
	s.mu.Lock()
	gs := s.stream
	s.mu.Unlock()
	if gs == nil {
		return apperrors.NewPlatformError("InvalidStateError", "sink has no stream attached")
	}
	if err := gs.pipeline.SetState(gst.StatePlaying); err != nil {
		return classify(err.Error(), "")
	}
	if err := gs.waitPlaying(ctx, defaultTimeout); err != nil {
		return err
	}
	s.emit(core.EventCanPlay)
	return nil
}

// Frame returns the latest sample.  Buffers are never mutated after they
// are published, so no copy is needed here.
func (s *Sink) Frame() (*core.PixelBuffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.frame != nil
}

// Detach unbinds the stream. The stream itself is stopped by its owner.
func (s *Sink) Detach() {
	s.mu.Lock()
	gs := s.stream
	s.stream = nil
	s.frame = nil
	s.mu.Unlock()
	if gs != nil {
		gs.sink.SetCallbacks(&app.SinkCallbacks{})
	}
}

// Samples is the number of frames received since the last Attach.
func (s *Sink) Samples() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

func (s *Sink) onSample(owner *Stream, sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	w, h, ok := CapsSize(sample.GetCaps())
	if !ok {
		return gst.FlowOK
	}

	mapped := buffer.Map(gst.MapRead)
	if mapped == nil {
		return gst.FlowOK
	}
	data := append([]byte(nil), mapped.Bytes()...)
	buffer.Unmap()

	buf, err := core.NewPixelBuffer(w, h, data)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("gst.sample.invalid", "width", w, "height", h, "bytes", len(data), "error", err)
		}
		return gst.FlowOK
	}

	s.mu.Lock()
	if s.stream != owner {
		s.mu.Unlock()
		return gst.FlowOK
	}
	s.frame = buf
	s.samples++
	first := s.samples == 1
	s.mu.Unlock()

	if first {
		s.emit(core.EventLoadedMetadata)
	}
	return gst.FlowOK
}

func (s *Sink) emit(ev core.ReadyEvent) {
	select {
	case s.ready <- ev:
	default:
	}
}

// CapsSize reads the frame size from the first structure of caps.
func CapsSize(caps *gst.Caps) (w, h int, ok bool) {
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, false
	}
	st := caps.GetStructureAt(0)
	if st == nil {
		return 0, 0, false
	}
	w = intField(st, "width")
	h = intField(st, "height")
	return w, h, w > 0 && h > 0
}

func intField(st *gst.Structure, name string) int {
	v, err := st.GetValue(name)
	if err != nil {
		return 0
	}
	n, _ := v.(int)
	return n
}

var _ core.Sink = (*Sink)(nil)
