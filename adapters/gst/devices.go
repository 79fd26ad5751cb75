// Package gst implements live capture on top of GStreamer: a V4L2 source
// feeding an appsink that plays the role of the preview surface.
package gst

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

const (
	sinkName       = "sink"
	defaultTimeout = 5 * time.Second
)

var initOnce sync.Once

func initGStreamer() { initOnce.Do(func() { gst.Init(nil) }) }

// Devices opens V4L2 capture devices through GStreamer.
type Devices struct {
	// Device is the V4L2 node, e.g. /dev/video0.
	Device string
	// Timeout bounds negotiation and playback start; default 5s.
	Timeout time.Duration
	Logger  core.Logger
}

// NewDevices returns Devices for the given node.
func NewDevices(device string, logger core.Logger) *Devices {
	return &Devices{Device: device, Timeout: defaultTimeout, Logger: logger}
}

func (d *Devices) timeout() time.Duration {
	if d.Timeout <= 0 {
		return defaultTimeout
	}
	return d.Timeout
}

// Available reports whether GStreamer provides a V4L2 source.
func (d *Devices) Available() bool {
	initGStreamer()
	elem, err := gst.NewElement("v4l2src")
	if err != nil || elem == nil {
		return false
	}
	elem.Unref()
	return true
}

// RequestPermission checks that the process may open the device node.
func (d *Devices) RequestPermission(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(d.Device, os.O_RDWR, 0)
	if err != nil {
		return permissionError(err)
	}
	return f.Close()
}

func permissionError(err error) error {
	switch {
	case errors.Is(err, os.ErrPermission):
		return apperrors.NewPlatformError("NotAllowedError", err.Error())
	case errors.Is(err, os.ErrNotExist):
		return apperrors.NewPlatformError("NotFoundError", err.Error())
	case errors.Is(err, syscall.EBUSY):
		return apperrors.NewPlatformError("NotReadableError", err.Error())
	}
	return apperrors.NewPlatformError(PlatformName(err.Error(), ""), err.Error())
}

// Launch returns the gst-launch description for c.  Size bounds constrain
// the camera's own raw modes; nothing rescales, so a device that offers no
// mode inside the bounds fails negotiation.
func (d *Devices) Launch(c core.Constraints) string {
	raw := []string{"video/x-raw"}
	if f := rangeField("width", c.Width); f != "" {
		raw = append(raw, f)
	}
	if f := rangeField("height", c.Height); f != "" {
		raw = append(raw, f)
	}
	return fmt.Sprintf(
		"v4l2src device=%s ! %s ! videoconvert ! video/x-raw,format=RGBA ! appsink name=%s max-buffers=1 drop=true sync=false",
		d.Device, strings.Join(raw, ","), sinkName,
	)
}

// rangeField renders r as a caps field: a fixed value for an ideal alone, an
// [ideal,max] range when both are set and [1,max] for a bare bound.
func rangeField(name string, r core.Range) string {
	switch {
	case r.Max > 0 && r.Ideal > 0 && r.Max > r.Ideal:
		return fmt.Sprintf("%s=[%d,%d]", name, r.Ideal, r.Max)
	case r.Ideal > 0:
		return fmt.Sprintf("%s=%d", name, r.Ideal)
	case r.Max > 0:
		return fmt.Sprintf("%s=[1,%d]", name, r.Max)
	}
	return ""
}

// aspectTolerance is the relative deviation accepted by AspectWithin.
const aspectTolerance = 0.05

// AspectWithin reports whether a w x h frame matches ratio.  A zero ratio
// matches everything.
func AspectWithin(ratio float64, w, h int) bool {
	if ratio <= 0 {
		return true
	}
	if w <= 0 || h <= 0 {
		return false
	}
	got := float64(w) / float64(h)
	return math.Abs(got-ratio)/ratio <= aspectTolerance
}

// Open builds the capture pipeline for c and starts it, which makes
// GStreamer open the device and negotiate formats.  Negotiation failures
// come back as OverconstrainedError.
func (d *Devices) Open(ctx context.Context, c core.Constraints) (core.Stream, error) {
	initGStreamer()
	launch := d.Launch(c)

	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		return nil, classify(err.Error(), launch)
	}
	elem, err := pipeline.GetElementByName(sinkName)
	if err != nil || elem == nil {
		pipeline.SetState(gst.StateNull)
		return nil, apperrors.NewPlatformError("NotSupportedError", "appsink missing from pipeline")
	}

	s := &Stream{
		id:       uuid.NewString(),
		pipeline: pipeline,
		sink:     app.SinkFromElement(elem),
		logger:   d.Logger,
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		s.Stop()
		return nil, classify(err.Error(), "")
	}
	if err := s.waitPlaying(ctx, d.timeout()); err != nil {
		s.Stop()
		return nil, err
	}
	if err := s.checkAspect(c.AspectRatio); err != nil {
		s.Stop()
		return nil, err
	}
	if d.Logger != nil {
		d.Logger.Info("gst.open", "device", d.Device, "stream", s.id, "caps", launch)
	}
	return s, nil
}

// Stream owns one running capture pipeline.
type Stream struct {
	id       string
	pipeline *gst.Pipeline
	sink     *app.Sink
	logger   core.Logger
	stopOnce sync.Once
}

func (s *Stream) ID() string { return s.id }

// Stop tears the pipeline down, releasing the device.  It is idempotent.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		s.pipeline.SetState(gst.StateNull)
		if s.logger != nil {
			s.logger.Debug("gst.stream.stopped", "stream", s.id)
		}
	})
}

// checkAspect compares the negotiated frame size against ratio.  Caps have
// no frame aspect field, so the ratio is checked after negotiation.
func (s *Stream) checkAspect(ratio float64) error {
	if ratio <= 0 {
		return nil
	}
	pad := s.sink.GetStaticPad("sink")
	if pad == nil {
		return nil
	}
	w, h, ok := CapsSize(pad.GetCurrentCaps())
	if !ok || AspectWithin(ratio, w, h) {
		return nil
	}
	return apperrors.NewPlatformError("OverconstrainedError",
		fmt.Sprintf("negotiated %dx%d does not match aspect ratio %.3f", w, h, ratio))
}

// waitPlaying polls the bus until the pipeline reached PLAYING, reported an
// error or timeout elapsed.
func (s *Stream) waitPlaying(ctx context.Context, timeout time.Duration) error {
	if s.pipeline.GetCurrentState() == gst.StatePlaying {
		return s.drainErrors()
	}
	bus := s.pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			if s.pipeline.GetCurrentState() == gst.StatePlaying {
				return nil
			}
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			return classify(gerr.Error(), gerr.DebugString())
		case gst.MessageStateChanged:
			if msg.Source() == s.pipeline.GetName() {
				if _, st := msg.ParseStateChanged(); st == gst.StatePlaying {
					return nil
				}
			}
		}
	}
	return apperrors.NewPlatformError("AbortError", "timed out waiting for playback")
}

// drainErrors reports a pending bus error without blocking.
func (s *Stream) drainErrors() error {
	bus := s.pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(0)
		if msg == nil {
			return nil
		}
		if msg.Type() == gst.MessageError {
			gerr := msg.ParseError()
			return classify(gerr.Error(), gerr.DebugString())
		}
	}
}

var (
	_ core.MediaDevices = (*Devices)(nil)
	_ core.Stream       = (*Stream)(nil)
)
