package capture

import (
	"context"
	"testing"
	"time"

	"github.com/Skryldev/qrscan/config"
	"github.com/Skryldev/qrscan/core"
)

type idleSink struct{}

func (idleSink) Materialized() bool               { return true }
func (idleSink) Attach(core.Stream) error         { return nil }
func (idleSink) Play(context.Context) error       { return nil }
func (idleSink) Ready() <-chan core.ReadyEvent    { return nil }
func (idleSink) Frame() (*core.PixelBuffer, bool) { return nil, false }
func (idleSink) Detach()                          {}

func TestScanReplacesRunningLoop(t *testing.T) {
	cfg := config.Default().Capture
	cfg.ScanInterval = time.Millisecond
	prim := core.PrimitiveFunc(func(*core.PixelBuffer) (core.Payload, bool) { return core.Payload{}, false })
	s := newSession(NewController(nil, prim, cfg), idleSink{}, nil)

	if err := s.scan(); err != nil {
		t.Fatal(err)
	}
	first := s.Loop()
	if err := s.scan(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first loop still running after re-entry")
	}
	if s.Loop() == first {
		t.Fatal("loop was not replaced")
	}

	second := s.Loop()
	s.Stop()
	select {
	case <-second.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("second loop still running after Stop")
	}
}
