package gst_test

import (
	"errors"
	"strings"
	"testing"

	gstlib "github.com/tinyzimmer/go-gst/gst"

	"github.com/Skryldev/qrscan/adapters/gst"
	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

func TestPlatformName(t *testing.T) {
	cases := []struct {
		message, debug string
		want           string
	}{
		{"Could not open device '/dev/video0' for reading and writing.", "system error: Permission denied", "NotAllowedError"},
		{"Device '/dev/video0' is busy", "", "NotReadableError"},
		{"Internal data stream error.", "streaming stopped, reason not-negotiated (-4)", "OverconstrainedError"},
		{"Cannot identify device '/dev/video9'.", "system error: No such file or directory", "NotFoundError"},
		{"something unexpected", "", "AbortError"},
	}
	for _, tc := range cases {
		if got := gst.PlatformName(tc.message, tc.debug); got != tc.want {
			t.Errorf("PlatformName(%q, %q) = %s, want %s", tc.message, tc.debug, got, tc.want)
		}
	}
}

func TestPlatformNamesMapToKinds(t *testing.T) {
	cases := map[string]apperrors.Kind{
		"Permission denied":     apperrors.KindPermissionDenied,
		"device is busy":        apperrors.KindDeviceBusy,
		"reason not-negotiated": apperrors.KindConstraintsUnsatisfiable,
		"No such device":        apperrors.KindDeviceUnavailable,
	}
	for msg, want := range cases {
		err := apperrors.FromPlatform("test", apperrors.NewPlatformError(gst.PlatformName(msg, ""), msg), apperrors.KindDeviceUnavailable)
		if got := apperrors.KindOf(err); got != want {
			t.Errorf("%q: kind %s, want %s", msg, got, want)
		}
	}
}

func TestCapsSize(t *testing.T) {
	gstlib.Init(nil)

	caps := gstlib.NewCapsFromString("video/x-raw, format=(string)RGBA, width=(int)640, height=(int)480, framerate=(fraction)30/1")
	w, h, ok := gst.CapsSize(caps)
	if !ok || w != 640 || h != 480 {
		t.Fatalf("got %dx%d ok=%v", w, h, ok)
	}
	if _, _, ok := gst.CapsSize(gstlib.NewCapsFromString("video/x-raw, format=(string)RGBA")); ok {
		t.Fatal("caps without size should not parse")
	}
	if _, _, ok := gst.CapsSize(nil); ok {
		t.Fatal("nil caps should not parse")
	}
}

func TestLaunchDescribesConstraints(t *testing.T) {
	d := gst.NewDevices("/dev/video2", nil)
	cases := []struct {
		name string
		c    core.Constraints
		want string
	}{
		{
			name: "preferred",
			c: core.Constraints{
				FacingMode: "environment",
				Width:      core.Range{Ideal: 1280, Max: 1920},
				Height:     core.Range{Ideal: 720, Max: 1080},
			},
			want: "v4l2src device=/dev/video2 ! video/x-raw,width=[1280,1920],height=[720,1080] ! videoconvert ! video/x-raw,format=RGBA ! appsink name=sink max-buffers=1 drop=true sync=false",
		},
		{
			name: "bounds only",
			c:    core.Constraints{Width: core.Range{Max: 800}, Height: core.Range{Ideal: 600}},
			want: "v4l2src device=/dev/video2 ! video/x-raw,width=[1,800],height=600 ! videoconvert ! video/x-raw,format=RGBA ! appsink name=sink max-buffers=1 drop=true sync=false",
		},
		{
			name: "minimal",
			c:    core.Constraints{FacingMode: "environment"},
			want: "v4l2src device=/dev/video2 ! video/x-raw ! videoconvert ! video/x-raw,format=RGBA ! appsink name=sink max-buffers=1 drop=true sync=false",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := d.Launch(tc.c)
			if got != tc.want {
				t.Fatalf("launch:\n got %s\nwant %s", got, tc.want)
			}
			if strings.Contains(got, "videoscale") {
				t.Fatal("launch rescales frames")
			}
		})
	}
}

func TestAspectWithin(t *testing.T) {
	cases := []struct {
		ratio float64
		w, h  int
		want  bool
	}{
		{16.0 / 9.0, 1280, 720, true},
		{16.0 / 9.0, 1920, 1080, true},
		{16.0 / 9.0, 640, 480, false},
		{0, 640, 480, true},
		{4.0 / 3.0, 0, 480, false},
	}
	for _, tc := range cases {
		if got := gst.AspectWithin(tc.ratio, tc.w, tc.h); got != tc.want {
			t.Errorf("AspectWithin(%.3f, %d, %d) = %v, want %v", tc.ratio, tc.w, tc.h, got, tc.want)
		}
	}
}

func TestAttachRejectsForeignStream(t *testing.T) {
	s := gst.NewSink(nil)
	err := s.Attach(foreignStream{})
	var pe *apperrors.PlatformError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PlatformError, got %v", err)
	}
	if _, ok := s.Frame(); ok {
		t.Fatal("frame available without stream")
	}
}

func TestSinkVisibility(t *testing.T) {
	s := gst.NewSink(nil)
	if !s.Materialized() {
		t.Fatal("new sink should be materialized")
	}
	s.Hide()
	if s.Materialized() {
		t.Fatal("hidden sink reported materialized")
	}
}

type foreignStream struct{}

func (foreignStream) ID() string { return "foreign" }
func (foreignStream) Stop()      {}
