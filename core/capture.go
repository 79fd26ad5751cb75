package core

import "fmt"

// CaptureState is the lifecycle state of one live capture session.
type CaptureState int

const (
	StateIdle CaptureState = iota
	StateRequestingPermission
	StateNegotiating
	StateAttaching
	StateScanning
	StateError
	StateStopped
)

func (s CaptureState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting_permission"
	case StateNegotiating:
		return "negotiating"
	case StateAttaching:
		return "attaching"
	case StateScanning:
		return "scanning"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// HoldsDevice reports whether a session in this state owns a device stream.
func (s CaptureState) HoldsDevice() bool {
	return s == StateAttaching || s == StateScanning
}

// Terminal reports whether no further transition except Stopped is possible.
func (s CaptureState) Terminal() bool {
	return s == StateError || s == StateStopped
}

// Range is an ideal/max bound on one capture dimension. Zero means unset.
type Range struct {
	Ideal int
	Max   int
}

// Constraints is a capture constraint request.
type Constraints struct {
	FacingMode  string  // "environment" or "user"
	Width       Range
	Height      Range
	AspectRatio float64 // ideal width/height; 0 = unset
}

// Minimal reports whether the request only names a facing direction.
func (c Constraints) Minimal() bool {
	return c.Width == (Range{}) && c.Height == (Range{}) && c.AspectRatio == 0
}

// ReadyEvent is a readiness notification from a Sink.
type ReadyEvent string

const (
	EventLoadedMetadata ReadyEvent = "loadedmetadata"
	EventCanPlay        ReadyEvent = "canplay"
)
