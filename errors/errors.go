package errors

import (
	"errors"
	"fmt"
)

// Kind classifies failures for targeted handling, user messaging and monitoring.
type Kind string

const (
	KindPermissionUnavailable    Kind = "permission_unavailable"
	KindPermissionDenied         Kind = "permission_denied"
	KindDeviceUnavailable        Kind = "device_unavailable"
	KindDeviceBusy               Kind = "device_busy"
	KindConstraintsUnsatisfiable Kind = "constraints_unsatisfiable"
	KindPlaybackBlocked          Kind = "playback_blocked"
	KindNoCodeFound              Kind = "no_code_found"
	KindSessionAlreadyActive     Kind = "session_already_active"
	KindDecode                   Kind = "decode"
	KindEncode                   Kind = "encode"
	KindPipeline                 Kind = "pipeline"
	KindConfig                   Kind = "config"
	KindStorage                  Kind = "storage"
	KindTransient                Kind = "transient"
	KindValidation               Kind = "validation"
)

// UserMessage returns the text a presentation layer shows for the kind.
func (k Kind) UserMessage() string {
	switch k {
	case KindPermissionUnavailable:
		return "This device cannot open a camera. Upload a photo of the code instead."
	case KindPermissionDenied:
		return "Camera access was denied. Allow camera access in your settings and try again."
	case KindDeviceUnavailable:
		return "No camera was found."
	case KindDeviceBusy:
		return "The camera is in use by another application."
	case KindConstraintsUnsatisfiable:
		return "The camera does not support the required video settings."
	case KindPlaybackBlocked:
		return "The camera preview could not start. Tap to start scanning."
	case KindNoCodeFound:
		return "No code was found in the image. Try another photo."
	case KindSessionAlreadyActive:
		return "A scan is already in progress."
	}
	return "Something went wrong while scanning."
}

// Terminal reports whether a live session in this kind of error can only be
// left by a new session.
func (k Kind) Terminal() bool {
	switch k {
	case KindPermissionUnavailable, KindPermissionDenied, KindDeviceUnavailable,
		KindDeviceBusy, KindConstraintsUnsatisfiable, KindPlaybackBlocked:
		return true
	}
	return false
}

// ScanError is the structured error type used throughout the module.
type ScanError struct {
	Kind      Kind
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// New creates a non-retryable ScanError.
func New(kind Kind, op string, err error) *ScanError {
	return &ScanError{Kind: kind, Op: op, Err: err}
}

// Transient creates a retryable ScanError.
func Transient(op string, err error) *ScanError {
	return &ScanError{Kind: KindTransient, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(kind, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" when err is not a ScanError.
func KindOf(err error) Kind {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat    = errors.New("unsupported image format")
	ErrInvalidDimensions    = errors.New("invalid dimensions")
	ErrEmptyInput           = errors.New("empty input")
	ErrWorkerPoolFull       = errors.New("worker pool queue full")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrNoCodeFound          = errors.New("no code found")
	ErrSessionAlreadyActive = errors.New("capture session already active")
	ErrSessionStopped       = errors.New("capture session stopped")
	ErrSinkNotMaterialized  = errors.New("sink is not materialized")
	ErrNoCaptureAPI         = errors.New("platform has no capture api")
	ErrPlaybackExhausted    = errors.New("playback did not start")
)
