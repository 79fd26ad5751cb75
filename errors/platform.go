package errors

import (
	"errors"
	"fmt"
)

// PlatformError is a failure reported by the host capture platform, identified
// by the platform's own error name (e.g. "NotAllowedError").
type PlatformError struct {
	Name    string
	Message string
}

func (e *PlatformError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// NewPlatformError returns a PlatformError with the given name and message.
func NewPlatformError(name, message string) *PlatformError {
	return &PlatformError{Name: name, Message: message}
}

// platformKinds is the only place that knows platform error names.
var platformKinds = map[string]Kind{
	"NotAllowedError":             KindPermissionDenied,
	"PermissionDeniedError":       KindPermissionDenied,
	"SecurityError":               KindPermissionDenied,
	"NotFoundError":               KindDeviceUnavailable,
	"DevicesNotFoundError":        KindDeviceUnavailable,
	"NotReadableError":            KindDeviceBusy,
	"TrackStartError":             KindDeviceBusy,
	"AbortError":                  KindDeviceBusy,
	"OverconstrainedError":        KindConstraintsUnsatisfiable,
	"ConstraintNotSatisfiedError": KindConstraintsUnsatisfiable,
	"NotSupportedError":           KindPermissionUnavailable,
}

// KindForPlatformName maps a platform error name to a Kind. Unknown names map
// to KindDeviceUnavailable.
func KindForPlatformName(name string) Kind {
	if k, ok := platformKinds[name]; ok {
		return k
	}
	return KindDeviceUnavailable
}

// FromPlatform converts err into a ScanError for op. Platform errors are mapped
// through KindForPlatformName; ScanErrors pass through unchanged; anything else
// is reported with the fallback kind.
func FromPlatform(op string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	var se *ScanError
	if errors.As(err, &se) {
		return err
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		return New(KindForPlatformName(pe.Name), op, err)
	}
	return New(fallback, op, err)
}
