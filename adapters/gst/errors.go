package gst

import (
	"strings"

	apperrors "github.com/Skryldev/qrscan/errors"
)

// Keyword tables translating GStreamer/V4L2 failure text into the platform
// error names understood by errors.KindForPlatformName.  Checked in order,
// most specific first.
var platformKeywords = []struct {
	name     string
	keywords []string
}{
	{"NotAllowedError", []string{
		"permission denied",
		"not permitted",
		"not authorized",
		"eacces",
	}},
	{"NotReadableError", []string{
		"device or resource busy",
		"busy",
		"in use",
		"ebusy",
		"failed to allocate",
	}},
	{"OverconstrainedError", []string{
		"not-negotiated",
		"not negotiated",
		"could not negotiate",
		"no supported format",
		"unsupported resolution",
		"caps",
	}},
	{"NotFoundError", []string{
		"no such file",
		"no such device",
		"cannot identify device",
		"does not exist",
		"not found",
		"enoent",
		"no element",
	}},
}

// PlatformName classifies GStreamer error text.  Unrecognised text yields
// "AbortError", which maps to a busy device.
func PlatformName(message, debug string) string {
	combined := strings.ToLower(message + " " + debug)
	for _, entry := range platformKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(combined, kw) {
				return entry.name
			}
		}
	}
	return "AbortError"
}

// classify wraps GStreamer error text as a PlatformError.
func classify(message, debug string) error {
	return apperrors.NewPlatformError(PlatformName(message, debug), message)
}
