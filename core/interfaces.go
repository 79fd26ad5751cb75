package core

import (
	"context"
	"image"
	"io"
	"time"
)

// Decoder converts raw still-image bytes into a DecodedImage.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	// Decode reads from r and returns the decoded pixels.
	Decode(ctx context.Context, r io.Reader) (*DecodedImage, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises an image to bytes in a target format.
// Implementations live in adapters/encoder/.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// StorageAdapter persists snapshots and retrieves them later.
// Implementations live in adapters/storage/.
type StorageAdapter interface {
	Put(ctx context.Context, key StorageKey, r io.Reader, meta map[string]string) error
	Get(ctx context.Context, key StorageKey) (io.ReadCloser, error)
	Delete(ctx context.Context, key StorageKey) error
	Exists(ctx context.Context, key StorageKey) (bool, error)
}

// MetricsCollector receives observations from the decode cascade and sessions.
type MetricsCollector interface {
	RecordProcessingTime(name string, d interface{ Seconds() float64 })
	RecordAttempt(name string, hit bool)
	RecordError(name string, kind string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Registry maps Format values to Decoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	RegisterDecoder(format Format, d Decoder)
}

// Primitive is the optical-decode building block: pixels in, payload or nothing out.
type Primitive interface {
	Decode(buf *PixelBuffer) (Payload, bool)
}

// PrimitiveFunc adapts a function to Primitive.
type PrimitiveFunc func(buf *PixelBuffer) (Payload, bool)

func (f PrimitiveFunc) Decode(buf *PixelBuffer) (Payload, bool) { return f(buf) }

// Strategy is one pre-transform of the decode cascade. Strategies are
// stateless and must be safe for concurrent use.
type Strategy interface {
	Name() string
	// Applicable reports whether the strategy runs for buf at all.
	Applicable(buf *PixelBuffer) bool
	// Transform returns the buffer handed to the primitive. It never mutates buf.
	Transform(ctx context.Context, buf *PixelBuffer) (*PixelBuffer, error)
}

// Hook is an optional observer invoked around each applied strategy.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, buf *PixelBuffer)
	AfterStep(ctx context.Context, stepName string, payload *Payload, d time.Duration, err error)
}

// Validator is the downstream collaborator that validates or initiates a
// payment for a decoded payload.
type Validator interface {
	Validate(ctx context.Context, payload Payload) (ValidationResult, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, payload Payload) (ValidationResult, error)

func (f ValidatorFunc) Validate(ctx context.Context, payload Payload) (ValidationResult, error) {
	return f(ctx, payload)
}

// MediaDevices is the host platform's capture API.
type MediaDevices interface {
	// Available reports whether the platform offers any capture capability.
	Available() bool
	// RequestPermission blocks until access is granted or denied.
	RequestPermission(ctx context.Context) error
	// Open acquires a device stream satisfying c.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an exclusively owned device stream. Stop releases the device.
type Stream interface {
	ID() string
	Stop()
}

// Sink is the presentation element a stream is bound to (the preview surface).
type Sink interface {
	// Materialized reports whether the sink is present in the presentation layer.
	Materialized() bool
	Attach(s Stream) error
	Play(ctx context.Context) error
	// Ready delivers readiness events (metadata loaded, can play).
	Ready() <-chan ReadyEvent
	// Frame copies the currently visible frame. ok is false while the sink
	// has not buffered enough data.
	Frame() (buf *PixelBuffer, ok bool)
	Detach()
}
