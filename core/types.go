package core

import (
	"context"
	"io"
	"time"
)

// Format identifies a still-image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatGIF     Format = "gif"
	FormatHEIF    Format = "heif"
	FormatTIFF    Format = "tiff"
	FormatUnknown Format = "unknown"
)

// Metadata holds information extracted while decoding a still image.
type Metadata struct {
	Width     int
	Height    int
	Format    Format
	SizeBytes int64
}

// DecodedImage is a still image after codec decode.
type DecodedImage struct {
	Buffer *PixelBuffer
	Format Format
	Meta   Metadata
}

// Point is a corner or finder-pattern location reported by the decode primitive.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Payload is the decoded text of an optical code plus an optional geometry hint.
type Payload struct {
	Text   string  `json:"text"`
	Points []Point `json:"points,omitempty"`
}

// DecodeAttemptResult reports which strategy, if any, produced a payload.
// StrategyIndex is -1 when nothing was found.
type DecodeAttemptResult struct {
	Payload       *Payload
	StrategyIndex int
	Strategy      string
	Tried         []string // names of strategies that ran, in order
}

// Found reports whether the attempt produced a payload.
func (r DecodeAttemptResult) Found() bool { return r.Payload != nil }

// Miss returns the negative result.
func Miss(tried []string) DecodeAttemptResult {
	return DecodeAttemptResult{StrategyIndex: -1, Tried: tried}
}

// ValidationResult is the collaborator's answer for a decoded payload.
type ValidationResult struct {
	Valid     bool           `json:"valid"`
	Reference string         `json:"reference,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// ProcessingResult is returned after a still image went through the cascade.
type ProcessingResult struct {
	Attempt        DecodeAttemptResult
	Meta           Metadata
	ProcessingTime time.Duration
	StepTimings    map[string]time.Duration
}

// Outcome is a ProcessingResult plus the collaborator's answer, when a payload
// was found and handed off.
type Outcome struct {
	*ProcessingResult
	Validation *ValidationResult
}

// Source abstracts where raw still-image bytes come from.
type Source struct {
	Reader      io.Reader
	ContentType string // optional hint
	Name        string // optional logical name / filename
	Size        int64  // -1 if unknown
}

// Job encapsulates a single still image for the worker pool.
type Job struct {
	ID     string
	Ctx    context.Context //nolint:containedctx // intentional for async jobs
	Source Source
	// Validate hands a found payload to the Validator.
	Validate bool
	// Result channel; nil for fire-and-forget.
	ResultCh chan<- JobResult
}

// JobResult wraps the outcome of an async job.
type JobResult struct {
	JobID   string
	Outcome *Outcome
	Err     error
}

// StorageKey uniquely identifies a stored snapshot.
type StorageKey struct {
	Bucket string
	Path   string
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality int // 1-100; 0 = use encoder default
}
