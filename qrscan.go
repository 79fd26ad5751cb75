// Package qrscan turns camera frames and still images into decoded optical
// code payloads.
//
// The still-image path drains a reader, decodes it and runs a cascade of
// pre-transforms until the QR primitive finds a symbol.  The live path is a
// capture session that acquires a device, binds it to a preview sink and
// samples frames until the first hit.
package qrscan

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/Skryldev/qrscan/adapters/decoder"
	"github.com/Skryldev/qrscan/adapters/encoder"
	"github.com/Skryldev/qrscan/adapters/vips"
	"github.com/Skryldev/qrscan/adapters/zxing"
	"github.com/Skryldev/qrscan/capture"
	"github.com/Skryldev/qrscan/config"
	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
	"github.com/Skryldev/qrscan/hooks"
	"github.com/Skryldev/qrscan/pipeline"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
	GIF  = core.FormatGIF
	HEIF = core.FormatHEIF
	TIFF = core.FormatTIFF
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Scanner is the primary entry point.
type Scanner struct {
	cfg     config.Config
	reg     *core.DefaultRegistry
	prim    core.Primitive
	pipe    *pipeline.Pipeline
	inner   *core.Processor
	logger  core.Logger
	metrics *hooks.InMemoryMetrics

	validator core.Validator
	snapshots core.StorageAdapter
	backend   *vips.Backend
}

// Option configures a Scanner at construction.
type Option func(*Scanner)

// WithLogger attaches a structured logger to the processor, the cascade
// and every capture controller created afterwards.
func WithLogger(l core.Logger) Option { return func(s *Scanner) { s.logger = l } }

// WithPrimitive replaces the gozxing QR primitive.
func WithPrimitive(p core.Primitive) Option { return func(s *Scanner) { s.prim = p } }

// WithValidator attaches the collaborator that receives found payloads.
func WithValidator(v core.Validator) Option { return func(s *Scanner) { s.validator = v } }

// WithSnapshots keeps still images that produced no code in store, as PNG.
func WithSnapshots(store core.StorageAdapter) Option { return func(s *Scanner) { s.snapshots = store } }

// WithVips registers b as the decoder for formats without a pure-Go decoder.
func WithVips(b *vips.Backend) Option { return func(s *Scanner) { s.backend = b } }

// New creates a fully wired Scanner with JPEG, PNG, GIF and WebP decoders
// registered and the six-strategy cascade in place.
func New(cfg config.Config, opts ...Option) *Scanner {
	s := &Scanner{
		cfg:     cfg,
		reg:     core.NewRegistry(),
		metrics: hooks.NewInMemoryMetrics(),
	}
	for _, o := range opts {
		o(s)
	}

	decoder.RegisterDefaults(s.reg)
	if s.backend != nil {
		vips.RegisterVipsBackend(s.reg, s.backend, false)
	}
	if s.prim == nil {
		s.prim = zxing.New(zxing.WithTryHarder(cfg.Decode.TryHarder))
	}

	s.pipe = pipeline.NewDefault(s.prim, cfg.Decode).AddHook(hooks.NewMetricsHook(s.metrics))
	if s.logger != nil {
		s.pipe.AddHook(hooks.NewLoggingHook(s.logger))
	} else {
		s.logger = hooks.NopLogger{}
	}

	s.inner = core.New(cfg, s.reg, s.pipe)
	s.inner.SetLogger(s.logger)
	s.inner.SetMetrics(s.metrics)
	if s.validator != nil {
		s.inner.SetValidator(s.validator)
	}
	if s.snapshots != nil {
		s.inner.SetSnapshots(s.snapshots, encoder.NewPNG())
	}
	return s
}

// AddHook registers an observer for strategy events.  Call before the first
// decode.
func (s *Scanner) AddHook(h core.Hook) { s.pipe.AddHook(h) }

// RegisterDecoder registers a custom decoder for the given format.
func (s *Scanner) RegisterDecoder(f core.Format, d core.Decoder) { s.reg.RegisterDecoder(f, d) }

// Strategies lists the cascade in execution order.
func (s *Scanner) Strategies() []string { return s.pipe.Strategies() }

// Start starts the background worker pool.
func (s *Scanner) Start() { s.inner.Start() }

// Stop drains and shuts down the worker pool.
func (s *Scanner) Stop() { s.inner.Stop() }

// DecodeImage decodes one still image.  A miss is reported as a
// KindNoCodeFound error wrapping ErrNoCodeFound.
func (s *Scanner) DecodeImage(ctx context.Context, src core.Source) (core.Payload, error) {
	res, err := s.inner.Process(ctx, src)
	if err != nil {
		return core.Payload{}, err
	}
	if !res.Attempt.Found() {
		return core.Payload{}, apperrors.New(apperrors.KindNoCodeFound, "qrscan.DecodeImage", apperrors.ErrNoCodeFound)
	}
	return *res.Attempt.Payload, nil
}

// Process decodes src and runs the cascade, reporting which strategy hit
// and how long each took.  A miss is not an error.
func (s *Scanner) Process(ctx context.Context, src core.Source) (*core.ProcessingResult, error) {
	return s.inner.Process(ctx, src)
}

// Submit processes src and hands a found payload to the validator.
func (s *Scanner) Submit(ctx context.Context, src core.Source) (*core.Outcome, error) {
	return s.inner.Submit(ctx, src)
}

// Enqueue queues an async job for the worker pool.
func (s *Scanner) Enqueue(job core.Job) error { return s.inner.Enqueue(job) }

// Batch processes independent images concurrently.
func (s *Scanner) Batch(ctx context.Context, sources []core.Source) ([]*core.ProcessingResult, []error) {
	return s.inner.Batch(ctx, sources)
}

// NewController returns a live capture controller over devices sharing the
// Scanner's primitive, logger and metrics.
func (s *Scanner) NewController(devices core.MediaDevices, opts ...capture.Option) *capture.Controller {
	base := []capture.Option{capture.WithLogger(s.logger), capture.WithMetrics(s.metrics)}
	return capture.NewController(devices, s.prim, s.cfg.Capture, append(base, opts...)...)
}

// Stats is a point-in-time view of scanner activity.
type Stats struct {
	Decoded int64                 `json:"decoded"`
	Missed  int64                 `json:"missed"`
	Errors  int64                 `json:"errors"`
	Metrics hooks.MetricsSnapshot `json:"metrics"`
}

// Stats returns lightweight processing statistics.
func (s *Scanner) Stats() Stats {
	return Stats{
		Decoded: s.inner.DecodedCount(),
		Missed:  s.inner.MissCount(),
		Errors:  s.inner.ErrorCount(),
		Metrics: s.metrics.Snapshot(),
	}
}

// ── Source constructors ────────────────────────────────────────────────────────

// FromReader creates a Source from an io.Reader.
func FromReader(r io.Reader) core.Source { return core.Source{Reader: r, Size: -1} }

// FromReaderWithMeta creates a Source with known size and content-type hints.
func FromReaderWithMeta(r io.Reader, size int64, contentType, name string) core.Source {
	return core.Source{Reader: r, Size: size, ContentType: contentType, Name: name}
}

// FromBytes creates a Source over an in-memory image.
func FromBytes(b []byte, name string) core.Source {
	return core.Source{Reader: bytes.NewReader(b), Size: int64(len(b)), Name: name}
}

// FromFile opens path.  The caller closes the returned file once the
// Source has been processed.
func FromFile(path string) (core.Source, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Source{}, nil, apperrors.Wrap(apperrors.KindDecode, "qrscan.FromFile", err)
	}
	size := int64(-1)
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}
	return core.Source{Reader: f, Size: size, Name: filepath.Base(path)}, f, nil
}

// ── Strategy constructors ─────────────────────────────────────────────────────

// Identity returns the unmodified-pass strategy.
func Identity() core.Strategy { return pipeline.IdentityStrategy{} }

// Inversion returns the light-on-dark strategy.
func Inversion() core.Strategy { return pipeline.InversionStrategy{} }

// Contrast returns the contrast-stretch strategy around midpoint.
func Contrast(midpoint int) core.Strategy { return &pipeline.ContrastStrategy{Midpoint: midpoint} }

// Binarize returns the fixed-threshold strategy.
func Binarize(threshold int) core.Strategy { return &pipeline.BinarizeStrategy{Threshold: threshold} }

// Downscale returns the strategy shrinking images larger than max.
func Downscale(max int) core.Strategy { return &pipeline.DownscaleStrategy{MaxDimension: max} }

// Upscale returns the strategy enlarging images smaller than below to target.
func Upscale(below, target int) core.Strategy {
	return &pipeline.UpscaleStrategy{Below: below, Target: target}
}

// NewPipeline creates a standalone cascade over the Scanner's primitive.
func (s *Scanner) NewPipeline(strategies ...core.Strategy) *pipeline.Pipeline {
	return pipeline.New(s.prim).Use(strategies...)
}
