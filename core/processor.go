package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/qrscan/config"
	apperrors "github.com/Skryldev/qrscan/errors"
	"github.com/Skryldev/qrscan/utils"
)

// PipelineRunner is a minimal interface over pipeline.Pipeline so that core
// does not import the pipeline package (avoiding a circular dependency).
type PipelineRunner interface {
	Run(ctx context.Context, buf *PixelBuffer) (DecodeAttemptResult, map[string]time.Duration, error)
}

// SnapshotBucket is the storage bucket for still images that produced no code.
const SnapshotBucket = "misses"

// Processor is the still-image orchestrator: it drains a source, decodes the
// image, runs the strategy cascade and hands a found payload to the
// Validator.  It is safe for concurrent use.
type Processor struct {
	cfg       config.Config
	registry  Registry
	runner    PipelineRunner
	validator Validator
	snapshots StorageAdapter
	encoder   Encoder
	logger    Logger
	metrics   MetricsCollector

	// Worker pool.
	jobQueue chan Job
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
	shutdown chan struct{}

	// Atomic counters for lightweight internal metrics.
	decodedCount int64
	missCount    int64
	errorCount   int64
}

// New creates a Processor with the given config.  Call Start() before
// enqueuing jobs; call Stop() when done.
func New(cfg config.Config, reg Registry, runner PipelineRunner) *Processor {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Processor{
		cfg:      cfg,
		registry: reg,
		runner:   runner,
		logger:   nopLogger{},
		jobQueue: make(chan Job, queueSize),
		shutdown: make(chan struct{}),
	}
}

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l Logger) {
	if l == nil {
		l = nopLogger{}
	}
	p.logger = l
}

// SetMetrics attaches a metrics collector.
func (p *Processor) SetMetrics(m MetricsCollector) { p.metrics = m }

// SetValidator attaches the collaborator that receives found payloads.
func (p *Processor) SetValidator(v Validator) { p.validator = v }

// SetSnapshots enables keeping images that produced no code.  enc renders
// the pixels before they are stored.
func (p *Processor) SetSnapshots(store StorageAdapter, enc Encoder) {
	p.snapshots = store
	p.encoder = enc
}

// Registry returns the underlying registry so callers can register
// decoders after construction.
func (p *Processor) Registry() Registry { return p.registry }

// Start launches the worker pool.  It is idempotent.
func (p *Processor) Start() {
	p.once.Do(func() {
		workerCount := p.cfg.WorkerCount
		if workerCount <= 0 {
			workerCount = runtime.NumCPU()
		}
		for i := 0; i < workerCount; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop shuts down all workers.  Queued jobs that no worker picked up are
// dropped.  It is idempotent.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.shutdown) })
	p.wg.Wait()
}

// Decode drains src and decodes it into pixels without running the cascade.
func (p *Processor) Decode(ctx context.Context, src Source) (*DecodedImage, error) {
	if src.Reader == nil {
		return nil, apperrors.New(apperrors.KindDecode, "process.drain", apperrors.ErrEmptyInput)
	}

	// --- 1. Drain source into memory (respecting max size limit) -------------
	var limitedR = src.Reader
	if p.cfg.MaxImageBytes > 0 {
		limitedR = &utils.LimitedReader{R: src.Reader, Max: p.cfg.MaxImageBytes}
	}

	buf, err := utils.DrainReader(ctx, limitedR, p.cfg.ChunkSize)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "process.drain", err)
	}
	rawBytes := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	if len(rawBytes) == 0 {
		return nil, apperrors.New(apperrors.KindDecode, "process.drain", apperrors.ErrEmptyInput)
	}

	// --- 2. Detect format ----------------------------------------------------
	format := Format(utils.DetectFormat(rawBytes))
	if format == FormatUnknown && src.ContentType != "" {
		format = contentTypeToFormat(src.ContentType)
	}

	// --- 3. Decode -----------------------------------------------------------
	dec, ok := p.registry.DecoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.KindDecode, "process.decode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	img, err := dec.Decode(ctx, utils.BytesReader(rawBytes))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "process.decode", err)
	}
	img.Meta.SizeBytes = int64(len(rawBytes))
	if img.Meta.Format == "" {
		img.Meta.Format = format
	}
	return img, nil
}

// Process decodes src and runs the strategy cascade.  A miss is reported
// through the result (Attempt.Found() == false), not as an error.
func (p *Processor) Process(ctx context.Context, src Source) (*ProcessingResult, error) {
	start := time.Now()

	img, err := p.Decode(ctx, src)
	if err != nil {
		p.recordError("process", err)
		return nil, err
	}

	attempt, timings, err := p.runner.Run(ctx, img.Buffer)
	if err != nil {
		p.recordError("process", err)
		return nil, err
	}

	result := &ProcessingResult{
		Attempt:        attempt,
		Meta:           img.Meta,
		ProcessingTime: time.Since(start),
		StepTimings:    timings,
	}
	if p.metrics != nil {
		p.metrics.RecordProcessingTime("process", result.ProcessingTime)
	}

	if !attempt.Found() {
		atomic.AddInt64(&p.missCount, 1)
		p.logger.Info("process.miss",
			"name", src.Name,
			"width", img.Meta.Width,
			"height", img.Meta.Height,
			"tried", strings.Join(attempt.Tried, ","),
		)
		p.snapshot(ctx, src.Name, img, attempt)
		return result, nil
	}

	atomic.AddInt64(&p.decodedCount, 1)
	p.logger.Debug("process.hit",
		"name", src.Name,
		"strategy", attempt.Strategy,
		"duration_ms", result.ProcessingTime.Milliseconds(),
	)
	return result, nil
}

// Submit runs Process and, when a payload was found and a Validator is
// attached, hands the payload to it exactly once.
func (p *Processor) Submit(ctx context.Context, src Source) (*Outcome, error) {
	result, err := p.Process(ctx, src)
	if err != nil {
		return nil, err
	}
	out := &Outcome{ProcessingResult: result}
	if !result.Attempt.Found() || p.validator == nil {
		return out, nil
	}

	v, err := p.validator.Validate(ctx, *result.Attempt.Payload)
	if err != nil {
		err = apperrors.Wrap(apperrors.KindValidation, "process.validate", err)
		p.recordError("validate", err)
		return out, err
	}
	out.Validation = &v
	return out, nil
}

// Enqueue adds an async job.  Returns ErrWorkerPoolFull if the queue is full.
func (p *Processor) Enqueue(job Job) error {
	select {
	case p.jobQueue <- job:
		return nil
	default:
		return apperrors.New(apperrors.KindPipeline, "enqueue", apperrors.ErrWorkerPoolFull)
	}
}

// Batch processes independent sources concurrently (fan-out / fan-in).  Each
// image's cascade still runs sequentially.
func (p *Processor) Batch(ctx context.Context, sources []Source) ([]*ProcessingResult, []error) {
	results := make([]*ProcessingResult, len(sources))
	errs := make([]error, len(sources))
	var wg sync.WaitGroup

	for i, src := range sources {
		wg.Add(1)
		go func(idx int, s Source) {
			defer wg.Done()
			r, e := p.Process(ctx, s)
			results[idx] = r
			errs[idx] = e
		}(i, src)
	}
	wg.Wait()
	return results, errs
}

// ── worker pool internals ──────────────────────────────────────────────────────

func (p *Processor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.shutdown:
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.processJob(job)
		}
	}
}

func (p *Processor) processJob(job Job) {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := p.cfg.JobTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		out *Outcome
		err error
	)
	if job.Validate {
		out, err = p.Submit(ctx, job.Source)
	} else {
		var result *ProcessingResult
		result, err = p.Process(ctx, job.Source)
		if result != nil {
			out = &Outcome{ProcessingResult: result}
		}
	}
	if job.ResultCh != nil {
		job.ResultCh <- JobResult{JobID: job.ID, Outcome: out, Err: err}
	}
}

// snapshotRecord is the JSON side-car stored next to a missed image.
type snapshotRecord struct {
	Name      string   `json:"name,omitempty"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Format    Format   `json:"format"`
	SizeBytes int64    `json:"size_bytes"`
	Tried     []string `json:"tried"`
	At        string   `json:"at"`
}

// snapshot stores a missed image for later inspection.  Failures are logged
// and never affect the result.
func (p *Processor) snapshot(ctx context.Context, name string, img *DecodedImage, attempt DecodeAttemptResult) {
	if p.snapshots == nil || p.encoder == nil {
		return
	}
	id := uuid.NewString()
	data, err := p.encoder.Encode(ctx, img.Buffer.Image(), EncodeOptions{})
	if err != nil {
		p.logger.Warn("process.snapshot.encode", "error", err.Error())
		return
	}
	rec, err := json.Marshal(snapshotRecord{
		Name:      name,
		Width:     img.Meta.Width,
		Height:    img.Meta.Height,
		Format:    img.Meta.Format,
		SizeBytes: img.Meta.SizeBytes,
		Tried:     attempt.Tried,
		At:        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		p.logger.Warn("process.snapshot.record", "error", err.Error())
		return
	}
	imgKey := StorageKey{Bucket: SnapshotBucket, Path: id + ".png"}
	if err := p.snapshots.Put(ctx, imgKey, bytes.NewReader(data), map[string]string{"content-type": "image/png"}); err != nil {
		p.logger.Warn("process.snapshot.put", "key", imgKey.Path, "error", err.Error())
		return
	}
	recKey := StorageKey{Bucket: SnapshotBucket, Path: id + ".json"}
	if err := p.snapshots.Put(ctx, recKey, bytes.NewReader(rec), map[string]string{"content-type": "application/json"}); err != nil {
		p.logger.Warn("process.snapshot.put", "key", recKey.Path, "error", err.Error())
	}
}

func (p *Processor) recordError(name string, err error) {
	atomic.AddInt64(&p.errorCount, 1)
	if p.metrics != nil {
		p.metrics.RecordError(name, string(apperrors.KindOf(err)))
	}
	p.logger.Warn(name+".error", "error", err.Error())
}

// contentTypeToFormat maps MIME types to Format values.
func contentTypeToFormat(ct string) Format {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(strings.ToLower(ct)) {
	case "image/jpeg", "image/jpg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/webp":
		return FormatWebP
	case "image/gif":
		return FormatGIF
	case "image/heic", "image/heif", "image/avif":
		return FormatHEIF
	case "image/tiff":
		return FormatTIFF
	}
	return FormatUnknown
}

// DecodedCount returns the number of images that produced a payload.
func (p *Processor) DecodedCount() int64 { return atomic.LoadInt64(&p.decodedCount) }

// MissCount returns the number of images that produced no code.
func (p *Processor) MissCount() int64 { return atomic.LoadInt64(&p.missCount) }

// ErrorCount returns the total number of processing errors.
func (p *Processor) ErrorCount() int64 { return atomic.LoadInt64(&p.errorCount) }

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
