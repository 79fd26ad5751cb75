package core_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Skryldev/qrscan/adapters/decoder"
	"github.com/Skryldev/qrscan/adapters/encoder"
	"github.com/Skryldev/qrscan/config"
	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
	"github.com/Skryldev/qrscan/utils"
)

// ── helpers ───────────────────────────────────────────────────────────────────

// runnerFunc adapts a function to core.PipelineRunner.
type runnerFunc func(ctx context.Context, buf *core.PixelBuffer) (core.DecodeAttemptResult, map[string]time.Duration, error)

func (f runnerFunc) Run(ctx context.Context, buf *core.PixelBuffer) (core.DecodeAttemptResult, map[string]time.Duration, error) {
	return f(ctx, buf)
}

func hit(text string) core.PipelineRunner {
	return runnerFunc(func(context.Context, *core.PixelBuffer) (core.DecodeAttemptResult, map[string]time.Duration, error) {
		return core.DecodeAttemptResult{
			Payload:       &core.Payload{Text: text},
			StrategyIndex: 0,
			Strategy:      "identity",
			Tried:         []string{"identity"},
		}, nil, nil
	})
}

var miss = runnerFunc(func(context.Context, *core.PixelBuffer) (core.DecodeAttemptResult, map[string]time.Duration, error) {
	return core.Miss([]string{"identity", "inversion"}), nil, nil
})

func grayPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newProcessor(t *testing.T, runner core.PipelineRunner, mutate func(*config.Config)) *core.Processor {
	t.Helper()
	cfg := config.Default()
	cfg.WorkerCount = 2
	cfg.QueueSize = 4
	if mutate != nil {
		mutate(&cfg)
	}
	reg := core.NewRegistry()
	decoder.RegisterDefaults(reg)
	return core.New(cfg, reg, runner)
}

func src(b []byte) core.Source { return core.Source{Reader: bytes.NewReader(b), Size: int64(len(b))} }

// memStore is an in-memory StorageAdapter.
type memStore struct {
	mu   sync.Mutex
	objs map[core.StorageKey][]byte
}

func (m *memStore) Put(_ context.Context, key core.StorageKey, r io.Reader, _ map[string]string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objs == nil {
		m.objs = make(map[core.StorageKey][]byte)
	}
	m.objs[key] = b
	return nil
}

func (m *memStore) Get(_ context.Context, key core.StorageKey) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objs[key]
	if !ok {
		return nil, apperrors.ErrStorageUnavailable
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Delete(_ context.Context, key core.StorageKey) error {
	m.mu.Lock()
	delete(m.objs, key)
	m.mu.Unlock()
	return nil
}

func (m *memStore) Exists(_ context.Context, key core.StorageKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objs[key]
	return ok, nil
}

func (m *memStore) keys() []core.StorageKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.StorageKey, 0, len(m.objs))
	for k := range m.objs {
		out = append(out, k)
	}
	return out
}

// ── Process ───────────────────────────────────────────────────────────────────

func TestProcessHit(t *testing.T) {
	p := newProcessor(t, hit("abc"), nil)
	res, err := p.Process(context.Background(), src(grayPNG(t, 40, 30)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.Attempt.Found() || res.Attempt.Payload.Text != "abc" {
		t.Fatalf("attempt: %+v", res.Attempt)
	}
	if res.Meta.Width != 40 || res.Meta.Height != 30 || res.Meta.Format != core.FormatPNG {
		t.Errorf("meta: %+v", res.Meta)
	}
	if res.Meta.SizeBytes == 0 {
		t.Error("size not recorded")
	}
	if p.DecodedCount() != 1 || p.MissCount() != 0 {
		t.Errorf("counts: decoded=%d missed=%d", p.DecodedCount(), p.MissCount())
	}
}

func TestProcessMissIsNotAnError(t *testing.T) {
	store := &memStore{}
	p := newProcessor(t, miss, nil)
	p.SetSnapshots(store, encoder.NewPNG())

	res, err := p.Process(context.Background(), src(grayPNG(t, 20, 20)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Attempt.Found() || res.Attempt.StrategyIndex != -1 {
		t.Fatalf("attempt: %+v", res.Attempt)
	}
	if p.MissCount() != 1 || p.ErrorCount() != 0 {
		t.Errorf("counts: missed=%d errors=%d", p.MissCount(), p.ErrorCount())
	}

	var pngs, records int
	for _, k := range store.keys() {
		if k.Bucket != core.SnapshotBucket {
			t.Errorf("bucket: %s", k.Bucket)
		}
		switch {
		case strings.HasSuffix(k.Path, ".png"):
			pngs++
		case strings.HasSuffix(k.Path, ".json"):
			records++
		}
	}
	if pngs != 1 || records != 1 {
		t.Fatalf("snapshots: %v", store.keys())
	}
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		name   string
		src    core.Source
		mutate func(*config.Config)
		is     error
	}{
		{"nil reader", core.Source{}, nil, apperrors.ErrEmptyInput},
		{"empty", src(nil), nil, apperrors.ErrEmptyInput},
		{"unknown format", src([]byte("definitely not an image")), nil, apperrors.ErrUnsupportedFormat},
		{"too large", src(make([]byte, 64)), func(c *config.Config) { c.MaxImageBytes = 16 }, utils.ErrTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newProcessor(t, hit("x"), tc.mutate)
			_, err := p.Process(context.Background(), tc.src)
			if !apperrors.IsKind(err, apperrors.KindDecode) {
				t.Fatalf("kind: got %v", err)
			}
			if !errors.Is(err, tc.is) {
				t.Fatalf("got %v, want %v", err, tc.is)
			}
			if p.ErrorCount() != 1 {
				t.Errorf("errors: %d", p.ErrorCount())
			}
		})
	}
}

func TestProcessUsesContentTypeWhenSniffingFails(t *testing.T) {
	p := newProcessor(t, hit("heif"), nil)
	var decoded atomic.Int32
	p.Registry().RegisterDecoder(core.FormatHEIF, stubDecoder{calls: &decoded})

	s := core.Source{Reader: strings.NewReader("opaque container"), ContentType: "image/heic; q=1"}
	res, err := p.Process(context.Background(), s)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if decoded.Load() != 1 || res.Meta.Format != core.FormatHEIF {
		t.Fatalf("decoder calls=%d meta=%+v", decoded.Load(), res.Meta)
	}
}

type stubDecoder struct{ calls *atomic.Int32 }

func (d stubDecoder) CanDecode(f core.Format) bool { return f == core.FormatHEIF }

func (d stubDecoder) Decode(context.Context, io.Reader) (*core.DecodedImage, error) {
	d.calls.Add(1)
	buf := core.BlankPixelBuffer(8, 8, 0xff)
	return &core.DecodedImage{Buffer: buf, Format: core.FormatHEIF, Meta: core.Metadata{Width: 8, Height: 8}}, nil
}

// ── Submit ────────────────────────────────────────────────────────────────────

func TestSubmitValidatesExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	p := newProcessor(t, hit("pay"), nil)
	p.SetValidator(core.ValidatorFunc(func(_ context.Context, pl core.Payload) (core.ValidationResult, error) {
		calls.Add(1)
		return core.ValidationResult{Valid: pl.Text == "pay"}, nil
	}))

	out, err := p.Submit(context.Background(), src(grayPNG(t, 10, 10)))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if calls.Load() != 1 || out.Validation == nil || !out.Validation.Valid {
		t.Fatalf("calls=%d validation=%+v", calls.Load(), out.Validation)
	}
}

func TestSubmitValidatorFailure(t *testing.T) {
	p := newProcessor(t, hit("pay"), nil)
	p.SetValidator(core.ValidatorFunc(func(context.Context, core.Payload) (core.ValidationResult, error) {
		return core.ValidationResult{}, errors.New("service down")
	}))

	out, err := p.Submit(context.Background(), src(grayPNG(t, 10, 10)))
	if !apperrors.IsKind(err, apperrors.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if out == nil || !out.Attempt.Found() {
		t.Fatal("decode result lost on validator failure")
	}
}

// ── Worker pool ───────────────────────────────────────────────────────────────

func TestEnqueueBackpressure(t *testing.T) {
	p := newProcessor(t, hit("x"), func(c *config.Config) { c.QueueSize = 1 })
	// Not started: nothing drains the queue.
	if err := p.Enqueue(core.Job{ID: "1", Source: src(grayPNG(t, 4, 4))}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	err := p.Enqueue(core.Job{ID: "2", Source: src(grayPNG(t, 4, 4))})
	if !errors.Is(err, apperrors.ErrWorkerPoolFull) {
		t.Fatalf("expected ErrWorkerPoolFull, got %v", err)
	}
}

func TestEnqueueValidatesJob(t *testing.T) {
	var calls atomic.Int32
	p := newProcessor(t, hit("job"), nil)
	p.SetValidator(core.ValidatorFunc(func(context.Context, core.Payload) (core.ValidationResult, error) {
		calls.Add(1)
		return core.ValidationResult{Valid: true}, nil
	}))
	p.Start()
	t.Cleanup(p.Stop)

	ch := make(chan core.JobResult, 1)
	if err := p.Enqueue(core.Job{ID: "j", Source: src(grayPNG(t, 4, 4)), Validate: true, ResultCh: ch}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case res := <-ch:
		if res.Err != nil || res.Outcome.Validation == nil {
			t.Fatalf("result: %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job timed out")
	}
	if calls.Load() != 1 {
		t.Fatalf("validator calls: %d", calls.Load())
	}
}

func TestBatchKeepsOrder(t *testing.T) {
	p := newProcessor(t, miss, nil)
	sources := []core.Source{src(grayPNG(t, 4, 4)), src([]byte("nope")), src(grayPNG(t, 6, 6))}
	results, errs := p.Batch(context.Background(), sources)
	if errs[0] != nil || errs[2] != nil || errs[1] == nil {
		t.Fatalf("errs: %v", errs)
	}
	if results[0].Meta.Width != 4 || results[2].Meta.Width != 6 || results[1] != nil {
		t.Fatalf("results out of order")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	p := newProcessor(t, hit("x"), nil)
	p.Start()
	p.Stop()
	p.Stop()
}
