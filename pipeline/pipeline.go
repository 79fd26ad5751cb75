// Package pipeline runs the still-image decode cascade: an ordered list of
// strategies tried against one image until the primitive finds a payload.
package pipeline

import (
	"context"
	"time"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

// Pipeline executes a sequence of Strategies with hook and retry support.
// A configured Pipeline is read-only during Run and safe for concurrent use.
type Pipeline struct {
	primitive  core.Primitive
	strategies []core.Strategy
	hooks      []core.Hook
	maxRetries int
	retryDelay time.Duration
}

// New returns a Pipeline without strategies that decodes with prim.
func New(prim core.Primitive) *Pipeline { return &Pipeline{primitive: prim} }

// Use appends strategies to the cascade.  Returns the same Pipeline for chaining.
func (p *Pipeline) Use(s ...core.Strategy) *Pipeline {
	p.strategies = append(p.strategies, s...)
	return p
}

// AddHook registers an observer.
func (p *Pipeline) AddHook(h core.Hook) *Pipeline {
	p.hooks = append(p.hooks, h)
	return p
}

// WithRetry sets how often a transform failing with a transient error is retried.
func (p *Pipeline) WithRetry(maxRetries int, delay time.Duration) *Pipeline {
	p.maxRetries = maxRetries
	p.retryDelay = delay
	return p
}

// Strategies returns the strategy names in cascade order.
func (p *Pipeline) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run tries each applicable strategy in order and stops at the first payload.
// A miss is a normal result (StrategyIndex -1), not an error; errors are
// reserved for cancellation and failing transforms.
func (p *Pipeline) Run(ctx context.Context, buf *core.PixelBuffer) (core.DecodeAttemptResult, map[string]time.Duration, error) {
	timings := make(map[string]time.Duration, len(p.strategies))
	if buf == nil {
		return core.Miss(nil), timings, apperrors.New(apperrors.KindPipeline, "pipeline.run", apperrors.ErrEmptyInput)
	}
	tried := make([]string, 0, len(p.strategies))

	for i, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			return core.Miss(tried), timings, apperrors.Wrap(apperrors.KindPipeline, s.Name(), err)
		}
		if !s.Applicable(buf) {
			continue
		}
		tried = append(tried, s.Name())

		payload, elapsed, err := p.runStrategy(ctx, s, buf)
		timings[s.Name()] = elapsed
		if err != nil {
			return core.Miss(tried), timings, err
		}
		if payload != nil {
			return core.DecodeAttemptResult{
				Payload:       payload,
				StrategyIndex: i,
				Strategy:      s.Name(),
				Tried:         tried,
			}, timings, nil
		}
	}
	return core.Miss(tried), timings, nil
}

// runStrategy transforms buf, retrying transient errors, and hands the result
// to the primitive.
func (p *Pipeline) runStrategy(ctx context.Context, s core.Strategy, buf *core.PixelBuffer) (*core.Payload, time.Duration, error) {
	p.callHooksBefore(ctx, s.Name(), buf)

	var (
		payload *core.Payload
		elapsed time.Duration
		err     error
	)
	start := time.Now()

	attempts := p.maxRetries + 1
	for i := 0; i < attempts; i++ {
		var out *core.PixelBuffer
		out, err = s.Transform(ctx, buf)
		if err == nil {
			payload = p.decode(out)
			break
		}
		if !apperrors.IsRetryable(err) || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			err = apperrors.Wrap(apperrors.KindPipeline, s.Name(), ctx.Err())
			goto done
		case <-time.After(p.retryDelay):
		}
	}

done:
	elapsed = time.Since(start)
	p.callHooksAfter(ctx, s.Name(), payload, elapsed, err)
	return payload, elapsed, err
}

func (p *Pipeline) decode(buf *core.PixelBuffer) *core.Payload {
	if buf == nil || p.primitive == nil {
		return nil
	}
	got, ok := p.primitive.Decode(buf)
	if !ok || got.Text == "" {
		return nil
	}
	return &got
}

func (p *Pipeline) callHooksBefore(ctx context.Context, name string, buf *core.PixelBuffer) {
	for _, h := range p.hooks {
		h.BeforeStep(ctx, name, buf)
	}
}

func (p *Pipeline) callHooksAfter(ctx context.Context, name string, payload *core.Payload, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStep(ctx, name, payload, d, err)
	}
}

// Clone returns a shallow copy of the pipeline so templates can be extended
// without affecting the original.
func (p *Pipeline) Clone() *Pipeline {
	cp := &Pipeline{
		primitive:  p.primitive,
		strategies: make([]core.Strategy, len(p.strategies)),
		hooks:      make([]core.Hook, len(p.hooks)),
		maxRetries: p.maxRetries,
		retryDelay: p.retryDelay,
	}
	copy(cp.strategies, p.strategies)
	copy(cp.hooks, p.hooks)
	return cp
}
