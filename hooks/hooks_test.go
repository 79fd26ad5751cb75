package hooks_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
	"github.com/Skryldev/qrscan/hooks"
)

func TestMetricsHookCountsPerStrategy(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	h := hooks.NewMetricsHook(m)
	ctx := context.Background()

	h.AfterStep(ctx, "identity", nil, 2*time.Millisecond, nil)
	h.AfterStep(ctx, "inversion", &core.Payload{Text: "x"}, 3*time.Millisecond, nil)
	h.AfterStep(ctx, "binarize", nil, time.Millisecond, apperrors.New(apperrors.KindPipeline, "binarize", errors.New("boom")))

	snap := m.Snapshot()
	if snap.Attempts != 2 || snap.Hits != 1 {
		t.Errorf("attempts=%d hits=%d, want 2/1", snap.Attempts, snap.Hits)
	}
	if snap.StepHits["inversion"] != 1 || snap.StepHits["identity"] != 0 {
		t.Errorf("step hits = %v", snap.StepHits)
	}
	if snap.StepCalls["binarize"] != 1 || snap.StepErrors["binarize"] != 1 {
		t.Errorf("binarize calls=%d errors=%d", snap.StepCalls["binarize"], snap.StepErrors["binarize"])
	}
	if snap.ErrorKinds[string(apperrors.KindPipeline)] != 1 {
		t.Errorf("error kinds = %v", snap.ErrorKinds)
	}

	// Snapshots are copies.
	snap.StepCalls["identity"] = 99
	if m.Snapshot().StepCalls["identity"] != 1 {
		t.Error("snapshot shares state with the collector")
	}
}

func TestLoggingHook(t *testing.T) {
	var out bytes.Buffer
	logger := hooks.NewSlogLogger(slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug})))
	h := hooks.NewLoggingHook(logger)
	ctx := context.Background()

	buf := core.BlankPixelBuffer(4, 3, 0)
	h.BeforeStep(ctx, "identity", buf)
	h.AfterStep(ctx, "identity", &core.Payload{Text: "x"}, time.Millisecond, nil)
	h.AfterStep(ctx, "contrast", nil, time.Millisecond, errors.New("boom"))

	got := out.String()
	for _, want := range []string{"pipeline.strategy.start", "width=4", "hit=true", "pipeline.strategy.error", "error=boom"} {
		if !strings.Contains(got, want) {
			t.Errorf("log output missing %q:\n%s", want, got)
		}
	}
}
