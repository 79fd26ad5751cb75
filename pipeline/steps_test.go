package pipeline_test

import (
	"context"
	"testing"

	"github.com/Skryldev/qrscan/core"
	"github.com/Skryldev/qrscan/pipeline"
)

func pixel(t *testing.T, r, g, b, a uint8) *core.PixelBuffer {
	t.Helper()
	buf, err := core.NewPixelBuffer(1, 1, []byte{r, g, b, a})
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestInversion(t *testing.T) {
	src := pixel(t, 10, 200, 255, 77)
	out, err := pipeline.InversionStrategy{}.Transform(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, a := out.RGBA(0, 0)
	if r != 245 || g != 55 || b != 0 || a != 77 {
		t.Errorf("got %d,%d,%d,%d", r, g, b, a)
	}
	if r0, _, _, _ := src.RGBA(0, 0); r0 != 10 {
		t.Error("source buffer was mutated")
	}
}

func TestLumaTransforms(t *testing.T) {
	tests := []struct {
		name     string
		strategy core.Strategy
		in, want uint8
	}{
		{"contrast dark", &pipeline.ContrastStrategy{Midpoint: 128}, 100, 50},
		{"contrast mid", &pipeline.ContrastStrategy{Midpoint: 128}, 128, 192},
		{"contrast clamp", &pipeline.ContrastStrategy{Midpoint: 128}, 200, 255},
		{"binarize below", &pipeline.BinarizeStrategy{Threshold: 128}, 127, 0},
		{"binarize at", &pipeline.BinarizeStrategy{Threshold: 128}, 128, 255},
		{"binarize default threshold", &pipeline.BinarizeStrategy{}, 20, 0},
	}
	for _, tc := range tests {
		out, err := tc.strategy.Transform(context.Background(), pixel(t, tc.in, tc.in, tc.in, 0xff))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		r, g, b, a := out.RGBA(0, 0)
		if r != tc.want || g != tc.want || b != tc.want || a != 0xff {
			t.Errorf("%s: got %d,%d,%d,%d, want gray %d", tc.name, r, g, b, a, tc.want)
		}
	}
}

func TestDownscale(t *testing.T) {
	s := &pipeline.DownscaleStrategy{MaxDimension: 1000}
	small := core.BlankPixelBuffer(1000, 1000, 0)
	if s.Applicable(small) {
		t.Error("1000x1000 should not be downscaled")
	}
	big := core.BlankPixelBuffer(2000, 1000, 0)
	if !s.Applicable(big) {
		t.Fatal("2000x1000 should be downscaled")
	}
	out, err := s.Transform(context.Background(), big)
	if err != nil {
		t.Fatal(err)
	}
	if out.Width() != 1000 || out.Height() != 500 {
		t.Errorf("got %dx%d, want 1000x500", out.Width(), out.Height())
	}
}

func TestUpscaleKeepsHardEdges(t *testing.T) {
	s := &pipeline.UpscaleStrategy{Below: 500, Target: 1000}
	if s.Applicable(core.BlankPixelBuffer(499, 500, 0)) {
		t.Error("500 px side should not be upscaled")
	}

	// Checkerboard of black and white pixels.
	const w, h = 20, 10
	samples := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			i := (y*w + x) * 4
			samples[i], samples[i+1], samples[i+2], samples[i+3] = v, v, v, 0xff
		}
	}
	src, err := core.NewPixelBuffer(w, h, samples)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Applicable(src) {
		t.Fatal("20x10 should be upscaled")
	}
	out, err := s.Transform(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if out.Width() != 1000 || out.Height() != 500 {
		t.Fatalf("got %dx%d, want 1000x500", out.Width(), out.Height())
	}
	px := out.Samples()
	for i := 0; i < len(px); i += 4 {
		if px[i] != 0 && px[i] != 255 {
			t.Fatalf("smoothed sample %d at offset %d", px[i], i)
		}
	}
}
