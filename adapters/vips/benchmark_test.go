package vips_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"

	"rsc.io/qr"

	"github.com/Skryldev/qrscan/adapters/decoder"
	"github.com/Skryldev/qrscan/adapters/vips"
	"github.com/Skryldev/qrscan/adapters/zxing"
	"github.com/Skryldev/qrscan/config"
	"github.com/Skryldev/qrscan/core"
	"github.com/Skryldev/qrscan/pipeline"
)

var (
	backendOnce sync.Once
	backend     *vips.Backend
)

// libvips can only be started once per process.
func sharedBackend() *vips.Backend {
	backendOnce.Do(func() { backend = vips.NewBackend(vips.BackendConfig{}) })
	return backend
}

func makeJPEG(tb testing.TB, w, h int) []byte {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
		tb.Fatal(err)
	}
	return buf.Bytes()
}

func TestBackendDecodesSymbol(t *testing.T) {
	code, err := qr.Encode("vips-path", qr.M)
	if err != nil {
		t.Fatal(err)
	}
	var raw bytes.Buffer
	if err := png.Encode(&raw, code.Image()); err != nil {
		t.Fatal(err)
	}

	img, err := sharedBackend().Decode(context.Background(), bytes.NewReader(raw.Bytes()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Format != core.FormatPNG {
		t.Errorf("format = %s, want png", img.Format)
	}
	b := code.Image().Bounds()
	if img.Buffer.Width() != b.Dx() || img.Buffer.Height() != b.Dy() {
		t.Errorf("got %dx%d, want %dx%d", img.Buffer.Width(), img.Buffer.Height(), b.Dx(), b.Dy())
	}

	res, _, err := pipeline.NewDefault(zxing.New(), config.Default().Decode).Run(context.Background(), img.Buffer)
	if err != nil || !res.Found() || res.Payload.Text != "vips-path" {
		t.Errorf("cascade on vips pixels: %+v, %v", res, err)
	}
}

func TestRegisterAsFallback(t *testing.T) {
	reg := core.NewRegistry()
	decoder.RegisterDefaults(reg)
	vips.RegisterVipsBackend(reg, sharedBackend(), false)

	d, ok := reg.DecoderFor(core.FormatHEIF)
	if !ok || d != core.Decoder(sharedBackend()) {
		t.Error("heif should resolve to the vips fallback")
	}
	if d, _ := reg.DecoderFor(core.FormatPNG); d == core.Decoder(sharedBackend()) {
		t.Error("png should keep the pure-Go decoder")
	}
}

// ─── Decode ───────────────────────────────────────────────────────────────────

func BenchmarkDecode_Stdlib_1920x1080(b *testing.B) {
	raw := makeJPEG(b, 1920, 1080)
	dec := decoder.NewJPEG()

	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := dec.Decode(context.Background(), bytes.NewReader(raw)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecode_Vips_1920x1080(b *testing.B) {
	raw := makeJPEG(b, 1920, 1080)
	dec := sharedBackend()

	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := dec.Decode(context.Background(), bytes.NewReader(raw)); err != nil {
			b.Fatal(err)
		}
	}
}
