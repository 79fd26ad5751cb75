package encoder_test

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/Skryldev/qrscan/adapters/encoder"
	"github.com/Skryldev/qrscan/core"
)

func TestEncoders(t *testing.T) {
	src := core.BlankPixelBuffer(8, 5, 200).Image()

	tests := []struct {
		format core.Format
		decode func([]byte) (image.Image, error)
	}{
		{core.FormatPNG, func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) }},
		{core.FormatJPEG, func(b []byte) (image.Image, error) { return jpeg.Decode(bytes.NewReader(b)) }},
	}
	for _, tc := range tests {
		enc := encoder.For(tc.format)
		if enc == nil || !enc.CanEncode(tc.format) {
			t.Fatalf("%s: no encoder", tc.format)
		}
		data, err := enc.Encode(context.Background(), src, core.EncodeOptions{Quality: 90})
		if err != nil {
			t.Fatalf("%s: %v", tc.format, err)
		}
		img, err := tc.decode(data)
		if err != nil {
			t.Fatalf("%s: output does not decode: %v", tc.format, err)
		}
		if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 5 {
			t.Errorf("%s: bounds %v", tc.format, img.Bounds())
		}
	}
	if encoder.For(core.FormatWebP) != nil {
		t.Error("webp encoding is not offered")
	}
}

func TestEncodeNil(t *testing.T) {
	if _, err := encoder.NewPNG().Encode(context.Background(), nil, core.EncodeOptions{}); err == nil {
		t.Error("expected error for nil image")
	}
}
