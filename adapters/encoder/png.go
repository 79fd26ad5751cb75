package encoder

import (
	"bytes"
	"context"
	"image"
	"image/png"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

// PNG encodes images to PNG format.
type PNG struct {
	// Compression defaults to png.DefaultCompression.
	Compression png.CompressionLevel
}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, img image.Image, _ core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindEncode, "png.encode", err)
	}
	if img == nil {
		return nil, apperrors.New(apperrors.KindEncode, "png.encode", apperrors.ErrEmptyInput)
	}

	enc := &png.Encoder{CompressionLevel: p.Compression}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(apperrors.KindEncode, "png.encode", err)
	}
	return buf.Bytes(), nil
}

// For returns the encoder for format, or nil.
func For(format core.Format) core.Encoder {
	switch format {
	case core.FormatPNG:
		return NewPNG()
	case core.FormatJPEG:
		return NewJPEG(0)
	}
	return nil
}
