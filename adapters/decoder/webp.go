package decoder

import (
	"context"
	"io"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
	"golang.org/x/image/webp"
)

// WebP decodes WebP images using golang.org/x/image/webp.
// Animated WebP is not supported; register the vips decoder for it.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, r io.Reader) (*core.DecodedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "webp.decode", err)
	}
	img, err := webp.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "webp.decode", err)
	}
	return toDecoded("webp.decode", img, core.FormatWebP)
}

// RegisterDefaults registers the pure-Go decoders with reg.
func RegisterDefaults(reg core.Registry) {
	reg.RegisterDecoder(core.FormatJPEG, NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, NewPNG())
	reg.RegisterDecoder(core.FormatGIF, NewGIF())
	reg.RegisterDecoder(core.FormatWebP, NewWebP())
}
