package decoder

import (
	"context"
	"image/png"
	"io"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

// PNG decodes PNG images using the standard library.
type PNG struct{}

func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanDecode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Decode(ctx context.Context, r io.Reader) (*core.DecodedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "png.decode", err)
	}
	img, err := png.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "png.decode", err)
	}
	return toDecoded("png.decode", img, core.FormatPNG)
}
