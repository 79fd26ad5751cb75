package decoder

import (
	"context"
	"image/gif"
	"io"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

// GIF decodes the first frame of a GIF image.
type GIF struct{}

func NewGIF() *GIF { return &GIF{} }

func (g *GIF) CanDecode(format core.Format) bool { return format == core.FormatGIF }

func (g *GIF) Decode(ctx context.Context, r io.Reader) (*core.DecodedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "gif.decode", err)
	}
	img, err := gif.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "gif.decode", err)
	}
	return toDecoded("gif.decode", img, core.FormatGIF)
}
