// Package decoder provides format-specific still-image decoders.
package decoder

import (
	"context"
	"image"
	"image/jpeg"
	"io"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
)

// JPEG decodes JPEG images using the standard library.
type JPEG struct{}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) CanDecode(format core.Format) bool { return format == core.FormatJPEG }

func (j *JPEG) Decode(ctx context.Context, r io.Reader) (*core.DecodedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "jpeg.decode", err)
	}

	img, err := jpeg.Decode(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "jpeg.decode", err)
	}
	return toDecoded("jpeg.decode", img, core.FormatJPEG)
}

// toDecoded copies img into a PixelBuffer and fills in the metadata.
func toDecoded(op string, img image.Image, format core.Format) (*core.DecodedImage, error) {
	buf, err := core.PixelBufferFromImage(img)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, op, err)
	}
	return &core.DecodedImage{
		Buffer: buf,
		Format: format,
		Meta: core.Metadata{
			Width:  buf.Width(),
			Height: buf.Height(),
			Format: format,
		},
	}, nil
}
