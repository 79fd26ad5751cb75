package core

import (
	"fmt"
	"image"
	"image/draw"

	apperrors "github.com/Skryldev/qrscan/errors"
)

// PixelBuffer is an RGBA, row-major raster of one frame or one still image.
// It is never mutated after construction; transforms allocate a new buffer.
type PixelBuffer struct {
	width   int
	height  int
	samples []byte
}

// NewPixelBuffer takes ownership of samples, which must hold width*height*4 bytes.
func NewPixelBuffer(width, height int, samples []byte) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, apperrors.New(apperrors.KindDecode, "pixelbuffer.new",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, width, height))
	}
	if len(samples) != width*height*4 {
		return nil, apperrors.New(apperrors.KindDecode, "pixelbuffer.new",
			fmt.Errorf("%w: %d samples for %dx%d", apperrors.ErrInvalidDimensions, len(samples), width, height))
	}
	return &PixelBuffer{width: width, height: height, samples: samples}, nil
}

// BlankPixelBuffer returns a buffer filled with a single opaque gray level.
func BlankPixelBuffer(width, height int, level uint8) *PixelBuffer {
	samples := make([]byte, width*height*4)
	for i := 0; i < len(samples); i += 4 {
		samples[i], samples[i+1], samples[i+2], samples[i+3] = level, level, level, 0xff
	}
	return &PixelBuffer{width: width, height: height, samples: samples}
}

// PixelBufferFromImage copies img into a new PixelBuffer.
func PixelBufferFromImage(img image.Image) (*PixelBuffer, error) {
	if img == nil {
		return nil, apperrors.New(apperrors.KindDecode, "pixelbuffer.from_image", apperrors.ErrEmptyInput)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, apperrors.New(apperrors.KindDecode, "pixelbuffer.from_image", apperrors.ErrInvalidDimensions)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &PixelBuffer{width: w, height: h, samples: dst.Pix}, nil
}

func (p *PixelBuffer) Width() int  { return p.width }
func (p *PixelBuffer) Height() int { return p.height }

// Samples returns the raw RGBA bytes. Callers must treat them as read-only.
func (p *PixelBuffer) Samples() []byte { return p.samples }

// RGBA returns the channels of the pixel at (x, y).
func (p *PixelBuffer) RGBA(x, y int) (r, g, b, a uint8) {
	i := (y*p.width + x) * 4
	return p.samples[i], p.samples[i+1], p.samples[i+2], p.samples[i+3]
}

// Luma returns the Rec. 601 luma of the pixel at (x, y).
func (p *PixelBuffer) Luma(x, y int) uint8 {
	r, g, b, _ := p.RGBA(x, y)
	return Luma(r, g, b)
}

// Image returns a read-only image.Image view sharing the samples.
func (p *PixelBuffer) Image() image.Image {
	return &image.RGBA{
		Pix:    p.samples,
		Stride: p.width * 4,
		Rect:   image.Rect(0, 0, p.width, p.height),
	}
}

// Luma computes Rec. 601 luma in integer arithmetic.
func Luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}
