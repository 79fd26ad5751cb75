package pipeline

import (
	"context"
	"image"

	"github.com/Skryldev/qrscan/config"
	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
	"github.com/Skryldev/qrscan/utils"
	xdraw "golang.org/x/image/draw"
)

// Strategy names as reported in DecodeAttemptResult and metrics.
const (
	NameIdentity  = "identity"
	NameInversion = "inversion"
	NameContrast  = "contrast"
	NameBinarize  = "binarize"
	NameDownscale = "downscale"
	NameUpscale   = "upscale"
)

// DefaultStrategies returns the still-image cascade in its fixed order.
func DefaultStrategies(cfg config.DecodeConfig) []core.Strategy {
	return []core.Strategy{
		IdentityStrategy{},
		InversionStrategy{},
		&ContrastStrategy{Midpoint: cfg.LumaThreshold},
		&BinarizeStrategy{Threshold: cfg.LumaThreshold},
		&DownscaleStrategy{MaxDimension: cfg.MaxDimension},
		&UpscaleStrategy{Below: cfg.UpscaleBelow, Target: cfg.MaxDimension},
	}
}

// NewDefault returns a Pipeline running DefaultStrategies against prim.
func NewDefault(prim core.Primitive, cfg config.DecodeConfig) *Pipeline {
	return New(prim).Use(DefaultStrategies(cfg)...)
}

// ── Identity ──────────────────────────────────────────────────────────────────

// IdentityStrategy hands the buffer to the primitive unmodified.
type IdentityStrategy struct{}

func (IdentityStrategy) Name() string                      { return NameIdentity }
func (IdentityStrategy) Applicable(*core.PixelBuffer) bool { return true }

func (IdentityStrategy) Transform(_ context.Context, buf *core.PixelBuffer) (*core.PixelBuffer, error) {
	return buf, nil
}

// ── Inversion ─────────────────────────────────────────────────────────────────

// InversionStrategy inverts every color channel, for light-on-dark symbols.
type InversionStrategy struct{}

func (InversionStrategy) Name() string                      { return NameInversion }
func (InversionStrategy) Applicable(*core.PixelBuffer) bool { return true }

func (s InversionStrategy) Transform(ctx context.Context, buf *core.PixelBuffer) (*core.PixelBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPipeline, s.Name(), err)
	}
	src := buf.Samples()
	out := make([]byte, len(src))
	for i := 0; i < len(src); i += 4 {
		out[i] = 255 - src[i]
		out[i+1] = 255 - src[i+1]
		out[i+2] = 255 - src[i+2]
		out[i+3] = src[i+3]
	}
	return core.NewPixelBuffer(buf.Width(), buf.Height(), out)
}

// ── Contrast-enhanced grayscale ───────────────────────────────────────────────

// ContrastStrategy converts to luma and pushes each value away from Midpoint:
// darker values are halved, brighter ones amplified by 1.5 and clamped.
type ContrastStrategy struct {
	Midpoint int
}

func (s *ContrastStrategy) Name() string                      { return NameContrast }
func (s *ContrastStrategy) Applicable(*core.PixelBuffer) bool { return true }

func (s *ContrastStrategy) Transform(ctx context.Context, buf *core.PixelBuffer) (*core.PixelBuffer, error) {
	mid := s.Midpoint
	if mid <= 0 {
		mid = 128
	}
	return mapLuma(ctx, s.Name(), buf, func(v int) uint8 {
		if v < mid {
			return uint8(v / 2)
		}
		v = v * 3 / 2
		if v > 255 {
			v = 255
		}
		return uint8(v)
	})
}

// ── Binarization ──────────────────────────────────────────────────────────────

// BinarizeStrategy maps each pixel to black or white at a fixed luma threshold.
type BinarizeStrategy struct {
	Threshold int
}

func (s *BinarizeStrategy) Name() string                      { return NameBinarize }
func (s *BinarizeStrategy) Applicable(*core.PixelBuffer) bool { return true }

func (s *BinarizeStrategy) Transform(ctx context.Context, buf *core.PixelBuffer) (*core.PixelBuffer, error) {
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = 128
	}
	return mapLuma(ctx, s.Name(), buf, func(v int) uint8 {
		if v < threshold {
			return 0
		}
		return 255
	})
}

// mapLuma writes f(luma) into all three color channels of a new opaque buffer.
func mapLuma(ctx context.Context, op string, buf *core.PixelBuffer, f func(v int) uint8) (*core.PixelBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPipeline, op, err)
	}
	var lut [256]uint8
	for v := range lut {
		lut[v] = f(v)
	}
	src := buf.Samples()
	out := make([]byte, len(src))
	for i := 0; i < len(src); i += 4 {
		g := lut[core.Luma(src[i], src[i+1], src[i+2])]
		out[i], out[i+1], out[i+2], out[i+3] = g, g, g, 0xff
	}
	return core.NewPixelBuffer(buf.Width(), buf.Height(), out)
}

// ── Downscale ─────────────────────────────────────────────────────────────────

// DownscaleStrategy shrinks images with a side above MaxDimension to fit
// within MaxDimension x MaxDimension, preserving aspect ratio.
type DownscaleStrategy struct {
	MaxDimension int
	// Resampler controls quality vs speed.  Defaults to draw.BiLinear.
	Resampler xdraw.Interpolator
}

func (s *DownscaleStrategy) Name() string { return NameDownscale }

func (s *DownscaleStrategy) Applicable(buf *core.PixelBuffer) bool {
	return buf.Width() > s.MaxDimension || buf.Height() > s.MaxDimension
}

func (s *DownscaleStrategy) Transform(ctx context.Context, buf *core.PixelBuffer) (*core.PixelBuffer, error) {
	sampler := s.Resampler
	if sampler == nil {
		sampler = xdraw.BiLinear
	}
	return scale(ctx, s.Name(), buf, s.MaxDimension, sampler)
}

// ── Upscale ───────────────────────────────────────────────────────────────────

// UpscaleStrategy enlarges images whose sides are both below Below to fit
// within Target x Target. Nearest-neighbor keeps module edges hard.
type UpscaleStrategy struct {
	Below  int
	Target int
}

func (s *UpscaleStrategy) Name() string { return NameUpscale }

func (s *UpscaleStrategy) Applicable(buf *core.PixelBuffer) bool {
	return buf.Width() < s.Below && buf.Height() < s.Below
}

func (s *UpscaleStrategy) Transform(ctx context.Context, buf *core.PixelBuffer) (*core.PixelBuffer, error) {
	return scale(ctx, s.Name(), buf, s.Target, xdraw.NearestNeighbor)
}

func scale(ctx context.Context, op string, buf *core.PixelBuffer, bound int, sampler xdraw.Scaler) (*core.PixelBuffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindPipeline, op, err)
	}
	if bound <= 0 {
		return nil, apperrors.New(apperrors.KindPipeline, op, apperrors.ErrInvalidDimensions)
	}
	dstW, dstH := utils.FitWithin(buf.Width(), buf.Height(), bound, bound)
	if dstW == buf.Width() && dstH == buf.Height() {
		return buf, nil // nothing to do
	}

	src := buf.Image()
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	sampler.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return core.NewPixelBuffer(dstW, dstH, dst.Pix)
}
