// Package vips provides a libvips-backed decoder for the raster formats the
// pure-Go decoders do not cover (HEIF/AVIF, TIFF, animated WebP, ...).
package vips

import (
	"context"
	"fmt"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/qrscan/core"
	apperrors "github.com/Skryldev/qrscan/errors"
	"github.com/Skryldev/qrscan/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool
}

// Backend is a libvips-powered Decoder.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatGIF,
		core.FormatHEIF, core.FormatTIFF, core.FormatUnknown:
		return true
	}
	return false
}

// Decode loads any format libvips understands, applies the EXIF orientation
// and returns 8-bit sRGB pixels with an alpha band.
func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.DecodedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "vips.decode", err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "vips.decode", err)
	}
	defer ref.Close()

	format := vipsFormatToCore(ref.Format())
	if err := normalize(ref); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "vips.decode.normalize", err)
	}

	samples, err := ref.ToBytes()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "vips.decode.export", err)
	}
	pix, err := core.NewPixelBuffer(ref.Width(), ref.Height(), samples)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "vips.decode.export", err)
	}

	return &core.DecodedImage{
		Buffer: pix,
		Format: format,
		Meta: core.Metadata{
			Width:     pix.Width(),
			Height:    pix.Height(),
			Format:    format,
			SizeBytes: int64(len(raw)),
		},
	}, nil
}

// normalize brings ref to upright, 8-bit, 4-band sRGB in place.
func normalize(ref *govips.ImageRef) error {
	if err := ref.AutoRotate(); err != nil {
		return err
	}
	if ref.Interpretation() != govips.InterpretationSRGB {
		if err := ref.ToColorSpace(govips.InterpretationSRGB); err != nil {
			return err
		}
	}
	if ref.BandFormat() != govips.BandFormatUchar {
		if err := ref.Cast(govips.BandFormatUchar); err != nil {
			return err
		}
	}
	if !ref.HasAlpha() {
		if err := ref.AddAlpha(); err != nil {
			return err
		}
	}
	if ref.Bands() != 4 {
		return fmt.Errorf("unexpected band count %d", ref.Bands())
	}
	return nil
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend makes b the fallback for every format without a
// dedicated decoder.  Pass replace=true to route the common formats through
// libvips as well.
func RegisterVipsBackend(reg *core.DefaultRegistry, b *Backend, replace bool) {
	reg.RegisterFallback(b)
	if !replace {
		return
	}
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatGIF} {
		reg.RegisterDecoder(f, b)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	case govips.ImageTypeGIF:
		return core.FormatGIF
	case govips.ImageTypeHEIF, govips.ImageTypeAVIF:
		return core.FormatHEIF
	case govips.ImageTypeTIFF:
		return core.FormatTIFF
	default:
		return core.FormatUnknown
	}
}

// compile-time interface checks
var _ core.Decoder = (*Backend)(nil)
