// Package zxing implements the optical-decode primitive on top of gozxing.
package zxing

import (
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/Skryldev/qrscan/core"
)

// QRPrimitive decodes QR symbols. It is stateless and safe for concurrent use;
// every call builds its own reader because gozxing readers are not.
type QRPrimitive struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// Option configures a QRPrimitive.
type Option func(*QRPrimitive)

// WithTryHarder trades speed for accuracy on difficult images.
func WithTryHarder(on bool) Option {
	return func(p *QRPrimitive) {
		if on {
			p.hints[gozxing.DecodeHintType_TRY_HARDER] = true
		} else {
			delete(p.hints, gozxing.DecodeHintType_TRY_HARDER)
		}
	}
}

// WithPureBarcode tells the reader the image holds nothing but the symbol.
func WithPureBarcode() Option {
	return func(p *QRPrimitive) { p.hints[gozxing.DecodeHintType_PURE_BARCODE] = true }
}

// New returns a QRPrimitive.
func New(opts ...Option) *QRPrimitive {
	p := &QRPrimitive{hints: make(map[gozxing.DecodeHintType]interface{})}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Decode returns the symbol text and corner points, or ok=false when buf holds
// no readable symbol. Reader failures are treated as a miss.
func (p *QRPrimitive) Decode(buf *core.PixelBuffer) (core.Payload, bool) {
	if buf == nil {
		return core.Payload{}, false
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(buf.Image())
	if err != nil {
		return core.Payload{}, false
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, p.hints)
	if err != nil || result == nil || result.GetText() == "" {
		return core.Payload{}, false
	}

	pts := result.GetResultPoints()
	payload := core.Payload{Text: result.GetText(), Points: make([]core.Point, 0, len(pts))}
	for _, rp := range pts {
		if rp == nil {
			continue
		}
		payload.Points = append(payload.Points, core.Point{X: rp.GetX(), Y: rp.GetY()})
	}
	return payload, true
}
