package encoder

import (
	"fmt"
	"image"
	"io"

	webpenc "github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"github.com/backmassage/webpshrink/internal/config"
)

// WebP is a lossy libwebp encoder. The zero value is not usable; call NewWebP.
type WebP struct {
	method int
}

// NewWebP returns an encoder using the maximum effort method.
func NewWebP() *WebP {
	return &WebP{method: config.EncodeMethod}
}

// Format implements Encoder.
func (e *WebP) Format() string { return "webp" }

// Extension implements Encoder.
func (e *WebP) Extension() string { return ".webp" }

// Method returns the libwebp effort setting used for every encode.
func (e *WebP) Method() int { return e.method }

// Encode implements Encoder.
func (e *WebP) Encode(w io.Writer, img image.Image, quality int) error {
	if quality < config.QualityMin || quality > config.QualityMax {
		return fmt.Errorf("%w (got %d)", ErrQuality, quality)
	}
	opts, err := webpenc.NewLossyEncoderOptions(webpenc.PresetDefault, float32(quality))
	if err != nil {
		return fmt.Errorf("webp options q=%d: %w", quality, err)
	}
	opts.Method = e.method

	if err := webp.Encode(w, img, opts); err != nil {
		return fmt.Errorf("webp encode q=%d: %w", quality, err)
	}
	return nil
}
