// Package check provides diagnostics (the check subcommand) and the
// pre-batch encoder self-test (CheckDeps).
package check

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sort"
	"strings"

	chaiwebp "github.com/chai2010/webp"

	"github.com/backmassage/webpshrink/internal/config"
	"github.com/backmassage/webpshrink/internal/display"
	"github.com/backmassage/webpshrink/internal/encoder"
)

// Sentinel errors returned by CheckDeps.
var (
	ErrEncoderSelfTest = errors.New("WebP encoder self-test failed")
	ErrDecoderSelfTest = errors.New("WebP decode of self-test output failed")
	ErrUnsupportedExt  = errors.New("no decoder registered for extension")
)

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a fake logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(string, ...interface{})
}

// decodable maps the extensions the tool can read to the format name
// image.Decode reports for them.
var decodable = map[string]string{
	".webp": "webp",
	".png":  "png",
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".gif":  "gif",
}

// SupportedExts returns the extensions with a registered decoder, sorted.
func SupportedExts() []string {
	exts := make([]string, 0, len(decodable))
	for e := range decodable {
		exts = append(exts, e)
	}
	sort.Strings(exts)
	return exts
}

// RunCheck prints the encoder setup, encodes a synthetic image at the start
// and floor qualities, and decodes the results back. It is informational
// only and returns whether every step passed.
func RunCheck(cfg *config.Config, log Logger) bool {
	log.Info("=== System Check ===")
	log.Info("Go runtime: %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	enc := encoder.NewWebP()
	log.Info("Encoder: %s (lossy, method %d)", enc.Format(), enc.Method())
	log.Info("Input formats: %s", strings.Join(SupportedExts(), " "))

	ok := true
	img := testImage()
	for _, q := range []int{cfg.StartQuality, cfg.QualityFloor} {
		n, err := roundTrip(enc, img, q)
		if err != nil {
			log.Error("Quality %d: %v", q, err)
			ok = false
			continue
		}
		log.Success("Quality %d: encoded and decoded %s (%s)",
			q, display.FormatDims(img.Bounds().Dx(), img.Bounds().Dy()), display.FormatBytes(int64(n)))
	}

	for _, e := range cfg.Exts {
		if _, known := decodable[e]; !known {
			log.Warn("Extension %s has no decoder; those files will fail", e)
			ok = false
		}
	}
	return ok
}

// CheckDeps is the pre-batch validation: the configured extensions must be
// decodable and a synthetic image must survive an encode at the floor
// quality and a decode back. Returns a sentinel error on failure.
func CheckDeps(cfg *config.Config) error {
	for _, e := range cfg.Exts {
		if _, known := decodable[e]; !known {
			return fmt.Errorf("%w: %s", ErrUnsupportedExt, e)
		}
	}
	_, err := roundTrip(encoder.NewWebP(), testImage(), cfg.QualityFloor)
	return err
}

// roundTrip encodes img at quality q, decodes it back, and returns the
// encoded size.
func roundTrip(enc encoder.Encoder, img image.Image, q int) (int, error) {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img, q); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEncoderSelfTest, err)
	}
	n := buf.Len()
	out, err := chaiwebp.Decode(&buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDecoderSelfTest, err)
	}
	if out.Bounds().Size() != img.Bounds().Size() {
		return 0, fmt.Errorf("%w: decoded %v, want %v", ErrDecoderSelfTest, out.Bounds().Size(), img.Bounds().Size())
	}
	return n, nil
}

// testImage returns a small gradient.
func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	return img
}
