package encoder

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "github.com/chai2010/webp" // registers the "webp" decoder
	"github.com/disintegration/imaging"
)

// Load opens and decodes the image at path. EXIF orientation is applied for
// JPEG sources so the re-encoded output is upright.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Header is the cheap, header-only view of an image file.
type Header struct {
	Format string
	Width  int
	Height int
	Size   int64
}

// ReadHeader decodes only the image header at path and stats the file.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return Header{}, err
	}
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Header{}, fmt.Errorf("decode header %s: %w", path, err)
	}
	return Header{Format: format, Width: cfg.Width, Height: cfg.Height, Size: fi.Size()}, nil
}
