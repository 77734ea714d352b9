package encoder

import (
	"errors"
	"image"
	"io"
)

// ErrQuality is returned when a quality outside 0-100 is requested.
var ErrQuality = errors.New("quality must be within 0-100")

// Encoder encodes an image to a specific lossy format at a given quality.
type Encoder interface {
	// Format returns the output format name (e.g. "webp").
	Format() string

	// Extension returns the output file extension with leading dot.
	Extension() string

	// Encode writes img to w at quality (0-100).
	Encode(w io.Writer, img image.Image, quality int) error
}
