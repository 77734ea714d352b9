package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	chaiwebp "github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noisy returns a deterministic image with enough detail that quality has a
// visible effect on encoded size.
func noisy(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	seed := uint32(2463534242)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			seed ^= seed << 13
			seed ^= seed >> 17
			seed ^= seed << 5
			img.Set(x, y, color.NRGBA{R: uint8(seed), G: uint8(x * 255 / w), B: uint8(y * 255 / h), A: 255})
		}
	}
	return img
}

func TestWebP_Identity(t *testing.T) {
	e := NewWebP()
	assert.Equal(t, "webp", e.Format())
	assert.Equal(t, ".webp", e.Extension())
	assert.Equal(t, 6, e.Method())
}

func TestWebP_EncodeRoundTrip(t *testing.T) {
	e := NewWebP()
	var buf bytes.Buffer
	require.NoError(t, e.Encode(&buf, noisy(64, 48), 100))

	decoded, err := chaiwebp.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 64, decoded.Bounds().Dx())
	assert.Equal(t, 48, decoded.Bounds().Dy())
}

func TestWebP_LowerQualityIsSmaller(t *testing.T) {
	e := NewWebP()
	img := noisy(128, 128)

	var hi, lo bytes.Buffer
	require.NoError(t, e.Encode(&hi, img, 100))
	require.NoError(t, e.Encode(&lo, img, 10))
	assert.Less(t, lo.Len(), hi.Len())
}

func TestWebP_RejectsQualityOutOfRange(t *testing.T) {
	e := NewWebP()
	var buf bytes.Buffer
	for _, q := range []int{-1, 101} {
		err := e.Encode(&buf, noisy(4, 4), q)
		assert.ErrorIs(t, err, ErrQuality, "quality %d", q)
	}
	assert.Zero(t, buf.Len())
}

func TestLoadAndReadHeader(t *testing.T) {
	dir := t.TempDir()

	pngPath := filepath.Join(dir, "src.png")
	f, err := os.Create(pngPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, noisy(40, 30)))
	require.NoError(t, f.Close())

	img, err := Load(pngPath)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(40, 30), img.Bounds().Size())

	webpPath := filepath.Join(dir, "out.webp")
	out, err := os.Create(webpPath)
	require.NoError(t, err)
	require.NoError(t, NewWebP().Encode(out, img, 80))
	require.NoError(t, out.Close())

	h, err := ReadHeader(webpPath)
	require.NoError(t, err)
	assert.Equal(t, "webp", h.Format)
	assert.Equal(t, 40, h.Width)
	assert.Equal(t, 30, h.Height)
	assert.Positive(t, h.Size)

	reloaded, err := Load(webpPath)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(40, 30), reloaded.Bounds().Size())
}

func TestLoad_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.webp")
	require.NoError(t, os.WriteFile(path, []byte("definitely not RIFF"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
	_, err = ReadHeader(path)
	assert.Error(t, err)
}
