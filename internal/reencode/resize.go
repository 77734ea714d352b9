package reencode

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Fit returns the dimensions w x h scales to so that neither side exceeds
// max, preserving aspect ratio. ok is false when no resize is needed.
func Fit(w, h, max int) (nw, nh int, ok bool) {
	if w <= max && h <= max {
		return w, h, false
	}
	ratio := math.Min(float64(max)/float64(w), float64(max)/float64(h))
	nw = clamp(int(math.Round(float64(w)*ratio)), 1, max)
	nh = clamp(int(math.Round(float64(h)*ratio)), 1, max)
	return nw, nh, true
}

// Resize downsamples img with a Lanczos filter when it exceeds max on either
// side. The original image is returned untouched otherwise.
func Resize(img image.Image, max int) (image.Image, bool) {
	b := img.Bounds()
	w, h, ok := Fit(b.Dx(), b.Dy(), max)
	if !ok {
		return img, false
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
