// Package encoder turns decoded images into WebP bytes and loads source
// images from disk.
//
// Encoding goes through libwebp (cgo) with the effort setting pinned at the
// maximum. Decoding relies on the formats registered with the image package:
// WebP, PNG, JPEG and GIF.
package encoder
