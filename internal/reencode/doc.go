// Package reencode implements the size-targeted re-encoder: it optionally
// downsamples an image to fit a maximum dimension, encodes it at the start
// quality, and walks a quality ladder down until the file on disk fits the
// target size or the quality floor is reached.
//
// Every attempt is a complete encode of the same in-memory image, so the
// destination may be the source file itself.
package reencode
