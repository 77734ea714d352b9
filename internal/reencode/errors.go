package reencode

import "errors"

// Sentinel errors. Returned errors wrap one of these together with the
// underlying cause, so callers can use errors.Is.
var (
	ErrDecode  = errors.New("cannot decode source image")
	ErrEncode  = errors.New("cannot encode image")
	ErrWrite   = errors.New("cannot write destination")
	ErrOptions = errors.New("invalid re-encode options")
)
