package reencode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/backmassage/webpshrink/internal/display"
	"github.com/backmassage/webpshrink/internal/encoder"
)

// Reencoder runs size-targeted conversions with one encoder. It holds no
// per-file state and may be shared across goroutines.
type Reencoder struct {
	enc     encoder.Encoder
	load    func(string) (image.Image, error)
	staging bool
	log     Logger
}

// Option configures a Reencoder.
type Option func(*Reencoder)

// WithStaging makes every conversion write to a temp file and rename it over
// the destination once the final quality is known.
func WithStaging(on bool) Option {
	return func(r *Reencoder) { r.staging = on }
}

// WithLogger traces each encode attempt at debug level.
func WithLogger(l Logger) Option {
	return func(r *Reencoder) {
		if l != nil {
			r.log = l
		}
	}
}

// WithLoader replaces the image decoder.
func WithLoader(load func(string) (image.Image, error)) Option {
	return func(r *Reencoder) {
		if load != nil {
			r.load = load
		}
	}
}

// New returns a Reencoder writing with enc.
func New(enc encoder.Encoder, opts ...Option) *Reencoder {
	r := &Reencoder{
		enc:  enc,
		load: encoder.Load,
		log:  nopLogger{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Encoder returns the encoder used for every attempt.
func (r *Reencoder) Encoder() encoder.Encoder { return r.enc }

// Reencode decodes req.Source and runs the size-targeting loop into
// req.Dest. The source is fully decoded before anything is written, so
// Dest may equal Source.
func (r *Reencoder) Reencode(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var inputBytes int64
	if fi, err := os.Stat(req.Source); err == nil {
		inputBytes = fi.Size()
	}
	img, err := r.load(req.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, req.Source, err)
	}
	res, err := r.ReencodeImage(ctx, img, req)
	if err != nil {
		return nil, err
	}
	res.InputBytes = inputBytes
	return res, nil
}

// ReencodeImage runs the size-targeting loop for an already decoded image.
// req.Source is only used for labelling.
func (r *Reencoder) ReencodeImage(ctx context.Context, img image.Image, req Request) (*Result, error) {
	opts := req.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: %s: empty image", ErrDecode, req.Source)
	}

	res := &Result{
		Source:       req.Source,
		Dest:         req.dest(),
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
	}
	img, res.Resized = Resize(img, opts.MaxDimension)
	res.Width, res.Height = img.Bounds().Dx(), img.Bounds().Dy()
	if res.Resized {
		r.log.Debug("%s: resized %s -> %s", req.Source,
			display.FormatDims(res.SourceWidth, res.SourceHeight), display.FormatDims(res.Width, res.Height))
	}

	out, err := r.open(res.Dest)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			out.Abort()
		}
	}()

	limit := opts.TargetBytes()
	ladder := NewLadder(opts.StartQuality, opts.QualityStep, opts.QualityFloor)
	size, err := r.attempt(ctx, out, img, req.Source, ladder.Quality())
	if err != nil {
		return nil, err
	}
	for size > limit && ladder.Next() {
		if size, err = r.attempt(ctx, out, img, req.Source, ladder.Quality()); err != nil {
			return nil, err
		}
	}

	if err := out.Commit(); err != nil {
		return nil, err
	}
	committed = true

	res.Qualities = ladder.Tried()
	res.FinalQuality = ladder.Quality()
	res.Bytes = size
	res.MetTarget = size <= limit
	return res, nil
}

func (r *Reencoder) open(dest string) (output, error) {
	if r.staging {
		return newStagedOutput(dest)
	}
	return &directOutput{path: dest}, nil
}

// attempt writes one full encode at quality q and returns the on-disk size.
func (r *Reencoder) attempt(ctx context.Context, out output, img image.Image, label string, q int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size, err := out.Write(func(w io.Writer) error {
		if err := r.enc.Encode(w, img, q); err != nil {
			return fmt.Errorf("%w: %s at quality %d: %w", ErrEncode, label, q, err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrEncode) && !errors.Is(err, ErrWrite) {
			err = fmt.Errorf("%w: %w", ErrWrite, err)
		}
		return 0, err
	}
	r.log.Debug("%s: quality %d -> %s", label, q, display.FormatKB(size))
	return size, nil
}
