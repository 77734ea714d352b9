package reencode

import (
	"fmt"

	"github.com/backmassage/webpshrink/internal/config"
)

// Options are the size-targeting knobs of one conversion.
type Options struct {
	TargetKB     int
	MaxDimension int
	StartQuality int
	QualityStep  int
	QualityFloor int
}

// DefaultOptions returns the legacy settings: 1500 KB, 4096 px, 100 down to
// 10 in steps of 5.
func DefaultOptions() Options {
	return OptionsFromConfig(ptr(config.DefaultConfig()))
}

// OptionsFromConfig copies the size-targeting fields out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TargetKB:     cfg.TargetKB,
		MaxDimension: cfg.MaxDimension,
		StartQuality: cfg.StartQuality,
		QualityStep:  cfg.QualityStep,
		QualityFloor: cfg.QualityFloor,
	}
}

// TargetBytes returns the size threshold in bytes.
func (o Options) TargetBytes() int64 {
	return int64(o.TargetKB) * 1024
}

// Validate reports option combinations the ladder cannot run with.
func (o Options) Validate() error {
	switch {
	case o.TargetKB <= 0:
		return fmt.Errorf("%w: target %d KB", ErrOptions, o.TargetKB)
	case o.MaxDimension <= 0:
		return fmt.Errorf("%w: max dimension %d", ErrOptions, o.MaxDimension)
	case o.StartQuality < config.QualityMin || o.StartQuality > config.QualityMax:
		return fmt.Errorf("%w: start quality %d", ErrOptions, o.StartQuality)
	case o.QualityFloor < config.QualityMin || o.QualityFloor > o.StartQuality:
		return fmt.Errorf("%w: quality floor %d", ErrOptions, o.QualityFloor)
	case o.QualityStep <= 0:
		return fmt.Errorf("%w: quality step %d", ErrOptions, o.QualityStep)
	}
	return nil
}

// Request is one conversion. An empty Dest means in place (Dest = Source).
type Request struct {
	Source  string
	Dest    string
	Options Options
}

func (r Request) dest() string {
	if r.Dest == "" {
		return r.Source
	}
	return r.Dest
}

// Result describes a finished conversion.
type Result struct {
	Source string
	Dest   string

	SourceWidth  int
	SourceHeight int
	Width        int // after resize
	Height       int
	Resized      bool

	Qualities    []int // every quality written, in order
	FinalQuality int

	InputBytes int64 // source size before the run; 0 for in-memory images
	Bytes      int64 // final on-disk size of Dest
	MetTarget  bool
}

// Writes returns how many encodes were written to the destination.
func (r *Result) Writes() int { return len(r.Qualities) }

// Reduced reports whether the quality ladder was entered.
func (r *Result) Reduced() bool { return len(r.Qualities) > 1 }

// Logger is the minimal logging interface used for per-attempt tracing.
type Logger interface {
	Debug(string, ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}

func ptr[T any](v T) *T { return &v }
