package reencode

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// output receives successive full encodes of one image. Each Write replaces
// the previous content and returns the resulting on-disk size.
type output interface {
	Write(encode func(io.Writer) error) (int64, error)
	Commit() error
	Abort()
}

// directOutput truncates and rewrites the destination on every attempt.
// A crash mid-write leaves a partial file behind.
type directOutput struct {
	path string
}

func (o *directOutput) Write(encode func(io.Writer) error) (int64, error) {
	return writeFile(o.path, encode)
}

func (o *directOutput) Commit() error { return nil }
func (o *directOutput) Abort()        {}

// stagedOutput encodes into a hidden temp file next to the destination and
// renames it over the destination on Commit, so readers only ever see the
// previous file or the final one.
type stagedOutput struct {
	dest string
	tmp  string
}

func newStagedOutput(dest string) (*stagedOutput, error) {
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrWrite, dest, err)
	}
	tmp := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("%w: %s: %w", ErrWrite, tmp, err)
	}
	return &stagedOutput{dest: dest, tmp: tmp}, nil
}

func (o *stagedOutput) Write(encode func(io.Writer) error) (int64, error) {
	return writeFile(o.tmp, encode)
}

func (o *stagedOutput) Commit() error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(o.dest); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.Chmod(o.tmp, mode); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, o.tmp, err)
	}
	if err := os.Rename(o.tmp, o.dest); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWrite, o.dest, err)
	}
	return nil
}

func (o *stagedOutput) Abort() { _ = os.Remove(o.tmp) }

// writeFile truncates path, streams one encode into it, and returns the size
// reported by the filesystem afterwards.
func writeFile(path string, encode func(io.Writer) error) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	bw := bufio.NewWriter(f)
	if err := encode(bw); err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	return fi.Size(), nil
}
