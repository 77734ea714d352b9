// Package config holds runtime configuration: defaults, flag registration,
// layered loading (config file, environment, flags), and validation. The
// defaults reproduce the legacy compress_images script.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// Quality bounds accepted by the WebP encoder.
const (
	QualityMin = 0
	QualityMax = 100
)

// EncodeMethod is the libwebp effort setting. It is pinned at the maximum
// (6) and is not user-configurable.
const EncodeMethod = 6

// MaxNumberedFolders bounds how many folders --numbered may expand to.
const MaxNumberedFolders = 10000

// Config holds all runtime settings. It is populated by [DefaultConfig] and
// then overlaid by [Load] before being passed (by pointer) to packages that
// need it.
type Config struct {
	// Roots (positional args and/or --numbered).
	Roots     []string
	Numbered  string   // "1-21" expands to folders 1..21.
	OutputDir string   // Empty: compress in place.
	Exts      []string // Default: [".webp"]. Lowercase with leading dot.
	Recursive bool

	// Size targeting.
	TargetKB     int // Default: 1500.
	MaxDimension int // Default: 4096.
	StartQuality int // Default: 100.
	QualityStep  int // Default: 5.
	QualityFloor int // Default: 10.

	// Behavior flags.
	DryRun       bool
	SkipExisting bool // Default: true. Cleared by --force; only used with --out.
	Atomic       bool // Stage each attempt in a temp file and rename at the end.
	FailFast     bool // Abort the batch on the first failed file.
	Workers      int  // Default: 1 (sequential).

	// Display and logging.
	Verbose    bool
	ColorMode  ColorMode // Default: "auto".
	LogFile    string    // Optional log file path.
	ReportFile string    // Optional YAML run report path.
	ConfigFile string    // Optional config file read by Load.
}

// DefaultConfig returns a Config matching the legacy script: in-place
// compression of .webp files to 1500 KB, 4096 px bound, quality 100 down to
// 10 in steps of 5.
func DefaultConfig() Config {
	return Config{
		Exts:         []string{".webp"},
		Recursive:    false,
		TargetKB:     1500,
		MaxDimension: 4096,
		StartQuality: 100,
		QualityStep:  5,
		QualityFloor: 10,
		DryRun:       false,
		SkipExisting: true,
		Atomic:       false,
		FailFast:     false,
		Workers:      1,
		Verbose:      false,
		ColorMode:    ColorAuto,
	}
}

// TargetBytes returns the size threshold in bytes (TargetKB * 1024).
func (c *Config) TargetBytes() int64 {
	return int64(c.TargetKB) * 1024
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// NormalizeExt lowercases ext and ensures a leading dot ("WEBP" -> ".webp").
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ExpandNumbered turns "A-B" into the folder names A..B. A single number
// yields one folder.
func ExpandNumbered(spec string) ([]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	lo, hi, found := strings.Cut(spec, "-")
	first, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || first < 0 {
		return nil, fmt.Errorf("invalid numbered range %q (use e.g. 1-21)", spec)
	}
	last := first
	if found {
		last, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil || last < first {
			return nil, fmt.Errorf("invalid numbered range %q (use e.g. 1-21)", spec)
		}
	}
	if last-first >= MaxNumberedFolders {
		return nil, fmt.Errorf("numbered range %q covers more than %d folders", spec, MaxNumberedFolders)
	}
	dirs := make([]string, 0, last-first+1)
	for n := first; n <= last; n++ {
		dirs = append(dirs, strconv.Itoa(n))
	}
	return dirs, nil
}

// Validate checks numeric ranges and enum fields, normalizes extensions, and
// expands --numbered into Roots. When requireRoots is true at least one root
// must be present afterwards.
func (c *Config) Validate(requireRoots bool) error {
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	if c.TargetKB <= 0 {
		return fmt.Errorf("target size must be positive (got %d KB)", c.TargetKB)
	}
	if c.MaxDimension <= 0 {
		return fmt.Errorf("max dimension must be positive (got %d)", c.MaxDimension)
	}
	if c.StartQuality < QualityMin || c.StartQuality > QualityMax {
		return fmt.Errorf("start quality must be within %d-%d (got %d)", QualityMin, QualityMax, c.StartQuality)
	}
	if c.QualityFloor < QualityMin || c.QualityFloor > c.StartQuality {
		return fmt.Errorf("quality floor must be within %d-%d (got %d)", QualityMin, c.StartQuality, c.QualityFloor)
	}
	if c.QualityStep <= 0 {
		return fmt.Errorf("quality step must be positive (got %d)", c.QualityStep)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be at least 1 (got %d)", c.Workers)
	}

	exts := make([]string, 0, len(c.Exts))
	for _, e := range c.Exts {
		if n := NormalizeExt(e); n != "" {
			exts = append(exts, n)
		}
	}
	if len(exts) == 0 {
		return errors.New("need at least one file extension")
	}
	c.Exts = exts

	numbered, err := ExpandNumbered(c.Numbered)
	if err != nil {
		return err
	}
	roots := make([]string, 0, len(c.Roots)+len(numbered))
	for _, r := range c.Roots {
		if r = strings.TrimSpace(r); r != "" {
			roots = append(roots, NormalizeDirArg(r))
		}
	}
	c.Roots = append(roots, numbered...)
	c.Numbered = ""
	c.OutputDir = NormalizeDirArg(c.OutputDir)

	if requireRoots && len(c.Roots) == 0 {
		return errors.New("need at least one root directory (or --numbered)")
	}
	return nil
}

// ValidatePaths ensures the resolved output directory is not inside (or equal
// to) any resolved root. This prevents discovery from picking up the run's own
// output files. All arguments must be absolute, symlink-resolved paths.
func (c *Config) ValidatePaths(rootsAbs []string, outputAbs string) error {
	sep := string(filepath.Separator)
	for _, root := range rootsAbs {
		if outputAbs == root || strings.HasPrefix(outputAbs+sep, strings.TrimSuffix(root, sep)+sep) {
			return fmt.Errorf("output directory must not be inside root %s", root)
		}
	}
	return nil
}
