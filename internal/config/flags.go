package config

// This file registers the shared CLI flags. Flags are grouped into roots,
// size targeting, behavior, and display. Every flag is bound into viper by
// Load under its key (dashes become underscores), so the same setting can
// come from a config file or a WEBPSHRINK_* environment variable.

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Flag names. Keys in config files and env vars use the same names with
// underscores (target-kb -> target_kb -> WEBPSHRINK_TARGET_KB).
const (
	FlagNumbered     = "numbered"
	FlagOut          = "out"
	FlagExt          = "ext"
	FlagRecursive    = "recursive"
	FlagTargetKB     = "target-kb"
	FlagMaxDimension = "max-dimension"
	FlagStartQuality = "start-quality"
	FlagQualityStep  = "quality-step"
	FlagQualityFloor = "quality-floor"
	FlagDryRun       = "dry-run"
	FlagForce        = "force"
	FlagAtomic       = "atomic"
	FlagFailFast     = "fail-fast"
	FlagWorkers      = "workers"
	FlagVerbose      = "verbose"
	FlagColor        = "color"
	FlagNoColor      = "no-color"
	FlagLog          = "log"
	FlagReport       = "report"
	FlagConfig       = "config"
)

// RegisterFlags defines every shared flag on fs with defaults taken from
// [DefaultConfig]. Values are read back through viper in [Load], not through
// the pflag destinations.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()

	defineRootFlags(fs, &d)
	defineTargetFlags(fs, &d)
	defineBehaviorFlags(fs, &d)
	defineDisplayFlags(fs, &d)
}

// defineRootFlags registers --numbered, -o/--out, -e/--ext, -r/--recursive.
func defineRootFlags(fs *pflag.FlagSet, d *Config) {
	fs.String(FlagNumbered, "", "Also scan numbered folders, e.g. 1-21")
	fs.StringP(FlagOut, "o", "", "Write outputs under this directory instead of in place")
	fs.StringSliceP(FlagExt, "e", d.Exts, "File extensions to pick up")
	fs.BoolP(FlagRecursive, "r", d.Recursive, "Descend into subdirectories of each root")
}

// defineTargetFlags registers -t/--target-kb, --max-dimension and the quality ladder.
func defineTargetFlags(fs *pflag.FlagSet, d *Config) {
	fs.IntP(FlagTargetKB, "t", d.TargetKB, "Target file size in KB")
	fs.Int(FlagMaxDimension, d.MaxDimension, "Largest allowed width or height in pixels")
	fs.Int(FlagStartQuality, d.StartQuality, "First encode quality")
	fs.Int(FlagQualityStep, d.QualityStep, "Quality decrement per retry")
	fs.Int(FlagQualityFloor, d.QualityFloor, "Lowest quality tried before giving up")
}

// defineBehaviorFlags registers dry-run, force, atomic, fail-fast, workers.
func defineBehaviorFlags(fs *pflag.FlagSet, d *Config) {
	fs.BoolP(FlagDryRun, "d", d.DryRun, "Preview only; do not write files")
	fs.BoolP(FlagForce, "f", false, "Overwrite existing files under --out")
	fs.Bool(FlagAtomic, d.Atomic, "Stage attempts in a temp file and rename when done")
	fs.Bool(FlagFailFast, d.FailFast, "Stop the batch at the first failed file")
	fs.IntP(FlagWorkers, "j", d.Workers, "Files processed in parallel")
}

// defineDisplayFlags registers verbose, color, log, report, config.
func defineDisplayFlags(fs *pflag.FlagSet, d *Config) {
	fs.BoolP(FlagVerbose, "v", d.Verbose, "Verbose output")
	fs.Var(&colorModeValue{p: ptr(d.ColorMode)}, FlagColor, "Colored logs: auto | always | never")
	fs.Bool(FlagNoColor, false, "Disable colored logs")
	fs.StringP(FlagLog, "l", "", "Append logs to file")
	fs.String(FlagReport, "", "Write a YAML run report to this path")
	fs.StringP(FlagConfig, "c", "", "Read settings from this config file (yaml, toml, json)")
}

// Key returns the viper key for a flag name.
func Key(flagName string) string {
	return strings.ReplaceAll(flagName, "-", "_")
}

func ptr[T any](v T) *T { return &v }

// pflag.Value adapter so ColorMode is validated at parse time.

type colorModeValue struct{ p *ColorMode }

func (c *colorModeValue) String() string { return string(*c.p) }
func (c *colorModeValue) Type() string   { return "mode" }
func (c *colorModeValue) Set(s string) error {
	switch ColorMode(strings.ToLower(s)) {
	case ColorAuto:
		*c.p = ColorAuto
	case ColorAlways:
		*c.p = ColorAlways
	case ColorNever:
		*c.p = ColorNever
	default:
		return fmt.Errorf("invalid color mode %q (use 'auto', 'always' or 'never')", s)
	}
	return nil
}
