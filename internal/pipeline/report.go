package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/backmassage/webpshrink/internal/config"
	"github.com/backmassage/webpshrink/internal/reencode"
)

// File outcome labels used in logs and the run report.
const (
	StatusKept        = "kept"
	StatusReduced     = "reduced"
	StatusUnreached   = "unreached"
	StatusPlanned     = "planned"
	StatusSkipped     = "skipped"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// Report is the YAML document written by --report.
type Report struct {
	RunID    string        `yaml:"run_id"`
	Started  time.Time     `yaml:"started"`
	Finished time.Time     `yaml:"finished"`
	DryRun   bool          `yaml:"dry_run,omitempty"`
	Options  ReportOptions `yaml:"options"`
	Totals   ReportTotals  `yaml:"totals"`
	Files    []FileEntry   `yaml:"files"`

	mu sync.Mutex
}

// ReportOptions records the settings a run used.
type ReportOptions struct {
	Roots        []string `yaml:"roots,flow"`
	OutputDir    string   `yaml:"output_dir,omitempty"`
	TargetKB     int      `yaml:"target_kb"`
	MaxDimension int      `yaml:"max_dimension"`
	StartQuality int      `yaml:"start_quality"`
	QualityStep  int      `yaml:"quality_step"`
	QualityFloor int      `yaml:"quality_floor"`
	Method       int      `yaml:"method"`
	Atomic       bool     `yaml:"atomic,omitempty"`
	Workers      int      `yaml:"workers"`
}

// ReportTotals mirrors RunStats.
type ReportTotals struct {
	Files       int   `yaml:"files"`
	Kept        int   `yaml:"kept"`
	Reduced     int   `yaml:"reduced"`
	Unreached   int   `yaml:"unreached"`
	Resized     int   `yaml:"resized"`
	Planned     int   `yaml:"planned,omitempty"`
	Skipped     int   `yaml:"skipped"`
	Failed      int   `yaml:"failed"`
	InputBytes  int64 `yaml:"input_bytes"`
	OutputBytes int64 `yaml:"output_bytes"`
}

// FileEntry is one file's outcome.
type FileEntry struct {
	Source       string `yaml:"source"`
	Dest         string `yaml:"dest,omitempty"`
	Status       string `yaml:"status"`
	SourceWidth  int    `yaml:"source_width,omitempty"`
	SourceHeight int    `yaml:"source_height,omitempty"`
	Width        int    `yaml:"width,omitempty"`
	Height       int    `yaml:"height,omitempty"`
	Resized      bool   `yaml:"resized,omitempty"`
	Qualities    []int  `yaml:"qualities,flow,omitempty"`
	FinalQuality int    `yaml:"final_quality,omitempty"`
	InputBytes   int64  `yaml:"input_bytes,omitempty"`
	OutputBytes  int64  `yaml:"output_bytes,omitempty"`
	Error        string `yaml:"error,omitempty"`
}

// NewReport starts a report for a run over n files.
func NewReport(cfg *config.Config, n int) *Report {
	return &Report{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC().Truncate(time.Second),
		DryRun:  cfg.DryRun,
		Options: ReportOptions{
			Roots:        cfg.Roots,
			OutputDir:    cfg.OutputDir,
			TargetKB:     cfg.TargetKB,
			MaxDimension: cfg.MaxDimension,
			StartQuality: cfg.StartQuality,
			QualityStep:  cfg.QualityStep,
			QualityFloor: cfg.QualityFloor,
			Method:       config.EncodeMethod,
			Atomic:       cfg.Atomic,
			Workers:      cfg.Workers,
		},
		Files: make([]FileEntry, n),
	}
}

// Set stores the entry for the i-th discovered file.
func (r *Report) Set(i int, e FileEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Files[i] = e
}

// Finish stamps the end time and totals and drops entries for files that
// were never started.
func (r *Report) Finish(stats RunStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Finished = time.Now().UTC().Truncate(time.Second)
	r.Totals = ReportTotals{
		Files:       stats.Total,
		Kept:        stats.Kept,
		Reduced:     stats.Reduced,
		Unreached:   stats.Unreached,
		Resized:     stats.Resized,
		Planned:     stats.Planned,
		Skipped:     stats.Skipped,
		Failed:      stats.Failed,
		InputBytes:  stats.TotalInputBytes,
		OutputBytes: stats.TotalOutputBytes,
	}
	files := r.Files[:0]
	for _, f := range r.Files {
		if f.Source != "" {
			files = append(files, f)
		}
	}
	r.Files = files
}

// Write marshals the report to path, creating parent directories.
func (r *Report) Write(path string) error {
	r.mu.Lock()
	b, err := yaml.Marshal(r)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// entryFromResult fills a FileEntry from a finished conversion.
func entryFromResult(res *reencode.Result, status string) FileEntry {
	return FileEntry{
		Source:       res.Source,
		Dest:         res.Dest,
		Status:       status,
		SourceWidth:  res.SourceWidth,
		SourceHeight: res.SourceHeight,
		Width:        res.Width,
		Height:       res.Height,
		Resized:      res.Resized,
		Qualities:    res.Qualities,
		FinalQuality: res.FinalQuality,
		InputBytes:   res.InputBytes,
		OutputBytes:  res.Bytes,
	}
}
