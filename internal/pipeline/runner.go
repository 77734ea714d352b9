package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/backmassage/webpshrink/internal/config"
	"github.com/backmassage/webpshrink/internal/display"
	"github.com/backmassage/webpshrink/internal/encoder"
	"github.com/backmassage/webpshrink/internal/logging"
	"github.com/backmassage/webpshrink/internal/reencode"
)

// ErrBatchAborted is returned by Run when --fail-fast stopped the batch.
var ErrBatchAborted = errors.New("batch aborted after first failure")

// Job is one source with its resolved destination.
type Job struct {
	Index  int
	Source Source
	Dest   string
}

// Runner executes batches with a fixed configuration and re-encoder.
type Runner struct {
	cfg *config.Config
	log *logging.Logger
	re  *reencode.Reencoder

	mu     sync.Mutex
	stats  RunStats
	report *Report
}

// NewRunner returns a Runner. A nil re uses the WebP encoder with staging
// per cfg.Atomic.
func NewRunner(cfg *config.Config, log *logging.Logger, re *reencode.Reencoder) *Runner {
	if re == nil {
		re = reencode.New(encoder.NewWebP(),
			reencode.WithStaging(cfg.Atomic),
			reencode.WithLogger(log))
	}
	return &Runner{cfg: cfg, log: log, re: re}
}

// Run is the top-level batch entry point with the default WebP encoder.
func Run(ctx context.Context, cfg *config.Config, log *logging.Logger) (RunStats, error) {
	return NewRunner(cfg, log, nil).Run(ctx)
}

// Run discovers files under the configured roots, processes them with up to
// cfg.Workers goroutines, and returns aggregate stats. A non-nil error means
// discovery failed, the report could not be written, or --fail-fast stopped
// the batch; per-file failures are otherwise only counted.
func (r *Runner) Run(ctx context.Context) (RunStats, error) {
	r.stats = RunStats{}

	jobs, err := r.Plan()
	if err != nil {
		r.log.Error("File discovery failed: %v", err)
		return r.stats, err
	}
	r.stats.Total = len(jobs)
	if len(jobs) == 0 {
		r.log.Warn("No files matching %v found", r.cfg.Exts)
		return r.stats, nil
	}

	if r.cfg.ReportFile != "" {
		r.report = NewReport(r.cfg, len(jobs))
	}
	r.logBatchHeader()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			err := r.processFile(gctx, job)
			if err != nil && r.cfg.FailFast && !isInterrupt(err) {
				return fmt.Errorf("%w: %s: %w", ErrBatchAborted, job.Source.Path, err)
			}
			return nil
		})
	}
	runErr := g.Wait()
	if ctx.Err() != nil {
		r.log.Warn("Interrupted")
	}
	if runErr != nil {
		r.log.Error("Stopping: %v", runErr)
	}

	stats := r.snapshot()
	r.logSummary(stats)

	if r.report != nil {
		r.report.Finish(stats)
		if err := r.report.Write(r.cfg.ReportFile); err != nil {
			r.log.Error("Cannot write report: %v", err)
			return stats, errors.Join(runErr, err)
		}
		r.log.Info("Report: %s", r.cfg.ReportFile)
	}
	return stats, runErr
}

// Plan discovers sources and resolves each destination. Missing roots are
// logged and skipped.
func (r *Runner) Plan() ([]Job, error) {
	roots, missing, err := CheckRoots(r.cfg.Roots)
	if err != nil {
		return nil, err
	}
	for _, m := range missing {
		r.log.Warn("Skip (missing folder): %s", m)
	}

	sources, err := Discover(roots, r.cfg.Exts, r.cfg.Recursive)
	if err != nil {
		return nil, err
	}

	resolver := NewCollisionResolver()
	if r.cfg.OutputDir == "" {
		for _, s := range sources {
			resolver.Claim(s.Path, s.Path)
		}
	}
	ext := r.re.Encoder().Extension()
	jobs := make([]Job, len(sources))
	for i, s := range sources {
		jobs[i] = Job{
			Index:  i,
			Source: s,
			Dest:   resolver.Resolve(s.Path, OutputPath(s, r.cfg.OutputDir, ext)),
		}
	}
	return jobs, nil
}

// SourceFor maps path to a Source under the first configured root that
// contains it, honoring the recursive setting.
func (r *Runner) SourceFor(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, err
	}
	for _, root := range r.cfg.Roots {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(rootAbs, abs)
		if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
			continue
		}
		if !r.cfg.Recursive && strings.ContainsRune(rel, filepath.Separator) {
			continue
		}
		return Source{Path: abs, Root: rootAbs, Rel: rel}, nil
	}
	return Source{}, fmt.Errorf("not under any watched folder: %s", path)
}

// DestFor returns where path would be written.
func (r *Runner) DestFor(path string) (string, error) {
	src, err := r.SourceFor(path)
	if err != nil {
		return "", err
	}
	return OutputPath(src, r.cfg.OutputDir, r.re.Encoder().Extension()), nil
}

// ProcessPath handles a single file outside a batch, as watch mode does.
// Stats accumulate across calls; no report entry is written.
func (r *Runner) ProcessPath(ctx context.Context, path string) error {
	src, err := r.SourceFor(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.stats.Total++
	r.mu.Unlock()
	return r.processFile(ctx, Job{
		Index:  -1,
		Source: src,
		Dest:   OutputPath(src, r.cfg.OutputDir, r.re.Encoder().Extension()),
	})
}

// Stats returns a copy of the counters.
func (r *Runner) Stats() RunStats { return r.snapshot() }

func (r *Runner) options() reencode.Options {
	return reencode.OptionsFromConfig(r.cfg)
}

// processFile handles one source: validate, skip-existing, dry-run or
// re-encode, then record the outcome.
func (r *Runner) processFile(ctx context.Context, job Job) error {
	r.mu.Lock()
	r.stats.Current++
	n, total := r.stats.Current, r.stats.Total
	r.mu.Unlock()

	src := job.Source.Path
	r.log.Info("[%d/%d] %s", n, total, job.Source.Rel)

	fi, err := os.Stat(src)
	if err != nil {
		return r.fail(job, fmt.Errorf("file not found: %w", err))
	}

	if r.cfg.SkipExisting && job.Dest != src {
		if _, err := os.Stat(job.Dest); err == nil {
			r.log.Warn("Skip (exists): %s", job.Dest)
			r.record(job, FileEntry{Source: src, Dest: job.Dest, Status: StatusSkipped}, func(s *RunStats) { s.Skipped++ })
			return nil
		}
	}

	if r.cfg.DryRun {
		return r.dryRun(job)
	}

	if err := os.MkdirAll(filepath.Dir(job.Dest), 0o755); err != nil {
		return r.fail(job, fmt.Errorf("cannot create output directory: %w", err))
	}

	start := time.Now()
	res, err := r.re.Reencode(ctx, reencode.Request{Source: src, Dest: job.Dest, Options: r.options()})
	if err != nil {
		if isInterrupt(err) {
			r.log.Warn("Interrupted: %s", job.Source.Rel)
			r.record(job, FileEntry{Source: src, Dest: job.Dest, Status: StatusInterrupted}, nil)
			return err
		}
		return r.fail(job, err)
	}
	elapsed := time.Since(start)

	status := classify(res)
	if job.Dest != src {
		r.log.Info("  -> %s", job.Dest)
	}
	if res.Resized {
		r.log.Info("  Resized %s -> %s",
			display.FormatDims(res.SourceWidth, res.SourceHeight), display.FormatDims(res.Width, res.Height))
	}

	ratio := int64(100)
	if fi.Size() > 0 {
		ratio = res.Bytes * 100 / fi.Size()
	}
	switch status {
	case StatusKept:
		r.log.Success("Kept quality %d: %s in %.1fs (%d%% of original)",
			res.FinalQuality, display.FormatKB(res.Bytes), elapsed.Seconds(), ratio)
	case StatusReduced:
		r.log.Success("Reduced to quality %d after %d writes: %s in %.1fs (%d%% of original)",
			res.FinalQuality, res.Writes(), display.FormatKB(res.Bytes), elapsed.Seconds(), ratio)
	default:
		r.log.Warn("Target not reached at quality floor %d: %s > %s",
			res.FinalQuality, display.FormatKB(res.Bytes), display.FormatKB(r.cfg.TargetBytes()))
	}

	r.record(job, entryFromResult(res, status), func(s *RunStats) {
		switch status {
		case StatusKept:
			s.Kept++
		case StatusReduced:
			s.Reduced++
		default:
			s.Unreached++
		}
		if res.Resized {
			s.Resized++
		}
		s.TotalInputBytes += fi.Size()
		s.TotalOutputBytes += res.Bytes
	})
	return nil
}

// dryRun reads only the image header and logs what a real run would do.
func (r *Runner) dryRun(job Job) error {
	h, err := encoder.ReadHeader(job.Source.Path)
	if err != nil {
		return r.fail(job, fmt.Errorf("%w: %w", reencode.ErrDecode, err))
	}
	w, hgt, resize := reencode.Fit(h.Width, h.Height, r.cfg.MaxDimension)

	note := "fits"
	if h.Size > r.cfg.TargetBytes() {
		note = "over target"
	}
	if resize {
		r.log.Success("[DRY] Would resize %s -> %s and re-encode (%s %s)",
			display.FormatDims(h.Width, h.Height), display.FormatDims(w, hgt), display.FormatKB(h.Size), note)
	} else {
		r.log.Success("[DRY] Would re-encode %s (%s %s)", display.FormatDims(h.Width, h.Height), display.FormatKB(h.Size), note)
	}

	r.record(job, FileEntry{
		Source:       job.Source.Path,
		Dest:         job.Dest,
		Status:       StatusPlanned,
		SourceWidth:  h.Width,
		SourceHeight: h.Height,
		Width:        w,
		Height:       hgt,
		Resized:      resize,
		InputBytes:   h.Size,
	}, func(s *RunStats) {
		s.Planned++
		if resize {
			s.Resized++
		}
		s.TotalInputBytes += h.Size
	})
	return nil
}

func (r *Runner) fail(job Job, err error) error {
	r.log.Error("Failed: %s: %v", job.Source.Rel, err)
	r.record(job, FileEntry{Source: job.Source.Path, Dest: job.Dest, Status: StatusFailed, Error: err.Error()},
		func(s *RunStats) { s.Failed++ })
	return err
}

// record applies update to the stats and stores the report entry.
func (r *Runner) record(job Job, e FileEntry, update func(*RunStats)) {
	r.mu.Lock()
	if update != nil {
		update(&r.stats)
	}
	r.mu.Unlock()
	if r.report != nil && job.Index >= 0 {
		r.report.Set(job.Index, e)
	}
}

func (r *Runner) snapshot() RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func classify(res *reencode.Result) string {
	switch {
	case !res.MetTarget:
		return StatusUnreached
	case res.Reduced():
		return StatusReduced
	default:
		return StatusKept
	}
}

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// --- Logging helpers ---

func (r *Runner) logBatchHeader() {
	cfg := r.cfg
	r.log.Info("Found %d files in %d folder(s)", r.stats.Total, len(cfg.Roots))
	r.log.Info("Target: %d KB, max dimension %dpx", cfg.TargetKB, cfg.MaxDimension)
	r.log.Info("Quality: %d down to %d in steps of %d (method %d)",
		cfg.StartQuality, cfg.QualityFloor, cfg.QualityStep, config.EncodeMethod)
	if cfg.OutputDir == "" {
		r.log.Info("Output: in place")
	} else {
		r.log.Info("Output: %s", cfg.OutputDir)
	}
	if cfg.Atomic {
		r.log.Info("Writes: staged (temp file + rename)")
	}
	if cfg.Workers > 1 {
		r.log.Info("Workers: %d", cfg.Workers)
	}
	if cfg.FailFast {
		r.log.Info("Failure policy: stop at first failure")
	}
	if cfg.DryRun {
		r.log.Warn("DRY RUN: nothing will be written")
	}
}

func (r *Runner) logSummary(stats RunStats) {
	r.log.Info("==============================")
	if r.cfg.DryRun {
		r.log.Info("Done: %d planned (%d need resizing), %d skipped, %d failed",
			stats.Planned, stats.Resized, stats.Skipped, stats.Failed)
		r.log.Info("  Total space saved: n/a (dry run)")
		return
	}
	r.log.Info("Done: %d kept, %d reduced, %d above target, %d skipped, %d failed",
		stats.Kept, stats.Reduced, stats.Unreached, stats.Skipped, stats.Failed)
	if stats.Resized > 0 {
		r.log.Info("  Resized: %d", stats.Resized)
	}
	r.log.Info("  Total files processed: %d of %d", stats.Current, stats.Total)

	saved := stats.SpaceSaved()
	if saved >= 0 {
		r.log.Success("  Total space saved: %s (input %s -> output %s)",
			display.FormatBytes(saved),
			display.FormatBytes(stats.TotalInputBytes),
			display.FormatBytes(stats.TotalOutputBytes))
	} else {
		r.log.Warn("  Total space saved: %s (overall output is larger)",
			display.FormatBytesWithSign(saved))
	}
}
