package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/backmassage/webpshrink/internal/config"
	"github.com/backmassage/webpshrink/internal/encoder"
	"github.com/backmassage/webpshrink/internal/logging"
)

func noisy(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	seed := uint32(2463534242)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			seed ^= seed << 13
			seed ^= seed >> 17
			seed ^= seed << 5
			img.Set(x, y, color.NRGBA{R: uint8(seed), G: uint8(seed >> 8), B: uint8(y), A: 255})
		}
	}
	return img
}

func writeWebP(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, encoder.NewWebP().Encode(f, noisy(w, h), 90))
	require.NoError(t, f.Close())
}

func testConfig(t *testing.T, roots ...string) (*config.Config, *logging.Logger) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ColorMode = config.ColorNever
	cfg.Roots = roots
	require.NoError(t, cfg.Validate(true))
	log, err := logging.NewLogger(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return &cfg, log
}

func TestRun_InPlaceKeepsFittingFiles(t *testing.T) {
	dir := t.TempDir()
	writeWebP(t, filepath.Join(dir, "a.webp"), 64, 48)
	writeWebP(t, filepath.Join(dir, "b.webp"), 48, 64)

	cfg, log := testConfig(t, dir)
	cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "run.yaml")

	stats, err := Run(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Kept)
	assert.Zero(t, stats.Failed)
	assert.Positive(t, stats.TotalOutputBytes)

	h, err := encoder.ReadHeader(filepath.Join(dir, "a.webp"))
	require.NoError(t, err)
	assert.Equal(t, 64, h.Width)

	b, err := os.ReadFile(cfg.ReportFile)
	require.NoError(t, err)
	var rep Report
	require.NoError(t, yaml.Unmarshal(b, &rep))
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 1500, rep.Options.TargetKB)
	assert.Equal(t, 6, rep.Options.Method)
	assert.Equal(t, 2, rep.Totals.Kept)
	require.Len(t, rep.Files, 2)
	assert.Equal(t, StatusKept, rep.Files[0].Status)
	assert.Equal(t, []int{100}, rep.Files[0].Qualities)
	assert.Equal(t, filepath.Join(dir, "a.webp"), rep.Files[0].Source)
}

func TestRun_ResizesOversized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wide.webp")
	writeWebP(t, path, 120, 60)

	cfg, log := testConfig(t, dir)
	cfg.MaxDimension = 40

	stats, err := Run(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Resized)
	assert.Equal(t, 1, stats.Processed())

	h, err := encoder.ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, 40, h.Width)
	assert.Equal(t, 20, h.Height)
}

func TestRun_TightTargetLowersQuality(t *testing.T) {
	dir := t.TempDir()
	writeWebP(t, filepath.Join(dir, "noise.webp"), 96, 96)

	cfg, log := testConfig(t, dir)
	cfg.TargetKB = 1

	stats, err := Run(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Zero(t, stats.Kept, "noise never fits 1 KB at quality 100")
	assert.Equal(t, 1, stats.Reduced+stats.Unreached)
}

func TestRun_OutputDirAndSkipExisting(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "7")
	writeWebP(t, filepath.Join(root, "a.webp"), 32, 32)
	out := filepath.Join(base, "out")

	cfg, log := testConfig(t, root)
	cfg.OutputDir = out

	stats, err := Run(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Kept)
	assert.FileExists(t, filepath.Join(out, "7", "a.webp"))

	stats, err = Run(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Processed())

	cfg.SkipExisting = false
	stats, err = Run(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Kept)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.webp")
	writeWebP(t, path, 80, 40)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	cfg, log := testConfig(t, dir)
	cfg.DryRun = true
	cfg.MaxDimension = 50

	stats, err := Run(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Planned)
	assert.Equal(t, 1, stats.Resized)
	assert.Zero(t, stats.Processed())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(before, after))
}

func TestRun_FailureContinuesByDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.webp"), []byte("broken"), 0o644))
	writeWebP(t, filepath.Join(dir, "b.webp"), 32, 32)

	cfg, log := testConfig(t, dir)
	stats, err := Run(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Kept)
	assert.Equal(t, 2, stats.Current)
}

func TestRun_FailFastStopsBatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.webp"), []byte("broken"), 0o644))
	writeWebP(t, filepath.Join(dir, "b.webp"), 32, 32)
	before, err := os.ReadFile(filepath.Join(dir, "b.webp"))
	require.NoError(t, err)

	cfg, log := testConfig(t, dir)
	cfg.FailFast = true
	stats, err := Run(context.Background(), cfg, log)
	assert.ErrorIs(t, err, ErrBatchAborted)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Current)

	after, err := os.ReadFile(filepath.Join(dir, "b.webp"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(before, after), "b.webp must not be touched")
}

func TestRun_MissingRootsAreSkipped(t *testing.T) {
	dir := t.TempDir()
	writeWebP(t, filepath.Join(dir, "a.webp"), 32, 32)

	cfg, log := testConfig(t, filepath.Join(dir, "missing"), dir)
	stats, err := Run(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Zero(t, stats.Failed)
}

func TestRun_RootIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.webp")
	writeWebP(t, file, 8, 8)

	cfg, log := testConfig(t, file)
	_, err := Run(context.Background(), cfg, log)
	assert.Error(t, err)
}

func TestRun_ParallelWorkers(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1.webp", "2.webp", "3.webp", "4.webp", "5.webp"} {
		writeWebP(t, filepath.Join(dir, name), 24, 24)
	}

	cfg, log := testConfig(t, dir)
	cfg.Workers = 3
	stats, err := Run(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Processed())
	assert.Equal(t, 5, stats.Current)
}

func TestRun_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeWebP(t, filepath.Join(dir, "a.webp"), 16, 16)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg, log := testConfig(t, dir)
	stats, err := Run(ctx, cfg, log)
	require.NoError(t, err)
	assert.Zero(t, stats.Current)
}

func TestPlan_InPlaceCollisions(t *testing.T) {
	dir := t.TempDir()
	writeWebP(t, filepath.Join(dir, "a.webp"), 8, 8)
	writeWebP(t, filepath.Join(dir, "a.png"), 8, 8)

	cfg, log := testConfig(t, dir)
	cfg.Exts = []string{".png", ".webp"}

	jobs, err := NewRunner(cfg, log, nil).Plan()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, filepath.Join(dir, "a - dup1.webp"), jobs[0].Dest, "a.png must not overwrite a.webp")
	assert.Equal(t, filepath.Join(dir, "a.webp"), jobs[1].Dest)
}

func TestAnalyze_Table(t *testing.T) {
	dir := t.TempDir()
	writeWebP(t, filepath.Join(dir, "big.webp"), 200, 100)
	writeWebP(t, filepath.Join(dir, "small.webp"), 20, 20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.webp"), []byte("nope"), 0o644))

	cfg, log := testConfig(t, dir)
	cfg.MaxDimension = 100
	cfg.TargetKB = 1

	var out bytes.Buffer
	require.NoError(t, Analyze(context.Background(), cfg, log, &out))

	table := out.String()
	assert.Contains(t, table, "Dimensions")
	assert.Contains(t, table, "big.webp")
	assert.Contains(t, table, "200x100")
	assert.Contains(t, table, "[resize]")
	assert.Contains(t, table, "[over]")
	assert.NotContains(t, table, "junk.webp")
}

func TestRunner_ProcessPath(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	writeWebP(t, filepath.Join(dir, "a.webp"), 16, 16)
	writeWebP(t, filepath.Join(sub, "b.webp"), 16, 16)

	cfg, log := testConfig(t, dir)
	r := NewRunner(cfg, log, nil)

	require.NoError(t, r.ProcessPath(context.Background(), filepath.Join(dir, "a.webp")))
	assert.Equal(t, 1, r.Stats().Kept)

	_, err := r.SourceFor(filepath.Join(sub, "b.webp"))
	assert.Error(t, err, "nested file needs --recursive")
	_, err = r.SourceFor(filepath.Join(t.TempDir(), "c.webp"))
	assert.Error(t, err)

	cfg.Recursive = true
	src, err := r.SourceFor(filepath.Join(sub, "b.webp"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("sub", "b.webp"), src.Rel)

	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	dest, err := r.DestFor(filepath.Join(sub, "b.webp"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.OutputDir, filepath.Base(dir), "sub", "b.webp"), dest)
}

func TestLogSummary_OutputLarger(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.ColorMode = config.ColorNever
	cfg.LogFile = filepath.Join(dir, "run.log")
	log, err := logging.NewLogger(&cfg)
	require.NoError(t, err)

	r := NewRunner(&cfg, log, nil)
	r.logSummary(RunStats{Total: 1, Current: 1, Kept: 1, TotalInputBytes: 1 << 20, TotalOutputBytes: 2 << 20})
	require.NoError(t, log.Close())

	b, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Total space saved: - 1.0 MiB (overall output is larger)")
}
