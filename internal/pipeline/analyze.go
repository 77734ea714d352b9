package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/backmassage/webpshrink/internal/config"
	"github.com/backmassage/webpshrink/internal/display"
	"github.com/backmassage/webpshrink/internal/encoder"
	"github.com/backmassage/webpshrink/internal/logging"
	"github.com/backmassage/webpshrink/internal/reencode"
	"github.com/backmassage/webpshrink/internal/term"
)

// fileRow holds the header data for one analysis table row.
type fileRow struct {
	Name   string
	Width  int
	Height int
	Bytes  int64
	Resize bool // A side exceeds the max dimension.
	Over   bool // File is above the size target.
}

// Analyze discovers image files, reads each header, and prints a table of
// dimensions and sizes to w with size outliers highlighted. Nothing is
// decoded beyond the header and nothing is written.
func Analyze(ctx context.Context, cfg *config.Config, log *logging.Logger, w io.Writer) error {
	roots, missing, err := CheckRoots(cfg.Roots)
	if err != nil {
		return err
	}
	for _, m := range missing {
		log.Warn("Skip (missing folder): %s", m)
	}
	sources, err := Discover(roots, cfg.Exts, cfg.Recursive)
	if err != nil {
		return fmt.Errorf("file discovery failed: %w", err)
	}
	if len(sources) == 0 {
		log.Warn("No files matching %v found", cfg.Exts)
		return nil
	}

	total := len(sources)
	log.Info("Analyzing %d files", total)

	isTTY := w == io.Writer(os.Stdout) && term.IsTerminal(os.Stdout)
	var rows []fileRow
	var skipped int
	var sizes []float64

	for i, s := range sources {
		if ctx.Err() != nil {
			if isTTY {
				clearProgress(w)
			}
			log.Warn("Interrupted")
			return ctx.Err()
		}

		printProgress(w, isTTY, i+1, total, skipped, s.Rel)

		h, err := encoder.ReadHeader(s.Path)
		if err != nil {
			skipped++
			if isTTY {
				clearProgress(w)
			}
			log.Warn("Skip (unreadable header): %s", s.Rel)
			continue
		}

		_, _, resize := reencode.Fit(h.Width, h.Height, cfg.MaxDimension)
		rows = append(rows, fileRow{
			Name:   s.Rel,
			Width:  h.Width,
			Height: h.Height,
			Bytes:  h.Size,
			Resize: resize,
			Over:   h.Size > cfg.TargetBytes(),
		})
		sizes = append(sizes, float64(h.Size))
	}

	if isTTY {
		clearProgress(w)
	}

	if len(rows) == 0 {
		log.Warn("No files could be read")
		return nil
	}

	st := computeStats(sizes)
	printAnalysisTable(w, rows, st)
	printAnalysisSummary(log, cfg, rows, st)
	return nil
}

// iqrBounds holds the IQR-based thresholds for outlier classification.
type iqrBounds struct {
	q1, q3    float64
	outlierLo float64 // Q1 - 1.5*IQR
	outlierHi float64 // Q3 + 1.5*IQR
	extremeLo float64 // Q1 - 3.0*IQR
	extremeHi float64 // Q3 + 3.0*IQR
	valid     bool
}

func computeStats(vals []float64) iqrBounds {
	if len(vals) < 4 {
		return iqrBounds{}
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1

	return iqrBounds{
		q1:        q1,
		q3:        q3,
		outlierLo: q1 - 1.5*iqr,
		outlierHi: q3 + 1.5*iqr,
		extremeLo: q1 - 3.0*iqr,
		extremeHi: q3 + 3.0*iqr,
		valid:     iqr > 0,
	}
}

// classify returns "" (normal), "outlier", or "extreme" for a value.
func (b *iqrBounds) classify(v float64) string {
	if !b.valid || v <= 0 {
		return ""
	}
	if v < b.extremeLo || v > b.extremeHi {
		return "extreme"
	}
	if v < b.outlierLo || v > b.outlierHi {
		return "outlier"
	}
	return ""
}

func printAnalysisTable(w io.Writer, rows []fileRow, st iqrBounds) {
	nameW := len("File")
	dimW := len("Dimensions")
	sizeW := len("Size")

	for _, r := range rows {
		nameW = max(nameW, len(r.Name))
		dimW = max(dimW, len(display.FormatDims(r.Width, r.Height)))
		sizeW = max(sizeW, len(display.FormatKB(r.Bytes)))
	}
	if nameW > 50 {
		nameW = 50
	}

	header := fmt.Sprintf("  %-*s  %-*s  %-*s  %s", nameW, "File", dimW, "Dimensions", sizeW, "Size", "Flags")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, "  "+strings.Repeat("─", len(header)-2))

	for _, r := range rows {
		name := r.Name
		if len(name) > nameW {
			name = name[:nameW-1] + "…"
		}

		class := st.classify(float64(r.Bytes))
		// Pad the plain text first, then wrap in ANSI color, so escape bytes
		// don't count toward the column width.
		sizeCell := colorPad(display.FormatKB(r.Bytes), sizeW, class)

		fmt.Fprintf(w, "  %-*s  %-*s  %s  %s\n",
			nameW, name,
			dimW, display.FormatDims(r.Width, r.Height),
			sizeCell,
			rowFlags(r, class),
		)
	}
	fmt.Fprintln(w)
}

func rowFlags(r fileRow, class string) string {
	var flags []string
	if r.Resize {
		flags = append(flags, term.Yellow+"[resize]"+term.NC)
	}
	if r.Over {
		flags = append(flags, term.Orange+"[over]"+term.NC)
	}
	if f := formatFlag(class); f != "" {
		flags = append(flags, f)
	}
	return strings.Join(flags, " ")
}

func printAnalysisSummary(log *logging.Logger, cfg *config.Config, rows []fileRow, st iqrBounds) {
	var outliers, extremes, resize, over int
	var total int64
	for _, r := range rows {
		total += r.Bytes
		if r.Resize {
			resize++
		}
		if r.Over {
			over++
		}
		switch st.classify(float64(r.Bytes)) {
		case "extreme":
			extremes++
		case "outlier":
			outliers++
		}
	}

	log.Info("Analyzed %d files (%s)", len(rows), display.FormatBytes(total))
	if st.valid {
		log.Info("  Size IQR: %s to %s (outlier < %s or > %s)",
			display.FormatKB(int64(st.q1)), display.FormatKB(int64(st.q3)),
			display.FormatKB(int64(math.Max(st.outlierLo, 0))), display.FormatKB(int64(st.outlierHi)))
	}
	if resize > 0 {
		log.Warn("  %d file(s) larger than %dpx [resize]", resize, cfg.MaxDimension)
	}
	if over > 0 {
		log.Warn("  %d file(s) above %d KB [over]", over, cfg.TargetKB)
	}
	if outliers > 0 {
		log.Warn("  %d size outlier(s) flagged [*]", outliers)
	}
	if extremes > 0 {
		log.Error("  %d extreme size outlier(s) flagged [!]", extremes)
	}
	if resize == 0 && over == 0 {
		log.Success("  Every file already fits the target")
	}
}

func formatFlag(flag string) string {
	switch flag {
	case "extreme":
		return term.Red + "[!]" + term.NC
	case "outlier":
		return term.Orange + "[*]" + term.NC
	default:
		return ""
	}
}

// colorPad pads a plain string to width, then wraps in ANSI color.
func colorPad(s string, width int, class string) string {
	padded := fmt.Sprintf("%-*s", width, s)
	switch class {
	case "extreme":
		return term.Red + padded + term.NC
	case "outlier":
		return term.Orange + padded + term.NC
	default:
		return padded
	}
}

// printProgress shows a live header counter. On a TTY it writes an inline
// \r-overwritten line; otherwise it is a no-op.
func printProgress(w io.Writer, isTTY bool, current, total, skipped int, name string) {
	if !isTTY {
		return
	}
	pct := current * 100 / total
	status := fmt.Sprintf("  Reading [%d/%d] %d%% ", current, total, pct)
	if skipped > 0 {
		status += fmt.Sprintf("(%d skipped) ", skipped)
	}

	const maxName = 40
	if len(name) > maxName {
		name = name[:maxName-1] + "…"
	}
	status += name

	if len(status) < 80 {
		status += strings.Repeat(" ", 80-len(status))
	}
	fmt.Fprintf(w, "\r%s", status)
}

// clearProgress erases the inline progress line on a TTY.
func clearProgress(w io.Writer) {
	fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", 80))
}

// percentile computes the p-th percentile using linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi || hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
