package pipeline

// RunStats tracks aggregate counters and byte totals across a batch run.
type RunStats struct {
	Total     int
	Current   int
	Kept      int // Fit at the start quality.
	Reduced   int // Fit after lowering quality.
	Unreached int // Quality floor reached while still above target.
	Resized   int
	Planned   int // Dry-run only.
	Skipped   int
	Failed    int

	TotalInputBytes  int64
	TotalOutputBytes int64
}

// Processed returns how many files were written.
func (s *RunStats) Processed() int {
	return s.Kept + s.Reduced + s.Unreached
}

// SpaceSaved returns the aggregate byte difference between inputs and outputs.
// Positive means outputs are smaller; negative means they grew.
func (s *RunStats) SpaceSaved() int64 {
	return s.TotalInputBytes - s.TotalOutputBytes
}
