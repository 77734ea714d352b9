package reencode

// Ladder walks encode qualities from a start value down toward a floor in
// fixed steps. Every rung is start - k*step and never below the floor, so
// when (start - floor) is not a multiple of step the lowest rung sits above
// the floor.
type Ladder struct {
	quality int
	step    int
	floor   int
	tried   []int
}

// NewLadder returns a ladder positioned at start.
func NewLadder(start, step, floor int) *Ladder {
	return &Ladder{
		quality: start,
		step:    step,
		floor:   floor,
		tried:   []int{start},
	}
}

// Quality returns the current rung.
func (l *Ladder) Quality() int { return l.quality }

// AtFloor reports whether no lower rung remains.
func (l *Ladder) AtFloor() bool { return l.quality-l.step < l.floor }

// Next moves one step down. Returns false, leaving the ladder unchanged,
// once the floor has been reached.
func (l *Ladder) Next() bool {
	if l.AtFloor() {
		return false
	}
	l.quality -= l.step
	l.tried = append(l.tried, l.quality)
	return true
}

// Tried returns every rung visited so far, starting with the start quality.
func (l *Ladder) Tried() []int {
	out := make([]int, len(l.tried))
	copy(out, l.tried)
	return out
}
