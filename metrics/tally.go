package metrics

// Tally accumulates edit operations and reference lengths across one
// evaluation pass. Utterances whose scoring was skipped are counted
// instead of silently dropped.
type Tally struct {
	Sub     int
	Ins     int
	Del     int
	RefLen  int
	Skipped int
}

// Add folds one utterance's alignment into the tally.
func (t *Tally) Add(a Alignment, refLen int) {
	t.Sub += a.Sub
	t.Ins += a.Ins
	t.Del += a.Del
	t.RefLen += refLen
}

// Skip records an utterance that could not be scored.
func (t *Tally) Skip() {
	t.Skipped++
}

// Edits returns the total number of accumulated edit operations.
func (t *Tally) Edits() int {
	return t.Sub + t.Ins + t.Del
}

// ErrorRate returns total edits divided by total reference length.
// A pass with zero reference length reports 0, never NaN.
func (t *Tally) ErrorRate() float64 {
	if t.RefLen == 0 {
		return 0
	}
	return float64(t.Edits()) / float64(t.RefLen)
}

// Reset clears the tally for a new pass.
func (t *Tally) Reset() {
	*t = Tally{}
}
