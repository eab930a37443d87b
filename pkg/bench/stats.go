package bench

import (
	"sort"
	"sync"
	"time"
)

// Sample is one timed pass of events through a runtime.LayerState
// during `kllc bench`: how many events it processed and how long that
// took.
type Sample struct {
	Label      string
	EventCount int
	CapsFired  int
	Elapsed    time.Duration
}

// Table accumulates Samples from concurrent bench workers. Multiple
// goroutines drive independent LayerState instances against the same
// compiled layout and report in here, the same way pkg/search's worker
// pool used to fan optimization rules into one shared table.
type Table struct {
	mu      sync.Mutex
	samples []Sample
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Add records one sample.
func (t *Table) Add(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = append(t.samples, s)
}

// Samples returns a copy of all recorded samples, sorted slowest first.
func (t *Table) Samples() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sample, len(t.samples))
	copy(out, t.samples)
	sort.Slice(out, func(i, j int) bool { return out[i].Elapsed > out[j].Elapsed })
	return out
}

// Len returns the number of recorded samples.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// EventsPerSecond reports s's throughput, or 0 for a zero-duration sample.
func (s Sample) EventsPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.EventCount) / s.Elapsed.Seconds()
}
