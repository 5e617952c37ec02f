package fixer

import "sync/atomic"

// DefaultTokenCap is the per-run ceiling on cumulative fix-agent token
// usage.
const DefaultTokenCap = 500_000

// Budget is the run-wide cumulative token counter. It is monotonic and the
// only state shared across PRs within a run. The current runner is
// single-threaded; atomic adds keep a future parallel runner correct.
type Budget struct {
	used atomic.Int64
	cap  int64
}

// NewBudget creates a budget with the given token cap.
func NewBudget(tokenCap int64) *Budget {
	return &Budget{cap: tokenCap}
}

// Add records token usage. Never decreases.
func (b *Budget) Add(tokens int64) {
	if tokens > 0 {
		b.used.Add(tokens)
	}
}

// Used returns the cumulative tokens spent so far.
func (b *Budget) Used() int64 {
	return b.used.Load()
}

// Exhausted reports whether cumulative usage has crossed the cap. Once true
// it stays true; no further fix attempts may start.
func (b *Budget) Exhausted() bool {
	return b.used.Load() > b.cap
}

// Cap returns the configured token cap.
func (b *Budget) Cap() int64 {
	return b.cap
}
