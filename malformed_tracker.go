package main

import (
	"sync"
	"time"
)

// malformedFrameTracker counts malformed inbound frames over a fixed
// window and trips once the count exceeds the limit.
type malformedFrameTracker struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	count  int
	reset  time.Time
	total  uint64
}

func newMalformedFrameTracker(limit int, window time.Duration) *malformedFrameTracker {
	if limit <= 0 {
		limit = defaultMalformedFrameLimit
	}
	if window <= 0 {
		window = defaultMalformedFrameWindow
	}
	return &malformedFrameTracker{limit: limit, window: window}
}

// note records one malformed frame and reports whether the rate limit is
// now exceeded.
func (t *malformedFrameTracker) note(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reset.IsZero() || now.After(t.reset) {
		t.count = 0
		t.reset = now.Add(t.window)
	}
	t.count++
	t.total++
	return t.count > t.limit
}

func (t *malformedFrameTracker) totalSeen() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
