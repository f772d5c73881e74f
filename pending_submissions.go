package main

import (
	"sort"
	"sync"
	"time"
)

// PendingSubmission is a share on the wire awaiting the pool's verdict.
// CorrelationID is the JSON-RPC id, unique for the life of a session.
type PendingSubmission struct {
	CorrelationID uint64
	JobID         string
	Extranonce2   string
	NTime         string
	Nonce         string
	SubmitTime    time.Time
	Attempt       int
	Endpoint      string
	Difficulty    float64

	candidate Candidate
}

type pendingSubmissions struct {
	mu sync.Mutex
	m  map[uint64]*PendingSubmission
}

func newPendingSubmissions() *pendingSubmissions {
	return &pendingSubmissions{m: make(map[uint64]*PendingSubmission)}
}

func (ps *pendingSubmissions) add(p *PendingSubmission) {
	ps.mu.Lock()
	ps.m[p.CorrelationID] = p
	ps.mu.Unlock()
}

// take removes and returns the entry for id. Resolution happens exactly
// once: whoever takes the entry owns its outcome.
func (ps *pendingSubmissions) take(id uint64) (*PendingSubmission, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.m[id]
	if ok {
		delete(ps.m, id)
	}
	return p, ok
}

func (ps *pendingSubmissions) contains(id uint64) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	_, ok := ps.m[id]
	return ok
}

// expire removes entries submitted more than timeout before now, oldest
// first.
func (ps *pendingSubmissions) expire(now time.Time, timeout time.Duration) []*PendingSubmission {
	ps.mu.Lock()
	var out []*PendingSubmission
	for id, p := range ps.m {
		if now.Sub(p.SubmitTime) >= timeout {
			out = append(out, p)
			delete(ps.m, id)
		}
	}
	ps.mu.Unlock()
	sortByCorrelation(out)
	return out
}

// drain removes everything, for session teardown.
func (ps *pendingSubmissions) drain() []*PendingSubmission {
	ps.mu.Lock()
	out := make([]*PendingSubmission, 0, len(ps.m))
	for _, p := range ps.m {
		out = append(out, p)
	}
	clear(ps.m)
	ps.mu.Unlock()
	sortByCorrelation(out)
	return out
}

func (ps *pendingSubmissions) len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.m)
}

func sortByCorrelation(ps []*PendingSubmission) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].CorrelationID < ps[j].CorrelationID })
}
