package main

import "sync/atomic"

type shareStats struct {
	submitted  atomic.Uint64
	accepted   atomic.Uint64
	rejected   atomic.Uint64
	stale      atomic.Uint64
	unknown    atomic.Uint64
	failed     atomic.Uint64
	duplicates atomic.Uint64
}

// ShareStats is a snapshot of share counters since process start.
type ShareStats struct {
	Submitted  uint64 `json:"submitted"`
	Accepted   uint64 `json:"accepted"`
	Rejected   uint64 `json:"rejected"`
	Stale      uint64 `json:"stale"`
	Unknown    uint64 `json:"unknown"`
	Failed     uint64 `json:"failed"`
	Duplicates uint64 `json:"duplicates"`
	Pending    int    `json:"pending"`
}

func (s *shareStats) snapshot() ShareStats {
	return ShareStats{
		Submitted:  s.submitted.Load(),
		Accepted:   s.accepted.Load(),
		Rejected:   s.rejected.Load(),
		Stale:      s.stale.Load(),
		Unknown:    s.unknown.Load(),
		Failed:     s.failed.Load(),
		Duplicates: s.duplicates.Load(),
	}
}

func (s *shareStats) count(o ShareOutcome) {
	switch o {
	case ShareAccepted:
		s.accepted.Add(1)
	case ShareRejected:
		s.rejected.Add(1)
	case ShareStale:
		s.stale.Add(1)
	case ShareUnknown:
		s.unknown.Add(1)
	case ShareFailed:
		s.failed.Add(1)
	}
}

// AcceptRate is accepted / (accepted + rejected), or 0 with no verdicts.
func (s ShareStats) AcceptRate() float64 {
	total := s.Accepted + s.Rejected
	if total == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(total)
}
