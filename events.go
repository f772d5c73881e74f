package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hako/durafmt"
)

type EventKind uint8

const (
	EventConnectionState EventKind = iota + 1
	EventShareOutcome
	EventDifficultyChanged
	EventDifficultyProposal
	EventJobChanged
	EventReconnectScheduled
	EventReconnectSuspended
	EventEndpointsUnavailable
	EventBreakerTransition
)

var eventKindNames = map[EventKind]string{
	EventConnectionState:      "connection_state",
	EventShareOutcome:         "share",
	EventDifficultyChanged:    "difficulty",
	EventDifficultyProposal:   "difficulty_proposal",
	EventJobChanged:           "job",
	EventReconnectScheduled:   "reconnect_scheduled",
	EventReconnectSuspended:   "reconnect_suspended",
	EventEndpointsUnavailable: "all_endpoints_unavailable",
	EventBreakerTransition:    "breaker",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is one monitoring notification. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind       EventKind
	At         time.Time
	Endpoint   string
	State      ConnectionState
	Breaker    breakerState
	Reason     string
	Share      *ShareResult
	Difficulty float64
	Proposal   *DifficultyProposal
	JobID      string
	CleanJobs  bool
	Wait       time.Duration
}

const eventSubscriberBuffer = 64

// EventHub fans events out to subscribers without ever blocking the
// publisher. A subscriber that falls behind loses events.
type EventHub struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	dropped atomic.Uint64
	now     func() time.Time
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan Event]struct{}), now: time.Now}
}

func (h *EventHub) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = eventSubscriberBuffer
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *EventHub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = h.now()
	}
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	h.mu.Unlock()
}

func (h *EventHub) Dropped() uint64 {
	return h.dropped.Load()
}

// publishedEvent is the wire form used by the ZeroMQ publisher.
type publishedEvent struct {
	Kind       string  `json:"kind"`
	At         string  `json:"at"`
	Endpoint   string  `json:"endpoint,omitempty"`
	State      string  `json:"state,omitempty"`
	Breaker    string  `json:"breaker,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Outcome    string  `json:"outcome,omitempty"`
	JobID      string  `json:"job_id,omitempty"`
	Nonce      string  `json:"nonce,omitempty"`
	LatencyMS  int64   `json:"latency_ms,omitempty"`
	Difficulty float64 `json:"difficulty,omitempty"`
	ProposedTo float64 `json:"proposed_to,omitempty"`
	Applied    bool    `json:"applied,omitempty"`
	CleanJobs  bool    `json:"clean_jobs,omitempty"`
	Wait       string  `json:"wait,omitempty"`
}

func (ev Event) published() publishedEvent {
	out := publishedEvent{
		Kind:       ev.Kind.String(),
		At:         ev.At.UTC().Format(time.RFC3339Nano),
		Endpoint:   ev.Endpoint,
		Reason:     ev.Reason,
		Difficulty: ev.Difficulty,
		JobID:      ev.JobID,
		CleanJobs:  ev.CleanJobs,
	}
	switch ev.Kind {
	case EventConnectionState:
		out.State = ev.State.String()
	case EventBreakerTransition:
		out.Breaker = ev.Breaker.String()
	case EventShareOutcome:
		if ev.Share != nil {
			out.Outcome = ev.Share.Outcome.String()
			out.JobID = ev.Share.Candidate.JobID
			out.Nonce = ev.Share.Candidate.Nonce
			out.LatencyMS = ev.Share.Latency.Milliseconds()
			out.Reason = ev.Share.Reason
		}
	case EventDifficultyProposal:
		if ev.Proposal != nil {
			out.Difficulty = ev.Proposal.From
			out.ProposedTo = ev.Proposal.To
			out.Applied = ev.Proposal.Applied
		}
	}
	if ev.Wait > 0 {
		out.Wait = humanDuration(ev.Wait)
	}
	return out
}

func humanDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return durafmt.Parse(d.Round(time.Second)).LimitFirstN(2).String()
}
