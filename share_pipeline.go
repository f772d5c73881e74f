package main

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Candidate is a compute engine result for one work unit. Epoch is the
// extranonce epoch the unit was issued under; zero skips the epoch check.
type Candidate struct {
	JobID       string `json:"job_id"`
	Extranonce2 string `json:"extranonce2"`
	NTime       string `json:"ntime"`
	Nonce       string `json:"nonce"`
	Epoch       uint64 `json:"epoch,omitempty"`
}

type ShareOutcome uint8

const (
	ShareAccepted ShareOutcome = iota + 1
	ShareRejected
	ShareStale
	ShareUnknown
	ShareFailed
)

func (o ShareOutcome) String() string {
	switch o {
	case ShareAccepted:
		return "accepted"
	case ShareRejected:
		return "rejected"
	case ShareStale:
		return "stale"
	case ShareUnknown:
		return "unknown"
	case ShareFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// ShareResult is the resolved fate of one candidate.
type ShareResult struct {
	Candidate     Candidate
	CorrelationID uint64
	Outcome       ShareOutcome
	Reason        string
	Latency       time.Duration
	Endpoint      string
	Difficulty    float64
}

// shareTransport is the slice of a Session the pipeline needs. Frames are
// only ever enqueued; the session's writer owns the socket.
type shareTransport interface {
	endpointName() string
	allocateID() uint64
	checkCandidate(c Candidate, extranonce2Size int) error
	noteSubmitted(id uint64, key shareKey)
	enqueue(id uint64, method string, params []any) error
}

// SharePipeline submits candidates through the active session and
// correlates the pool's verdicts by request id.
type SharePipeline struct {
	jobs    *JobManager
	diff    *DifficultyManager
	events  *EventHub
	stats   *shareStats
	pending *pendingSubmissions
	sent    *shareKeySet
	worker  string
	timeout time.Duration
	now     func() time.Time

	mu        sync.Mutex
	transport shareTransport
}

func NewSharePipeline(jobs *JobManager, diff *DifficultyManager, events *EventHub, worker string, timeout time.Duration, replaySize int) *SharePipeline {
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	return &SharePipeline{
		jobs:    jobs,
		diff:    diff,
		events:  events,
		stats:   &shareStats{},
		pending: newPendingSubmissions(),
		sent:    newShareKeySet(replaySize),
		worker:  worker,
		timeout: timeout,
		now:     time.Now,
	}
}

func (sp *SharePipeline) attach(t shareTransport) {
	sp.mu.Lock()
	sp.transport = t
	sp.mu.Unlock()
}

// detach releases t and fails every outstanding submission. A stale detach
// for a transport that was already replaced is ignored.
func (sp *SharePipeline) detach(t shareTransport, reason string) {
	sp.mu.Lock()
	if sp.transport != t {
		sp.mu.Unlock()
		return
	}
	sp.transport = nil
	sp.mu.Unlock()

	now := sp.now()
	for _, p := range sp.pending.drain() {
		sp.resolve(p, ShareFailed, reason, now)
	}
}

func (sp *SharePipeline) current() shareTransport {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.transport
}

// Submit checks the candidate and queues it on the active session. It
// returns once the frame is queued; the verdict arrives as an event.
func (sp *SharePipeline) Submit(c Candidate) error {
	t := sp.current()
	if t == nil {
		return errNoActiveSession
	}
	if err := t.checkCandidate(c, sp.jobs.Extranonce2Size()); err != nil {
		return err
	}
	if !sp.jobs.IsCurrentWork(c.JobID, c.Epoch) {
		sp.stats.stale.Add(1)
		res := ShareResult{Candidate: c, Outcome: ShareStale, Reason: "stale job", Endpoint: t.endpointName()}
		sp.events.Publish(Event{Kind: EventShareOutcome, Endpoint: res.Endpoint, Share: &res})
		if debugLogging {
			logger.Debug("stale share discarded", "job_id", c.JobID, "nonce", c.Nonce)
		}
		return &StaleWorkError{JobID: c.JobID}
	}
	key := c.key()
	if sp.sent.seenOrAdd(key) {
		sp.stats.duplicates.Add(1)
		return errDuplicateShare
	}

	diff, _ := sp.diff.Current()
	id := t.allocateID()
	p := &PendingSubmission{
		CorrelationID: id,
		JobID:         c.JobID,
		Extranonce2:   c.Extranonce2,
		NTime:         c.NTime,
		Nonce:         c.Nonce,
		SubmitTime:    sp.now(),
		Attempt:       1,
		Endpoint:      t.endpointName(),
		Difficulty:    diff,
		candidate:     c,
	}
	// Record before enqueue so a fast response always finds its entry.
	sp.pending.add(p)
	t.noteSubmitted(id, key)
	params := []any{sp.worker, c.JobID, c.Extranonce2, c.NTime, c.Nonce}
	if err := t.enqueue(id, methodSubmit, params); err != nil {
		sp.pending.take(id)
		sp.sent.remove(key)
		return err
	}
	sp.stats.submitted.Add(1)
	return nil
}

// OnResponse resolves the submission with the given id. It returns the
// resulting proposal, if the outcome produced one, so the session can
// forward an applied proposal to the pool.
func (sp *SharePipeline) OnResponse(id uint64, result any, rpcErr *stratumError) (DifficultyProposal, bool) {
	p, ok := sp.pending.take(id)
	if !ok {
		// Late reply for a submission already timed out or failed.
		if debugLogging {
			logger.Debug("response for unknown submission", "id", id)
		}
		return DifficultyProposal{}, false
	}
	now := sp.now()
	accepted := rpcErr == nil && result == true
	if accepted {
		sp.resolve(p, ShareAccepted, "", now)
	} else {
		sp.resolve(p, ShareRejected, rejectReason(result, rpcErr), now)
	}

	proposal, proposed := sp.diff.RecordOutcome(accepted)
	if proposed {
		sp.events.Publish(Event{Kind: EventDifficultyProposal, Endpoint: p.Endpoint, Proposal: &proposal})
		logger.Info("difficulty proposal",
			"from", proposal.From,
			"to", proposal.To,
			"accept_rate", fmt.Sprintf("%.4f", proposal.AcceptRate),
			"applied", proposal.Applied)
	}
	return proposal, proposed
}

func rejectReason(result any, rpcErr *stratumError) string {
	if rpcErr != nil {
		return rpcErr.String()
	}
	if result == nil || result == false {
		return "rejected"
	}
	return fmt.Sprintf("unexpected result %v", result)
}

func (sp *SharePipeline) resolve(p *PendingSubmission, outcome ShareOutcome, reason string, now time.Time) {
	sp.stats.count(outcome)
	res := ShareResult{
		Candidate:     p.candidate,
		CorrelationID: p.CorrelationID,
		Outcome:       outcome,
		Reason:        reason,
		Latency:       now.Sub(p.SubmitTime),
		Endpoint:      p.Endpoint,
		Difficulty:    p.Difficulty,
	}
	sp.events.Publish(Event{Kind: EventShareOutcome, Endpoint: p.Endpoint, Share: &res, Difficulty: p.Difficulty})

	switch outcome {
	case ShareAccepted:
		if debugLogging {
			logger.Debug("share accepted", "job_id", p.JobID, "nonce", p.Nonce, "latency", res.Latency)
		}
	case ShareRejected:
		logger.Warn("share rejected", "job_id", p.JobID, "nonce", p.Nonce, "reason", reason)
	case ShareUnknown:
		logger.Warn("share response timed out", "job_id", p.JobID, "nonce", p.Nonce, "id", p.CorrelationID)
	}
}

// sweepExpired resolves submissions older than the timeout as unknown.
// Unknown outcomes are not fed to the difficulty window.
func (sp *SharePipeline) sweepExpired(now time.Time) int {
	expired := sp.pending.expire(now, sp.timeout)
	for _, p := range expired {
		sp.resolve(p, ShareUnknown, "no response within "+humanDuration(sp.timeout), now)
	}
	return len(expired)
}

func (sp *SharePipeline) runTimeouts(ctx context.Context) {
	ticker := time.NewTicker(submitSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sp.sweepExpired(sp.now())
		}
	}
}

func (sp *SharePipeline) Stats() ShareStats {
	s := sp.stats.snapshot()
	s.Pending = sp.pending.len()
	return s
}
