package main

import (
	"context"
	"sync"
	"time"
)

// ClientStats is what the stats log, the engine bridge and the status
// command report.
type ClientStats struct {
	Endpoint      string           `json:"endpoint,omitempty"`
	State         string           `json:"state"`
	Shares        ShareStats       `json:"shares"`
	AcceptRate    float64          `json:"accept_rate"`
	Difficulty    DifficultyState  `json:"difficulty"`
	Jobs          []string         `json:"jobs"`
	Endpoints     []EndpointStatus `json:"endpoints"`
	EventsDropped uint64           `json:"events_dropped"`
	Uptime        string           `json:"uptime"`

	// Counters of the active session.
	MalformedFrames uint64 `json:"malformed_frames"`
	UnknownMethods  uint64 `json:"unknown_methods"`
}

// MiningClient wires the session, job, difficulty, share and failover
// components together. Compute engines only ever use NextWorkUnit,
// WaitWorkUnit, Submit and Events.
type MiningClient struct {
	cfg      Config
	events   *EventHub
	diff     *DifficultyManager
	jobs     *JobManager
	shares   *SharePipeline
	failover *FailoverManager
	started  time.Time

	runOnce sync.Once
}

func NewMiningClient(cfg Config, gate ProceedGate) *MiningClient {
	return newMiningClient(cfg, gate, nil)
}

func newMiningClient(cfg Config, gate ProceedGate, dial dialFunc) *MiningClient {
	events := NewEventHub()
	diff := NewDifficultyManager(difficultyConfigFrom(cfg), diff1TargetFor(cfg.Algorithm))
	jobs := NewJobManager(cfg.JobRetention, diff)
	shares := NewSharePipeline(jobs, diff, events, cfg.WorkerIdentity(), cfg.SubmitTimeout, cfg.ReplayCacheSize)
	deps := sessionDeps{
		cfg:    cfg,
		jobs:   jobs,
		diff:   diff,
		shares: shares,
		events: events,
		dial:   dial,
	}
	return &MiningClient{
		cfg:      cfg,
		events:   events,
		diff:     diff,
		jobs:     jobs,
		shares:   shares,
		failover: NewFailoverManager(cfg, deps, gate),
		started:  time.Now(),
	}
}

// Run blocks until ctx is cancelled, reconnecting as needed.
func (c *MiningClient) Run(ctx context.Context) error {
	var err error
	c.runOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go c.shares.runTimeouts(ctx)
		err = c.failover.Run(ctx)
	})
	return err
}

func (c *MiningClient) NextWorkUnit() (WorkUnit, error) { return c.jobs.NextWorkUnit() }

func (c *MiningClient) WaitWorkUnit(ctx context.Context) (WorkUnit, error) {
	return c.jobs.WaitWorkUnit(ctx)
}

// IsCurrent reports whether work for jobID may still be submitted.
func (c *MiningClient) IsCurrent(jobID string) bool { return c.jobs.IsCurrent(jobID) }

func (c *MiningClient) Submit(candidate Candidate) error { return c.shares.Submit(candidate) }

func (c *MiningClient) Events(buffer int) chan Event { return c.events.Subscribe(buffer) }

func (c *MiningClient) Unsubscribe(ch chan Event) { c.events.Unsubscribe(ch) }

func (c *MiningClient) UpdateCredentials(password string) {
	c.failover.UpdateCredentials(password)
}

func (c *MiningClient) Stats() ClientStats {
	shares := c.shares.Stats()
	st := ClientStats{
		State:         StateDisconnected.String(),
		Shares:        shares,
		AcceptRate:    shares.AcceptRate(),
		Difficulty:    c.diff.Snapshot(),
		Jobs:          c.jobs.CurrentJobIDs(),
		Endpoints:     c.failover.Endpoints(),
		EventsDropped: c.events.Dropped(),
		Uptime:        humanDuration(time.Since(c.started)),
	}
	if sess := c.failover.Active(); sess != nil {
		st.Endpoint = sess.name
		st.State = sess.State().String()
		st.MalformedFrames, st.UnknownMethods = sess.FrameCounters()
	}
	return st
}
