package main

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type endpointState struct {
	endpoint   Endpoint
	index      int
	breaker    *circuitBreaker
	latency    time.Duration // smoothed; 0 until measured
	authFailed bool
	sessions   uint64
	failures   uint64
}

// EndpointStatus is a monitoring snapshot of one endpoint.
type EndpointStatus struct {
	Endpoint   string        `json:"endpoint"`
	Region     string        `json:"region,omitempty"`
	Priority   int           `json:"priority"`
	Breaker    string        `json:"breaker"`
	OpenUntil  time.Time     `json:"open_until,omitzero"`
	Latency    time.Duration `json:"latency_ns"`
	AuthFailed bool          `json:"auth_failed"`
	Sessions   uint64        `json:"sessions"`
	Failures   uint64        `json:"failures"`
	Active     bool          `json:"active"`
}

// FailoverManager keeps one Session alive against the best eligible
// endpoint and reconnects with backoff when it dies.
type FailoverManager struct {
	deps     sessionDeps
	gate     ProceedGate
	backoff  *reconnectBackoff
	policy   string
	region   string
	probe    bool
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	credsSig chan struct{}

	mu        sync.Mutex
	cfg       Config
	endpoints []*endpointState
	active    *Session
}

func NewFailoverManager(cfg Config, deps sessionDeps, gate ProceedGate) *FailoverManager {
	if gate == nil {
		gate = alwaysProceed{}
	}
	if deps.dial == nil {
		deps.dial = newDialFunc(cfg)
	}
	deps.cfg = cfg
	fm := &FailoverManager{
		deps:     deps,
		gate:     gate,
		backoff:  newReconnectBackoff(cfg.BackoffBase, cfg.BackoffMax),
		policy:   cfg.SelectionPolicy,
		region:   cfg.PreferredRegion,
		probe:    cfg.ProbeLatency,
		now:      time.Now,
		sleep:    sleepCtx,
		credsSig: make(chan struct{}, 1),
		cfg:      cfg,
	}
	for i, ep := range cfg.Pools {
		fm.endpoints = append(fm.endpoints, &endpointState{
			endpoint: ep,
			index:    i,
			breaker:  newCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerWindow, cfg.BreakerCooldown, cfg.BreakerMaxCooldown),
		})
	}
	return fm
}

// selectEndpoint picks the next endpoint to try. With every breaker Open
// it returns nil and the time until the soonest one cools down. With
// every endpoint refusing the credentials it returns errAllEndpointsAuth.
func (fm *FailoverManager) selectEndpoint(now time.Time) (*endpointState, time.Duration, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	var closed, trial []*endpointState
	var soonest time.Time
	usable := 0
	for _, es := range fm.endpoints {
		if es.authFailed {
			continue
		}
		usable++
		switch {
		case es.breaker.state == breakerClosed:
			closed = append(closed, es)
		case es.breaker.ready(now):
			trial = append(trial, es)
		case es.breaker.state == breakerOpen:
			if soonest.IsZero() || es.breaker.openUntil.Before(soonest) {
				soonest = es.breaker.openUntil
			}
		}
	}
	if usable == 0 {
		return nil, 0, errAllEndpointsAuth
	}

	pick := closed
	if len(pick) == 0 {
		pick = trial
	}
	if len(pick) > 0 {
		fm.rank(pick)
		es := pick[0]
		before := es.breaker.state
		es.breaker.allow(now)
		if es.breaker.state != before {
			fm.deps.events.Publish(Event{Kind: EventBreakerTransition, Endpoint: es.endpoint.String(), Breaker: es.breaker.state})
		}
		return es, 0, nil
	}

	wait := soonest.Sub(now)
	if soonest.IsZero() || wait <= 0 {
		// A HalfOpen trial is still outstanding elsewhere.
		wait = time.Second
	}
	return nil, wait, nil
}

func (fm *FailoverManager) rank(eps []*endpointState) {
	sort.SliceStable(eps, func(i, j int) bool {
		a, b := eps[i], eps[j]
		if fm.policy == selectionByLatency {
			switch {
			case a.latency > 0 && b.latency == 0:
				return true
			case a.latency == 0 && b.latency > 0:
				return false
			case a.latency != b.latency:
				return a.latency < b.latency
			}
		}
		if fm.region != "" {
			ar, br := a.endpoint.Region == fm.region, b.endpoint.Region == fm.region
			if ar != br {
				return ar
			}
		}
		if a.endpoint.Priority != b.endpoint.Priority {
			return a.endpoint.Priority < b.endpoint.Priority
		}
		return a.index < b.index
	})
}

func (fm *FailoverManager) recordSuccess(es *endpointState, latency time.Duration) {
	fm.mu.Lock()
	before := es.breaker.state
	es.breaker.recordSuccess()
	es.sessions++
	es.latency = smoothLatency(es.latency, latency)
	fm.mu.Unlock()
	if before != breakerClosed {
		fm.deps.events.Publish(Event{Kind: EventBreakerTransition, Endpoint: es.endpoint.String(), Breaker: breakerClosed})
	}
}

func (fm *FailoverManager) recordFailure(es *endpointState, err error) {
	fm.mu.Lock()
	before := es.breaker.state
	es.breaker.recordFailure(fm.now())
	es.failures++
	after := es.breaker.state
	openUntil := es.breaker.openUntil
	if isAuthError(err) {
		es.authFailed = true
	}
	fm.mu.Unlock()

	if isAuthError(err) {
		logger.Error("pool rejected worker credentials; endpoint excluded until credentials change",
			"endpoint", es.endpoint.String(), "error", err)
	}
	if after != before {
		fm.deps.events.Publish(Event{Kind: EventBreakerTransition, Endpoint: es.endpoint.String(), Breaker: after, Reason: errorReason(err)})
		if after == breakerOpen {
			logger.Warn("endpoint circuit open", "endpoint", es.endpoint.String(), "for", humanDuration(openUntil.Sub(fm.now())))
		}
	}
}

func smoothLatency(prev, sample time.Duration) time.Duration {
	if sample <= 0 {
		return prev
	}
	if prev <= 0 {
		return sample
	}
	return (prev*7 + sample*3) / 10
}

// UpdateCredentials swaps the worker password and makes endpoints that
// refused the old one eligible again.
func (fm *FailoverManager) UpdateCredentials(password string) {
	fm.mu.Lock()
	fm.cfg.WorkerPassword = password
	for _, es := range fm.endpoints {
		es.authFailed = false
	}
	fm.mu.Unlock()
	select {
	case fm.credsSig <- struct{}{}:
	default:
	}
}

func (fm *FailoverManager) Active() *Session {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.active
}

func (fm *FailoverManager) Endpoints() []EndpointStatus {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	out := make([]EndpointStatus, 0, len(fm.endpoints))
	for _, es := range fm.endpoints {
		st := EndpointStatus{
			Endpoint:   es.endpoint.String(),
			Region:     es.endpoint.Region,
			Priority:   es.endpoint.Priority,
			Breaker:    es.breaker.state.String(),
			Latency:    es.latency,
			AuthFailed: es.authFailed,
			Sessions:   es.sessions,
			Failures:   es.failures,
			Active:     fm.active != nil && fm.active.endpoint == es.endpoint,
		}
		if es.breaker.state == breakerOpen {
			st.OpenUntil = es.breaker.openUntil
		}
		out = append(out, st)
	}
	return out
}

func (fm *FailoverManager) newSession(ep Endpoint) *Session {
	fm.mu.Lock()
	deps := fm.deps
	deps.cfg = fm.cfg
	fm.mu.Unlock()
	return newSession(ep, deps)
}

func (fm *FailoverManager) probeEndpoints(ctx context.Context) {
	fm.mu.Lock()
	eps := make([]Endpoint, len(fm.endpoints))
	for i, es := range fm.endpoints {
		eps[i] = es.endpoint
	}
	fm.mu.Unlock()

	results := probeLatencies(ctx, fm.deps.dial, eps, latencyProbeTimeout)
	fm.mu.Lock()
	for i, rtt := range results {
		fm.endpoints[i].latency = rtt
	}
	fm.mu.Unlock()
	logger.Info("endpoint latency probe", "reachable", len(results), "total", len(eps))
}

// Run keeps a session alive until ctx ends. It returns only ctx.Err().
func (fm *FailoverManager) Run(ctx context.Context) error {
	if fm.probe && fm.policy == selectionByLatency {
		fm.probeEndpoints(ctx)
	}
	suspended := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fm.gate.MayProceed() {
			if !suspended {
				suspended = true
				logger.Info("reconnection suspended by gate")
				fm.deps.events.Publish(Event{Kind: EventReconnectSuspended, Wait: gatePollInterval})
			}
			if err := fm.sleep(ctx, gatePollInterval); err != nil {
				return err
			}
			continue
		}
		suspended = false

		es, wait, err := fm.selectEndpoint(fm.now())
		if errors.Is(err, errAllEndpointsAuth) {
			fm.deps.events.Publish(Event{Kind: EventEndpointsUnavailable, Reason: err.Error()})
			logger.Error("no endpoint accepts the configured credentials; waiting for a credential reload")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-fm.credsSig:
			}
			continue
		}
		if es == nil {
			fm.deps.events.Publish(Event{Kind: EventEndpointsUnavailable, Wait: wait, Reason: "all endpoints open"})
			logger.Warn("all endpoints unavailable", "retry_in", humanDuration(wait))
			if err := fm.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if err := fm.runSession(ctx, es); err != nil {
			return err
		}
	}
}

// runSession establishes one session on es and blocks until it ends. The
// returned error is non-nil only when ctx is done.
func (fm *FailoverManager) runSession(ctx context.Context, es *endpointState) error {
	sess := fm.newSession(es.endpoint)
	err := sess.Establish(ctx)
	if err != nil {
		fm.teardown(sess)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fm.recordFailure(es, err)
		return fm.pause(ctx, es, fm.backoff.next(), err)
	}

	fm.recordSuccess(es, sess.ConnectLatency())
	fm.backoff.reset()
	fm.mu.Lock()
	fm.active = sess
	fm.mu.Unlock()

	select {
	case <-ctx.Done():
		sess.Close()
		fm.teardown(sess)
		return ctx.Err()
	case <-sess.Done():
	}
	sess.Close()
	fm.teardown(sess)

	err = sess.Err()
	if errors.Is(err, errServerReconnect) {
		return fm.pause(ctx, es, sess.ReconnectWait(), err)
	}
	fm.recordFailure(es, err)
	return fm.pause(ctx, es, fm.backoff.next(), err)
}

func (fm *FailoverManager) pause(ctx context.Context, es *endpointState, delay time.Duration, cause error) error {
	fm.deps.events.Publish(Event{Kind: EventReconnectScheduled, Endpoint: es.endpoint.String(), Wait: delay, Reason: errorReason(cause)})
	logger.Info("reconnecting", "after", humanDuration(delay), "cause", cause)
	return fm.sleep(ctx, delay)
}

// teardown drops everything bound to a finished session so nothing from
// the old pool leaks into the next one.
func (fm *FailoverManager) teardown(sess *Session) {
	fm.mu.Lock()
	if fm.active == sess {
		fm.active = nil
	}
	fm.mu.Unlock()
	fm.deps.shares.detach(sess, errSessionClosed.Error())
	fm.deps.jobs.Reset()
	fm.deps.diff.Reset()
}
