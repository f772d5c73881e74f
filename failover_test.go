package main

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func newTestFailover(t *testing.T, cfg Config, dial dialFunc) (*FailoverManager, chan Event) {
	t.Helper()
	deps, events := newTestDeps(cfg, dial)
	return NewFailoverManager(cfg, deps, nil), events
}

func threePools() []Endpoint {
	return []Endpoint{
		{Host: "a.test", Port: 3333, Priority: 2},
		{Host: "b.test", Port: 3333, Priority: 1, Region: "us"},
		{Host: "c.test", Port: 3333, Priority: 1, Region: "eu"},
	}
}

func TestSelectEndpointByPriorityAndRegion(t *testing.T) {
	cfg := testConfig()
	cfg.Pools = threePools()
	cfg.SelectionPolicy = selectionByPriority
	fm, _ := newTestFailover(t, cfg, nil)

	es, _, err := fm.selectEndpoint(time.Now())
	if err != nil || es.endpoint.Host != "b.test" {
		t.Fatalf("expected b.test by priority then order, got %v %v", es, err)
	}

	cfg.PreferredRegion = "eu"
	fm, _ = newTestFailover(t, cfg, nil)
	es, _, _ = fm.selectEndpoint(time.Now())
	if es.endpoint.Host != "c.test" {
		t.Fatalf("expected preferred region c.test, got %s", es.endpoint.Host)
	}
}

func TestSelectEndpointByLatency(t *testing.T) {
	cfg := testConfig()
	cfg.Pools = threePools()
	cfg.SelectionPolicy = selectionByLatency
	fm, _ := newTestFailover(t, cfg, nil)
	fm.endpoints[0].latency = 20 * time.Millisecond
	fm.endpoints[2].latency = 50 * time.Millisecond

	es, _, _ := fm.selectEndpoint(time.Now())
	if es.endpoint.Host != "a.test" {
		t.Fatalf("expected lowest latency a.test, got %s", es.endpoint.Host)
	}

	// Unmeasured endpoints rank after measured ones.
	fm.endpoints[0].latency = 0
	es, _, _ = fm.selectEndpoint(time.Now())
	if es.endpoint.Host != "c.test" {
		t.Fatalf("expected measured c.test, got %s", es.endpoint.Host)
	}
}

func TestSelectEndpointSkipsOpenBreakers(t *testing.T) {
	cfg := testConfig()
	cfg.Pools = threePools()
	cfg.SelectionPolicy = selectionByPriority
	cfg.BreakerThreshold = 1
	fm, events := newTestFailover(t, cfg, nil)
	now := time.Unix(1_700_000_000, 0)
	fm.now = func() time.Time { return now }

	fm.recordFailure(fm.endpoints[1], errors.New("refused"))
	if ev := nextEvent(t, events, EventBreakerTransition); ev.Breaker != breakerOpen || ev.Endpoint != fm.endpoints[1].endpoint.String() {
		t.Fatalf("unexpected breaker event %+v", ev)
	}
	es, _, _ := fm.selectEndpoint(now)
	if es.endpoint.Host != "c.test" {
		t.Fatalf("expected failover to c.test, got %s", es.endpoint.Host)
	}

	fm.recordFailure(fm.endpoints[2], errors.New("refused"))
	now = now.Add(5 * time.Second)
	fm.recordFailure(fm.endpoints[0], errors.New("refused"))

	es, wait, err := fm.selectEndpoint(now)
	if es != nil || err != nil {
		t.Fatalf("expected no eligible endpoint, got %v %v", es, err)
	}
	if wait != 25*time.Second {
		t.Fatalf("wait %s, want 25s until the soonest breaker closes", wait)
	}
}

func TestSelectEndpointSingleHalfOpenTrial(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerThreshold = 1
	fm, events := newTestFailover(t, cfg, nil)
	now := time.Unix(1_700_000_000, 0)
	fm.now = func() time.Time { return now }
	fm.recordFailure(fm.endpoints[0], errors.New("refused"))

	later := now.Add(cfg.BreakerCooldown)
	es, _, err := fm.selectEndpoint(later)
	if err != nil || es == nil {
		t.Fatalf("trial not granted after cooldown: %v", err)
	}
	if es.breaker.state != breakerHalfOpen {
		t.Fatalf("breaker %s, want half_open", es.breaker.state)
	}
	nextEvent(t, events, EventBreakerTransition)
	if ev := nextEvent(t, events, EventBreakerTransition); ev.Breaker != breakerHalfOpen {
		t.Fatalf("expected half_open transition event, got %s", ev.Breaker)
	}

	es, wait, _ := fm.selectEndpoint(later)
	if es != nil || wait <= 0 {
		t.Fatalf("second trial granted while one is outstanding")
	}

	fm.recordSuccess(fm.endpoints[0], 40*time.Millisecond)
	if fm.endpoints[0].breaker.state != breakerClosed {
		t.Fatalf("success did not close the breaker")
	}
	fm.recordSuccess(fm.endpoints[0], 80*time.Millisecond)
	if got := fm.endpoints[0].latency; got != 52*time.Millisecond {
		t.Fatalf("smoothed latency %s, want 52ms", got)
	}
}

func TestAuthFailureExcludesEndpointUntilCredentialsChange(t *testing.T) {
	cfg := testConfig()
	cfg.Pools = threePools()
	fm, _ := newTestFailover(t, cfg, nil)

	for _, es := range fm.endpoints {
		fm.recordFailure(es, &AuthError{Worker: "w", Reason: "Unauthorized worker"})
	}
	if _, _, err := fm.selectEndpoint(time.Now()); !errors.Is(err, errAllEndpointsAuth) {
		t.Fatalf("expected errAllEndpointsAuth, got %v", err)
	}
	for _, st := range fm.Endpoints() {
		if !st.AuthFailed {
			t.Fatalf("endpoint %s not marked auth failed", st.Endpoint)
		}
	}

	fm.UpdateCredentials("new-password")
	if es, _, err := fm.selectEndpoint(time.Now()); err != nil || es == nil {
		t.Fatalf("endpoints still excluded after credential change: %v", err)
	}
	if sess := fm.newSession(cfg.Pools[0]); sess.password != "new-password" {
		t.Fatalf("new session uses password %q", sess.password)
	}
	select {
	case <-fm.credsSig:
	default:
		t.Fatalf("credential change not signalled")
	}
}

// recordingSleep stands in for sleepCtx. It cancels the run after limit
// calls.
type recordingSleep struct {
	mu     sync.Mutex
	calls  []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	n := len(r.calls)
	r.mu.Unlock()
	if n >= r.limit {
		r.cancel()
		return ctx.Err()
	}
	return nil
}

func (r *recordingSleep) durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.calls...)
}

func TestRunWaitsWhenAllEndpointsOpen(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerThreshold = 1
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	fm, events := newTestFailover(t, cfg, dial)
	now := time.Unix(1_700_000_000, 0)
	fm.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rs := &recordingSleep{limit: 2, cancel: cancel}
	fm.sleep = rs.sleep

	if err := fm.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	sched := nextEvent(t, events, EventReconnectScheduled)
	if sched.Wait < cfg.BackoffBase {
		t.Fatalf("reconnect scheduled after %s, below backoff base", sched.Wait)
	}
	ev := nextEvent(t, events, EventEndpointsUnavailable)
	if ev.Wait != cfg.BreakerCooldown {
		t.Fatalf("unavailable wait %s, want %s", ev.Wait, cfg.BreakerCooldown)
	}
	if d := rs.durations(); len(d) != 2 || d[1] != cfg.BreakerCooldown {
		t.Fatalf("sleeps %v", d)
	}
	if st := fm.Endpoints()[0]; st.Breaker != "open" || st.Failures != 1 {
		t.Fatalf("unexpected endpoint status %+v", st)
	}
}

func TestRunHonorsGate(t *testing.T) {
	cfg := testConfig()
	dialed := make(chan struct{}, 1)
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialed <- struct{}{}
		return nil, errors.New("unexpected dial")
	}
	deps, events := newTestDeps(cfg, dial)
	fm := NewFailoverManager(cfg, deps, ProceedFunc(func() bool { return false }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rs := &recordingSleep{limit: 3, cancel: cancel}
	fm.sleep = rs.sleep
	_ = fm.Run(ctx)

	select {
	case <-dialed:
		t.Fatalf("dialed while the gate was closed")
	default:
	}
	nextEvent(t, events, EventReconnectSuspended)
	select {
	case ev := <-events:
		if ev.Kind == EventReconnectSuspended {
			t.Fatalf("suspension announced more than once")
		}
	default:
	}
	for _, d := range rs.durations() {
		if d != gatePollInterval {
			t.Fatalf("gate poll sleep %s", d)
		}
	}
}

func TestRunServerReconnectDoesNotChargeBreaker(t *testing.T) {
	pool, dial := newFakePool(t)
	cfg := testConfig()
	cfg.BreakerThreshold = 1
	fm, events := newTestFailover(t, cfg, dial)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rs := &recordingSleep{limit: 1, cancel: cancel}
	fm.sleep = rs.sleep

	done := make(chan error, 1)
	go func() { done <- fm.Run(ctx) }()
	pool.handshake(cfg.WorkerIdentity())
	nextEvent(t, events, EventConnectionState)
	waitFor(t, "active session", func() bool { return fm.Active() != nil })
	pool.send(`{"id":null,"method":"client.reconnect","params":[null,null,7]}`)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if d := rs.durations(); len(d) != 1 || d[0] != 7*time.Second {
		t.Fatalf("expected one 7s pause, got %v", d)
	}
	st := fm.Endpoints()[0]
	if st.Breaker != "closed" || st.Failures != 0 || st.Sessions != 1 {
		t.Fatalf("server reconnect charged the breaker: %+v", st)
	}
	if fm.Active() != nil {
		t.Fatalf("active session not cleared")
	}
}
