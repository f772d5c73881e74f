package main

import "time"

type breakerState uint8

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "invalid"
	}
}

// circuitBreaker tracks connect and auth failures for one endpoint. It is
// not safe for concurrent use; the failover manager serializes access.
type circuitBreaker struct {
	threshold   int
	window      time.Duration
	cooldown    time.Duration
	maxCooldown time.Duration

	state        breakerState
	failures     int
	firstFailure time.Time
	openUntil    time.Time
	trips        int
	trialPending bool
}

func newCircuitBreaker(threshold int, window, cooldown, maxCooldown time.Duration) *circuitBreaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if window <= 0 {
		window = defaultBreakerWindow
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	if maxCooldown < cooldown {
		maxCooldown = max(cooldown, defaultBreakerMaxCooldown)
	}
	return &circuitBreaker{threshold: threshold, window: window, cooldown: cooldown, maxCooldown: maxCooldown}
}

// ready reports whether allow would let a connection through at now.
func (b *circuitBreaker) ready(now time.Time) bool {
	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		return !now.Before(b.openUntil)
	default:
		return !b.trialPending
	}
}

// allow admits a connection attempt. An Open breaker whose cooldown has
// passed moves to HalfOpen and admits exactly one trial.
func (b *circuitBreaker) allow(now time.Time) bool {
	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if now.Before(b.openUntil) {
			return false
		}
		b.state = breakerHalfOpen
		b.trialPending = true
		return true
	default:
		if b.trialPending {
			return false
		}
		b.trialPending = true
		return true
	}
}

func (b *circuitBreaker) recordSuccess() {
	b.state = breakerClosed
	b.failures = 0
	b.trips = 0
	b.trialPending = false
	b.openUntil = time.Time{}
}

// recordFailure counts one failure. Threshold consecutive failures inside
// the window trip the breaker; a failed HalfOpen trial trips it again
// with a longer cooldown.
func (b *circuitBreaker) recordFailure(now time.Time) {
	switch b.state {
	case breakerHalfOpen:
		b.trip(now)
		return
	case breakerOpen:
		return
	}
	if b.failures == 0 || now.Sub(b.firstFailure) > b.window {
		b.failures = 0
		b.firstFailure = now
	}
	b.failures++
	if b.failures >= b.threshold {
		b.trip(now)
	}
}

func (b *circuitBreaker) trip(now time.Time) {
	b.trips++
	b.state = breakerOpen
	b.failures = 0
	b.trialPending = false
	b.openUntil = now.Add(b.currentCooldown())
}

// currentCooldown doubles with each trip since the last success.
func (b *circuitBreaker) currentCooldown() time.Duration {
	d := b.cooldown
	for i := 1; i < b.trips; i++ {
		d *= 2
		if d >= b.maxCooldown {
			return b.maxCooldown
		}
	}
	return min(d, b.maxCooldown)
}
