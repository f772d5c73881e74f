package main

import (
	"context"
	"math/rand/v2"
	"time"
)

// reconnectBackoff doubles from base up to max and adds up to 25% jitter
// so many clients dropped together do not reconnect in lockstep.
type reconnectBackoff struct {
	base    time.Duration
	max     time.Duration
	attempt int
	jitter  func(n int64) int64
}

func newReconnectBackoff(base, maxDelay time.Duration) *reconnectBackoff {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if maxDelay < base {
		maxDelay = max(base, defaultBackoffMax)
	}
	return &reconnectBackoff{base: base, max: maxDelay, jitter: rand.Int64N}
}

func (b *reconnectBackoff) next() time.Duration {
	d := b.base
	for i := 0; i < b.attempt && d < b.max; i++ {
		d *= 2
	}
	d = min(d, b.max)
	b.attempt++
	if spread := int64(d / 4); spread > 0 {
		d += time.Duration(b.jitter(spread + 1))
	}
	return d
}

func (b *reconnectBackoff) reset() { b.attempt = 0 }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
