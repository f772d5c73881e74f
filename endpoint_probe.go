package main

import (
	"context"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"
)

// probeLatencies measures TCP connect time to every endpoint concurrently.
// Unreachable endpoints are left out of the result.
func probeLatencies(ctx context.Context, dial dialFunc, endpoints []Endpoint, timeout time.Duration) map[int]time.Duration {
	if timeout <= 0 {
		timeout = latencyProbeTimeout
	}
	var (
		mu  sync.Mutex
		out = make(map[int]time.Duration, len(endpoints))
	)
	swg := sizedwaitgroup.New(maxConcurrentProbes)
	for i, ep := range endpoints {
		if err := swg.AddWithContext(ctx); err != nil {
			break
		}
		go func(i int, ep Endpoint) {
			defer swg.Done()
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			conn, err := dial(pctx, "tcp", ep.Addr())
			if err != nil {
				if debugLogging {
					logger.Debug("latency probe failed", "endpoint", ep.String(), "error", err)
				}
				return
			}
			rtt := kernelRTT(conn)
			if rtt <= 0 {
				rtt = time.Since(start)
			}
			_ = conn.Close()
			mu.Lock()
			out[i] = rtt
			mu.Unlock()
		}(i, ep)
	}
	swg.Wait()
	return out
}
