package main

import (
	"strings"
	"testing"
	"time"
)

const (
	testPrimaryWallet   = "LTC1qprimarywallet0000000000000000000"
	testAuxiliaryWallet = "DogeAuxWallet000000000000000000000"
	testPrevHash        = "00000000440b921e1b77c6c0487ae5616de67f788f44ae2a5af6e2194d16b6f8"
	testCoinb1          = "01000000010000000000000000000000000000000000000000000000000000000000000000ffffffff20020862062f503253482f04b8864e5008"
	testCoinb2          = "072f736c7573682f000000000100f2052a010000001976a914d23fcdf86f7e756a64a7a9688ef9903327048ed988ac00000000"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Pools = []Endpoint{{Host: "pool.test", Port: 3333}}
	cfg.PrimaryWallet = testPrimaryWallet
	cfg.AuxiliaryWallet = testAuxiliaryWallet
	cfg.WorkerName = "rig01"
	cfg.ProbeLatency = false
	return cfg
}

func testNotifyParams(jobID string, clean bool) []any {
	return []any{
		jobID,
		testPrevHash,
		testCoinb1,
		testCoinb2,
		[]any{},
		"20000000",
		"1d00ffff",
		"504e86b9",
		clean,
	}
}

func testJob(t *testing.T, jobID string, clean bool) *Job {
	t.Helper()
	job, err := parseNotifyJob(testNotifyParams(jobID, clean), time.Now())
	if err != nil {
		t.Fatalf("parse notify %s: %v", jobID, err)
	}
	return job
}

func testDifficultyConfig() difficultyConfig {
	return difficultyConfig{
		Default:         1,
		Min:             1,
		Max:             1 << 20,
		AutoAdjust:      true,
		Window:          time.Minute,
		LowerAcceptRate: defaultLowerAcceptRate,
		RaiseAcceptRate: defaultRaiseAcceptRate,
	}
}

// newTestJobManager returns a manager with extranonce1 01020304 and a
// 4-byte extranonce2, ready for jobs.
func newTestJobManager(t *testing.T, retention int) (*JobManager, *DifficultyManager) {
	t.Helper()
	diff := NewDifficultyManager(testDifficultyConfig(), diff1TargetScrypt)
	jm := NewJobManager(retention, diff)
	jm.SetExtranonce([]byte{0x01, 0x02, 0x03, 0x04}, 4)
	return jm, diff
}

// nextEvent waits for the next event of kind, skipping others.
func nextEvent(t *testing.T, ch chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hexOfLen(n int) string {
	return strings.Repeat("0", n)
}
