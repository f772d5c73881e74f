package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNextWorkUnitCountsExtranonce2FromZero(t *testing.T) {
	jm, _ := newTestJobManager(t, 4)
	jm.OnNotify(testJob(t, "j1", true))

	for i, want := range []string{"00000000", "00000001", "00000002"} {
		wu, err := jm.NextWorkUnit()
		if err != nil {
			t.Fatalf("unit %d: %v", i, err)
		}
		if wu.Extranonce2 != want {
			t.Fatalf("unit %d: extranonce2 %s, want %s", i, wu.Extranonce2, want)
		}
		if wu.Extranonce1 != "01020304" || wu.JobID != "j1" {
			t.Fatalf("unit %d: unexpected binding %+v", i, wu)
		}
	}
}

func TestCleanNotifyReplacesJobSet(t *testing.T) {
	jm, _ := newTestJobManager(t, 4)
	jm.OnNotify(testJob(t, "a", true))
	jm.OnNotify(testJob(t, "b", false))
	if !jm.IsCurrent("a") || !jm.IsCurrent("b") {
		t.Fatalf("expected a and b current, got %v", jm.CurrentJobIDs())
	}

	jm.OnNotify(testJob(t, "c", true))
	if jm.IsCurrent("a") || jm.IsCurrent("b") {
		t.Fatalf("clean notify left old jobs: %v", jm.CurrentJobIDs())
	}
	wu, err := jm.NextWorkUnit()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if wu.JobID != "c" || !wu.CleanJobs {
		t.Fatalf("expected clean job c, got %s clean=%v", wu.JobID, wu.CleanJobs)
	}
}

func TestNonCleanNotifyKeepsRetentionWindow(t *testing.T) {
	jm, _ := newTestJobManager(t, 2)
	jm.OnNotify(testJob(t, "a", true))
	jm.OnNotify(testJob(t, "b", false))
	jm.OnNotify(testJob(t, "c", false))

	ids := jm.CurrentJobIDs()
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Fatalf("expected [b c], got %v", ids)
	}
	if jm.IsCurrent("a") {
		t.Fatalf("oldest job should have aged out")
	}
}

func TestRepeatedJobIDMovesToNewest(t *testing.T) {
	jm, _ := newTestJobManager(t, 4)
	jm.OnNotify(testJob(t, "a", true))
	jm.OnNotify(testJob(t, "b", false))
	jm.OnNotify(testJob(t, "a", false))

	ids := jm.CurrentJobIDs()
	if len(ids) != 2 || ids[1] != "a" {
		t.Fatalf("expected a to be newest, got %v", ids)
	}
}

func TestConcurrentWorkUnitsAreUnique(t *testing.T) {
	jm, _ := newTestJobManager(t, 4)
	jm.OnNotify(testJob(t, "j1", true))

	const workers, per = 8, 200
	var (
		mu   sync.Mutex
		seen = make(map[string]bool, workers*per)
		wg   sync.WaitGroup
	)
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				wu, err := jm.NextWorkUnit()
				if err != nil {
					errs <- err
					return
				}
				key := wu.JobID + "/" + wu.Extranonce2
				mu.Lock()
				dup := seen[key]
				seen[key] = true
				mu.Unlock()
				if dup {
					errs <- errors.New("duplicate work unit " + key)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent next: %v", err)
	}
	if len(seen) != workers*per {
		t.Fatalf("expected %d units, got %d", workers*per, len(seen))
	}
}

func TestCleanNotifyIsAtomicForConcurrentWorkers(t *testing.T) {
	jm, _ := newTestJobManager(t, 4)
	jm.OnNotify(testJob(t, "j1", true))
	jm.OnNotify(testJob(t, "j2", false))

	var (
		cleaned atomic.Bool
		stop    atomic.Bool
		wg      sync.WaitGroup
	)
	errs := make(chan error, 8)
	started := make(chan struct{}, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			for !stop.Load() {
				after := cleaned.Load()
				wu, err := jm.NextWorkUnit()
				if err != nil {
					errs <- err
					return
				}
				if after && wu.JobID != "j3" {
					errs <- errors.New("unit for pre-clean job " + wu.JobID + " issued after the clean notify")
					return
				}
			}
		}()
	}
	for range 8 {
		<-started
	}
	jm.OnNotify(testJob(t, "j3", true))
	cleaned.Store(true)
	for _, id := range []string{"j1", "j2"} {
		if jm.IsCurrent(id) {
			t.Fatalf("%s still current after the clean notify", id)
		}
	}
	time.Sleep(20 * time.Millisecond)
	stop.Store(true)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent clean notify: %v", err)
	}
	if ids := jm.CurrentJobIDs(); len(ids) != 1 || ids[0] != "j3" {
		t.Fatalf("job set %v, want [j3]", ids)
	}
}

func TestSetExtranonceStartsNewEpoch(t *testing.T) {
	jm, _ := newTestJobManager(t, 4)
	jm.OnNotify(testJob(t, "j1", true))

	first, _ := jm.NextWorkUnit()
	_, _ = jm.NextWorkUnit()
	if !jm.IsCurrentWork(first.JobID, first.Epoch) {
		t.Fatalf("work should be current before extranonce change")
	}

	jm.SetExtranonce([]byte{0xaa, 0xbb}, 2)
	if jm.IsCurrentWork(first.JobID, first.Epoch) {
		t.Fatalf("work from the previous extranonce epoch still current")
	}
	wu, err := jm.NextWorkUnit()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if wu.Extranonce1 != "aabb" || wu.Extranonce2 != "0000" {
		t.Fatalf("expected counter restart under aabb, got en1=%s en2=%s", wu.Extranonce1, wu.Extranonce2)
	}
	if wu.Epoch == first.Epoch {
		t.Fatalf("epoch did not advance")
	}
	if !jm.IsCurrentWork(wu.JobID, wu.Epoch) {
		t.Fatalf("fresh work not current")
	}
}

func TestNextWorkUnitWithoutJobs(t *testing.T) {
	jm, _ := newTestJobManager(t, 4)
	if _, err := jm.NextWorkUnit(); !errors.Is(err, errNoWork) {
		t.Fatalf("expected errNoWork, got %v", err)
	}

	diff := NewDifficultyManager(testDifficultyConfig(), diff1TargetScrypt)
	bare := NewJobManager(4, diff)
	bare.OnNotify(testJob(t, "j1", true))
	if _, err := bare.NextWorkUnit(); !errors.Is(err, errExtranonceMissing) {
		t.Fatalf("expected errExtranonceMissing, got %v", err)
	}
}

func TestResetDropsJobs(t *testing.T) {
	jm, _ := newTestJobManager(t, 4)
	jm.OnNotify(testJob(t, "j1", true))
	jm.Reset()
	if jm.IsCurrent("j1") {
		t.Fatalf("job survived reset")
	}
	if _, err := jm.NextWorkUnit(); !errors.Is(err, errNoWork) {
		t.Fatalf("expected errNoWork after reset, got %v", err)
	}
}

func TestWaitWorkUnitBlocksUntilNotify(t *testing.T) {
	jm, _ := newTestJobManager(t, 4)

	got := make(chan WorkUnit, 1)
	go func() {
		wu, err := jm.WaitWorkUnit(context.Background())
		if err == nil {
			got <- wu
		}
	}()

	select {
	case <-got:
		t.Fatalf("work returned before any notify")
	case <-time.After(50 * time.Millisecond):
	}
	jm.OnNotify(testJob(t, "late", true))
	select {
	case wu := <-got:
		if wu.JobID != "late" {
			t.Fatalf("unexpected job %s", wu.JobID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("WaitWorkUnit did not wake on notify")
	}
}

func TestWaitWorkUnitHonorsContext(t *testing.T) {
	jm, _ := newTestJobManager(t, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := jm.WaitWorkUnit(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestExtranonce2SpaceExhaustion(t *testing.T) {
	jm, _ := newTestJobManager(t, 4)
	jm.SetExtranonce([]byte{0x01}, 1)
	jm.OnNotify(testJob(t, "j1", true))

	var last WorkUnit
	for i := range 256 {
		wu, err := jm.NextWorkUnit()
		if err != nil {
			t.Fatalf("unit %d: %v", i, err)
		}
		last = wu
	}
	if last.Extranonce2 != "ff" {
		t.Fatalf("last extranonce2 %s, want ff", last.Extranonce2)
	}
	if _, err := jm.NextWorkUnit(); !errors.Is(err, errExtranonceSpent) {
		t.Fatalf("expected errExtranonceSpent, got %v", err)
	}
}

func TestWorkUnitHeaderAndMerkleRoot(t *testing.T) {
	jm, diff := newTestJobManager(t, 4)
	job := testJob(t, "j1", true)
	jm.OnNotify(job)
	wu, err := jm.NextWorkUnit()
	if err != nil {
		t.Fatalf("next: %v", err)
	}

	if len(wu.Header) != 160 {
		t.Fatalf("header is %d hex chars, want 160", len(wu.Header))
	}
	header, err := hex.DecodeString(wu.Header)
	if err != nil {
		t.Fatalf("header hex: %v", err)
	}
	// No branches: the merkle root is the coinbase hash itself.
	cbHash := doubleSHA256(buildCoinbase(job, []byte{0x01, 0x02, 0x03, 0x04}, 0, 4))
	if !bytes.Equal(header[36:68], cbHash[:]) {
		t.Fatalf("header merkle root %x, want %x", header[36:68], cbHash)
	}
	if !bytes.Equal(header[4:36], job.prevHash[:]) {
		t.Fatalf("header prevhash mismatch")
	}

	_, target := diff.Current()
	if wu.Target != targetHex(target) || wu.Difficulty != 1 {
		t.Fatalf("work unit target/difficulty not taken from difficulty manager: %s %v", wu.Target, wu.Difficulty)
	}
	// nbits 1d00ffff against the scrypt difficulty-1 target.
	if wu.NetworkDifficulty != 65536 {
		t.Fatalf("network difficulty %v, want 65536", wu.NetworkDifficulty)
	}
	c := wu.Candidate(0xdeadbeef)
	if c.Nonce != "deadbeef" || c.Extranonce2 != wu.Extranonce2 || c.Epoch != wu.Epoch {
		t.Fatalf("unexpected candidate %+v", c)
	}
}

func TestCoinbaseSplicesExtranonce(t *testing.T) {
	job := testJob(t, "j1", true)
	cb := buildCoinbase(job, []byte{0xca, 0xfe}, 0x0102, 2)
	want := testCoinb1 + "cafe" + "0102" + testCoinb2
	if hex.EncodeToString(cb) != want {
		t.Fatalf("coinbase %x, want %s", cb, want)
	}
}

func TestMerkleRootFoldsBranches(t *testing.T) {
	var cb, branch [32]byte
	cb[0], branch[0] = 1, 2
	got := merkleRootFromBranches(cb, [][32]byte{branch})
	var buf [64]byte
	copy(buf[:32], cb[:])
	copy(buf[32:], branch[:])
	if got != doubleSHA256(buf[:]) {
		t.Fatalf("merkle fold mismatch")
	}
}

func TestParseNotifyJobRejects(t *testing.T) {
	cases := map[string]func(p []any){
		"short prevhash":  func(p []any) { p[1] = "00ff" },
		"odd coinb1":      func(p []any) { p[2] = "abc" },
		"branch not hex":  func(p []any) { p[4] = []any{hexOfLen(62) + "zz"} },
		"clean not bool":  func(p []any) { p[8] = "true" },
		"empty job id":    func(p []any) { p[0] = "" },
		"job id spaces":   func(p []any) { p[0] = "a b" },
		"version too big": func(p []any) { p[5] = "0200000000" },
	}
	for name, mutate := range cases {
		p := testNotifyParams("j1", true)
		mutate(p)
		if _, err := parseNotifyJob(p, time.Now()); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := parseNotifyJob(testNotifyParams("j1", true)[:8], time.Now()); err == nil {
		t.Fatalf("expected error for 8 params")
	}
}
