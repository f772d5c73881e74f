package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Job is one mining.notify. It is never mutated after parsing; a newer
// notify supersedes it.
type Job struct {
	JobID          string
	PrevHash       string
	Coinb1         string
	Coinb2         string
	MerkleBranches []string
	Version        string
	NBits          string
	NTime          string
	CleanJobs      bool
	ReceivedAt     time.Time

	prevHash [32]byte // header byte order
	coinb1   []byte
	coinb2   []byte
	branches [][32]byte
	version  uint32
	bits     uint32
	ntime    uint32
}

// parseNotifyJob decodes mining.notify params:
// [job_id, prevhash, coinb1, coinb2, merkle_branch[], version, nbits, ntime, clean_jobs]
func parseNotifyJob(params []any, now time.Time) (*Job, error) {
	if len(params) < 9 {
		return nil, fmt.Errorf("expected 9 params, got %d", len(params))
	}
	var fields [7]string
	for i, idx := range []int{0, 1, 2, 3, 5, 6, 7} {
		s, ok := params[idx].(string)
		if !ok {
			return nil, fmt.Errorf("param %d must be a string", idx)
		}
		fields[i] = s
	}
	job := &Job{
		JobID:      fields[0],
		PrevHash:   strings.ToLower(fields[1]),
		Coinb1:     fields[2],
		Coinb2:     fields[3],
		Version:    fields[4],
		NBits:      fields[5],
		NTime:      fields[6],
		ReceivedAt: now,
	}
	clean, ok := params[8].(bool)
	if !ok {
		return nil, fmt.Errorf("clean_jobs must be a bool")
	}
	job.CleanJobs = clean

	if job.JobID == "" || len(job.JobID) > maxJobIDLen || !isPrintableASCII(job.JobID) {
		return nil, fmt.Errorf("job_id must be 1-%d printable bytes", maxJobIDLen)
	}

	var raw [32]byte
	if err := decodeHexToFixedBytes(raw[:], job.PrevHash); err != nil {
		return nil, fmt.Errorf("prevhash: %w", err)
	}
	job.prevHash = swapWords32(raw)

	var err error
	if job.coinb1, err = decodeHexBounded(job.Coinb1, maxCoinbasePartHexLen/2); err != nil {
		return nil, fmt.Errorf("coinb1: %w", err)
	}
	if job.coinb2, err = decodeHexBounded(job.Coinb2, maxCoinbasePartHexLen/2); err != nil {
		return nil, fmt.Errorf("coinb2: %w", err)
	}

	branches, ok := params[4].([]any)
	if !ok {
		return nil, fmt.Errorf("merkle_branch must be an array")
	}
	if len(branches) > maxMerkleBranches {
		return nil, fmt.Errorf("merkle_branch has %d entries, limit is %d", len(branches), maxMerkleBranches)
	}
	job.MerkleBranches = make([]string, 0, len(branches))
	job.branches = make([][32]byte, 0, len(branches))
	for i, b := range branches {
		s, ok := b.(string)
		if !ok {
			return nil, fmt.Errorf("merkle_branch[%d] must be a string", i)
		}
		var h [32]byte
		if err := decodeHexToFixedBytes(h[:], s); err != nil {
			return nil, fmt.Errorf("merkle_branch[%d]: %w", i, err)
		}
		job.MerkleBranches = append(job.MerkleBranches, s)
		job.branches = append(job.branches, h)
	}

	if job.version, err = parseUint32BEHex(job.Version); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if job.bits, err = parseUint32BEHex(job.NBits); err != nil {
		return nil, fmt.Errorf("nbits: %w", err)
	}
	if job.ntime, err = parseUint32BEHex(job.NTime); err != nil {
		return nil, fmt.Errorf("ntime: %w", err)
	}
	return job, nil
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// JobManager owns the current-job set and the extranonce counter. Both sit
// behind one mutex so a clean notify and NextWorkUnit can never interleave.
type JobManager struct {
	retention int
	diff      *DifficultyManager

	mu              sync.Mutex
	jobs            map[string]*Job
	order           []*Job // oldest first
	extranonce1     []byte
	extranonce2Size int
	counter         uint64
	epoch           uint64
	ready           chan struct{}
	readyClosed     bool
}

func NewJobManager(retention int, diff *DifficultyManager) *JobManager {
	if retention <= 0 {
		retention = defaultJobRetention
	}
	return &JobManager{
		retention: retention,
		diff:      diff,
		jobs:      make(map[string]*Job, retention),
		ready:     make(chan struct{}),
	}
}

// OnNotify installs a job. A clean job replaces the whole set; otherwise it
// joins the set and the oldest jobs beyond the retention count drop out.
func (jm *JobManager) OnNotify(job *Job) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if job.CleanJobs {
		clear(jm.jobs)
		jm.order = jm.order[:0]
	} else if prev, ok := jm.jobs[job.JobID]; ok {
		jm.removeLocked(prev)
	}
	jm.jobs[job.JobID] = job
	jm.order = append(jm.order, job)
	for len(jm.order) > jm.retention {
		oldest := jm.order[0]
		jm.order = jm.order[1:]
		if jm.jobs[oldest.JobID] == oldest {
			delete(jm.jobs, oldest.JobID)
		}
	}
	jm.signalLocked()
}

func (jm *JobManager) removeLocked(job *Job) {
	for i, j := range jm.order {
		if j == job {
			jm.order = append(jm.order[:i], jm.order[i+1:]...)
			break
		}
	}
	delete(jm.jobs, job.JobID)
}

// SetExtranonce starts a new extranonce epoch. The counter restarts at zero
// and work handed out under the previous epoch is no longer submittable.
func (jm *JobManager) SetExtranonce(extranonce1 []byte, size int) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.extranonce1 = make([]byte, len(extranonce1))
	copy(jm.extranonce1, extranonce1)
	jm.extranonce2Size = size
	jm.counter = 0
	jm.epoch++
	jm.signalLocked()
}

// Reset drops all session-bound state. Called on session teardown.
func (jm *JobManager) Reset() {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	clear(jm.jobs)
	jm.order = jm.order[:0]
	jm.extranonce1 = nil
	jm.extranonce2Size = 0
	jm.counter = 0
	jm.epoch++
	jm.signalLocked()
}

// signalLocked keeps ready closed exactly while work can be handed out.
func (jm *JobManager) signalLocked() {
	available := len(jm.order) > 0 && jm.extranonce1 != nil
	switch {
	case available && !jm.readyClosed:
		close(jm.ready)
		jm.readyClosed = true
	case !available && jm.readyClosed:
		jm.ready = make(chan struct{})
		jm.readyClosed = false
	}
}

func (jm *JobManager) IsCurrent(jobID string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	_, ok := jm.jobs[jobID]
	return ok
}

// IsCurrentWork also requires the work unit's extranonce epoch to match.
// Epoch 0 skips that check.
func (jm *JobManager) IsCurrentWork(jobID string, epoch uint64) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if _, ok := jm.jobs[jobID]; !ok {
		return false
	}
	return epoch == 0 || epoch == jm.epoch
}

func (jm *JobManager) Extranonce2Size() int {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.extranonce2Size
}

// NextWorkUnit hands out the newest job bound to a fresh extranonce2.
func (jm *JobManager) NextWorkUnit() (WorkUnit, error) {
	jm.mu.Lock()
	if len(jm.order) == 0 {
		jm.mu.Unlock()
		return WorkUnit{}, errNoWork
	}
	if jm.extranonce1 == nil {
		jm.mu.Unlock()
		return WorkUnit{}, errExtranonceMissing
	}
	if limit := extranonce2Limit(jm.extranonce2Size); limit != 0 && jm.counter >= limit {
		jm.mu.Unlock()
		return WorkUnit{}, errExtranonceSpent
	}
	en2 := jm.counter
	jm.counter++
	job := jm.order[len(jm.order)-1]
	en1 := jm.extranonce1
	size := jm.extranonce2Size
	epoch := jm.epoch
	jm.mu.Unlock()

	diff, target := jm.diff.Current()
	return buildWorkUnit(job, en1, en2, size, epoch, diff, target, jm.diff.diff1), nil
}

// WaitWorkUnit blocks until work is available or ctx ends.
func (jm *JobManager) WaitWorkUnit(ctx context.Context) (WorkUnit, error) {
	for {
		wu, err := jm.NextWorkUnit()
		if err == nil {
			return wu, nil
		}
		if !errors.Is(err, errNoWork) && !errors.Is(err, errExtranonceMissing) {
			return WorkUnit{}, err
		}
		jm.mu.Lock()
		ready := jm.ready
		jm.mu.Unlock()
		select {
		case <-ctx.Done():
			return WorkUnit{}, ctx.Err()
		case <-ready:
		}
	}
}

func (jm *JobManager) CurrentJobIDs() []string {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	ids := make([]string, 0, len(jm.order))
	for _, j := range jm.order {
		ids = append(ids, j.JobID)
	}
	return ids
}
