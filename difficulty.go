package main

import (
	"math/big"
	"sync"
	"time"
)

type difficultyConfig struct {
	Default         float64
	Min             float64
	Max             float64
	AutoAdjust      bool
	HintsPermitted  bool
	Window          time.Duration
	LowerAcceptRate float64
	RaiseAcceptRate float64
}

func difficultyConfigFrom(cfg Config) difficultyConfig {
	return difficultyConfig{
		Default:         cfg.DefaultDifficulty,
		Min:             cfg.MinDifficulty,
		Max:             cfg.MaxDifficulty,
		AutoAdjust:      cfg.AutoAdjustDifficulty,
		HintsPermitted:  cfg.SuggestDifficulty,
		Window:          cfg.DifficultyWindow,
		LowerAcceptRate: cfg.LowerAcceptRate,
		RaiseAcceptRate: cfg.RaiseAcceptRate,
	}
}

// DifficultyProposal is a locally computed difficulty change. Applied is
// true only when client-side hints are permitted.
type DifficultyProposal struct {
	From       float64
	To         float64
	AcceptRate float64
	Accepts    int
	Rejects    int
	Applied    bool
}

// DifficultyState is a point-in-time copy for monitoring.
type DifficultyState struct {
	PoolDifficulty      float64   `json:"pool_difficulty"`
	EffectiveDifficulty float64   `json:"effective_difficulty"`
	EffectiveTarget     string    `json:"effective_target"`
	RollingAccepts      int       `json:"rolling_accepts"`
	RollingRejects      int       `json:"rolling_rejects"`
	WindowStart         time.Time `json:"window_start,omitzero"`
}

type outcomeSample struct {
	at       time.Time
	accepted bool
}

// DifficultyManager tracks the pool-assigned difficulty and the share
// target derived from it. The pool's mining.set_difficulty always wins
// over a local proposal.
type DifficultyManager struct {
	cfg   difficultyConfig
	diff1 *big.Int
	now   func() time.Time

	mu              sync.Mutex
	poolDifficulty  float64
	localDifficulty float64 // 0 unless a proposal was applied
	lastAdvisory    float64 // last unapplied proposal, until the pool speaks
	target          *big.Int
	samples         []outcomeSample
}

func NewDifficultyManager(cfg difficultyConfig, diff1 *big.Int) *DifficultyManager {
	if cfg.Window <= 0 {
		cfg.Window = defaultDifficultyWindow
	}
	if cfg.Default <= 0 {
		cfg.Default = defaultDifficulty
	}
	dm := &DifficultyManager{cfg: cfg, diff1: diff1, now: time.Now}
	dm.Reset()
	return dm
}

// Reset returns to the configured default. Called when a new session
// starts so a previous pool's assignment does not leak across.
func (dm *DifficultyManager) Reset() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.poolDifficulty = dm.cfg.Default
	dm.localDifficulty = 0
	dm.lastAdvisory = 0
	dm.samples = dm.samples[:0]
	dm.target = targetFromDifficulty(dm.cfg.Default, dm.diff1)
}

func (dm *DifficultyManager) OnSetDifficulty(v float64) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.poolDifficulty = v
	dm.localDifficulty = 0
	dm.lastAdvisory = 0
	dm.samples = dm.samples[:0]
	dm.target = targetFromDifficulty(v, dm.diff1)
}

// Current returns the effective difficulty and its target. The target is
// never mutated after publication so callers may keep it.
func (dm *DifficultyManager) Current() (float64, *big.Int) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.effectiveLocked(), dm.target
}

func (dm *DifficultyManager) effectiveLocked() float64 {
	if dm.localDifficulty > 0 {
		return dm.localDifficulty
	}
	return dm.poolDifficulty
}

// RecordOutcome folds one accept/reject into the rolling window and
// returns a proposal when the accept rate crosses a threshold.
func (dm *DifficultyManager) RecordOutcome(accepted bool) (DifficultyProposal, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	now := dm.now()
	dm.pruneLocked(now)
	if len(dm.samples) >= maxDifficultyWindowCount {
		dm.samples = append(dm.samples[:0], dm.samples[1:]...)
	}
	dm.samples = append(dm.samples, outcomeSample{at: now, accepted: accepted})

	if !dm.cfg.AutoAdjust || len(dm.samples) < minAdjustSamples {
		return DifficultyProposal{}, false
	}
	accepts, rejects := dm.countsLocked()
	rate := float64(accepts) / float64(accepts+rejects)
	current := dm.effectiveLocked()

	var next float64
	switch {
	case rate < dm.cfg.LowerAcceptRate:
		next = current / 2
	case rate > dm.cfg.RaiseAcceptRate:
		next = current * 2
	default:
		return DifficultyProposal{}, false
	}
	next = dm.clamp(next)
	if next == current {
		return DifficultyProposal{}, false
	}

	// Judge the next proposal on fresh outcomes only.
	dm.samples = dm.samples[:0]
	p := DifficultyProposal{From: current, To: next, AcceptRate: rate, Accepts: accepts, Rejects: rejects}
	if !dm.cfg.HintsPermitted {
		if next == dm.lastAdvisory {
			return DifficultyProposal{}, false
		}
		dm.lastAdvisory = next
		return p, true
	}
	dm.localDifficulty = next
	dm.target = targetFromDifficulty(next, dm.diff1)
	p.Applied = true
	return p, true
}

func (dm *DifficultyManager) clamp(v float64) float64 {
	if dm.cfg.Min > 0 && v < dm.cfg.Min {
		v = dm.cfg.Min
	}
	if dm.cfg.Max > 0 && v > dm.cfg.Max {
		v = dm.cfg.Max
	}
	return v
}

func (dm *DifficultyManager) pruneLocked(now time.Time) {
	cutoff := now.Add(-dm.cfg.Window)
	i := 0
	for i < len(dm.samples) && dm.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		dm.samples = append(dm.samples[:0], dm.samples[i:]...)
	}
}

func (dm *DifficultyManager) countsLocked() (accepts, rejects int) {
	for _, s := range dm.samples {
		if s.accepted {
			accepts++
		} else {
			rejects++
		}
	}
	return accepts, rejects
}

func (dm *DifficultyManager) Snapshot() DifficultyState {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.pruneLocked(dm.now())
	accepts, rejects := dm.countsLocked()
	st := DifficultyState{
		PoolDifficulty:      dm.poolDifficulty,
		EffectiveDifficulty: dm.effectiveLocked(),
		EffectiveTarget:     targetHex(dm.target),
		RollingAccepts:      accepts,
		RollingRejects:      rejects,
	}
	if len(dm.samples) > 0 {
		st.WindowStart = dm.samples[0].at
	}
	return st
}
