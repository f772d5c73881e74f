package main

import (
	"errors"
	"io/fs"
	"os"
)

// ProceedGate is consulted before every reconnect attempt. Returning false
// suspends reconnection; share and job state are left alone.
type ProceedGate interface {
	MayProceed() bool
}

// ProceedFunc adapts a function to ProceedGate.
type ProceedFunc func() bool

func (f ProceedFunc) MayProceed() bool { return f() }

type alwaysProceed struct{}

func (alwaysProceed) MayProceed() bool { return true }

// pauseFileGate holds reconnection while a marker file exists. An operator
// or an external profitability job creates and removes it.
type pauseFileGate struct {
	path string
}

func (g pauseFileGate) MayProceed() bool {
	_, err := os.Stat(g.path)
	if err == nil {
		return false
	}
	if !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("pause file check failed", "path", g.path, "error", err)
	}
	return true
}

func gateFromConfig(cfg Config) ProceedGate {
	if cfg.PauseFile == "" {
		return alwaysProceed{}
	}
	return pauseFileGate{path: cfg.PauseFile}
}
