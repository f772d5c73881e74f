package main

import (
	"path/filepath"
)

func defaultConfig() Config {
	return Config{
		DataDir:              defaultDataDir,
		LogLevel:             "info",
		WorkerName:           "rig01",
		WorkerPassword:       "x",
		Algorithm:            algoScrypt,
		DefaultDifficulty:    defaultDifficulty,
		MinDifficulty:        defaultMinDifficulty,
		MaxDifficulty:        defaultMaxDifficulty,
		AutoAdjustDifficulty: true,
		DifficultyWindow:     defaultDifficultyWindow,
		LowerAcceptRate:      defaultLowerAcceptRate,
		RaiseAcceptRate:      defaultRaiseAcceptRate,
		ConnectTimeout:       defaultConnectTimeout,
		HandshakeTimeout:     defaultHandshakeTimeout,
		IdleTimeout:          defaultIdleTimeout,
		SubmitTimeout:        defaultSubmitTimeout,
		BreakerThreshold:     defaultBreakerThreshold,
		BreakerWindow:        defaultBreakerWindow,
		BreakerCooldown:      defaultBreakerCooldown,
		BreakerMaxCooldown:   defaultBreakerMaxCooldown,
		BackoffBase:          defaultBackoffBase,
		BackoffMax:           defaultBackoffMax,
		SelectionPolicy:      selectionByLatency,
		ProbeLatency:         true,
		MaxFrameBytes:        maxStratumMessageSize,
		MalformedFrameLimit:  defaultMalformedFrameLimit,
		MalformedFrameWindow: defaultMalformedFrameWindow,
		ReplayCacheSize:      defaultReplayCacheSize,
		JobRetention:         defaultJobRetention,
		StatsLogInterval:     defaultStatsLogInterval,
	}
}

func defaultConfigPath() string {
	return filepath.Join(defaultDataDir, "config", "config.toml")
}

func defaultSecretsPath(dataDir string) string {
	return filepath.Join(dataDir, "config", "secrets.toml")
}
