package main

import "time"

const (
	clientSoftwareName = "scryptmine"
	clientVersion      = "0.4.0"

	defaultDataDir = "data"

	// Frame limits. Pools send notify payloads well under this even with
	// long merkle branches; anything bigger is garbage or hostile.
	maxStratumMessageSize = 64 * 1024
	stratumWriteTimeout   = 60 * time.Second
	outboundQueueDepth    = 256

	defaultConnectTimeout   = 10 * time.Second
	defaultHandshakeTimeout = 30 * time.Second
	defaultIdleTimeout      = 5 * time.Minute
	defaultSubmitTimeout    = 30 * time.Second
	submitSweepInterval     = time.Second

	defaultJobRetention = 4
	maxJobRetention     = 64

	// Inbound parameter bounds.
	maxJobIDLen           = 128
	maxCoinbasePartHexLen = 2 * 16 * 1024
	maxMerkleBranches     = 32
	maxExtranonce1Bytes   = 16
	minExtranonce2Size    = 1
	maxExtranonce2Size    = 8
	maxPoolDifficulty     = 1e15
	maxReconnectWait      = 10 * time.Minute
	maxShowMessageLen     = 512
	unknownMethodLogEvery = 100

	defaultMalformedFrameLimit  = 20
	defaultMalformedFrameWindow = 60 * time.Second
	defaultReplayCacheSize      = 4096

	defaultDifficulty        = 1.0
	defaultMinDifficulty     = 1.0
	defaultMaxDifficulty     = 1 << 20
	defaultDifficultyWindow  = 60 * time.Second
	defaultLowerAcceptRate   = 0.95
	defaultRaiseAcceptRate   = 0.98
	minAdjustSamples         = 20
	maxDifficultyWindowCount = 4096

	defaultBreakerThreshold   = 3
	defaultBreakerWindow      = 60 * time.Second
	defaultBreakerCooldown    = 30 * time.Second
	defaultBreakerMaxCooldown = 10 * time.Minute
	defaultBackoffBase        = time.Second
	defaultBackoffMax         = time.Minute
	gatePollInterval          = 5 * time.Second
	latencyProbeTimeout       = 5 * time.Second
	maxConcurrentProbes       = 8

	defaultEngineBridgeWorkTimeout = 5 * time.Second
	defaultStatsLogInterval        = 10 * time.Minute
	defaultDiscordCooldown         = 30 * time.Second
)

// Selection policies for the failover manager.
const (
	selectionByLatency  = "latency"
	selectionByPriority = "priority"
)

// Difficulty-1 target families.
const (
	algoScrypt  = "scrypt"
	algoSHA256d = "sha256d"
)
