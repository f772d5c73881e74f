package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml"
)

func ensureExampleFiles(dataDir string) {
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	examplesDir := filepath.Join(dataDir, "config", "examples")
	if err := os.MkdirAll(examplesDir, 0o755); err != nil {
		logger.Warn("create examples directory failed", "dir", examplesDir, "error", err)
		return
	}
	ensureExampleFile(filepath.Join(examplesDir, "config.toml.example"), exampleConfigBytes())
	ensureExampleFile(filepath.Join(examplesDir, "secrets.toml.example"), secretsConfigExample)
}

func ensureExampleFile(path string, contents []byte) {
	if len(contents) == 0 {
		return
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		logger.Warn("write example config failed", "path", path, "error", err)
	}
}

func ptrTo[T any](v T) *T { return &v }

func wholeSeconds(d time.Duration) *int { return ptrTo(int(d / time.Second)) }

func buildBaseFileConfig(cfg Config) baseFileConfig {
	pools := make([]poolFileConfig, 0, len(cfg.Pools))
	for _, p := range cfg.Pools {
		pools = append(pools, poolFileConfig{
			Host:        p.Host,
			Port:        p.Port,
			TLS:         p.UseTLS,
			TLSInsecure: p.TLSInsecure,
			Region:      p.Region,
			Priority:    p.Priority,
		})
	}
	return baseFileConfig{
		Pools: pools,
		Worker: workerFileConfig{
			PrimaryWallet:   cfg.PrimaryWallet,
			AuxiliaryWallet: cfg.AuxiliaryWallet,
			Name:            cfg.WorkerName,
		},
		Difficulty: difficultyFileConfig{
			Algorithm:         cfg.Algorithm,
			DefaultDifficulty: ptrTo(cfg.DefaultDifficulty),
			MinDifficulty:     ptrTo(cfg.MinDifficulty),
			MaxDifficulty:     ptrTo(cfg.MaxDifficulty),
			AutoAdjust:        ptrTo(cfg.AutoAdjustDifficulty),
			SuggestDifficulty: ptrTo(cfg.SuggestDifficulty),
			WindowSeconds:     wholeSeconds(cfg.DifficultyWindow),
			LowerAcceptRate:   ptrTo(cfg.LowerAcceptRate),
			RaiseAcceptRate:   ptrTo(cfg.RaiseAcceptRate),
		},
		Timeouts: timeoutsFileConfig{
			ConnectSeconds:   wholeSeconds(cfg.ConnectTimeout),
			HandshakeSeconds: wholeSeconds(cfg.HandshakeTimeout),
			IdleSeconds:      wholeSeconds(cfg.IdleTimeout),
			SubmitSeconds:    wholeSeconds(cfg.SubmitTimeout),
		},
		Failover: failoverFileConfig{
			BreakerThreshold:          ptrTo(cfg.BreakerThreshold),
			BreakerWindowSeconds:      wholeSeconds(cfg.BreakerWindow),
			BreakerCooldownSeconds:    wholeSeconds(cfg.BreakerCooldown),
			BreakerMaxCooldownSeconds: wholeSeconds(cfg.BreakerMaxCooldown),
			BackoffBaseMillis:         ptrTo(int(cfg.BackoffBase / time.Millisecond)),
			BackoffMaxMillis:          ptrTo(int(cfg.BackoffMax / time.Millisecond)),
			SelectionPolicy:           cfg.SelectionPolicy,
			PreferredRegion:           cfg.PreferredRegion,
			ProbeLatency:              ptrTo(cfg.ProbeLatency),
			PauseFile:                 cfg.PauseFile,
		},
		Security: securityFileConfig{
			MaxFrameBytes:          ptrTo(cfg.MaxFrameBytes),
			MalformedFrameLimit:    ptrTo(cfg.MalformedFrameLimit),
			MalformedWindowSeconds: wholeSeconds(cfg.MalformedFrameWindow),
			ReplayCacheSize:        ptrTo(cfg.ReplayCacheSize),
		},
		Jobs: jobsFileConfig{
			Retention:           ptrTo(cfg.JobRetention),
			ExtranonceSubscribe: ptrTo(cfg.ExtranonceSubscribe),
		},
		Network: networkFileConfig{
			Proxy:        cfg.ProxyAddr,
			ProxyUser:    cfg.ProxyUser,
			TorIsolation: cfg.TorIsolation,
		},
		Engine: engineFileConfig{
			BridgeAddr:       cfg.EngineBridgeAddr,
			EventPublishAddr: cfg.EventPublishAddr,
			StatsLogSeconds:  wholeSeconds(cfg.StatsLogInterval),
		},
		Logging: loggingFileConfig{Level: cfg.LogLevel},
		Discord: discordFileConfig{ChannelID: cfg.DiscordChannelID},
	}
}

func exampleConfigBytes() []byte {
	cfg := defaultConfig()
	cfg.Pools = []Endpoint{
		{Host: "stratum.example-pool.com", Port: 3333, Region: "eu", Priority: 0},
		{Host: "stratum-us.example-pool.com", Port: 3443, UseTLS: true, Region: "us", Priority: 1},
	}
	cfg.PrimaryWallet = "YOUR_PRIMARY_WALLET"
	cfg.AuxiliaryWallet = "YOUR_AUXILIARY_WALLET"
	cfg.EngineBridgeAddr = "tcp://127.0.0.1:28400"
	cfg.EventPublishAddr = "tcp://127.0.0.1:28401"
	data, err := toml.Marshal(buildBaseFileConfig(cfg))
	if err != nil {
		logger.Warn("encode config example failed", "error", err)
		return nil
	}
	out := fmt.Appendf(nil, "# Generated %s %s example config (copy to config/config.toml and edit)\n\n", clientSoftwareName, clientVersion)
	out = append(out, baseConfigDocComments()...)
	return append(out, data...)
}

func baseConfigDocComments() []byte {
	return []byte(`# Key notes
# - [[pools]]: one table per pool endpoint; tls = true for stratum+ssl.
#   priority is used when [failover].selection_policy = "priority".
# - [worker]: authorize name becomes "<primary_wallet>.<auxiliary_wallet>.<name>".
#   The password lives in secrets.toml.
# - [difficulty].algorithm: "scrypt" or "sha256d" (selects the difficulty-1 target).
# - [difficulty].suggest_difficulty: send mining.suggest_difficulty and apply
#   local proposals; false keeps them advisory (logged only).
# - [difficulty].raise_accept_rate defaults to 0.98, not the stricter 0.99, so
#   a window of 50 accepts and 1 reject (98.04%) proposes a doubling. Set 0.99
#   to raise only above 99%.
# - [failover]: circuit breaker and reconnect backoff. pause_file suspends
#   reconnects while the file exists.
# - [security]: inbound frame limits and replay cache sizing.
# - [engine].bridge_addr: ZeroMQ REP endpoint for compute engines (work/submit/stats).
# - [engine].event_publish_addr: ZeroMQ PUB endpoint for monitoring events.
# - [discord].channel_id: connection alerts; bot token in secrets.toml.
#
`)
}
