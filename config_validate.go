package main

import (
	"fmt"
	"math"
	"net"
	"strings"
)

func validateConfig(cfg Config) error {
	if len(cfg.Pools) == 0 {
		return fmt.Errorf("at least one [[pools]] entry is required")
	}
	seen := make(map[string]struct{}, len(cfg.Pools))
	for i, p := range cfg.Pools {
		if p.Host == "" {
			return fmt.Errorf("pools[%d].host is required", i)
		}
		if strings.ContainsAny(p.Host, "/ ") {
			return fmt.Errorf("pools[%d].host %q must be a bare hostname or IP (no scheme or path)", i, p.Host)
		}
		if p.Port <= 0 || p.Port > 65535 {
			return fmt.Errorf("pools[%d].port must be 1-65535, got %d", i, p.Port)
		}
		if _, dup := seen[p.Addr()]; dup {
			return fmt.Errorf("pools[%d] duplicates endpoint %s", i, p.Addr())
		}
		seen[p.Addr()] = struct{}{}
	}

	if err := validateWorkerIdentity(cfg.PrimaryWallet, cfg.AuxiliaryWallet, cfg.WorkerName); err != nil {
		return err
	}
	if cfg.WorkerPassword == "" {
		return fmt.Errorf("worker_password must not be empty (use \"x\" if the pool ignores it)")
	}

	switch cfg.Algorithm {
	case algoScrypt, algoSHA256d:
	default:
		return fmt.Errorf("difficulty.algorithm must be %q or %q, got %q", algoScrypt, algoSHA256d, cfg.Algorithm)
	}
	if !validDifficulty(cfg.MinDifficulty) || !validDifficulty(cfg.MaxDifficulty) || !validDifficulty(cfg.DefaultDifficulty) {
		return fmt.Errorf("difficulty.min_difficulty, max_difficulty and default_difficulty must be finite and > 0")
	}
	if cfg.MinDifficulty > cfg.MaxDifficulty {
		return fmt.Errorf("difficulty.min_difficulty (%g) exceeds max_difficulty (%g)", cfg.MinDifficulty, cfg.MaxDifficulty)
	}
	if cfg.DifficultyWindow <= 0 {
		return fmt.Errorf("difficulty.window_seconds must be > 0")
	}
	if cfg.LowerAcceptRate <= 0 || cfg.RaiseAcceptRate > 1 || cfg.LowerAcceptRate >= cfg.RaiseAcceptRate {
		return fmt.Errorf("difficulty accept rates must satisfy 0 < lower_accept_rate < raise_accept_rate <= 1")
	}

	if cfg.ConnectTimeout <= 0 {
		return fmt.Errorf("timeouts.connect_seconds must be > 0")
	}
	if cfg.HandshakeTimeout <= 0 {
		return fmt.Errorf("timeouts.handshake_seconds must be > 0")
	}
	if cfg.IdleTimeout <= 0 {
		return fmt.Errorf("timeouts.idle_seconds must be > 0")
	}
	if cfg.SubmitTimeout <= 0 {
		return fmt.Errorf("timeouts.submit_seconds must be > 0")
	}

	if cfg.BreakerThreshold <= 0 {
		return fmt.Errorf("failover.breaker_threshold must be > 0, got %d", cfg.BreakerThreshold)
	}
	if cfg.BreakerWindow <= 0 || cfg.BreakerCooldown <= 0 {
		return fmt.Errorf("failover.breaker_window_seconds and breaker_cooldown_seconds must be > 0")
	}
	if cfg.BreakerMaxCooldown < cfg.BreakerCooldown {
		return fmt.Errorf("failover.breaker_max_cooldown_seconds must be >= breaker_cooldown_seconds")
	}
	if cfg.BackoffBase <= 0 || cfg.BackoffMax < cfg.BackoffBase {
		return fmt.Errorf("failover.backoff_base_ms must be > 0 and <= backoff_max_ms")
	}
	switch cfg.SelectionPolicy {
	case selectionByLatency, selectionByPriority:
	default:
		return fmt.Errorf("failover.selection_policy must be %q or %q, got %q", selectionByLatency, selectionByPriority, cfg.SelectionPolicy)
	}

	if cfg.MaxFrameBytes < 1024 {
		return fmt.Errorf("security.max_frame_bytes must be >= 1024, got %d", cfg.MaxFrameBytes)
	}
	if cfg.MalformedFrameLimit <= 0 || cfg.MalformedFrameWindow <= 0 {
		return fmt.Errorf("security.malformed_frame_limit and malformed_window_seconds must be > 0")
	}
	if cfg.ReplayCacheSize <= 0 {
		return fmt.Errorf("security.replay_cache_size must be > 0")
	}
	if cfg.JobRetention <= 0 || cfg.JobRetention > maxJobRetention {
		return fmt.Errorf("jobs.retention must be 1-%d, got %d", maxJobRetention, cfg.JobRetention)
	}

	if cfg.ProxyAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.ProxyAddr); err != nil {
			return fmt.Errorf("network.proxy %q must be host:port: %w", cfg.ProxyAddr, err)
		}
	}
	for _, addr := range []string{cfg.EngineBridgeAddr, cfg.EventPublishAddr} {
		if addr != "" && !strings.Contains(addr, "://") {
			return fmt.Errorf("engine address %q must be a zmq endpoint like tcp://127.0.0.1:28400", addr)
		}
	}
	if cfg.EngineBridgeAddr != "" && cfg.EngineBridgeAddr == cfg.EventPublishAddr {
		return fmt.Errorf("engine.bridge_addr and engine.event_publish_addr must differ")
	}
	if cfg.StatsLogInterval < 0 {
		return fmt.Errorf("engine.stats_log_seconds cannot be negative")
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func validDifficulty(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
