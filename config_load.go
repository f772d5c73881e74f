package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

var errConfigMissing = errors.New("config file missing")

// loadConfig reads config.toml and secrets.toml on top of defaultConfig.
// The resolved secrets path is returned so a SIGHUP reload can reread it.
func loadConfig(configPath, secretsPath, dataDir string) (Config, string, error) {
	cfg := defaultConfig()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if configPath == "" {
		configPath = filepath.Join(cfg.DataDir, "config", "config.toml")
	}

	fc, ok, err := loadBaseConfigFile(configPath)
	if err != nil {
		return cfg, "", fmt.Errorf("config file: %w", err)
	}
	ensureExampleFiles(cfg.DataDir)
	if !ok {
		return cfg, "", fmt.Errorf("%w: %s", errConfigMissing, configPath)
	}
	applyBaseConfig(&cfg, *fc)

	if secretsPath == "" {
		secretsPath = defaultSecretsPath(cfg.DataDir)
	}
	if err := reloadSecrets(&cfg, secretsPath); err != nil {
		return cfg, secretsPath, err
	}
	return cfg, secretsPath, nil
}

// reloadSecrets rereads secrets.toml into cfg. A missing file leaves the
// current values alone.
func reloadSecrets(cfg *Config, secretsPath string) error {
	ensureSecretFilePermissions(secretsPath)
	sc, ok, err := loadSecretsFile(secretsPath)
	if err != nil {
		return fmt.Errorf("secrets file: %w", err)
	}
	if ok {
		applySecretsConfig(cfg, *sc)
	}
	return nil
}

func loadTOMLFile[T any](path string) (*T, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg T
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, true, nil
}

func loadBaseConfigFile(path string) (*baseFileConfig, bool, error) {
	return loadTOMLFile[baseFileConfig](path)
}

func loadSecretsFile(path string) (*secretsConfig, bool, error) {
	return loadTOMLFile[secretsConfig](path)
}

func ensureSecretFilePermissions(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("secrets file stat failed", "path", path, "error", err)
		}
		return
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0o077 == 0 {
		return
	}
	if err := os.Chmod(path, 0o600); err != nil {
		logger.Warn("secrets file chmod failed", "path", path, "error", err)
		return
	}
	logger.Warn("secrets file permissions tightened", "path", path, "mode", "0600")
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func applyBaseConfig(cfg *Config, fc baseFileConfig) {
	if len(fc.Pools) > 0 {
		cfg.Pools = cfg.Pools[:0]
		for _, p := range fc.Pools {
			cfg.Pools = append(cfg.Pools, Endpoint{
				Host:        strings.TrimSpace(p.Host),
				Port:        p.Port,
				UseTLS:      p.TLS,
				TLSInsecure: p.TLSInsecure,
				Region:      strings.ToLower(strings.TrimSpace(p.Region)),
				Priority:    p.Priority,
			})
		}
	}

	if fc.Worker.PrimaryWallet != "" {
		cfg.PrimaryWallet = strings.TrimSpace(fc.Worker.PrimaryWallet)
	}
	if fc.Worker.AuxiliaryWallet != "" {
		cfg.AuxiliaryWallet = strings.TrimSpace(fc.Worker.AuxiliaryWallet)
	}
	if fc.Worker.Name != "" {
		cfg.WorkerName = strings.TrimSpace(fc.Worker.Name)
	}

	d := fc.Difficulty
	if d.Algorithm != "" {
		cfg.Algorithm = strings.ToLower(strings.TrimSpace(d.Algorithm))
	}
	if d.DefaultDifficulty != nil {
		cfg.DefaultDifficulty = *d.DefaultDifficulty
	}
	if d.MinDifficulty != nil {
		cfg.MinDifficulty = *d.MinDifficulty
	}
	if d.MaxDifficulty != nil {
		cfg.MaxDifficulty = *d.MaxDifficulty
	}
	if d.AutoAdjust != nil {
		cfg.AutoAdjustDifficulty = *d.AutoAdjust
	}
	if d.SuggestDifficulty != nil {
		cfg.SuggestDifficulty = *d.SuggestDifficulty
	}
	if d.WindowSeconds != nil {
		cfg.DifficultyWindow = seconds(*d.WindowSeconds)
	}
	if d.LowerAcceptRate != nil {
		cfg.LowerAcceptRate = *d.LowerAcceptRate
	}
	if d.RaiseAcceptRate != nil {
		cfg.RaiseAcceptRate = *d.RaiseAcceptRate
	}

	t := fc.Timeouts
	if t.ConnectSeconds != nil {
		cfg.ConnectTimeout = seconds(*t.ConnectSeconds)
	}
	if t.HandshakeSeconds != nil {
		cfg.HandshakeTimeout = seconds(*t.HandshakeSeconds)
	}
	if t.IdleSeconds != nil {
		cfg.IdleTimeout = seconds(*t.IdleSeconds)
	}
	if t.SubmitSeconds != nil {
		cfg.SubmitTimeout = seconds(*t.SubmitSeconds)
	}

	f := fc.Failover
	if f.BreakerThreshold != nil {
		cfg.BreakerThreshold = *f.BreakerThreshold
	}
	if f.BreakerWindowSeconds != nil {
		cfg.BreakerWindow = seconds(*f.BreakerWindowSeconds)
	}
	if f.BreakerCooldownSeconds != nil {
		cfg.BreakerCooldown = seconds(*f.BreakerCooldownSeconds)
	}
	if f.BreakerMaxCooldownSeconds != nil {
		cfg.BreakerMaxCooldown = seconds(*f.BreakerMaxCooldownSeconds)
	}
	if f.BackoffBaseMillis != nil {
		cfg.BackoffBase = time.Duration(*f.BackoffBaseMillis) * time.Millisecond
	}
	if f.BackoffMaxMillis != nil {
		cfg.BackoffMax = time.Duration(*f.BackoffMaxMillis) * time.Millisecond
	}
	if f.SelectionPolicy != "" {
		cfg.SelectionPolicy = strings.ToLower(strings.TrimSpace(f.SelectionPolicy))
	}
	if f.PreferredRegion != "" {
		cfg.PreferredRegion = strings.ToLower(strings.TrimSpace(f.PreferredRegion))
	}
	if f.ProbeLatency != nil {
		cfg.ProbeLatency = *f.ProbeLatency
	}
	if f.PauseFile != "" {
		cfg.PauseFile = strings.TrimSpace(f.PauseFile)
	}

	s := fc.Security
	if s.MaxFrameBytes != nil {
		cfg.MaxFrameBytes = *s.MaxFrameBytes
	}
	if s.MalformedFrameLimit != nil {
		cfg.MalformedFrameLimit = *s.MalformedFrameLimit
	}
	if s.MalformedWindowSeconds != nil {
		cfg.MalformedFrameWindow = seconds(*s.MalformedWindowSeconds)
	}
	if s.ReplayCacheSize != nil {
		cfg.ReplayCacheSize = *s.ReplayCacheSize
	}

	if fc.Jobs.Retention != nil {
		cfg.JobRetention = *fc.Jobs.Retention
	}
	if fc.Jobs.ExtranonceSubscribe != nil {
		cfg.ExtranonceSubscribe = *fc.Jobs.ExtranonceSubscribe
	}

	if fc.Network.Proxy != "" {
		cfg.ProxyAddr = strings.TrimSpace(fc.Network.Proxy)
	}
	if fc.Network.ProxyUser != "" {
		cfg.ProxyUser = strings.TrimSpace(fc.Network.ProxyUser)
	}
	cfg.TorIsolation = fc.Network.TorIsolation

	if fc.Engine.BridgeAddr != "" {
		cfg.EngineBridgeAddr = strings.TrimSpace(fc.Engine.BridgeAddr)
	}
	if fc.Engine.EventPublishAddr != "" {
		cfg.EventPublishAddr = strings.TrimSpace(fc.Engine.EventPublishAddr)
	}
	if fc.Engine.StatsLogSeconds != nil {
		cfg.StatsLogInterval = seconds(*fc.Engine.StatsLogSeconds)
	}

	if fc.Logging.Level != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(fc.Logging.Level))
	}
	if fc.Discord.ChannelID != "" {
		cfg.DiscordChannelID = strings.TrimSpace(fc.Discord.ChannelID)
	}
}

func applySecretsConfig(cfg *Config, sc secretsConfig) {
	if sc.WorkerPassword != "" {
		cfg.WorkerPassword = sc.WorkerPassword
	}
	if sc.ProxyPassword != "" {
		cfg.ProxyPassword = sc.ProxyPassword
	}
	if sc.DiscordBotToken != "" {
		cfg.DiscordBotToken = strings.TrimSpace(sc.DiscordBotToken)
	}
}
