package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	debugpkg "runtime/debug"
	"syscall"
	"time"
)

func main() {
	// Capture unexpected panics to panic.log with a stack trace.
	defer func() {
		if r := recover(); r != nil {
			if f, err := os.OpenFile("panic.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defer f.Close()
				ts := time.Now().UTC().Format(time.RFC3339)
				fmt.Fprintf(f, "[%s] panic: %v\nversion=%s\n%s\n\n", ts, r, clientVersion, debugpkg.Stack())
			}
			panic(r)
		}
	}()

	configFlag := flag.String("config", "", "path to config.toml (default <data-dir>/config/config.toml)")
	secretsFlag := flag.String("secrets", "", "path to secrets.toml")
	dataDirFlag := flag.String("data-dir", "", "data directory for config and logs")
	logLevelFlag := flag.String("log-level", "", "override log level (debug/info/warn/error)")
	stdoutLogFlag := flag.Bool("stdout", false, "mirror logs to stdout")
	printConfigFlag := flag.Bool("print-config", false, "print the effective config as JSON and exit")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s %s (sha256 %s)\n", clientSoftwareName, clientVersion, sha256Backend())
		return
	}

	cfg, secretsPath, err := loadConfig(*configFlag, *secretsFlag, *dataDirFlag)
	if err != nil {
		if errors.Is(err, errConfigMissing) {
			fmt.Fprintf(os.Stderr, "%v\nexample written to %s\n", err,
				filepath.Join(cfg.DataDir, "config", "examples", "config.toml.example"))
			os.Exit(2)
		}
		fatal("config", err)
	}
	if err := validateConfig(cfg); err != nil {
		fatal("config", err)
	}

	logLevelName := cfg.LogLevel
	if *logLevelFlag != "" {
		logLevelName = *logLevelFlag
	}
	level, err := parseLogLevel(logLevelName)
	if err != nil {
		fatal("log level", err)
	}
	setLogLevel(level)
	if err := configureFileLogging(cfg.DataDir, *stdoutLogFlag); err != nil {
		fatal("log files", err)
	}
	defer logger.Stop()

	if *printConfigFlag {
		fmt.Println(cfg.Effective())
		return
	}

	logger.Info("starting",
		"version", clientVersion,
		"worker", cfg.WorkerIdentity(),
		"pools", len(cfg.Pools),
		"algorithm", cfg.Algorithm,
		"sha256", sha256Backend())
	warnUncheckedWallets(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := NewMiningClient(cfg, gateFromConfig(cfg))

	// SIGHUP rereads secrets.toml so a rotated worker password takes effect
	// without a restart.
	reloadChan := make(chan os.Signal, 1)
	signal.Notify(reloadChan, syscall.SIGHUP)
	defer signal.Stop(reloadChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reloadChan:
				next := cfg
				if err := reloadSecrets(&next, secretsPath); err != nil {
					logger.Error("secrets reload failed", "path", secretsPath, "error", err)
					continue
				}
				client.UpdateCredentials(next.WorkerPassword)
				logger.Info("secrets reloaded", "path", secretsPath)
			}
		}
	}()

	if cfg.EngineBridgeAddr != "" {
		go newEngineBridge(cfg.EngineBridgeAddr, client).Run(ctx)
	}
	if cfg.EventPublishAddr != "" {
		pub := newEventPublisher(cfg.EventPublishAddr, client.events)
		go func() {
			if err := pub.Run(ctx); err != nil {
				logger.Error("event publisher stopped", "addr", cfg.EventPublishAddr, "error", err)
			}
		}()
	}
	if notifier, err := newDiscordNotifier(cfg); err != nil {
		logger.Warn("discord alerts disabled", "error", err)
	} else if notifier != nil {
		go notifier.Run(ctx, client.events)
	}
	if cfg.StatsLogInterval > 0 {
		go logStatsPeriodically(ctx, client, cfg.StatsLogInterval)
	}

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("client stopped", "error", err)
	}
	logger.Info("shutdown complete")
}

func logStatsPeriodically(ctx context.Context, client *MiningClient, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := client.Stats()
			logger.Info("stats",
				"endpoint", st.Endpoint,
				"state", st.State,
				"submitted", st.Shares.Submitted,
				"accepted", st.Shares.Accepted,
				"rejected", st.Shares.Rejected,
				"stale", st.Shares.Stale,
				"unknown", st.Shares.Unknown,
				"accept_rate", fmt.Sprintf("%.4f", st.AcceptRate),
				"difficulty", st.Difficulty.EffectiveDifficulty,
				"uptime", st.Uptime)
		}
	}
}
