package main

type poolFileConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	TLS         bool   `toml:"tls"`
	TLSInsecure bool   `toml:"tls_insecure"`
	Region      string `toml:"region"`
	Priority    int    `toml:"priority"`
}

type workerFileConfig struct {
	PrimaryWallet   string `toml:"primary_wallet"`
	AuxiliaryWallet string `toml:"auxiliary_wallet"`
	Name            string `toml:"name"`
}

type difficultyFileConfig struct {
	Algorithm         string   `toml:"algorithm"`
	DefaultDifficulty *float64 `toml:"default_difficulty"`
	MinDifficulty     *float64 `toml:"min_difficulty"`
	MaxDifficulty     *float64 `toml:"max_difficulty"`
	AutoAdjust        *bool    `toml:"auto_adjust"`
	SuggestDifficulty *bool    `toml:"suggest_difficulty"`
	WindowSeconds     *int     `toml:"window_seconds"`
	LowerAcceptRate   *float64 `toml:"lower_accept_rate"`
	RaiseAcceptRate   *float64 `toml:"raise_accept_rate"`
}

type timeoutsFileConfig struct {
	ConnectSeconds   *int `toml:"connect_seconds"`
	HandshakeSeconds *int `toml:"handshake_seconds"`
	IdleSeconds      *int `toml:"idle_seconds"`
	SubmitSeconds    *int `toml:"submit_seconds"`
}

type failoverFileConfig struct {
	BreakerThreshold          *int   `toml:"breaker_threshold"`
	BreakerWindowSeconds      *int   `toml:"breaker_window_seconds"`
	BreakerCooldownSeconds    *int   `toml:"breaker_cooldown_seconds"`
	BreakerMaxCooldownSeconds *int   `toml:"breaker_max_cooldown_seconds"`
	BackoffBaseMillis         *int   `toml:"backoff_base_ms"`
	BackoffMaxMillis          *int   `toml:"backoff_max_ms"`
	SelectionPolicy           string `toml:"selection_policy"`
	PreferredRegion           string `toml:"preferred_region"`
	ProbeLatency              *bool  `toml:"probe_latency"`
	PauseFile                 string `toml:"pause_file"`
}

type securityFileConfig struct {
	MaxFrameBytes          *int `toml:"max_frame_bytes"`
	MalformedFrameLimit    *int `toml:"malformed_frame_limit"`
	MalformedWindowSeconds *int `toml:"malformed_window_seconds"`
	ReplayCacheSize        *int `toml:"replay_cache_size"`
}

type jobsFileConfig struct {
	Retention           *int  `toml:"retention"`
	ExtranonceSubscribe *bool `toml:"extranonce_subscribe"`
}

type networkFileConfig struct {
	Proxy        string `toml:"proxy"`
	ProxyUser    string `toml:"proxy_user"`
	TorIsolation bool   `toml:"tor_isolation"`
}

type engineFileConfig struct {
	BridgeAddr       string `toml:"bridge_addr"`
	EventPublishAddr string `toml:"event_publish_addr"`
	StatsLogSeconds  *int   `toml:"stats_log_seconds"`
}

type loggingFileConfig struct {
	Level string `toml:"level"`
}

type discordFileConfig struct {
	ChannelID string `toml:"channel_id"`
}

type baseFileConfig struct {
	Pools      []poolFileConfig     `toml:"pools"`
	Worker     workerFileConfig     `toml:"worker"`
	Difficulty difficultyFileConfig `toml:"difficulty"`
	Timeouts   timeoutsFileConfig   `toml:"timeouts"`
	Failover   failoverFileConfig   `toml:"failover"`
	Security   securityFileConfig   `toml:"security"`
	Jobs       jobsFileConfig       `toml:"jobs"`
	Network    networkFileConfig    `toml:"network"`
	Engine     engineFileConfig     `toml:"engine"`
	Logging    loggingFileConfig    `toml:"logging"`
	Discord    discordFileConfig    `toml:"discord"`
}

type secretsConfig struct {
	WorkerPassword  string `toml:"worker_password"`
	ProxyPassword   string `toml:"proxy_password"`
	DiscordBotToken string `toml:"discord_bot_token"`
}
