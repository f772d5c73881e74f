package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var secretsConfigExample = []byte(`# Password sent with mining.authorize. Most pools accept "x".
worker_password = "x"

# Optional SOCKS5 proxy credentials (see [network] in config.toml).
# proxy_password = ""

# Optional Discord connection alerts.
# discord_bot_token = "YOUR_DISCORD_BOT_TOKEN"
`)

// Endpoint is one pool server. It never changes after load and is
// identified by host:port.
type Endpoint struct {
	Host        string
	Port        int
	UseTLS      bool
	TLSInsecure bool
	Region      string
	Priority    int
}

func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	if e.UseTLS {
		return "stratum+ssl://" + e.Addr()
	}
	return "stratum+tcp://" + e.Addr()
}

type Config struct {
	DataDir  string
	LogLevel string

	Pools []Endpoint

	// Worker identity. Sent as "<primary>.<auxiliary>.<worker>".
	PrimaryWallet   string
	AuxiliaryWallet string
	WorkerName      string
	WorkerPassword  string // secrets.toml

	// Difficulty.
	Algorithm            string
	DefaultDifficulty    float64
	MinDifficulty        float64
	MaxDifficulty        float64
	AutoAdjustDifficulty bool
	SuggestDifficulty    bool // send mining.suggest_difficulty and apply proposals locally
	DifficultyWindow     time.Duration
	LowerAcceptRate      float64
	RaiseAcceptRate      float64

	// Timeouts.
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	SubmitTimeout    time.Duration

	// Failover.
	BreakerThreshold   int
	BreakerWindow      time.Duration
	BreakerCooldown    time.Duration
	BreakerMaxCooldown time.Duration
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	SelectionPolicy    string
	PreferredRegion    string
	ProbeLatency       bool
	PauseFile          string

	// Inbound security.
	MaxFrameBytes        int
	MalformedFrameLimit  int
	MalformedFrameWindow time.Duration
	ReplayCacheSize      int

	JobRetention        int
	ExtranonceSubscribe bool

	// Optional SOCKS5 proxy for pool connections.
	ProxyAddr     string
	ProxyUser     string
	ProxyPassword string // secrets.toml
	TorIsolation  bool

	// Compute engine and monitoring bridges (empty disables).
	EngineBridgeAddr string
	EventPublishAddr string
	StatsLogInterval time.Duration

	DiscordChannelID string
	DiscordBotToken  string // secrets.toml
}

// WorkerIdentity is the username sent with mining.authorize and every
// mining.submit.
func (c Config) WorkerIdentity() string {
	return buildWorkerIdentity(c.PrimaryWallet, c.AuxiliaryWallet, c.WorkerName)
}

type effectiveConfig struct {
	Pools                string  `json:"pools"`
	Worker               string  `json:"worker"`
	Algorithm            string  `json:"algorithm"`
	DefaultDifficulty    float64 `json:"default_difficulty"`
	MinDifficulty        float64 `json:"min_difficulty"`
	MaxDifficulty        float64 `json:"max_difficulty"`
	AutoAdjustDifficulty bool    `json:"auto_adjust"`
	SuggestDifficulty    bool    `json:"suggest_difficulty"`
	IdleTimeout          string  `json:"idle_timeout"`
	SubmitTimeout        string  `json:"submit_timeout"`
	SelectionPolicy      string  `json:"selection_policy"`
	BreakerThreshold     int     `json:"breaker_threshold"`
	BreakerCooldown      string  `json:"breaker_cooldown"`
	JobRetention         int     `json:"job_retention"`
	Proxy                string  `json:"proxy,omitempty"`
	EngineBridgeAddr     string  `json:"engine_bridge,omitempty"`
	EventPublishAddr     string  `json:"event_publish,omitempty"`
	Discord              bool    `json:"discord"`
}

// Effective renders the settings worth seeing at startup. Secrets are never
// included.
func (c Config) Effective() string {
	pools := make([]string, 0, len(c.Pools))
	for _, p := range c.Pools {
		pools = append(pools, p.String())
	}
	ec := effectiveConfig{
		Pools:                strings.Join(pools, ","),
		Worker:               c.WorkerIdentity(),
		Algorithm:            c.Algorithm,
		DefaultDifficulty:    c.DefaultDifficulty,
		MinDifficulty:        c.MinDifficulty,
		MaxDifficulty:        c.MaxDifficulty,
		AutoAdjustDifficulty: c.AutoAdjustDifficulty,
		SuggestDifficulty:    c.SuggestDifficulty,
		IdleTimeout:          c.IdleTimeout.String(),
		SubmitTimeout:        c.SubmitTimeout.String(),
		SelectionPolicy:      c.SelectionPolicy,
		BreakerThreshold:     c.BreakerThreshold,
		BreakerCooldown:      c.BreakerCooldown.String(),
		JobRetention:         c.JobRetention,
		Proxy:                c.ProxyAddr,
		EngineBridgeAddr:     c.EngineBridgeAddr,
		EventPublishAddr:     c.EventPublishAddr,
		Discord:              c.DiscordChannelID != "" && c.DiscordBotToken != "",
	}
	data, err := fastJSONMarshal(ec)
	if err != nil {
		return fmt.Sprintf("%+v", ec)
	}
	return string(data)
}
