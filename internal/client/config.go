package client

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
)

const (
	// DefaultConfigFile is read when no --config is given.
	DefaultConfigFile = "pokerclient.hcl"
	// DefaultAPIPrefix is where the game routes are mounted.
	DefaultAPIPrefix = "/poker"

	// EnvServer and EnvUser override the file; flags override both.
	EnvServer = "POKERCLIENT_SERVER"
	EnvUser   = "POKERCLIENT_USER"
)

// ClientConfig represents the complete client configuration
type ClientConfig struct {
	Server  ServerConnection `hcl:"server,block"`
	Player  PlayerSettings   `hcl:"player,block"`
	Session SessionSettings  `hcl:"session,block"`
	Table   TableSettings    `hcl:"table,block"`
	UI      UISettings       `hcl:"ui,block"`
}

// ServerConnection contains backend connection settings
type ServerConnection struct {
	URL              string  `hcl:"url"`
	APIPrefix        string  `hcl:"api_prefix,optional"`
	RequestTimeoutMS int     `hcl:"request_timeout_ms,optional"`
	RateLimitPerSec  float64 `hcl:"rate_limit_per_sec,optional"`
	RateBurst        int     `hcl:"rate_burst,optional"`
}

// PlayerSettings names who we log in as, and optionally who joins us
type PlayerSettings struct {
	Username string `hcl:"username,optional"`
	Partner  string `hcl:"partner,optional"`
}

// SessionSettings tunes the turn scheduler and raise control
type SessionSettings struct {
	AIDelayMS      int `hcl:"ai_delay_ms,optional"`
	PollIntervalMS int `hcl:"poll_interval_ms,optional"`
	RaiseAction    int `hcl:"raise_action,optional"`
	DefaultStep    int `hcl:"default_step,optional"`
}

// TableSettings are used by create when the backend offers no defaults
type TableSettings struct {
	AIDifficulty  string `hcl:"ai_difficulty,optional"`
	SmallBlind    int    `hcl:"small_blind,optional"`
	BigBlind      int    `hcl:"big_blind,optional"`
	BuyIn         int    `hcl:"buy_in,optional"`
	AIPlayerCount int    `hcl:"ai_player_count,optional"`
}

// UISettings contains user interface settings
type UISettings struct {
	LogLevel   string `hcl:"log_level,optional"`
	LogFile    string `hcl:"log_file,optional"`
	HistoryDir string `hcl:"history_dir,optional"`
	NoColor    bool   `hcl:"no_color,optional"`
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Server: ServerConnection{
			URL:              "http://localhost:5000",
			APIPrefix:        DefaultAPIPrefix,
			RequestTimeoutMS: 10000,
			RateLimitPerSec:  10,
			RateBurst:        5,
		},
		Session: SessionSettings{
			AIDelayMS:      2000,
			PollIntervalMS: 3000,
			RaiseAction:    5,
			DefaultStep:    10,
		},
		Table: TableSettings{
			AIDifficulty:  "medium",
			SmallBlind:    10,
			BigBlind:      20,
			BuyIn:         1000,
			AIPlayerCount: 6,
		},
		UI: UISettings{
			LogLevel:   "warn",
			LogFile:    "pokerclient.log",
			HistoryDir: "history",
		},
	}
}

// LoadClientConfig loads client configuration from HCL file. A missing
// file yields the defaults.
func LoadClientConfig(filename string) (*ClientConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultClientConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ClientConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.backfill(DefaultClientConfig())
	return &config, nil
}

// backfill applies defaults for missing values
func (c *ClientConfig) backfill(defaults *ClientConfig) {
	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	if c.Server.APIPrefix == "" {
		c.Server.APIPrefix = defaults.Server.APIPrefix
	}
	if c.Server.RequestTimeoutMS == 0 {
		c.Server.RequestTimeoutMS = defaults.Server.RequestTimeoutMS
	}
	if c.Server.RateLimitPerSec == 0 {
		c.Server.RateLimitPerSec = defaults.Server.RateLimitPerSec
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = defaults.Server.RateBurst
	}

	if c.Session.AIDelayMS == 0 {
		c.Session.AIDelayMS = defaults.Session.AIDelayMS
	}
	if c.Session.PollIntervalMS == 0 {
		c.Session.PollIntervalMS = defaults.Session.PollIntervalMS
	}
	if c.Session.RaiseAction == 0 {
		c.Session.RaiseAction = defaults.Session.RaiseAction
	}
	if c.Session.DefaultStep == 0 {
		c.Session.DefaultStep = defaults.Session.DefaultStep
	}

	if c.Table.AIDifficulty == "" {
		c.Table.AIDifficulty = defaults.Table.AIDifficulty
	}
	if c.Table.SmallBlind == 0 {
		c.Table.SmallBlind = defaults.Table.SmallBlind
	}
	if c.Table.BigBlind == 0 {
		c.Table.BigBlind = defaults.Table.BigBlind
	}
	if c.Table.BuyIn == 0 {
		c.Table.BuyIn = defaults.Table.BuyIn
	}
	if c.Table.AIPlayerCount == 0 {
		c.Table.AIPlayerCount = defaults.Table.AIPlayerCount
	}

	if c.UI.LogLevel == "" {
		c.UI.LogLevel = defaults.UI.LogLevel
	}
	if c.UI.LogFile == "" {
		c.UI.LogFile = defaults.UI.LogFile
	}
	if c.UI.HistoryDir == "" {
		c.UI.HistoryDir = defaults.UI.HistoryDir
	}
}

// LoadEnv reads a .env file, if present, and applies the environment
// overrides. Variables already set in the process win over the file.
func (c *ClientConfig) LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if v := os.Getenv(EnvServer); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv(EnvUser); v != "" {
		c.Player.Username = v
	}
	return nil
}

// Validate validates the client configuration
func (c *ClientConfig) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required")
	}

	if c.Server.RequestTimeoutMS <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	if c.Server.RateLimitPerSec < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}

	if c.Session.AIDelayMS <= 0 {
		return fmt.Errorf("AI delay must be positive")
	}

	if c.Session.PollIntervalMS < 0 {
		return fmt.Errorf("poll interval cannot be negative")
	}

	if c.Session.DefaultStep <= 0 {
		return fmt.Errorf("default raise step must be positive")
	}

	if c.Table.SmallBlind <= 0 || c.Table.BigBlind < c.Table.SmallBlind {
		return fmt.Errorf("blinds must be positive with big >= small")
	}

	if c.Table.BuyIn < c.Table.BigBlind {
		return fmt.Errorf("buy-in must cover the big blind")
	}

	// the backend seats at most 8 including us
	if c.Table.AIPlayerCount < 1 || c.Table.AIPlayerCount > 7 {
		return fmt.Errorf("AI player count must be between 1 and 7")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.UI.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.UI.LogLevel)
	}

	return nil
}

// RequestTimeout returns the per-request timeout
func (c *ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutMS) * time.Millisecond
}

// AIDelay returns how long an AI turn is held before stepping
func (c *ClientConfig) AIDelay() time.Duration {
	return time.Duration(c.Session.AIDelayMS) * time.Millisecond
}

// PollInterval returns the background refresh cadence
func (c *ClientConfig) PollInterval() time.Duration {
	return time.Duration(c.Session.PollIntervalMS) * time.Millisecond
}
