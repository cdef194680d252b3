package model

import (
	"net/url"
	"strings"
	"time"
)

// Config holds every setting of a claimdesk session
type Config struct {
	Session  SessionConfig  `yaml:"session" mapstructure:"session"`
	Backend  BackendConfig  `yaml:"backend" mapstructure:"backend"`
	Poll     PollConfig     `yaml:"poll" mapstructure:"poll"`
	Dispatch DispatchConfig `yaml:"dispatch" mapstructure:"dispatch"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Extract  ExtractConfig  `yaml:"extract" mapstructure:"extract"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// SessionConfig identifies the live event being triaged
type SessionConfig struct {
	Target string `yaml:"target" mapstructure:"target"` // Episode key sent with every submission
}

// BackendConfig points at the discovery and verification backend
type BackendConfig struct {
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	PendingPath   string        `yaml:"pending_path" mapstructure:"pending_path"`
	ApprovePath   string        `yaml:"approve_path" mapstructure:"approve_path"`
	ResendPath    string        `yaml:"resend_path" mapstructure:"resend_path"`
	ResultsPath   string        `yaml:"results_path" mapstructure:"results_path"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	SubmitTimeout time.Duration `yaml:"submit_timeout" mapstructure:"submit_timeout"`
}

// PollConfig controls the two fixed-interval pollers
type PollConfig struct {
	DiscoveryInterval time.Duration `yaml:"discovery_interval" mapstructure:"discovery_interval"`
	ResultsInterval   time.Duration `yaml:"results_interval" mapstructure:"results_interval"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries"`
}

// DispatchConfig controls outbound submissions
type DispatchConfig struct {
	BatchSize     int     `yaml:"batch_size" mapstructure:"batch_size"`   // Fresh claims per sub-batch, 0 = one sub-batch
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"` // Parallel resend calls
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
}

// CacheConfig controls the in-memory results cache
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL             time.Duration `yaml:"ttl" mapstructure:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// ServerConfig controls the operator control API
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// ExtractConfig controls optional in-process claim extraction
type ExtractConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"-" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	QueueDepth int    `yaml:"queue_depth" mapstructure:"queue_depth"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // console or json
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{Target: "test"},
		Backend: BackendConfig{
			BaseURL:       "http://localhost:5000",
			PendingPath:   "/api/pending-claims",
			ApprovePath:   "/api/approve-claims",
			ResendPath:    "/api/fact-checks/resend",
			ResultsPath:   "/api/fact-checks",
			UserAgent:     "claimdesk/0.1",
			MaxBodyBytes:  5_000_000,
			SubmitTimeout: 15 * time.Second,
		},
		Poll: PollConfig{
			DiscoveryInterval: 5 * time.Second,
			ResultsInterval:   10 * time.Second,
			Timeout:           5 * time.Second,
			MaxRetries:        2,
		},
		Dispatch: DispatchConfig{
			BatchSize:     0,
			Concurrency:   4,
			RatePerSecond: 5,
			Burst:         5,
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             10 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Server: ServerConfig{Addr: "127.0.0.1:8787"},
		Extract: ExtractConfig{
			Enabled:    false,
			Model:      "gpt-4o-mini",
			Timeout:    60,
			MaxTokens:  2000,
			QueueDepth: 16,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Validate checks the settings a session cannot start without
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Session.Target) == "" {
		return NewValidationError("session.target", c.Session.Target, "must not be empty")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewValidationError("backend.base_url", c.Backend.BaseURL, "must be an absolute http(s) URL")
	}
	if c.Poll.DiscoveryInterval <= 0 || c.Poll.ResultsInterval <= 0 {
		return NewValidationError("poll", nil, "intervals must be positive")
	}
	if c.Dispatch.BatchSize < 0 {
		return NewValidationError("dispatch.batch_size", c.Dispatch.BatchSize, "must not be negative")
	}
	return nil
}
